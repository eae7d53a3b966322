package app

import (
	"fmt"
	"io"
	"log/slog"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func parseLogLevel(level string) (slog.Level, error) {
	lvl, ok := logLevels[level]
	if !ok {
		return 0, fmt.Errorf("invalid log_level %q: must be 'debug', 'info', 'warn', or 'error'", level)
	}
	return lvl, nil
}

func checkLogFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid log_format %q: must be 'text' or 'json'", format)
	}
	return nil
}

// newLogger builds the application's own logger; the global one is left
// alone so several Apps can run in one test binary.
func newLogger(level, format string, outW io.Writer) (*slog.Logger, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	if err := checkLogFormat(format); err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts)), nil
	}
	return slog.New(slog.NewTextHandler(outW, opts)), nil
}

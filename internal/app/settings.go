package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Settings holds everything an App needs to run. It can be read from a TOML
// file and overridden by flags.
type Settings struct {
	MailboxCapacity int           `toml:"mailbox_capacity"`
	InboxSize       int           `toml:"inbox_size"`
	APIHost         string        `toml:"api_host"`
	NoAPI           bool          `toml:"no_api"`
	PIDFile         string        `toml:"pid_file"`
	LogLevel        string        `toml:"log_level"`
	LogFormat       string        `toml:"log_format"`
	NoBanner        bool          `toml:"no_banner"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	// Artefacts are the startup files and directories, applied in order.
	Artefacts []string `toml:"artefacts"`
}

// DefaultSettings returns the settings used when nothing else is given.
func DefaultSettings() Settings {
	return Settings{
		MailboxCapacity: 64,
		InboxSize:       64,
		APIHost:         "127.0.0.1:8300",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadSettingsFile decodes a TOML file on top of s. Unknown keys are errors.
func LoadSettingsFile(path string, s *Settings) error {
	md, err := toml.DecodeFile(path, s)
	if err != nil {
		return fmt.Errorf("failed to read settings file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("settings file %q has unknown key(s): %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks the settings for values the app cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if s.MailboxCapacity <= 0 {
		errs = append(errs, fmt.Errorf("mailbox_capacity must be a positive integer, got %d", s.MailboxCapacity))
	}
	if s.InboxSize <= 0 {
		errs = append(errs, fmt.Errorf("inbox_size must be a positive integer, got %d", s.InboxSize))
	}
	if !s.NoAPI && s.APIHost == "" {
		errs = append(errs, errors.New("api_host cannot be empty unless no_api is set"))
	}
	if _, err := parseLogLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := checkLogFormat(s.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", s.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

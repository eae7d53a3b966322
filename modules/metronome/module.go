package metronome

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/handlers"
	"golang.org/x/time/rate"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Config defines the arguments of the metronome source.
type Config struct {
	Interval string `yaml:"interval"`
	// Limit stops the source after that many ticks. Zero means no limit.
	Limit int `yaml:"limit"`
	// Fields are copied into every tick.
	Fields map[string]any `yaml:"fields"`
}

// Source emits a tick every interval.
type Source struct {
	interval time.Duration
	limit    int
	fields   map[string]any
	limiter  *rate.Limiter
}

// New validates cfg and creates a metronome.
func New(cfg Config) (*Source, error) {
	if cfg.Interval == "" {
		cfg.Interval = "1s"
	}
	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q: %w", cfg.Interval, err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", cfg.Limit)
	}
	return &Source{
		interval: interval,
		limit:    cfg.Limit,
		fields:   cfg.Fields,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}, nil
}

// Run implements handlers.Source.
func (s *Source) Run(ctx context.Context, out handlers.Output) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Metronome started.", "interval", s.interval, "limit", s.limit)

	for n := 1; s.limit == 0 || n <= s.limit; n++ {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("metronome pacing failed: %w", err)
		}
		tick := make(map[string]any, len(s.fields)+2)
		maps.Copy(tick, s.fields)
		tick["tick"] = n
		tick["at"] = time.Now().UTC().Format(time.RFC3339Nano)
		if err := out.Emit(ctx, tick); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Warn("Failed to emit tick.", "tick", n, "error", err)
		}
	}
	return nil
}

// Close implements handlers.Source.
func (s *Source) Close() error { return nil }

// Register registers the connector with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterConnector("metronome", &handlers.RegisteredConnector{
		Description: "emits a tick at a fixed interval",
		NewSource: func(_ context.Context, config map[string]any) (handlers.Source, error) {
			var cfg Config
			if err := handlers.Decode(config, &cfg); err != nil {
				return nil, err
			}
			return New(cfg)
		},
	})
}

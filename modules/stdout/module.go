package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/handlers"
)

// Module implements the handlers.Module interface for this package.
type Module struct {
	// Writer replaces the process output when set.
	Writer io.Writer
}

// Config defines the arguments of the stdout sink.
type Config struct {
	// Envelope prints the whole event instead of just its payload.
	Envelope bool   `yaml:"envelope"`
	Prefix   string `yaml:"prefix"`
}

// Sink writes one JSON line per event.
type Sink struct {
	mu  sync.Mutex
	w   io.Writer
	cfg Config
}

// Write implements handlers.Sink.
func (s *Sink) Write(_ context.Context, ev event.Event) error {
	var v any = ev.Payload
	if s.cfg.Envelope {
		v = ev
	}
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintf(s.w, "%s%s\n", s.cfg.Prefix, line)
	return err
}

// Close implements handlers.Sink.
func (s *Sink) Close() error { return nil }

// Register registers the connector with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterConnector("stdout", &handlers.RegisteredConnector{
		Description: "writes events as JSON lines to the process output",
		NewSink: func(_ context.Context, config map[string]any) (handlers.Sink, error) {
			var cfg Config
			if err := handlers.Decode(config, &cfg); err != nil {
				return nil, err
			}
			w := m.Writer
			if w == nil {
				w = os.Stdout
			}
			return &Sink{w: w, cfg: cfg}, nil
		},
	})
}

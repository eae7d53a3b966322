package blackhole

import (
	"context"
	"sync/atomic"

	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/handlers"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Sink discards everything it receives and counts it.
type Sink struct {
	count atomic.Uint64
}

func (s *Sink) Write(context.Context, event.Event) error {
	s.count.Add(1)
	return nil
}

func (s *Sink) Close() error { return nil }

// Count returns the number of events discarded so far.
func (s *Sink) Count() uint64 { return s.count.Load() }

// Register registers the connector with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterConnector("blackhole", &handlers.RegisteredConnector{
		Description: "counts and discards events",
		NewSink: func(_ context.Context, config map[string]any) (handlers.Sink, error) {
			var cfg struct{}
			if err := handlers.Decode(config, &cfg); err != nil {
				return nil, err
			}
			return &Sink{}, nil
		},
	})
}

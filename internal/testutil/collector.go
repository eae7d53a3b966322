package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/stretchr/testify/require"
)

// Collector is an Inlet that records every delivered event.
type Collector struct {
	mu     sync.Mutex
	events []event.Event
	notify chan struct{}
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{notify: make(chan struct{}, 1)}
}

// Deliver implements servant.Inlet.
func (c *Collector) Deliver(_ context.Context, ev event.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Events returns a snapshot of the recorded events.
func (c *Collector) Events() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

// WaitFor blocks until at least n events were recorded or the timeout hits.
func (c *Collector) WaitFor(t *testing.T, n int, timeout time.Duration) []event.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if evs := c.Events(); len(evs) >= n {
			return evs
		}
		select {
		case <-c.notify:
		case <-deadline:
			require.FailNowf(t, "timed out waiting for events", "want %d, got %d", n, len(c.Events()))
		}
	}
}

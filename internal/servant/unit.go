package servant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/event"
)

// Port names shared by the built-in servant kinds.
const (
	PortIn  = "in"
	PortOut = "out"
	PortErr = "err"
)

// ErrClosed is returned when delivering into an inbox whose servant stopped.
var ErrClosed = errors.New("servant: inbox closed")

// Unit is the execution body of a servant.
type Unit interface {
	// Run blocks until ctx is cancelled or the unit finishes on its own.
	Run(ctx context.Context) error
	// Close releases connector handles once Run has returned.
	Close() error
}

// Emitter is a unit with output ports (sources and pipelines).
type Emitter interface {
	Unit
	Outlet(port string) (*Outlet, error)
}

// Receiver is a unit with input ports (pipelines and sinks).
type Receiver interface {
	Unit
	Inlet(port string) (Inlet, error)
}

// Inlet accepts events on behalf of a receiving servant.
type Inlet interface {
	Deliver(ctx context.Context, ev event.Event) error
}

// Factory builds units for one artefact kind. Build must not leave anything
// running or open when it returns an error.
type Factory interface {
	Build(ctx context.Context, key artefact.ServantKey, def artefact.Definition) (Unit, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, key artefact.ServantKey, def artefact.Definition) (Unit, error)

func (f FactoryFunc) Build(ctx context.Context, key artefact.ServantKey, def artefact.Definition) (Unit, error) {
	return f(ctx, key, def)
}

// Outlet is an output port: a fan-out list of downstream inlets.
type Outlet struct {
	name string
	mu   sync.RWMutex
	subs []subscriber
}

type subscriber struct {
	id    string
	inlet Inlet
}

// NewOutlet creates an outlet with no subscribers. name is the URL of the
// port and is used as the origin of emitted events.
func NewOutlet(name string) *Outlet {
	return &Outlet{name: name}
}

// Name returns the URL of the port.
func (o *Outlet) Name() string {
	return o.name
}

// Connect adds in under id. Connecting the same id twice is an error.
func (o *Outlet) Connect(id string, in Inlet) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.subs {
		if s.id == id {
			return fmt.Errorf("%s is already connected to %s", o.name, id)
		}
	}
	o.subs = append(o.subs, subscriber{id: id, inlet: in})
	return nil
}

// Disconnect removes the subscriber id and reports whether it was present.
func (o *Outlet) Disconnect(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Connected returns the ids of the current subscribers.
func (o *Outlet) Connected() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.subs))
	for _, s := range o.subs {
		ids = append(ids, s.id)
	}
	return ids
}

// Emit delivers ev to every subscriber in connection order. Subscribers that
// have closed are skipped. It returns the number of successful deliveries.
func (o *Outlet) Emit(ctx context.Context, ev event.Event) (int, error) {
	o.mu.RLock()
	subs := append([]subscriber(nil), o.subs...)
	o.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		err := s.inlet.Deliver(ctx, ev)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrClosed):
			continue
		default:
			return delivered, err
		}
	}
	return delivered, nil
}

// Inbox is a bounded input queue. Deliver blocks while the queue is full,
// which propagates backpressure to the upstream servant.
type Inbox struct {
	ch   chan event.Event
	done chan struct{}
	once sync.Once
}

// NewInbox creates an inbox buffering up to size events.
func NewInbox(size int) *Inbox {
	if size < 1 {
		size = 1
	}
	return &Inbox{
		ch:   make(chan event.Event, size),
		done: make(chan struct{}),
	}
}

// Deliver enqueues ev, waiting for room unless ctx ends or the inbox closes.
func (b *Inbox) Deliver(ctx context.Context, ev event.Event) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.ch <- ev:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C is the channel the owning servant drains.
func (b *Inbox) C() <-chan event.Event {
	return b.ch
}

// Done is closed once the inbox stops accepting events.
func (b *Inbox) Done() <-chan struct{} {
	return b.done
}

// Close stops accepting events. It is safe to call more than once.
func (b *Inbox) Close() {
	b.once.Do(func() { close(b.done) })
}

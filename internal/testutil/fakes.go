package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/servant"
)

// FakeFactory builds FakeUnits for any artefact kind and records every build
// and close, so tests can assert on servant lifecycles.
type FakeFactory struct {
	mu     sync.Mutex
	built  []artefact.ServantKey
	closed []artefact.ServantKey
	units  map[artefact.ServantKey]*FakeUnit

	// FailArtefacts makes Build fail for any servant of the named artefacts.
	FailArtefacts map[string]error
	// PanicArtefacts makes Build panic for any servant of the named artefacts.
	PanicArtefacts map[string]bool
	// PanicOnClose makes Close panic for any servant of the named artefacts.
	PanicOnClose map[string]bool
	// Gate, when set, makes Build wait until it is closed or receives a value.
	Gate chan struct{}
	// Entered, when set, receives each key as Build starts.
	Entered chan artefact.ServantKey
}

// NewFakeFactory creates a factory with no configured failures.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{
		FailArtefacts:  make(map[string]error),
		PanicArtefacts: make(map[string]bool),
		PanicOnClose:   make(map[string]bool),
		units:          make(map[artefact.ServantKey]*FakeUnit),
	}
}

// Factories returns f registered for every artefact kind that has servants.
func (f *FakeFactory) Factories() map[artefact.Kind]servant.Factory {
	return map[artefact.Kind]servant.Factory{
		artefact.Pipeline: f,
		artefact.Source:   f,
		artefact.Sink:     f,
	}
}

// Build implements servant.Factory.
func (f *FakeFactory) Build(ctx context.Context, key artefact.ServantKey, def artefact.Definition) (servant.Unit, error) {
	if f.Entered != nil {
		f.Entered <- key
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailArtefacts[key.Artefact]; ok {
		return nil, err
	}
	if f.PanicArtefacts[key.Artefact] {
		panic("fake build failure for " + key.String())
	}
	u := &FakeUnit{
		key:     key,
		factory: f,
		inbox:   servant.NewInbox(16),
		outlets: map[string]*servant.Outlet{
			servant.PortOut: servant.NewOutlet(artefact.URL{Kind: key.Kind, Artefact: key.Artefact, Servant: key.Servant, Port: servant.PortOut}.String()),
			servant.PortErr: servant.NewOutlet(artefact.URL{Kind: key.Kind, Artefact: key.Artefact, Servant: key.Servant, Port: servant.PortErr}.String()),
		},
	}
	f.built = append(f.built, key)
	f.units[key] = u
	return u, nil
}

// Built returns the keys built so far, in order.
func (f *FakeFactory) Built() []artefact.ServantKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.built)
}

// Closed returns the keys closed so far, in order.
func (f *FakeFactory) Closed() []artefact.ServantKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.closed)
}

// Unit returns the most recent unit built for key.
func (f *FakeFactory) Unit(key artefact.ServantKey) *FakeUnit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[key]
}

// FakeUnit forwards everything delivered to its `in` port to its `out` port.
type FakeUnit struct {
	key     artefact.ServantKey
	factory *FakeFactory
	inbox   *servant.Inbox
	outlets map[string]*servant.Outlet
	closes  int
}

// Run implements servant.Unit.
func (u *FakeUnit) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			u.inbox.Close()
			return ctx.Err()
		case ev := <-u.inbox.C():
			if _, err := u.outlets[servant.PortOut].Emit(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// Close implements servant.Unit.
func (u *FakeUnit) Close() error {
	u.factory.mu.Lock()
	u.closes++
	u.factory.closed = append(u.factory.closed, u.key)
	boom := u.factory.PanicOnClose[u.key.Artefact]
	u.factory.mu.Unlock()
	if boom {
		panic("fake close failure for " + u.key.String())
	}
	return nil
}

// Outlet implements servant.Emitter.
func (u *FakeUnit) Outlet(port string) (*servant.Outlet, error) {
	o, ok := u.outlets[port]
	if !ok {
		return nil, fmt.Errorf("fake servant %s has no output port %q", u.key, port)
	}
	return o, nil
}

// Inlet implements servant.Receiver.
func (u *FakeUnit) Inlet(port string) (servant.Inlet, error) {
	if port != servant.PortIn {
		return nil, fmt.Errorf("fake servant %s has no input port %q", u.key, port)
	}
	return u.inbox, nil
}

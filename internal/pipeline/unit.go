package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/servant"
)

// DefaultInboxSize is used when a Factory is configured with no size.
const DefaultInboxSize = 64

// Factory builds pipeline servants.
type Factory struct {
	InboxSize int
}

// NewFactory creates a pipeline factory with the given inbox size.
func NewFactory(inboxSize int) *Factory {
	return &Factory{InboxSize: inboxSize}
}

// Build implements servant.Factory. The graph is compiled here, so an invalid
// pipeline fails to start rather than failing to publish.
func (f *Factory) Build(ctx context.Context, key artefact.ServantKey, def artefact.Definition) (servant.Unit, error) {
	if def.Kind != artefact.Pipeline {
		return nil, fmt.Errorf("pipeline factory cannot build a %s", def.Kind)
	}
	spec, ok := def.Spec.(*Spec)
	if !ok {
		parsed, err := ParseOne(ctx, def.Raw, def.ID)
		if err != nil {
			return nil, err
		}
		if parsed.ID != def.ID {
			return nil, fmt.Errorf("definition %q contains pipeline %q", def.ID, parsed.ID)
		}
		spec = parsed.Spec.(*Spec)
	}

	schedule, err := Compile(spec)
	if err != nil {
		return nil, err
	}

	size := f.InboxSize
	if size <= 0 {
		size = DefaultInboxSize
	}
	ctxlog.FromContext(ctx).Debug("Compiled pipeline.", "pipeline", spec.ID, "order", schedule.order)
	return &Unit{
		key:      key,
		schedule: schedule,
		inbox:    servant.NewInbox(size),
		outlets: map[string]*servant.Outlet{
			servant.PortOut: servant.NewOutlet(key.Port(servant.PortOut).String()),
			servant.PortErr: servant.NewOutlet(key.Port(servant.PortErr).String()),
		},
	}, nil
}

// Unit is a running pipeline servant: it drains its inbox, runs each event
// through the schedule and emits the results on `out` and `err`.
type Unit struct {
	key       artefact.ServantKey
	schedule  *Schedule
	inbox     *servant.Inbox
	outlets   map[string]*servant.Outlet
	processed atomic.Uint64
}

// Run implements servant.Unit.
func (u *Unit) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	defer u.inbox.Close()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Pipeline draining stopped.", "processed", u.processed.Load())
			return ctx.Err()
		case ev := <-u.inbox.C():
			u.processed.Add(1)
			for _, out := range u.schedule.Process(ev) {
				out.Event.Origin = u.outlets[out.Port].Name()
				if _, err := u.outlets[out.Port].Emit(ctx, out.Event); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					logger.Warn("Failed to emit pipeline output.", "port", out.Port, "error", err)
				}
			}
		}
	}
}

// Close implements servant.Unit.
func (u *Unit) Close() error {
	u.inbox.Close()
	return nil
}

// Processed returns the number of events taken from the inbox so far.
func (u *Unit) Processed() uint64 {
	return u.processed.Load()
}

// Outlet implements servant.Emitter.
func (u *Unit) Outlet(port string) (*servant.Outlet, error) {
	o, ok := u.outlets[port]
	if !ok {
		return nil, fmt.Errorf("pipeline %s has no output port %q", u.key, port)
	}
	return o, nil
}

// Inlet implements servant.Receiver.
func (u *Unit) Inlet(port string) (servant.Inlet, error) {
	if port != servant.PortIn {
		return nil, fmt.Errorf("pipeline %s has no input port %q", u.key, port)
	}
	return u.inbox, nil
}

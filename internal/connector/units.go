package connector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/handlers"
	"github.com/specialistvlad/eventgrid/internal/servant"
)

type sourceUnit struct {
	key     artefact.ServantKey
	src     handlers.Source
	out     *servant.Outlet
	errs    *servant.Outlet
	emitted atomic.Uint64
}

func newSourceUnit(key artefact.ServantKey, src handlers.Source) *sourceUnit {
	return &sourceUnit{
		key:  key,
		src:  src,
		out:  servant.NewOutlet(key.Port(servant.PortOut).String()),
		errs: servant.NewOutlet(key.Port(servant.PortErr).String()),
	}
}

func (u *sourceUnit) Run(ctx context.Context) error {
	err := u.src.Run(ctx, u)
	if err == nil || errors.Is(err, context.Canceled) {
		ctxlog.FromContext(ctx).Debug("Source finished.", "emitted", u.emitted.Load())
	}
	return err
}

func (u *sourceUnit) Close() error {
	return u.src.Close()
}

// Emit implements handlers.Output.
func (u *sourceUnit) Emit(ctx context.Context, payload any) error {
	normalized, err := event.Normalize(payload)
	if err != nil {
		return u.Fail(ctx, err)
	}
	u.emitted.Add(1)
	_, err = u.out.Emit(ctx, event.New(u.out.Name(), normalized))
	return err
}

// Fail implements handlers.Output.
func (u *sourceUnit) Fail(ctx context.Context, cause error) error {
	_, err := u.errs.Emit(ctx, event.New(u.errs.Name(), map[string]any{
		"error":  cause.Error(),
		"source": u.key.String(),
	}))
	return err
}

func (u *sourceUnit) Outlet(port string) (*servant.Outlet, error) {
	switch port {
	case servant.PortOut:
		return u.out, nil
	case servant.PortErr:
		return u.errs, nil
	}
	return nil, fmt.Errorf("source %s has no output port %q", u.key, port)
}

type sinkUnit struct {
	key     artefact.ServantKey
	sink    handlers.Sink
	inbox   *servant.Inbox
	written atomic.Uint64
	failed  atomic.Uint64
}

func newSinkUnit(key artefact.ServantKey, sink handlers.Sink, size int) *sinkUnit {
	return &sinkUnit{key: key, sink: sink, inbox: servant.NewInbox(size)}
}

func (u *sinkUnit) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	defer u.inbox.Close()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Sink stopped.", "written", u.written.Load(), "failed", u.failed.Load())
			return ctx.Err()
		case ev := <-u.inbox.C():
			if err := u.sink.Write(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				u.failed.Add(1)
				logger.Warn("Sink failed to write event.", "event", ev.ID, "error", err)
				continue
			}
			u.written.Add(1)
		}
	}
}

func (u *sinkUnit) Close() error {
	u.inbox.Close()
	return u.sink.Close()
}

func (u *sinkUnit) Inlet(port string) (servant.Inlet, error) {
	if port != servant.PortIn {
		return nil, fmt.Errorf("sink %s has no input port %q", u.key, port)
	}
	return u.inbox, nil
}

package world

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/binding"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/registry"
	"github.com/specialistvlad/eventgrid/internal/servant"
)

// Options configures a World.
type Options struct {
	// MailboxCapacity bounds the number of requests waiting for the loop.
	MailboxCapacity int
	// Factories build the servants of each kind.
	Factories map[artefact.Kind]servant.Factory
}

// World is the orchestrator. Its methods are safe for concurrent use.
type World struct {
	mailbox  chan request
	done     chan struct{}
	stopping atomic.Bool

	// Owned by the loop goroutine.
	registries *registry.Set
	supervisor *servant.Supervisor
	resolver   *binding.Resolver

	// Written by the loop before done is closed.
	err error
}

type request struct {
	ctx    context.Context
	op     string
	stop   bool
	run    func(ctx context.Context)
	reject func(err error)
}

type result[T any] struct {
	value T
	err   error
}

// Start creates a World and starts its loop. ctx supplies the logger; the
// loop runs until Stop is called.
func Start(ctx context.Context, opts Options) (*World, error) {
	if opts.MailboxCapacity <= 0 {
		return nil, fmt.Errorf("mailbox capacity must be a positive integer, got %d", opts.MailboxCapacity)
	}
	for _, kind := range []artefact.Kind{artefact.Pipeline, artefact.Source, artefact.Sink} {
		if opts.Factories[kind] == nil {
			return nil, fmt.Errorf("no servant factory for %s", kind)
		}
	}

	regs := registry.NewSet()
	sup := servant.NewSupervisor(opts.Factories)
	w := &World{
		mailbox:    make(chan request, opts.MailboxCapacity),
		done:       make(chan struct{}),
		registries: regs,
		supervisor: sup,
		resolver:   binding.New(regs, sup),
	}

	logger := ctxlog.FromContext(ctx).With("component", "world")
	go w.loop(ctxlog.WithLogger(context.WithoutCancel(ctx), logger))
	logger.Info("World started.", "mailbox_capacity", opts.MailboxCapacity)
	return w, nil
}

func (w *World) loop(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	defer close(w.done)

	for req := range w.mailbox {
		// An accepted request runs to completion even if its caller gave up.
		reqCtx := context.WithoutCancel(req.ctx)
		if req.stop {
			w.err = w.shutdown(reqCtx)
			req.run(reqCtx)
			break
		}
		logger.Debug("Processing request.", "op", req.op, "backlog", len(w.mailbox))
		w.dispatch(reqCtx, req)
	}

	// Requests that made it into the mailbox after the stop request.
	for {
		select {
		case req := <-w.mailbox:
			req.reject(artefact.ErrStopped)
		default:
			logger.Info("World stopped.")
			return
		}
	}
}

func (w *World) dispatch(ctx context.Context, req request) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Request panicked.", "op", req.op, "panic", r)
			req.reject(fmt.Errorf("%s: internal error: %v", req.op, r))
		}
	}()
	req.run(ctx)
}

// shutdown unlinks every instance, newest first, then stops anything left.
func (w *World) shutdown(ctx context.Context) (err error) {
	logger := ctxlog.FromContext(ctx)
	linked := w.resolver.Linked()
	logger.Info("Shutting down world.", "linked", len(linked), "servants", w.supervisor.Len())

	var errs []error
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Shutdown panicked.", "panic", r)
			errs = append(errs, fmt.Errorf("shutdown: internal error: %v", r))
			if left := w.supervisor.StopAll(ctx); left != nil {
				errs = append(errs, left)
			}
			err = errors.Join(errs...)
		}
	}()
	for i := len(linked) - 1; i >= 0; i-- {
		inst := linked[i]
		if _, err := w.resolver.Unlink(ctx, inst.Binding, inst.Servant); err != nil {
			logger.Error("Failed to unlink during shutdown.", "binding", inst.Binding, "instance", inst.Servant, "error", err)
			errs = append(errs, err)
		}
	}
	if w.supervisor.Len() > 0 {
		logger.Warn("Stopping servants left after unlinking.", "servants", w.supervisor.Len())
		if err := w.supervisor.StopAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// call sends fn to the loop and waits for its result. Mutations are refused
// once Stop has been called.
func call[T any](ctx context.Context, w *World, op string, mutating bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	select {
	case <-w.done:
		return zero, artefact.ErrStopped
	default:
	}
	if mutating && w.stopping.Load() {
		return zero, fmt.Errorf("%s: %w", op, artefact.ErrStopping)
	}

	reply := make(chan result[T], 1)
	req := request{
		ctx: ctx,
		op:  op,
		run: func(ctx context.Context) {
			v, err := fn(ctx)
			reply <- result[T]{value: v, err: err}
		},
		reject: func(err error) {
			reply <- result[T]{err: err}
		},
	}
	return await(ctx, w, req, reply)
}

func await[T any](ctx context.Context, w *World, req request, reply chan result[T]) (T, error) {
	var zero T
	select {
	case w.mailbox <- req:
	case <-w.done:
		return zero, artefact.ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-w.done:
		// The loop may have answered just before exiting.
		select {
		case r := <-reply:
			return r.value, r.err
		default:
			return zero, artefact.ErrStopped
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Stop refuses further mutations, waits for the requests already queued,
// unlinks every binding instance and makes the loop exit. If ctx ends first
// Stop returns its error but the shutdown still happens. Calling it again
// only waits for the first call to finish.
func (w *World) Stop(ctx context.Context) error {
	if !w.stopping.CompareAndSwap(false, true) {
		select {
		case <-w.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	reply := make(chan result[struct{}], 1)
	req := request{
		ctx:  ctx,
		op:   "stop",
		stop: true,
		run: func(context.Context) {
			reply <- result[struct{}]{err: w.err}
		},
		reject: func(err error) {
			reply <- result[struct{}]{err: err}
		},
	}
	// Queued regardless of ctx: once issued, the stop runs to completion.
	go func() { w.mailbox <- req }()

	select {
	case r := <-reply:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the loop has exited and returns the shutdown error.
func (w *World) Wait() error {
	<-w.done
	return w.err
}

// Done is closed when the loop has exited.
func (w *World) Done() <-chan struct{} {
	return w.done
}

// Stopping reports whether Stop has been called.
func (w *World) Stopping() bool {
	return w.stopping.Load()
}

// Backlog returns the number of requests waiting in the mailbox.
func (w *World) Backlog() int {
	return len(w.mailbox)
}

package servant

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
)

// Handle is the supervisor's record of one running servant.
type Handle struct {
	Key     artefact.ServantKey
	Started time.Time

	unit     Unit
	runCtx   context.Context
	cancel   context.CancelFunc
	launched bool
	done     chan struct{}
	err      error
}

// Done is closed when the servant's Run returns. It is never closed for a
// servant that was built but not launched.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the error Run finished with. Only valid after Done is closed.
func (h *Handle) Err() error {
	return h.err
}

// Supervisor owns the table of running servants.
type Supervisor struct {
	factories map[artefact.Kind]Factory
	servants  map[artefact.ServantKey]*Handle
	order     []artefact.ServantKey
}

// NewSupervisor creates a supervisor using the given factory per kind.
func NewSupervisor(factories map[artefact.Kind]Factory) *Supervisor {
	fs := make(map[artefact.Kind]Factory, len(factories))
	for k, f := range factories {
		fs[k] = f
	}
	return &Supervisor{
		factories: fs,
		servants:  make(map[artefact.ServantKey]*Handle),
	}
}

// Start builds a unit for key from def and runs it on its own goroutine.
func (s *Supervisor) Start(ctx context.Context, key artefact.ServantKey, def artefact.Definition) (*Handle, error) {
	h, err := s.Build(ctx, key, def)
	if err != nil {
		return nil, err
	}
	if err := s.Launch(key); err != nil {
		return nil, err
	}
	return h, nil
}

// Build constructs and records a unit for key without running it, so it can
// be connected before it produces anything. Launch runs it.
func (s *Supervisor) Build(ctx context.Context, key artefact.ServantKey, def artefact.Definition) (*Handle, error) {
	logger := ctxlog.FromContext(ctx).With("servant", key.String())

	if _, exists := s.servants[key]; exists {
		return nil, fmt.Errorf("servant %s: %w", key, artefact.ErrAlreadyRunning)
	}
	if def.Kind != key.Kind || def.ID != key.Artefact {
		return nil, fmt.Errorf("servant %s cannot be started from %s %q", key, def.Kind, def.ID)
	}
	factory, ok := s.factories[key.Kind]
	if !ok {
		return nil, &artefact.ConstructionError{Key: key, Err: fmt.Errorf("no factory for %s servants", key.Kind)}
	}

	logger.Debug("Constructing servant.")
	unit, err := factory.Build(ctx, key, def)
	if err != nil {
		logger.Warn("Servant construction failed.", "error", err)
		return nil, &artefact.ConstructionError{Key: key, Err: err}
	}

	// The servant outlives the request that started it, but keeps its values.
	runCtx, cancel := context.WithCancel(ctxlog.WithLogger(context.WithoutCancel(ctx), logger))
	h := &Handle{
		Key:    key,
		unit:   unit,
		runCtx: runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.servants[key] = h
	s.order = append(s.order, key)
	return h, nil
}

// Launch runs a built servant on its own goroutine.
func (s *Supervisor) Launch(key artefact.ServantKey) error {
	h, ok := s.servants[key]
	if !ok {
		return artefact.NotFound("servant " + key.String())
	}
	if h.launched {
		return fmt.Errorf("servant %s: %w", key, artefact.ErrAlreadyRunning)
	}
	h.launched = true
	h.Started = time.Now()
	logger := ctxlog.FromContext(h.runCtx)

	go func() {
		defer close(h.done)
		h.err = h.unit.Run(h.runCtx)
		if h.err != nil && !errors.Is(h.err, context.Canceled) {
			logger.Error("Servant exited with error.", "error", h.err)
			return
		}
		logger.Debug("Servant exited.")
	}()

	logger.Info("Servant started.")
	return nil
}

// Stop signals the servant to quiesce, waits for it to finish, closes it and
// removes it from the table. Once issued it runs to completion.
func (s *Supervisor) Stop(ctx context.Context, key artefact.ServantKey) error {
	logger := ctxlog.FromContext(ctx).With("servant", key.String())

	h, ok := s.servants[key]
	if !ok {
		return artefact.NotFound("servant " + key.String())
	}

	logger.Debug("Stopping servant.")
	h.cancel()
	if h.launched {
		<-h.done
	}

	delete(s.servants, key)
	if i := slices.Index(s.order, key); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}

	if err := closeUnit(h.unit); err != nil {
		logger.Warn("Servant close reported an error.", "error", err)
		return fmt.Errorf("closing servant %s: %w", key, err)
	}
	logger.Info("Servant stopped.")
	return nil
}

func closeUnit(u Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panicked: %v", r)
		}
	}()
	return u.Close()
}

// StopAll stops every remaining servant, newest first.
func (s *Supervisor) StopAll(ctx context.Context) error {
	var errs []error
	keys := slices.Clone(s.order)
	slices.Reverse(keys)
	for _, key := range keys {
		if err := s.Stop(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Has reports whether key is running.
func (s *Supervisor) Has(key artefact.ServantKey) bool {
	_, ok := s.servants[key]
	return ok
}

// ListFor returns the servant ids running under an artefact, in start order.
func (s *Supervisor) ListFor(kind artefact.Kind, id string) []string {
	var out []string
	for _, key := range s.order {
		if key.Kind == kind && key.Artefact == id {
			out = append(out, key.Servant)
		}
	}
	return out
}

// Keys returns every running servant key in start order.
func (s *Supervisor) Keys() []artefact.ServantKey {
	return slices.Clone(s.order)
}

// Len returns the number of running servants.
func (s *Supervisor) Len() int {
	return len(s.order)
}

// Connect wires the output port of one servant into an input port of another.
func (s *Supervisor) Connect(from artefact.ServantKey, fromPort string, to artefact.ServantKey, toPort string) error {
	outlet, err := s.outlet(from, fromPort)
	if err != nil {
		return err
	}
	inlet, err := s.inlet(to, toPort)
	if err != nil {
		return err
	}
	return outlet.Connect(connectionID(to, toPort), inlet)
}

// Disconnect undoes Connect. A missing origin servant is an ErrNotFound
// error; a connection that was already gone is not an error.
func (s *Supervisor) Disconnect(from artefact.ServantKey, fromPort string, to artefact.ServantKey, toPort string) error {
	outlet, err := s.outlet(from, fromPort)
	if err != nil {
		return err
	}
	outlet.Disconnect(connectionID(to, toPort))
	return nil
}

func (s *Supervisor) outlet(key artefact.ServantKey, port string) (*Outlet, error) {
	h, ok := s.servants[key]
	if !ok {
		return nil, artefact.NotFound("servant " + key.String())
	}
	em, ok := h.unit.(Emitter)
	if !ok {
		return nil, fmt.Errorf("servant %s has no output ports", key)
	}
	return em.Outlet(port)
}

func (s *Supervisor) inlet(key artefact.ServantKey, port string) (Inlet, error) {
	h, ok := s.servants[key]
	if !ok {
		return nil, artefact.NotFound("servant " + key.String())
	}
	rc, ok := h.unit.(Receiver)
	if !ok {
		return nil, fmt.Errorf("servant %s has no input ports", key)
	}
	return rc.Inlet(port)
}

func connectionID(key artefact.ServantKey, port string) string {
	return key.String() + "/" + port
}

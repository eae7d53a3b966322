package connector_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/connector"
	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/handlers"
	"github.com/specialistvlad/eventgrid/internal/servant"
	"github.com/specialistvlad/eventgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countSource emits {"n": i} for i in [0, count) and then returns.
type countSource struct {
	count  int
	closed bool
}

func (s *countSource) Run(ctx context.Context, out handlers.Output) error {
	for i := 0; i < s.count; i++ {
		if err := out.Emit(ctx, map[string]any{"n": i}); err != nil {
			return err
		}
	}
	return out.Fail(ctx, errors.New("exhausted"))
}

func (s *countSource) Close() error { s.closed = true; return nil }

type memorySink struct {
	mu  sync.Mutex
	got []event.Event
}

func (s *memorySink) Write(_ context.Context, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ev)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.got...)
}

func testHandlers(src *countSource, sink *memorySink) *handlers.Handlers {
	h := handlers.New()
	h.RegisterConnector("count", &handlers.RegisteredConnector{
		NewSource: func(_ context.Context, cfg map[string]any) (handlers.Source, error) {
			var c struct {
				Count int `yaml:"count"`
			}
			if err := handlers.Decode(cfg, &c); err != nil {
				return nil, err
			}
			src.count = c.Count
			return src, nil
		},
	})
	h.RegisterConnector("memory", &handlers.RegisteredConnector{
		NewSink: func(context.Context, map[string]any) (handlers.Sink, error) { return sink, nil },
	})
	return h
}

func sourceDef(id, typ string, cfg map[string]any) artefact.Definition {
	return artefact.Definition{Kind: artefact.Source, ID: id, Spec: &artefact.ConnectorSpec{Type: typ, Config: cfg}}
}

func TestSourceUnit_EmitsOnPorts(t *testing.T) {
	ctx, _ := testutil.Context(t)
	src := &countSource{}
	f := &connector.SourceFactory{Handlers: testHandlers(src, &memorySink{})}
	key := artefact.ServantKey{Kind: artefact.Source, Artefact: "s1", Servant: "01"}

	unit, err := f.Build(ctx, key, sourceDef("s1", "count", map[string]any{"count": 3}))
	require.NoError(t, err)

	outs := testutil.NewCollector()
	errs := testutil.NewCollector()
	o, err := unit.(servant.Emitter).Outlet(servant.PortOut)
	require.NoError(t, err)
	require.NoError(t, o.Connect("outs", outs))
	e, err := unit.(servant.Emitter).Outlet(servant.PortErr)
	require.NoError(t, err)
	require.NoError(t, e.Connect("errs", errs))

	require.NoError(t, unit.Run(ctx))
	require.NoError(t, unit.Close())
	assert.True(t, src.closed)

	got := outs.Events()
	require.Len(t, got, 3)
	assert.Equal(t, map[string]any{"n": 2.0}, got[2].Payload)
	assert.Equal(t, "/source/s1/01/out", got[0].Origin)

	failures := errs.Events()
	require.Len(t, failures, 1)
	assert.Equal(t, "exhausted", failures[0].Payload.(map[string]any)["error"])
}

func TestSinkUnit_Writes(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sink := &memorySink{}
	f := &connector.SinkFactory{Handlers: testHandlers(&countSource{}, sink), InboxSize: 2}
	key := artefact.ServantKey{Kind: artefact.Sink, Artefact: "k1", Servant: "01"}

	def := artefact.Definition{Kind: artefact.Sink, ID: "k1", Raw: []byte("type: memory\n")}
	unit, err := f.Build(ctx, key, def)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- unit.Run(runCtx) }()

	in, err := unit.(servant.Receiver).Inlet(servant.PortIn)
	require.NoError(t, err)
	require.NoError(t, in.Deliver(ctx, event.New("/source/s1/01/out", "a")))
	require.NoError(t, in.Deliver(ctx, event.New("/source/s1/01/out", "b")))

	assert.Eventually(t, func() bool { return len(sink.events()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, unit.Close())
}

func TestFactories_Errors(t *testing.T) {
	ctx, _ := testutil.Context(t)
	h := testHandlers(&countSource{}, &memorySink{})
	sources := &connector.SourceFactory{Handlers: h}
	sinks := &connector.SinkFactory{Handlers: h}
	srcKey := artefact.ServantKey{Kind: artefact.Source, Artefact: "s", Servant: "01"}
	sinkKey := artefact.ServantKey{Kind: artefact.Sink, Artefact: "s", Servant: "01"}

	_, err := sources.Build(ctx, srcKey, sourceDef("s", "nope", nil))
	assert.ErrorContains(t, err, `unknown connector type "nope"`)

	_, err = sources.Build(ctx, srcKey, sourceDef("s", "memory", nil))
	assert.ErrorContains(t, err, "cannot act as a source")

	_, err = sinks.Build(ctx, sinkKey, artefact.Definition{Kind: artefact.Sink, ID: "s", Spec: &artefact.ConnectorSpec{Type: "count"}})
	assert.ErrorContains(t, err, "cannot act as a sink")

	_, err = sources.Build(ctx, srcKey, sourceDef("s", "count", map[string]any{"bogus": 1}))
	assert.ErrorContains(t, err, "invalid config")

	_, err = sinks.Build(ctx, sinkKey, sourceDef("s", "memory", nil))
	assert.ErrorContains(t, err, "sink factory cannot build a source")
}

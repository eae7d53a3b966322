package servant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/servant"
	"github.com/specialistvlad/eventgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(kind artefact.Kind, id, sid string) artefact.ServantKey {
	return artefact.ServantKey{Kind: kind, Artefact: id, Servant: sid}
}

func def(kind artefact.Kind, id string) artefact.Definition {
	return artefact.Definition{Kind: kind, ID: id}
}

func TestSupervisor_StartStop(t *testing.T) {
	ctx, _ := testutil.Context(t)
	f := testutil.NewFakeFactory()
	s := servant.NewSupervisor(f.Factories())

	k := key(artefact.Pipeline, "p1", "01")
	h, err := s.Start(ctx, k, def(artefact.Pipeline, "p1"))
	require.NoError(t, err)
	assert.Equal(t, k, h.Key)
	assert.True(t, s.Has(k))
	assert.Equal(t, []string{"01"}, s.ListFor(artefact.Pipeline, "p1"))

	require.NoError(t, s.Stop(ctx, k))
	assert.False(t, s.Has(k))
	assert.Empty(t, s.ListFor(artefact.Pipeline, "p1"))
	assert.Equal(t, []artefact.ServantKey{k}, f.Closed())

	select {
	case <-h.Done():
	default:
		t.Fatal("stop returned before the servant finished")
	}
	assert.ErrorIs(t, h.Err(), context.Canceled)
}

func TestSupervisor_AlreadyRunning(t *testing.T) {
	ctx, _ := testutil.Context(t)
	f := testutil.NewFakeFactory()
	s := servant.NewSupervisor(f.Factories())

	k := key(artefact.Source, "s1", "01")
	_, err := s.Start(ctx, k, def(artefact.Source, "s1"))
	require.NoError(t, err)

	_, err = s.Start(ctx, k, def(artefact.Source, "s1"))
	assert.ErrorIs(t, err, artefact.ErrAlreadyRunning)
	assert.Len(t, f.Built(), 1)
}

func TestSupervisor_ConstructionErrorLeavesNoState(t *testing.T) {
	ctx, _ := testutil.Context(t)
	f := testutil.NewFakeFactory()
	cause := errors.New("endpoint unreachable")
	f.FailArtefacts["s1"] = cause
	s := servant.NewSupervisor(f.Factories())

	k := key(artefact.Source, "s1", "01")
	_, err := s.Start(ctx, k, def(artefact.Source, "s1"))
	require.ErrorIs(t, err, artefact.ErrConstruction)
	assert.ErrorIs(t, err, cause)
	assert.False(t, s.Has(k))
	assert.Zero(t, s.Len())
}

func TestSupervisor_NoFactory(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := servant.NewSupervisor(nil)

	_, err := s.Start(ctx, key(artefact.Sink, "o1", "01"), def(artefact.Sink, "o1"))
	assert.ErrorIs(t, err, artefact.ErrConstruction)
}

func TestSupervisor_DefinitionMismatch(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := servant.NewSupervisor(testutil.NewFakeFactory().Factories())

	_, err := s.Start(ctx, key(artefact.Sink, "o1", "01"), def(artefact.Sink, "o2"))
	assert.Error(t, err)
	assert.Zero(t, s.Len())
}

func TestSupervisor_StopUnknown(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := servant.NewSupervisor(nil)
	assert.ErrorIs(t, s.Stop(ctx, key(artefact.Sink, "o1", "01")), artefact.ErrNotFound)
}

func TestSupervisor_ConnectMovesEvents(t *testing.T) {
	ctx, _ := testutil.Context(t)
	f := testutil.NewFakeFactory()
	s := servant.NewSupervisor(f.Factories())

	src := key(artefact.Source, "s1", "01")
	pipe := key(artefact.Pipeline, "p1", "01")
	_, err := s.Start(ctx, src, def(artefact.Source, "s1"))
	require.NoError(t, err)
	_, err = s.Start(ctx, pipe, def(artefact.Pipeline, "p1"))
	require.NoError(t, err)

	require.NoError(t, s.Connect(src, servant.PortOut, pipe, servant.PortIn))
	assert.Error(t, s.Connect(src, servant.PortOut, pipe, servant.PortIn), "duplicate connection")
	assert.Error(t, s.Connect(src, "bogus", pipe, servant.PortIn))
	assert.Error(t, s.Connect(src, servant.PortOut, pipe, "bogus"))

	collector := testutil.NewCollector()
	out, err := f.Unit(pipe).Outlet(servant.PortOut)
	require.NoError(t, err)
	require.NoError(t, out.Connect("collector", collector))

	in, err := f.Unit(src).Inlet(servant.PortIn)
	require.NoError(t, err)
	require.NoError(t, in.Deliver(ctx, event.New("/test", map[string]any{"n": 1})))

	got := collector.WaitFor(t, 1, 2*time.Second)
	assert.Equal(t, map[string]any{"n": 1}, got[0].Payload)

	require.NoError(t, s.Disconnect(src, servant.PortOut, pipe, servant.PortIn))
	srcOut, err := f.Unit(src).Outlet(servant.PortOut)
	require.NoError(t, err)
	assert.Empty(t, srcOut.Connected())
}

func TestSupervisor_StopAllNewestFirst(t *testing.T) {
	ctx, _ := testutil.Context(t)
	f := testutil.NewFakeFactory()
	s := servant.NewSupervisor(f.Factories())

	keys := []artefact.ServantKey{
		key(artefact.Source, "s1", "01"),
		key(artefact.Pipeline, "p1", "01"),
		key(artefact.Sink, "o1", "01"),
	}
	for _, k := range keys {
		_, err := s.Start(ctx, k, def(k.Kind, k.Artefact))
		require.NoError(t, err)
	}

	require.NoError(t, s.StopAll(ctx))
	assert.Zero(t, s.Len())
	assert.Equal(t, []artefact.ServantKey{keys[2], keys[1], keys[0]}, f.Closed())
}

func TestSupervisor_BuildThenLaunch(t *testing.T) {
	ctx, _ := testutil.Context(t)
	f := testutil.NewFakeFactory()
	s := servant.NewSupervisor(f.Factories())

	k := key(artefact.Pipeline, "p1", "01")
	h, err := s.Build(ctx, k, def(artefact.Pipeline, "p1"))
	require.NoError(t, err)
	assert.True(t, s.Has(k))
	assert.True(t, h.Started.IsZero())

	require.NoError(t, s.Launch(k))
	assert.False(t, h.Started.IsZero())
	assert.ErrorIs(t, s.Launch(k), artefact.ErrAlreadyRunning)
	assert.ErrorIs(t, s.Launch(key(artefact.Pipeline, "p1", "02")), artefact.ErrNotFound)

	require.NoError(t, s.Stop(ctx, k))
	<-h.Done()
}

func TestSupervisor_StopUnlaunched(t *testing.T) {
	ctx, _ := testutil.Context(t)
	f := testutil.NewFakeFactory()
	s := servant.NewSupervisor(f.Factories())

	k := key(artefact.Sink, "o1", "01")
	h, err := s.Build(ctx, k, def(artefact.Sink, "o1"))
	require.NoError(t, err)

	require.NoError(t, s.Stop(ctx, k))
	assert.False(t, s.Has(k))
	assert.Equal(t, []artefact.ServantKey{k}, f.Closed())
	select {
	case <-h.Done():
		t.Fatal("an unlaunched servant never runs")
	default:
	}
}

func TestSupervisor_ClosePanicBecomesError(t *testing.T) {
	ctx, _ := testutil.Context(t)
	f := testutil.NewFakeFactory()
	f.PanicOnClose["o1"] = true
	s := servant.NewSupervisor(f.Factories())

	k := key(artefact.Sink, "o1", "01")
	_, err := s.Start(ctx, k, def(artefact.Sink, "o1"))
	require.NoError(t, err)

	err = s.Stop(ctx, k)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close panicked")
	assert.False(t, s.Has(k), "the servant leaves the table even when Close panics")
}

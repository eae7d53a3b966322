package servant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbox_BlocksWhenFull(t *testing.T) {
	b := NewInbox(1)
	require.NoError(t, b.Deliver(context.Background(), event.New("/t", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Deliver(ctx, event.New("/t", 2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInbox_ClosedRejects(t *testing.T) {
	b := NewInbox(1)
	b.Close()
	b.Close()
	assert.ErrorIs(t, b.Deliver(context.Background(), event.New("/t", 1)), ErrClosed)
}

type failingInlet struct{ err error }

func (f failingInlet) Deliver(context.Context, event.Event) error { return f.err }

func TestOutlet_Emit(t *testing.T) {
	o := NewOutlet("/source/s1/01/out")
	assert.Equal(t, "/source/s1/01/out", o.Name())

	n, err := o.Emit(context.Background(), event.New(o.Name(), 1))
	require.NoError(t, err)
	assert.Zero(t, n, "no subscribers drops the event")

	a, b := NewInbox(2), NewInbox(2)
	require.NoError(t, o.Connect("a", a))
	require.NoError(t, o.Connect("b", b))
	require.NoError(t, o.Connect("closed", failingInlet{err: ErrClosed}))
	assert.Equal(t, []string{"a", "b", "closed"}, o.Connected())

	n, err = o.Emit(context.Background(), event.New(o.Name(), 1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, a.C(), 1)
	assert.Len(t, b.C(), 1)

	assert.True(t, o.Disconnect("a"))
	assert.False(t, o.Disconnect("a"))
	assert.Equal(t, []string{"b", "closed"}, o.Connected())

	boom := errors.New("boom")
	require.NoError(t, o.Connect("bad", failingInlet{err: boom}))
	_, err = o.Emit(context.Background(), event.New(o.Name(), 1))
	assert.ErrorIs(t, err, boom)
}

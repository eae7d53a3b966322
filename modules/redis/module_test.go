package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	return mr
}

type recorder struct {
	mu       sync.Mutex
	payloads []any
}

func (r *recorder) Emit(_ context.Context, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recorder) Fail(context.Context, error) error { return nil }

func (r *recorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.payloads...)
}

func TestSource_ForwardsMessages(t *testing.T) {
	mr := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := NewSource(ctx, Config{Addr: mr.Addr(), Channel: "events"})
	require.NoError(t, err)
	defer src.Close()

	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, rec) }()

	mr.Publish("events", `{"level":"error"}`)
	mr.Publish("events", "plain text")

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	got := rec.snapshot()
	assert.Equal(t, map[string]any{"level": "error"}, got[0])
	assert.Equal(t, "plain text", got[1])

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSource_RequiresChannel(t *testing.T) {
	_, err := NewSource(context.Background(), Config{Addr: "localhost:1"})
	assert.ErrorContains(t, err, "channel is required")
}

func TestSink_RPush(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	sink, err := NewSink(ctx, Config{Addr: mr.Addr(), Mode: ModeRPush, Key: "out"})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Write(ctx, event.New("/pipeline/p/01/out", map[string]any{"n": 1})))
	require.NoError(t, sink.Write(ctx, event.New("/pipeline/p/01/out", "two")))

	list, err := mr.List("out")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"n":1}`, `"two"`}, list)
}

func TestSink_Publish(t *testing.T) {
	mr := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := NewSource(ctx, Config{Addr: mr.Addr(), Channel: "loop"})
	require.NoError(t, err)
	defer src.Close()
	rec := &recorder{}
	go func() { _ = src.Run(ctx, rec) }()

	sink, err := NewSink(ctx, Config{Addr: mr.Addr(), Channel: "loop"})
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.Write(ctx, event.New("/pipeline/p/01/out", map[string]any{"ok": true})))

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]any{"ok": true}, rec.snapshot()[0])
}

func TestSink_Config(t *testing.T) {
	ctx := context.Background()
	_, err := NewSink(ctx, Config{Mode: "lpush"})
	assert.ErrorContains(t, err, "unknown mode")
	_, err = NewSink(ctx, Config{Mode: ModeRPush})
	assert.ErrorContains(t, err, "key is required")
	_, err = NewSink(ctx, Config{})
	assert.ErrorContains(t, err, "channel is required")
}

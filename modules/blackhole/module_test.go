package blackhole

import (
	"context"
	"testing"

	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlackhole(t *testing.T) {
	rc, ok := handlers.NewWith(&Module{}).Lookup("blackhole")
	require.True(t, ok)
	assert.Nil(t, rc.NewSource)

	sink, err := rc.NewSink(context.Background(), nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Write(context.Background(), event.New("/source/s/01/out", i)))
	}
	assert.Equal(t, uint64(5), sink.(*Sink).Count())

	_, err = rc.NewSink(context.Background(), map[string]any{"unexpected": true})
	assert.Error(t, err)
}

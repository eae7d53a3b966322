package event

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestNew(t *testing.T) {
	a := New("/source/s1/01/out", map[string]any{"n": 1})
	b := New("/source/s1/01/out", nil)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Ingest.IsZero())
	assert.Equal(t, "/source/s1/01/out", a.Origin)
}

func TestCtyConversion(t *testing.T) {
	payload := map[string]any{
		"level": "error",
		"count": float64(3),
		"tags":  []any{"a", "b"},
		"ok":    true,
		"inner": map[string]any{"x": "y"},
	}

	v, err := ToCty(payload)
	require.NoError(t, err)
	assert.True(t, v.Type().IsObjectType())
	assert.Equal(t, cty.StringVal("error"), v.GetAttr("level"))

	back, err := FromCty(v)
	require.NoError(t, err)
	if diff := cmp.Diff(payload, back); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestCtyConversion_Null(t *testing.T) {
	v, err := ToCty(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	back, err := FromCty(v)
	require.NoError(t, err)
	assert.Nil(t, back)
}

func TestNormalize(t *testing.T) {
	type tick struct {
		N int `json:"n"`
	}
	got, err := Normalize(tick{N: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(2)}, got)

	_, err = Normalize(make(chan int))
	assert.Error(t, err)
}

func TestMeta(t *testing.T) {
	e := New("/pipeline/p1/01/out", nil)
	meta := e.Meta()
	assert.Equal(t, cty.StringVal(e.ID), meta.GetAttr("id"))
	assert.Equal(t, cty.StringVal(e.Origin), meta.GetAttr("origin"))
}

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ops(names ...string) []*Operator {
	out := make([]*Operator, 0, len(names))
	for _, n := range names {
		out = append(out, &Operator{Type: "passthrough", Name: n})
	}
	return out
}

func TestCompile_Order(t *testing.T) {
	s, err := Compile(&Spec{
		ID:        "p",
		Operators: ops("b", "a"),
		Links:     []Link{{"in", "a"}, {"a", "b"}, {"b", "out"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "p", s.ID())
	assert.Equal(t, []string{"a", "b"}, s.Order())
	assert.Equal(t, []string{"b"}, s.Successors("a"))
}

func TestCompile_EmptyPipeline(t *testing.T) {
	s, err := Compile(&Spec{ID: "empty"})
	require.NoError(t, err)
	assert.Empty(t, s.Order())
}

func TestCompile_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		spec    *Spec
		wantErr []string
	}{
		{
			name:    "cycle",
			spec:    &Spec{Operators: ops("a", "b"), Links: []Link{{"in", "a"}, {"a", "b"}, {"b", "a"}}},
			wantErr: []string{"cycle detected involving operator"},
		},
		{
			name:    "unreachable operator",
			spec:    &Spec{Operators: ops("a", "lonely"), Links: []Link{{"in", "a"}, {"a", "out"}}},
			wantErr: []string{`operator "lonely" is not reachable from "in"`},
		},
		{
			name: "bad edges are all reported",
			spec: &Spec{Operators: ops("a"), Links: []Link{
				{"in", "ghost"},
				{"out", "a"},
				{"a", "in"},
				{"a", "a"},
			}},
			wantErr: []string{
				`ends at unknown node "ghost"`,
				`starts at output port "out"`,
				`ends at input port "in"`,
				"is self-referential",
			},
		},
		{
			name:    "duplicate link",
			spec:    &Spec{Links: []Link{{"in", "out"}, {"in", "out"}}},
			wantErr: []string{"declared more than once"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.spec.ID = "p"
			_, err := Compile(tc.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), `pipeline "p" is invalid`)
			for _, want := range tc.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestCompile_Nil(t *testing.T) {
	_, err := Compile(nil)
	assert.Error(t, err)
}

package pipeline

import (
	"strings"
	"testing"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoPipelines = `
pipeline "errors_only" {
  description = "keeps errors"

  operator "filter" "errors" {
    condition = event.level == "error"
  }
  operator "assign" "tag" {
    fields = { tagged = true }
  }

  link "in" "errors" {}
  link "errors" "tag" {}
  link "tag" "out" {}
}

pipeline "copy" {
  link "in" "out" {}
}
`

func TestParse_TwoPipelines(t *testing.T) {
	ctx, _ := testutil.Context(t)

	defs, err := Parse(ctx, []byte(twoPipelines), "flows.hcl")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	first := defs[0]
	assert.Equal(t, artefact.Pipeline, first.Kind)
	assert.Equal(t, "errors_only", first.ID)
	assert.True(t, strings.HasPrefix(string(first.Raw), `pipeline "errors_only" {`))
	assert.True(t, strings.HasSuffix(string(first.Raw), "}"))
	assert.Contains(t, twoPipelines, string(first.Raw))

	spec, ok := first.Spec.(*Spec)
	require.True(t, ok)
	assert.Equal(t, "keeps errors", spec.Description)
	require.Len(t, spec.Operators, 2)
	assert.Equal(t, "filter", spec.Operators[0].Type)
	assert.Equal(t, "errors", spec.Operators[0].Name)
	assert.Contains(t, spec.Operators[0].Attrs, "condition")
	assert.Equal(t, []Link{{"in", "errors"}, {"errors", "tag"}, {"tag", "out"}}, spec.Links)

	assert.Equal(t, "copy", defs[1].ID)
	assert.Equal(t, `pipeline "copy" {
  link "in" "out" {}
}`, string(defs[1].Raw))
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "syntax error",
			src:     `pipeline "a" {`,
			wantErr: "failed to parse dataflow",
		},
		{
			name:    "top-level attribute",
			src:     "name = \"x\"\n",
			wantErr: "unexpected top-level attribute",
		},
		{
			name:    "unknown block",
			src:     `source "a" {}`,
			wantErr: `unsupported block type "source"`,
		},
		{
			name:    "missing label",
			src:     `pipeline {}`,
			wantErr: "exactly one label",
		},
		{
			name:    "invalid id",
			src:     `pipeline "a/b" {}`,
			wantErr: "pipeline id",
		},
		{
			name:    "duplicate id",
			src:     "pipeline \"a\" {}\npipeline \"a\" {}\n",
			wantErr: "defined more than once",
		},
		{
			name:    "unknown operator",
			src:     "pipeline \"a\" {\n  operator \"explode\" \"x\" {}\n}\n",
			wantErr: `unknown operator type "explode"`,
		},
		{
			name:    "reserved operator name",
			src:     "pipeline \"a\" {\n  operator \"drop\" \"out\" {}\n}\n",
			wantErr: "is reserved",
		},
		{
			name:    "duplicate operator",
			src:     "pipeline \"a\" {\n  operator \"drop\" \"x\" {}\n  operator \"passthrough\" \"x\" {}\n}\n",
			wantErr: `operator "x" is defined more than once`,
		},
		{
			name:    "missing attribute",
			src:     "pipeline \"a\" {\n  operator \"filter\" \"x\" {}\n}\n",
			wantErr: `requires attribute "condition"`,
		},
		{
			name:    "extra attribute",
			src:     "pipeline \"a\" {\n  operator \"drop\" \"x\" {\n    condition = true\n  }\n}\n",
			wantErr: `does not accept attribute "condition"`,
		},
		{
			name:    "link with attributes",
			src:     "pipeline \"a\" {\n  link \"in\" \"out\" {\n    weight = 1\n  }\n}\n",
			wantErr: "takes no attributes",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.Context(t)
			_, err := Parse(ctx, []byte(tc.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseOne(t *testing.T) {
	ctx, _ := testutil.Context(t)

	_, err := ParseOne(ctx, []byte(twoPipelines), "flows.hcl")
	assert.ErrorContains(t, err, "expected exactly one pipeline, found 2")

	def, err := ParseOne(ctx, []byte(`pipeline "copy" {}`), "copy.hcl")
	require.NoError(t, err)
	assert.Equal(t, "copy", def.ID)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/pipeline"
	"github.com/specialistvlad/eventgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullDocument = `
source:
  - id: s1
    type: metronome
    description: one tick a second
    config:
      interval: 1s
sink:
  - id: o1
    type: stdout
pipeline:
  - id: p2
    dataflow: |
      pipeline "p2" {
        link "in" "out" {}
      }
binding:
  - id: b
    description: s1 through p1 into o1
    links:
      /source/s1/{instance}/out: ["/pipeline/p1/{instance}/in"]
      /pipeline/p1/{instance}/out:
        - /sink/o1/{instance}/in
        - /sink/o1/audit/in
mapping:
  /binding/b/01:
  /binding/b/02:
    region: eu
`

func TestParse_FullDocument(t *testing.T) {
	ctx, _ := testutil.Context(t)

	doc, err := Parse(ctx, []byte(fullDocument), "app.yaml")
	require.NoError(t, err)

	require.Len(t, doc.Sources, 1)
	s1 := doc.Sources[0]
	assert.Equal(t, artefact.Source, s1.Kind)
	assert.Equal(t, "s1", s1.ID)
	want := &artefact.ConnectorSpec{Type: "metronome", Description: "one tick a second", Config: map[string]any{"interval": "1s"}}
	if diff := cmp.Diff(want, s1.Spec); diff != "" {
		t.Errorf("source spec mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, string(s1.Raw), "type: metronome")

	require.Len(t, doc.Sinks, 1)
	assert.Equal(t, "stdout", doc.Sinks[0].Spec.(*artefact.ConnectorSpec).Type)

	require.Len(t, doc.Pipelines, 1)
	assert.Equal(t, "p2", doc.Pipelines[0].ID)
	assert.IsType(t, &pipeline.Spec{}, doc.Pipelines[0].Spec)
	assert.Equal(t, "pipeline \"p2\" {\n  link \"in\" \"out\" {}\n}\n", string(doc.Pipelines[0].Raw))

	require.Len(t, doc.Bindings, 1)
	spec := doc.Bindings[0].Spec.(*artefact.BindingSpec)
	assert.Equal(t, "s1 through p1 into o1", spec.Description)
	var links []string
	for _, l := range spec.Links {
		links = append(links, l.String())
	}
	assert.Equal(t, []string{
		"/source/s1/{instance}/out -> /pipeline/p1/{instance}/in",
		"/pipeline/p1/{instance}/out -> /sink/o1/{instance}/in",
		"/pipeline/p1/{instance}/out -> /sink/o1/audit/in",
	}, links)

	assert.Equal(t, []Mapping{
		{Binding: "b", Servant: "01", Params: map[string]string{}},
		{Binding: "b", Servant: "02", Params: map[string]string{"region": "eu"}},
	}, doc.Mappings)
	assert.Equal(t, "/binding/b/02", doc.Mappings[1].URL().String())

	var ids []string
	for _, d := range doc.Definitions() {
		ids = append(ids, d.Kind.String()+":"+d.ID)
	}
	assert.Equal(t, []string{"source:s1", "sink:o1", "pipeline:p2", "binding:b"}, ids)
}

func TestParse_Empty(t *testing.T) {
	ctx, _ := testutil.Context(t)
	doc, err := Parse(ctx, []byte("# nothing here\n"), "empty.yaml")
	require.NoError(t, err)
	assert.Empty(t, doc.Definitions())
	assert.Empty(t, doc.Mappings)
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "unknown top-level key", src: "sources: []\n", wantErr: "field sources not found"},
		{name: "connector without type", src: "source:\n  - id: s1\n", wantErr: "type is required"},
		{name: "connector bad id", src: "sink:\n  - id: a/b\n    type: stdout\n", wantErr: "sink definition"},
		{name: "connector unknown field", src: "sink:\n  - id: o1\n    type: stdout\n    color: red\n", wantErr: "field color not found"},
		{name: "pipeline id mismatch", src: "pipeline:\n  - id: x\n    dataflow: 'pipeline \"y\" {}'\n", wantErr: `pipeline entry "x" defines pipeline "y"`},
		{name: "pipeline bad dataflow", src: "pipeline:\n  - dataflow: 'nonsense {'\n", wantErr: "failed to parse dataflow"},
		{name: "binding bad url", src: "binding:\n  - id: b\n    links:\n      /widget/w/x: [/sink/o1/x]\n", wantErr: `unknown artefact kind`},
		{name: "binding unquoted placeholder in flow sequence", src: "binding:\n  - id: b\n    links:\n      /source/s1/{instance}/out: [/sink/o1/{instance}/in]\n", wantErr: "did not find expected"},
		{name: "binding no targets", src: "binding:\n  - id: b\n    links:\n      /source/s1/x: []\n", wantErr: "has no targets"},
		{name: "mapping not binding", src: "mapping:\n  /source/s1/x: {}\n", wantErr: "is not a binding instance URL"},
		{name: "mapping without servant", src: "mapping:\n  /binding/b: {}\n", wantErr: "is not a binding instance URL"},
		{name: "mapping with placeholder", src: "mapping:\n  /binding/b/{x}: {}\n", wantErr: "/binding/b/{x}"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.Context(t)
			_, err := Parse(ctx, []byte(tc.src), "bad.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseConnector_KeepsRawBytes(t *testing.T) {
	raw := []byte(`{"id": "o1", "type": "blackhole"}`)
	def, err := ParseConnector(artefact.Sink, raw)
	require.NoError(t, err)
	assert.Equal(t, raw, def.Raw)
	assert.Equal(t, "o1", def.ID)

	_, err = ParseConnector(artefact.Binding, raw)
	assert.Error(t, err)
	_, err = ParseConnector(artefact.Sink, nil)
	assert.ErrorContains(t, err, "document is empty")
}

func TestParseArtefact(t *testing.T) {
	ctx, _ := testutil.Context(t)

	raw := []byte("# copy everything\npipeline \"p\" {}\n\n")
	def, err := ParseArtefact(ctx, artefact.Pipeline, raw)
	require.NoError(t, err)
	assert.Equal(t, artefact.Pipeline, def.Kind)
	assert.Equal(t, raw, def.Raw, "the request body is kept byte for byte")

	def, err = ParseArtefact(ctx, artefact.Binding, []byte("id: b\nlinks:\n  /source/s/x: /sink/o/x\n"))
	require.NoError(t, err)
	assert.Len(t, def.Spec.(*artefact.BindingSpec).Links, 1)

	def, err = ParseArtefact(ctx, artefact.Source, []byte("id: s\ntype: metronome\n"))
	require.NoError(t, err)
	assert.Equal(t, "s", def.ID)
}

func TestParseFile(t *testing.T) {
	ctx, _ := testutil.Context(t)
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullDocument), 0o644))

	doc, err := ParseFile(ctx, path)
	require.NoError(t, err)
	assert.Len(t, doc.Bindings, 1)

	_, err = ParseFile(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

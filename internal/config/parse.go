package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/pipeline"
	"gopkg.in/yaml.v3"
)

type rawDocument struct {
	Source   []yaml.Node `yaml:"source"`
	Sink     []yaml.Node `yaml:"sink"`
	Pipeline []yaml.Node `yaml:"pipeline"`
	Binding  []yaml.Node `yaml:"binding"`
	Mapping  yaml.Node   `yaml:"mapping"`
}

type connectorDoc struct {
	ID                     string `yaml:"id"`
	artefact.ConnectorSpec `yaml:",inline"`
}

type pipelineDoc struct {
	ID       string `yaml:"id"`
	Dataflow string `yaml:"dataflow"`
}

type bindingDoc struct {
	ID          string  `yaml:"id"`
	Description string  `yaml:"description"`
	Links       linkMap `yaml:"links"`
}

// linkMap decodes `from: [to, ...]` mappings in document order.
type linkMap []artefact.LinkDescriptor

func (m *linkMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: links must be a mapping of origin to targets", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		from, err := artefact.ParseURL(k.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", k.Line, err)
		}
		var targets []string
		switch v.Kind {
		case yaml.ScalarNode:
			targets = []string{v.Value}
		case yaml.SequenceNode:
			if err := v.Decode(&targets); err != nil {
				return fmt.Errorf("line %d: %w", v.Line, err)
			}
		default:
			return fmt.Errorf("line %d: targets of %s must be a URL or a list of URLs", v.Line, k.Value)
		}
		if len(targets) == 0 {
			return fmt.Errorf("line %d: %s has no targets", v.Line, k.Value)
		}
		for _, t := range targets {
			to, err := artefact.ParseURL(t)
			if err != nil {
				return fmt.Errorf("line %d: %w", v.Line, err)
			}
			*m = append(*m, artefact.LinkDescriptor{From: from, To: to})
		}
	}
	return nil
}

var errEmptyDocument = errors.New("document is empty")

func decodeStrict(raw []byte, target any) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyDocument
		}
		return err
	}
	return nil
}

// ParseConnector parses a standalone source or sink document.
func ParseConnector(kind artefact.Kind, raw []byte) (artefact.Definition, error) {
	if kind != artefact.Source && kind != artefact.Sink {
		return artefact.Definition{}, fmt.Errorf("%s is not a connector kind", kind)
	}
	var doc connectorDoc
	if err := decodeStrict(raw, &doc); err != nil {
		return artefact.Definition{}, fmt.Errorf("invalid %s document: %w", kind, err)
	}
	if doc.Type == "" {
		return artefact.Definition{}, fmt.Errorf("%s %q: type is required", kind, doc.ID)
	}
	spec := doc.ConnectorSpec
	def := artefact.Definition{Kind: kind, ID: doc.ID, Raw: raw, Spec: &spec}
	if err := def.Validate(); err != nil {
		return artefact.Definition{}, err
	}
	return def, nil
}

// ParseBinding parses a standalone binding document.
func ParseBinding(raw []byte) (artefact.Definition, error) {
	var doc bindingDoc
	if err := decodeStrict(raw, &doc); err != nil {
		return artefact.Definition{}, fmt.Errorf("invalid binding document: %w", err)
	}
	def := artefact.Definition{
		Kind: artefact.Binding,
		ID:   doc.ID,
		Raw:  raw,
		Spec: &artefact.BindingSpec{Description: doc.Description, Links: doc.Links},
	}
	if err := def.Validate(); err != nil {
		return artefact.Definition{}, err
	}
	return def, nil
}

// ParseArtefact parses a standalone document of any kind. Pipelines are
// dataflow text holding exactly one pipeline block.
func ParseArtefact(ctx context.Context, kind artefact.Kind, raw []byte) (artefact.Definition, error) {
	switch kind {
	case artefact.Pipeline:
		return pipeline.ParseOne(ctx, raw, "request")
	case artefact.Binding:
		return ParseBinding(raw)
	default:
		return ParseConnector(kind, raw)
	}
}

func parsePipelineEntry(ctx context.Context, raw []byte, filename string) (artefact.Definition, error) {
	var doc pipelineDoc
	if err := decodeStrict(raw, &doc); err != nil {
		return artefact.Definition{}, fmt.Errorf("invalid pipeline entry: %w", err)
	}
	def, err := pipeline.ParseOne(ctx, []byte(doc.Dataflow), filename)
	if err != nil {
		return artefact.Definition{}, err
	}
	if doc.ID != "" && doc.ID != def.ID {
		return artefact.Definition{}, fmt.Errorf("pipeline entry %q defines pipeline %q", doc.ID, def.ID)
	}
	return def, nil
}

// Parse decodes a declarative document. Unknown top-level keys are errors.
func Parse(ctx context.Context, src []byte, filename string) (*Document, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing declarative document.", "file", filename, "bytes", len(src))

	var raw rawDocument
	if err := decodeStrict(src, &raw); err != nil {
		if errors.Is(err, errEmptyDocument) {
			logger.Warn("Declarative document is empty.", "file", filename)
			return &Document{}, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	doc := &Document{}
	connectors := []struct {
		kind  artefact.Kind
		nodes []yaml.Node
		into  *[]artefact.Definition
	}{
		{artefact.Source, raw.Source, &doc.Sources},
		{artefact.Sink, raw.Sink, &doc.Sinks},
	}
	for _, c := range connectors {
		for i := range c.nodes {
			entry, err := encodeNode(&c.nodes[i])
			if err != nil {
				return nil, err
			}
			def, err := ParseConnector(c.kind, entry)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", filename, c.nodes[i].Line, err)
			}
			*c.into = append(*c.into, def)
		}
	}
	for i := range raw.Pipeline {
		entry, err := encodeNode(&raw.Pipeline[i])
		if err != nil {
			return nil, err
		}
		def, err := parsePipelineEntry(ctx, entry, filename)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, raw.Pipeline[i].Line, err)
		}
		doc.Pipelines = append(doc.Pipelines, def)
	}
	for i := range raw.Binding {
		entry, err := encodeNode(&raw.Binding[i])
		if err != nil {
			return nil, err
		}
		def, err := ParseBinding(entry)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, raw.Binding[i].Line, err)
		}
		doc.Bindings = append(doc.Bindings, def)
	}

	mappings, err := parseMappings(&raw.Mapping)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	doc.Mappings = mappings

	logger.Debug("Parsed declarative document.",
		"file", filename,
		"sources", len(doc.Sources),
		"sinks", len(doc.Sinks),
		"pipelines", len(doc.Pipelines),
		"bindings", len(doc.Bindings),
		"mappings", len(doc.Mappings),
	)
	return doc, nil
}

// ParseFile reads and parses a declarative file.
func ParseFile(ctx context.Context, path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declarative file %s: %w", path, err)
	}
	return Parse(ctx, src, path)
}

func encodeNode(node *yaml.Node) ([]byte, error) {
	out, err := yaml.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return out, nil
}

func parseMappings(node *yaml.Node) ([]Mapping, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: mapping must map binding instance URLs to parameters", node.Line)
	}

	var out []Mapping
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		u, err := artefact.ParseURL(k.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", k.Line, err)
		}
		if u.Kind != artefact.Binding || u.Servant == "" || u.Port != "" {
			return nil, fmt.Errorf("line %d: %s is not a binding instance URL (/binding/<id>/<servant>)", k.Line, k.Value)
		}
		if err := errors.Join(artefact.ValidateID(u.Artefact), artefact.ValidateID(u.Servant)); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", k.Line, k.Value, err)
		}
		if seen[u.String()] {
			return nil, fmt.Errorf("line %d: %s is mapped more than once", k.Line, u)
		}
		seen[u.String()] = true

		m := Mapping{Binding: u.Artefact, Servant: u.Servant, Params: map[string]string{}}
		if v.Tag != "!!null" {
			if err := v.Decode(&m.Params); err != nil {
				return nil, fmt.Errorf("line %d: parameters of %s: %w", v.Line, u, err)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

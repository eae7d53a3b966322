package pipeline

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
)

// ParseFile reads a dataflow file and returns one definition per pipeline block.
func ParseFile(ctx context.Context, path string) ([]artefact.Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataflow file %s: %w", path, err)
	}
	return Parse(ctx, src, path)
}

// Parse decodes dataflow source text. Each returned definition's Raw field is
// the exact text of its pipeline block.
func Parse(ctx context.Context, src []byte, filename string) ([]artefact.Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing dataflow source.", "file", filename, "bytes", len(src))

	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse dataflow %s: %w", filename, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("failed to parse dataflow %s: unexpected body type %T", filename, file.Body)
	}

	if len(body.Attributes) > 0 {
		names := make([]string, 0, len(body.Attributes))
		for name := range body.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("dataflow %s: unexpected top-level attribute(s) %v", filename, names)
	}

	var defs []artefact.Definition
	seen := make(map[string]struct{})
	for _, block := range body.Blocks {
		if block.Type != "pipeline" {
			return nil, fmt.Errorf("%s: unsupported block type %q, only \"pipeline\" is allowed", block.TypeRange, block.Type)
		}
		if len(block.Labels) != 1 {
			return nil, fmt.Errorf("%s: a pipeline block takes exactly one label, its id", block.TypeRange)
		}
		id := block.Labels[0]
		if err := artefact.ValidateID(id); err != nil {
			return nil, fmt.Errorf("%s: pipeline id: %w", block.LabelRanges[0], err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%s: pipeline %q is defined more than once", block.TypeRange, id)
		}
		seen[id] = struct{}{}

		spec, err := decodePipeline(id, block)
		if err != nil {
			return nil, err
		}
		rng := block.Range()
		defs = append(defs, artefact.Definition{
			Kind: artefact.Pipeline,
			ID:   id,
			Raw:  slices.Clone(src[rng.Start.Byte:rng.End.Byte]),
			Spec: spec,
		})
		logger.Debug("Decoded pipeline block.", "pipeline", id, "operators", len(spec.Operators), "links", len(spec.Links))
	}
	return defs, nil
}

// ParseOne parses source text that must contain exactly one pipeline. Raw is
// the whole of src, comments and surrounding whitespace included.
func ParseOne(ctx context.Context, src []byte, filename string) (artefact.Definition, error) {
	defs, err := Parse(ctx, src, filename)
	if err != nil {
		return artefact.Definition{}, err
	}
	if len(defs) != 1 {
		return artefact.Definition{}, fmt.Errorf("%s: expected exactly one pipeline, found %d", filename, len(defs))
	}
	def := defs[0]
	def.Raw = slices.Clone(src)
	return def, nil
}

func decodePipeline(id string, block *hclsyntax.Block) (*Spec, error) {
	var pb pipelineBody
	if diags := gohcl.DecodeBody(block.Body, nil, &pb); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode pipeline %q: %w", id, diags)
	}

	spec := &Spec{ID: id, Description: pb.Description}
	names := make(map[string]struct{})
	for _, ob := range pb.Operators {
		op, err := decodeOperator(id, ob)
		if err != nil {
			return nil, err
		}
		if _, dup := names[op.Name]; dup {
			return nil, fmt.Errorf("%s: pipeline %q: operator %q is defined more than once", op.Range, id, op.Name)
		}
		names[op.Name] = struct{}{}
		spec.Operators = append(spec.Operators, op)
	}
	for _, lb := range pb.Links {
		attrs, diags := lb.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("pipeline %q link %s -> %s: %w", id, lb.From, lb.To, diags)
		}
		if len(attrs) > 0 {
			return nil, fmt.Errorf("%s: pipeline %q: link %s -> %s takes no attributes", lb.Body.MissingItemRange(), id, lb.From, lb.To)
		}
		spec.Links = append(spec.Links, Link{From: lb.From, To: lb.To})
	}
	return spec, nil
}

func decodeOperator(pipelineID string, ob *operatorBlock) (*Operator, error) {
	rng := ob.Body.MissingItemRange()
	required, known := operatorAttrs[ob.Type]
	if !known {
		return nil, fmt.Errorf("%s: pipeline %q: unknown operator type %q", rng, pipelineID, ob.Type)
	}
	if err := artefact.ValidateID(ob.Name); err != nil {
		return nil, fmt.Errorf("%s: pipeline %q: operator name: %w", rng, pipelineID, err)
	}
	switch ob.Name {
	case NodeIn, NodeOut, NodeErr:
		return nil, fmt.Errorf("%s: pipeline %q: operator name %q is reserved", rng, pipelineID, ob.Name)
	}

	attrs, diags := ob.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("pipeline %q operator %q: %w", pipelineID, ob.Name, diags)
	}
	op := &Operator{
		Type:  ob.Type,
		Name:  ob.Name,
		Attrs: make(map[string]hcl.Expression, len(attrs)),
		Range: rng,
	}
	for _, name := range required {
		if _, ok := attrs[name]; !ok {
			return nil, fmt.Errorf("%s: pipeline %q: %s operator %q requires attribute %q", rng, pipelineID, ob.Type, ob.Name, name)
		}
	}
	for name, attr := range attrs {
		if !slices.Contains(required, name) {
			return nil, fmt.Errorf("%s: pipeline %q: %s operator %q does not accept attribute %q", attr.NameRange, pipelineID, ob.Type, ob.Name, name)
		}
		op.Attrs[name] = attr.Expr
	}
	return op, nil
}

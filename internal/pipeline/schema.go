package pipeline

import (
	"github.com/hashicorp/hcl/v2"
)

// Reserved node names that act as the pipeline's ports.
const (
	NodeIn  = "in"
	NodeOut = "out"
	NodeErr = "err"
)

// Spec is the parsed, immutable form of one pipeline block.
type Spec struct {
	ID          string
	Description string
	Operators   []*Operator
	Links       []Link
}

// Operator is one processing node of the graph.
type Operator struct {
	Type  string
	Name  string
	Attrs map[string]hcl.Expression
	Range hcl.Range
}

// Link is a directed edge between two nodes.
type Link struct {
	From string
	To   string
}

// pipelineBody is the gohcl decoding target for the body of a pipeline block.
type pipelineBody struct {
	Description string           `hcl:"description,optional"`
	Operators   []*operatorBlock `hcl:"operator,block"`
	Links       []*linkBlock     `hcl:"link,block"`
}

type operatorBlock struct {
	Type string   `hcl:"type,label"`
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type linkBlock struct {
	From string   `hcl:"from,label"`
	To   string   `hcl:"to,label"`
	Body hcl.Body `hcl:",remain"`
}

// operatorAttrs lists, per operator type, the attributes it requires.
var operatorAttrs = map[string][]string{
	"filter":      {"condition"},
	"assign":      {"fields"},
	"drop":        nil,
	"passthrough": nil,
}

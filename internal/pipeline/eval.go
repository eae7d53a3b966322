package pipeline

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/tryfunc"
	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Output is an event leaving the pipeline through one of its ports.
type Output struct {
	Port  string
	Event event.Event
}

// functions is the function table available to every expression.
var functions = map[string]function.Function{
	"abs":           stdlib.AbsoluteFunc,
	"can":           tryfunc.CanFunc,
	"ceil":          stdlib.CeilFunc,
	"coalesce":      stdlib.CoalesceFunc,
	"concat":        stdlib.ConcatFunc,
	"contains":      stdlib.ContainsFunc,
	"floor":         stdlib.FloorFunc,
	"format":        stdlib.FormatFunc,
	"join":          stdlib.JoinFunc,
	"jsondecode":    stdlib.JSONDecodeFunc,
	"jsonencode":    stdlib.JSONEncodeFunc,
	"keys":          stdlib.KeysFunc,
	"length":        stdlib.LengthFunc,
	"lower":         stdlib.LowerFunc,
	"max":           stdlib.MaxFunc,
	"merge":         stdlib.MergeFunc,
	"min":           stdlib.MinFunc,
	"regex_replace": stdlib.RegexReplaceFunc,
	"replace":       stdlib.ReplaceFunc,
	"split":         stdlib.SplitFunc,
	"strlen":        stdlib.StrlenFunc,
	"substr":        stdlib.SubstrFunc,
	"trimspace":     stdlib.TrimSpaceFunc,
	"try":           tryfunc.TryFunc,
	"upper":         stdlib.UpperFunc,
}

type work struct {
	node  string
	value cty.Value
}

// Process runs ev through the graph. Every value reaching `out` or `err`
// becomes one Output, in the order it arrived there. An operator that fails
// to evaluate sends an error record to `err` instead of propagating.
func (s *Schedule) Process(ev event.Event) []Output {
	var outs []Output
	meta := ev.Meta()

	payload, err := event.ToCty(ev.Payload)
	if err != nil {
		return []Output{s.failure(ev, NodeIn, err)}
	}

	queue := make([]work, 0, len(s.next[NodeIn]))
	for _, to := range s.next[NodeIn] {
		queue = append(queue, work{node: to, value: payload})
	}
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]

		switch w.node {
		case NodeOut, NodeErr:
			v, err := event.FromCty(w.value)
			if err != nil {
				outs = append(outs, s.failure(ev, w.node, err))
				continue
			}
			outs = append(outs, Output{Port: w.node, Event: ev.WithPayload(v)})
			continue
		}

		op := s.ops[w.node]
		v, keep, err := apply(op, w.value, meta, s.env)
		if err != nil {
			outs = append(outs, s.failure(ev, op.Name, err))
			continue
		}
		if !keep {
			continue
		}
		for _, to := range s.next[op.Name] {
			queue = append(queue, work{node: to, value: v})
		}
	}
	return outs
}

func (s *Schedule) failure(ev event.Event, node string, err error) Output {
	return Output{
		Port: NodeErr,
		Event: ev.WithPayload(map[string]any{
			"error":    err.Error(),
			"pipeline": s.spec.ID,
			"operator": node,
			"payload":  ev.Payload,
		}),
	}
}

func apply(op *Operator, payload, meta, env cty.Value) (cty.Value, bool, error) {
	ectx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"event": payload,
			"meta":  meta,
			"env":   env,
		},
		Functions: functions,
	}

	switch op.Type {
	case "passthrough":
		return payload, true, nil
	case "drop":
		return cty.NilVal, false, nil
	case "filter":
		v, diags := op.Attrs["condition"].Value(ectx)
		if diags.HasErrors() {
			return cty.NilVal, false, diags
		}
		if v.IsNull() {
			return cty.NilVal, false, nil
		}
		b, err := convert.Convert(v, cty.Bool)
		if err != nil {
			return cty.NilVal, false, fmt.Errorf("condition must be a bool: %w", err)
		}
		if !b.IsKnown() || b.IsNull() {
			return cty.NilVal, false, nil
		}
		return payload, b.True(), nil
	case "assign":
		v, diags := op.Attrs["fields"].Value(ectx)
		if diags.HasErrors() {
			return cty.NilVal, false, diags
		}
		merged, err := mergeFields(payload, v)
		if err != nil {
			return cty.NilVal, false, err
		}
		return merged, true, nil
	}
	return cty.NilVal, false, fmt.Errorf("unknown operator type %q", op.Type)
}

func mergeFields(payload, fields cty.Value) (cty.Value, error) {
	if fields.IsNull() || !isObjectLike(fields.Type()) {
		return cty.NilVal, fmt.Errorf("fields must be an object, got %s", fields.Type().FriendlyName())
	}
	if !fields.IsWhollyKnown() {
		return cty.NilVal, fmt.Errorf("fields must be fully known")
	}

	attrs := make(map[string]cty.Value)
	if !payload.IsNull() {
		if !isObjectLike(payload.Type()) {
			return cty.NilVal, fmt.Errorf("assign requires an object payload, got %s", payload.Type().FriendlyName())
		}
		for k, v := range payload.AsValueMap() {
			attrs[k] = v
		}
	}
	for k, v := range fields.AsValueMap() {
		attrs[k] = v
	}
	return cty.ObjectVal(attrs), nil
}

func isObjectLike(ty cty.Type) bool {
	return ty.IsObjectType() || ty.IsMapType()
}

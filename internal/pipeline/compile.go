package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Schedule is a validated pipeline graph ready for evaluation.
type Schedule struct {
	spec  *Spec
	ops   map[string]*Operator
	next  map[string][]string
	order []string
	env   cty.Value
}

// Compile validates the graph of spec and returns its schedule. All problems
// found are reported together.
func Compile(spec *Spec) (*Schedule, error) {
	if spec == nil {
		return nil, errors.New("pipeline spec is nil")
	}

	s := &Schedule{
		spec: spec,
		ops:  make(map[string]*Operator, len(spec.Operators)),
		next: make(map[string][]string),
		env:  environ(),
	}
	for _, op := range spec.Operators {
		s.ops[op.Name] = op
	}

	var problems []string
	edges := make(map[Link]struct{}, len(spec.Links))
	for _, l := range spec.Links {
		if msg := s.checkLink(l); msg != "" {
			problems = append(problems, msg)
			continue
		}
		if _, dup := edges[l]; dup {
			problems = append(problems, fmt.Sprintf("link %s -> %s is declared more than once", l.From, l.To))
			continue
		}
		edges[l] = struct{}{}
		s.next[l.From] = append(s.next[l.From], l.To)
	}
	if len(problems) == 0 {
		if err := s.sort(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) == 0 {
		reached := s.reachable()
		for _, op := range spec.Operators {
			if !reached[op.Name] {
				problems = append(problems, fmt.Sprintf("operator %q is not reachable from %q", op.Name, NodeIn))
			}
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("pipeline %q is invalid:\n- %s", spec.ID, strings.Join(problems, "\n- "))
	}
	return s, nil
}

func (s *Schedule) checkLink(l Link) string {
	switch {
	case l.From == l.To:
		return fmt.Sprintf("link %s -> %s is self-referential", l.From, l.To)
	case l.From == NodeOut || l.From == NodeErr:
		return fmt.Sprintf("link %s -> %s starts at output port %q", l.From, l.To, l.From)
	case l.To == NodeIn:
		return fmt.Sprintf("link %s -> %s ends at input port %q", l.From, l.To, NodeIn)
	case l.From != NodeIn && s.ops[l.From] == nil:
		return fmt.Sprintf("link %s -> %s starts at unknown node %q", l.From, l.To, l.From)
	case l.To != NodeOut && l.To != NodeErr && s.ops[l.To] == nil:
		return fmt.Sprintf("link %s -> %s ends at unknown node %q", l.From, l.To, l.To)
	}
	return ""
}

// sort computes a topological order of the operators with a depth-first walk
// and fails on the first cycle found. Declaration order breaks ties.
func (s *Schedule) sort() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)
	var post []string

	var visit func(name string) error
	visit = func(name string) error {
		if permanent[name] {
			return nil
		}
		if temporary[name] {
			return fmt.Errorf("cycle detected involving operator %q", name)
		}
		temporary[name] = true
		for _, to := range s.next[name] {
			if err := visit(to); err != nil {
				return err
			}
		}
		delete(temporary, name)
		permanent[name] = true
		post = append(post, name)
		return nil
	}

	if err := visit(NodeIn); err != nil {
		return err
	}
	for _, op := range s.spec.Operators {
		if err := visit(op.Name); err != nil {
			return err
		}
	}

	slices.Reverse(post)
	s.order = s.order[:0]
	for _, name := range post {
		if s.ops[name] != nil {
			s.order = append(s.order, name)
		}
	}
	return nil
}

func (s *Schedule) reachable() map[string]bool {
	seen := map[string]bool{NodeIn: true}
	stack := []string{NodeIn}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, to := range s.next[n] {
			if !seen[to] {
				seen[to] = true
				stack = append(stack, to)
			}
		}
	}
	return seen
}

// ID returns the pipeline id.
func (s *Schedule) ID() string { return s.spec.ID }

// Order returns the operator names in topological order.
func (s *Schedule) Order() []string { return slices.Clone(s.order) }

// Successors returns the nodes fed by name.
func (s *Schedule) Successors(name string) []string { return slices.Clone(s.next[name]) }

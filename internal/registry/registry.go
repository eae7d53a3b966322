package registry

import (
	"fmt"
	"slices"

	"github.com/specialistvlad/eventgrid/internal/artefact"
)

// Registry holds the published definitions of a single artefact kind.
type Registry struct {
	kind  artefact.Kind
	defs  map[string]artefact.Definition
	order []string
}

// New creates an empty registry for kind.
func New(kind artefact.Kind) *Registry {
	return &Registry{
		kind: kind,
		defs: make(map[string]artefact.Definition),
	}
}

// Kind returns the artefact kind this registry stores.
func (r *Registry) Kind() artefact.Kind {
	return r.kind
}

// Publish stores def under its id. A duplicate id leaves the existing
// definition untouched and returns an ErrConflict error.
func (r *Registry) Publish(def artefact.Definition) error {
	if def.Kind != r.kind {
		return fmt.Errorf("cannot publish %s %q into the %s registry", def.Kind, def.ID, r.kind)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if _, exists := r.defs[def.ID]; exists {
		return artefact.Conflict(fmt.Sprintf("%s %q", r.kind, def.ID))
	}
	r.defs[def.ID] = def.Clone()
	r.order = append(r.order, def.ID)
	return nil
}

// Unpublish removes id and returns the definition it held. Callers are
// expected to have checked for live servants first.
func (r *Registry) Unpublish(id string) (artefact.Definition, error) {
	def, ok := r.defs[id]
	if !ok {
		return artefact.Definition{}, artefact.NotFound(fmt.Sprintf("%s %q", r.kind, id))
	}
	delete(r.defs, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return def, nil
}

// Get returns a copy of the definition stored under id.
func (r *Registry) Get(id string) (artefact.Definition, error) {
	def, ok := r.defs[id]
	if !ok {
		return artefact.Definition{}, artefact.NotFound(fmt.Sprintf("%s %q", r.kind, id))
	}
	return def.Clone(), nil
}

// Has reports whether id is published.
func (r *Registry) Has(id string) bool {
	_, ok := r.defs[id]
	return ok
}

// List returns copies of all definitions in insertion order.
func (r *Registry) List() []artefact.Definition {
	out := make([]artefact.Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id].Clone())
	}
	return out
}

// Len returns the number of published definitions.
func (r *Registry) Len() int {
	return len(r.order)
}

// Set groups the registries of every artefact kind.
type Set struct {
	byKind map[artefact.Kind]*Registry
}

// NewSet creates one empty registry per artefact kind.
func NewSet() *Set {
	s := &Set{byKind: make(map[artefact.Kind]*Registry, len(artefact.Kinds))}
	for _, k := range artefact.Kinds {
		s.byKind[k] = New(k)
	}
	return s
}

// For returns the registry of kind. It panics on a kind outside the closed
// set, which can only be a programming error.
func (s *Set) For(kind artefact.Kind) *Registry {
	r, ok := s.byKind[kind]
	if !ok {
		panic(fmt.Sprintf("registry: no registry for %s", kind))
	}
	return r
}

// Lookup fetches a definition by kind and id.
func (s *Set) Lookup(kind artefact.Kind, id string) (artefact.Definition, error) {
	return s.For(kind).Get(id)
}

package config

import (
	"github.com/specialistvlad/eventgrid/internal/artefact"
)

// Document is the parsed form of one declarative file. Definitions keep the
// order they appear in.
type Document struct {
	Sources   []artefact.Definition
	Sinks     []artefact.Definition
	Pipelines []artefact.Definition
	Bindings  []artefact.Definition
	Mappings  []Mapping
}

// Definitions returns every definition in publish order: sources, sinks,
// pipelines, then bindings.
func (d *Document) Definitions() []artefact.Definition {
	out := make([]artefact.Definition, 0, len(d.Sources)+len(d.Sinks)+len(d.Pipelines)+len(d.Bindings))
	out = append(out, d.Sources...)
	out = append(out, d.Sinks...)
	out = append(out, d.Pipelines...)
	out = append(out, d.Bindings...)
	return out
}

// Mapping asks for one binding instance to be linked with the given
// parameters.
type Mapping struct {
	Binding string
	Servant string
	Params  map[string]string
}

// URL returns /binding/<binding>/<servant>.
func (m Mapping) URL() artefact.URL {
	return artefact.URL{Kind: artefact.Binding, Artefact: m.Binding, Servant: m.Servant}
}

// Package connector builds source and sink servants out of the connector
// types registered in a handlers.Handlers.
package connector

import (
	"context"
	"fmt"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/handlers"
	"github.com/specialistvlad/eventgrid/internal/servant"
	"gopkg.in/yaml.v3"
)

// DefaultInboxSize bounds a sink's input queue when none is configured.
const DefaultInboxSize = 64

// SourceFactory builds source servants.
type SourceFactory struct {
	Handlers *handlers.Handlers
}

// SinkFactory builds sink servants.
type SinkFactory struct {
	Handlers  *handlers.Handlers
	InboxSize int
}

// Build implements servant.Factory.
func (f *SourceFactory) Build(ctx context.Context, key artefact.ServantKey, def artefact.Definition) (servant.Unit, error) {
	spec, rc, err := resolve(f.Handlers, artefact.Source, def)
	if err != nil {
		return nil, err
	}
	if rc.NewSource == nil {
		return nil, fmt.Errorf("connector type %q cannot act as a source", spec.Type)
	}
	src, err := rc.NewSource(ctx, spec.Config)
	if err != nil {
		return nil, fmt.Errorf("%s source: %w", spec.Type, err)
	}
	return newSourceUnit(key, src), nil
}

// Build implements servant.Factory.
func (f *SinkFactory) Build(ctx context.Context, key artefact.ServantKey, def artefact.Definition) (servant.Unit, error) {
	spec, rc, err := resolve(f.Handlers, artefact.Sink, def)
	if err != nil {
		return nil, err
	}
	if rc.NewSink == nil {
		return nil, fmt.Errorf("connector type %q cannot act as a sink", spec.Type)
	}
	sink, err := rc.NewSink(ctx, spec.Config)
	if err != nil {
		return nil, fmt.Errorf("%s sink: %w", spec.Type, err)
	}
	size := f.InboxSize
	if size <= 0 {
		size = DefaultInboxSize
	}
	return newSinkUnit(key, sink, size), nil
}

func resolve(h *handlers.Handlers, kind artefact.Kind, def artefact.Definition) (*artefact.ConnectorSpec, *handlers.RegisteredConnector, error) {
	if def.Kind != kind {
		return nil, nil, fmt.Errorf("%s factory cannot build a %s", kind, def.Kind)
	}
	spec, err := Spec(def)
	if err != nil {
		return nil, nil, err
	}
	rc, ok := h.Lookup(spec.Type)
	if !ok {
		return nil, nil, fmt.Errorf("unknown connector type %q", spec.Type)
	}
	return spec, rc, nil
}

// Spec returns the connector spec of def, decoding Raw when the parsed form
// is absent.
func Spec(def artefact.Definition) (*artefact.ConnectorSpec, error) {
	if spec, ok := def.Spec.(*artefact.ConnectorSpec); ok {
		return spec, nil
	}
	var spec artefact.ConnectorSpec
	if err := yaml.Unmarshal(def.Raw, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode %s %q: %w", def.Kind, def.ID, err)
	}
	if spec.Type == "" {
		return nil, fmt.Errorf("%s %q has no connector type", def.Kind, def.ID)
	}
	return &spec, nil
}

// Factories returns the servant factories for every kind, ready for a
// servant.Supervisor.
func Factories(h *handlers.Handlers, pipelines servant.Factory, inboxSize int) map[artefact.Kind]servant.Factory {
	return map[artefact.Kind]servant.Factory{
		artefact.Pipeline: pipelines,
		artefact.Source:   &SourceFactory{Handlers: h},
		artefact.Sink:     &SinkFactory{Handlers: h, InboxSize: inboxSize},
	}
}

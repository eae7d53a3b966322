// Package handlers is the registry of connector types. Each connector package
// under modules/ implements Module and registers the source and sink
// constructors it offers under a type name, which declarative files refer to
// as `type`.
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/eventgrid/internal/event"
	"gopkg.in/yaml.v3"
)

// Module is implemented by every connector package compiled into the binary.
type Module interface {
	Register(h *Handlers)
}

// Output is what a source uses to hand events to its servant.
type Output interface {
	// Emit publishes payload on the `out` port.
	Emit(ctx context.Context, payload any) error
	// Fail publishes a record describing cause on the `err` port.
	Fail(ctx context.Context, cause error) error
}

// Source produces events until ctx is cancelled or it runs dry.
type Source interface {
	Run(ctx context.Context, out Output) error
	Close() error
}

// Sink consumes events.
type Sink interface {
	Write(ctx context.Context, ev event.Event) error
	Close() error
}

// SourceFunc constructs a source from its `config` map.
type SourceFunc func(ctx context.Context, config map[string]any) (Source, error)

// SinkFunc constructs a sink from its `config` map.
type SinkFunc func(ctx context.Context, config map[string]any) (Sink, error)

// RegisteredConnector holds the constructors of one connector type. Either
// may be nil when the type only works in one direction.
type RegisteredConnector struct {
	Description string
	NewSource   SourceFunc
	NewSink     SinkFunc
}

// Handlers holds all the registered connector types.
type Handlers struct {
	all map[string]*RegisteredConnector
}

// New creates an empty registry.
func New() *Handlers {
	return &Handlers{
		all: make(map[string]*RegisteredConnector),
	}
}

// NewWith creates a registry and registers every module into it.
func NewWith(modules ...Module) *Handlers {
	h := New()
	for _, m := range modules {
		m.Register(h)
	}
	return h
}

// RegisterConnector registers a connector type.
func (h *Handlers) RegisterConnector(name string, c *RegisteredConnector) {
	if _, exists := h.all[name]; exists {
		panic(fmt.Sprintf("connector type '%s' already registered", name))
	}
	if c == nil || (c.NewSource == nil && c.NewSink == nil) {
		panic(fmt.Sprintf("connector type '%s' registers neither a source nor a sink", name))
	}
	slog.Debug("Registering connector type.", "name", name, "source", c.NewSource != nil, "sink", c.NewSink != nil)
	h.all[name] = c
}

// Lookup returns the connector registered under name.
func (h *Handlers) Lookup(name string) (*RegisteredConnector, bool) {
	c, ok := h.all[name]
	return c, ok
}

// Types returns the registered type names, sorted.
func (h *Handlers) Types() []string {
	names := make([]string, 0, len(h.all))
	for name := range h.all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode copies a config map into target, a pointer to a struct with yaml
// tags. Unknown keys are rejected.
func Decode(config map[string]any, target any) error {
	if len(config) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

package artefact

import "fmt"

// Definition is the immutable configuration payload of one artefact.
//
// Raw holds the exact text the definition was published from and is what
// callers get back; Spec is the parsed form the servant factories consume.
// Neither is mutated after publish.
type Definition struct {
	Kind Kind
	ID   string
	Raw  []byte
	Spec any
}

// Clone returns a copy whose Raw bytes are not shared with d. Spec values are
// immutable by convention and are shared.
func (d Definition) Clone() Definition {
	out := d
	if d.Raw != nil {
		out.Raw = append([]byte(nil), d.Raw...)
	}
	return out
}

// Validate checks the fields every definition needs regardless of kind.
func (d Definition) Validate() error {
	if err := ValidateID(d.ID); err != nil {
		return fmt.Errorf("%s definition: %w", d.Kind, err)
	}
	if _, ok := kindNames[d.Kind]; !ok {
		return fmt.Errorf("definition %q: unknown kind %d", d.ID, int(d.Kind))
	}
	return nil
}

// ConnectorSpec is the parsed definition of a source or sink.
type ConnectorSpec struct {
	// Type names the connector implementation, e.g. "metronome" or "redis".
	Type        string         `json:"type" yaml:"type"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// BindingSpec is the parsed definition of a binding: a set of directed links
// between servant ports.
type BindingSpec struct {
	Description string
	Links       []LinkDescriptor
}

// LinkDescriptor is one directed edge of a binding. Both ends may contain
// `{name}` placeholders that are filled in when the binding is linked.
type LinkDescriptor struct {
	From URL
	To   URL
}

func (l LinkDescriptor) String() string {
	return l.From.String() + " -> " + l.To.String()
}

// ServantKey identifies one running instance of an artefact.
type ServantKey struct {
	Kind     Kind
	Artefact string
	Servant  string
}

func (k ServantKey) String() string {
	return URL{Kind: k.Kind, Artefact: k.Artefact, Servant: k.Servant}.String()
}

// Port returns the URL of one port of the servant.
func (k ServantKey) Port(port string) URL {
	return URL{Kind: k.Kind, Artefact: k.Artefact, Servant: k.Servant, Port: port}
}

package artefact

import (
	"fmt"
	"strings"
)

// Kind selects the registry and the servant factory an artefact belongs to.
type Kind int

const (
	Pipeline Kind = iota
	Source
	Sink
	Binding
)

// Kinds lists every artefact kind in the order they are reported.
var Kinds = []Kind{Pipeline, Source, Sink, Binding}

var kindNames = map[Kind]string{
	Pipeline: "pipeline",
	Source:   "source",
	Sink:     "sink",
	Binding:  "binding",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a kind name to its Kind. The legacy names "onramp" and
// "offramp" are accepted for sources and sinks.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pipeline":
		return Pipeline, nil
	case "source", "onramp":
		return Source, nil
	case "sink", "offramp":
		return Sink, nil
	case "binding":
		return Binding, nil
	}
	return 0, fmt.Errorf("unknown artefact kind %q", name)
}

// MarshalText lets kinds appear as plain names in JSON and YAML documents.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown artefact kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

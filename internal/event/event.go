// Package event defines the envelope that flows between servants and the
// conversions between its JSON-compatible payload and cty values, which is
// what pipeline expressions operate on.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Event is one unit of data travelling along a binding.
type Event struct {
	ID     string    `json:"id"`
	Ingest time.Time `json:"ingest"`
	// Origin is the URL of the servant port that produced the event.
	Origin string `json:"origin"`
	// Payload is JSON-compatible: maps, slices, strings, float64, bool, nil.
	Payload any `json:"payload"`
}

// New creates an event with a fresh id and the current ingest time.
func New(origin string, payload any) Event {
	return Event{
		ID:      uuid.NewString(),
		Ingest:  time.Now().UTC(),
		Origin:  origin,
		Payload: payload,
	}
}

// WithPayload returns a copy of e carrying a different payload.
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// Normalize round-trips a Go value through JSON so it only contains the
// types FromCty would produce.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON-compatible: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToCty converts a JSON-compatible payload into a cty value with an implied
// type.
func ToCty(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to encode payload: %w", err)
	}
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type: %w", err)
	}
	return ctyjson.Unmarshal(raw, ty)
}

// FromCty converts a cty value back into a JSON-compatible Go value.
func FromCty(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not fully known")
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("unable to encode cty value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Meta returns the envelope fields as a cty object, exposed to pipeline
// expressions as `meta`.
func (e Event) Meta() cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"id":     cty.StringVal(e.ID),
		"origin": cty.StringVal(e.Origin),
		"ingest": cty.NumberIntVal(e.Ingest.UnixNano()),
	})
}

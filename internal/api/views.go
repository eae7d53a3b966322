package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/binding"
	"gopkg.in/yaml.v3"
)

type errorView struct {
	Error string `json:"error" yaml:"error"`
}

type artefactView struct {
	Kind string `json:"kind" yaml:"kind"`
	ID   string `json:"id" yaml:"id"`
	URL  string `json:"url" yaml:"url"`
}

func newArtefactView(d artefact.Definition) artefactView {
	return artefactView{
		Kind: d.Kind.String(),
		ID:   d.ID,
		URL:  artefact.URL{Kind: d.Kind, Artefact: d.ID}.String(),
	}
}

type instanceView struct {
	URL      string            `json:"url" yaml:"url"`
	Binding  string            `json:"binding" yaml:"binding"`
	Servant  string            `json:"servant" yaml:"servant"`
	Params   map[string]string `json:"params" yaml:"params"`
	Links    []string          `json:"links" yaml:"links"`
	Servants []string          `json:"servants" yaml:"servants"`
	Created  []string          `json:"created" yaml:"created"`
	LinkedAt time.Time         `json:"linked_at" yaml:"linked_at"`
}

func newInstanceView(inst *binding.Instance) instanceView {
	v := instanceView{
		URL:      inst.URL().String(),
		Binding:  inst.Binding,
		Servant:  inst.Servant,
		Params:   inst.Params,
		Links:    make([]string, 0, len(inst.Links)),
		Servants: keyStrings(inst.Servants),
		Created:  keyStrings(inst.Created),
		LinkedAt: inst.LinkedAt,
	}
	for _, l := range inst.Links {
		v.Links = append(v.Links, l.String())
	}
	return v
}

type unlinkView struct {
	URL     string   `json:"url" yaml:"url"`
	Stopped []string `json:"stopped" yaml:"stopped"`
	Kept    []string `json:"kept" yaml:"kept"`
	Missing []string `json:"missing" yaml:"missing"`
}

func newUnlinkView(r *binding.UnlinkReport) unlinkView {
	return unlinkView{
		URL:     artefact.URL{Kind: artefact.Binding, Artefact: r.Binding, Servant: r.Servant}.String(),
		Stopped: keyStrings(r.Stopped),
		Kept:    keyStrings(r.Kept),
		Missing: keyStrings(r.Missing),
	}
}

func keyStrings(keys []artefact.ServantKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

func wantsYAML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/yaml") || strings.Contains(accept, "application/x-yaml")
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsYAML(r) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(status)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		_ = enc.Encode(v)
		_ = enc.Close()
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func rawContentType(kind artefact.Kind) string {
	if kind == artefact.Pipeline {
		return "text/plain; charset=utf-8"
	}
	return "application/yaml"
}

package world

import (
	"context"
	"fmt"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/binding"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
)

// Publish stores def in the registry of its kind.
func (w *World) Publish(ctx context.Context, def artefact.Definition) error {
	_, err := call(ctx, w, "publish", true, func(ctx context.Context) (struct{}, error) {
		if err := w.registries.For(def.Kind).Publish(def); err != nil {
			return struct{}{}, err
		}
		ctxlog.FromContext(ctx).Info("Artefact published.", "kind", def.Kind.String(), "id", def.ID)
		return struct{}{}, nil
	})
	return err
}

// Unpublish removes an artefact that nothing is running. A binding is in use
// while any of its instances is linked; any other artefact while any servant
// of it is running.
func (w *World) Unpublish(ctx context.Context, kind artefact.Kind, id string) (artefact.Definition, error) {
	return call(ctx, w, "unpublish", true, func(ctx context.Context) (artefact.Definition, error) {
		reg := w.registries.For(kind)
		if !reg.Has(id) {
			return artefact.Definition{}, artefact.NotFound(fmt.Sprintf("%s %q", kind, id))
		}
		var live []string
		if kind == artefact.Binding {
			live = w.resolver.Instances(id)
		} else {
			live = w.supervisor.ListFor(kind, id)
		}
		if len(live) > 0 {
			return artefact.Definition{}, &artefact.InUseError{Kind: kind, ID: id, Servants: live}
		}
		def, err := reg.Unpublish(id)
		if err != nil {
			return artefact.Definition{}, err
		}
		ctxlog.FromContext(ctx).Info("Artefact unpublished.", "kind", kind.String(), "id", id)
		return def, nil
	})
}

// Get returns a copy of one definition.
func (w *World) Get(ctx context.Context, kind artefact.Kind, id string) (artefact.Definition, error) {
	return call(ctx, w, "get", false, func(context.Context) (artefact.Definition, error) {
		return w.registries.For(kind).Get(id)
	})
}

// List returns copies of every definition of kind, in publish order.
func (w *World) List(ctx context.Context, kind artefact.Kind) ([]artefact.Definition, error) {
	return call(ctx, w, "list", false, func(context.Context) ([]artefact.Definition, error) {
		return w.registries.For(kind).List(), nil
	})
}

// Link realizes one instance of a binding.
func (w *World) Link(ctx context.Context, bindingID, servantID string, params map[string]string) (*binding.Instance, error) {
	return call(ctx, w, "link", true, func(ctx context.Context) (*binding.Instance, error) {
		return w.resolver.Link(ctx, bindingID, servantID, params)
	})
}

// Unlink tears down one instance of a binding. An instance that is not
// linked yields an ErrNotFound error and changes nothing.
func (w *World) Unlink(ctx context.Context, bindingID, servantID string) (*binding.UnlinkReport, error) {
	return call(ctx, w, "unlink", true, func(ctx context.Context) (*binding.UnlinkReport, error) {
		return w.resolver.Unlink(ctx, bindingID, servantID)
	})
}

// Instance returns one linked binding instance.
func (w *World) Instance(ctx context.Context, bindingID, servantID string) (*binding.Instance, error) {
	return call(ctx, w, "instance", false, func(context.Context) (*binding.Instance, error) {
		return w.resolver.Get(bindingID, servantID)
	})
}

// Linked returns every linked binding instance, in link order.
func (w *World) Linked(ctx context.Context) ([]*binding.Instance, error) {
	return call(ctx, w, "linked", false, func(context.Context) ([]*binding.Instance, error) {
		return w.resolver.Linked(), nil
	})
}

// Servants returns the live servant ids of an artefact. For a binding these
// are its linked instance ids.
func (w *World) Servants(ctx context.Context, kind artefact.Kind, id string) ([]string, error) {
	return call(ctx, w, "servants", false, func(context.Context) ([]string, error) {
		if !w.registries.For(kind).Has(id) {
			return nil, artefact.NotFound(fmt.Sprintf("%s %q", kind, id))
		}
		if kind == artefact.Binding {
			return w.resolver.Instances(id), nil
		}
		return w.supervisor.ListFor(kind, id), nil
	})
}

// Stats is a snapshot of the world's size.
type Stats struct {
	Artefacts map[string]int `json:"artefacts" yaml:"artefacts"`
	Servants  int            `json:"servants" yaml:"servants"`
	Linked    int            `json:"linked" yaml:"linked"`
	Backlog   int            `json:"backlog" yaml:"backlog"`
}

// Stats returns a snapshot of the world's size.
func (w *World) Stats(ctx context.Context) (Stats, error) {
	return call(ctx, w, "stats", false, func(context.Context) (Stats, error) {
		s := Stats{
			Artefacts: make(map[string]int, len(artefact.Kinds)),
			Servants:  w.supervisor.Len(),
			Linked:    len(w.resolver.Linked()),
			Backlog:   len(w.mailbox),
		}
		for _, k := range artefact.Kinds {
			s.Artefacts[k.String()] = w.registries.For(k).Len()
		}
		return s, nil
	})
}

package binding

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/registry"
	"github.com/specialistvlad/eventgrid/internal/servant"
)

// ParamInstance is the parameter that always carries the instance id.
const ParamInstance = "instance"

// Instance is one linked instance of a binding.
type Instance struct {
	Binding string
	Servant string
	Params  map[string]string
	// Links are the binding's descriptors with parameters substituted and
	// default servants and ports filled in.
	Links []artefact.LinkDescriptor
	// Servants are the endpoints in order of first appearance.
	Servants []artefact.ServantKey
	// Created are the servants this instance started; the rest were already
	// running on behalf of another instance.
	Created  []artefact.ServantKey
	LinkedAt time.Time
}

// URL returns the instance's address, /binding/<id>/<servant>.
func (i *Instance) URL() artefact.URL {
	return artefact.URL{Kind: artefact.Binding, Artefact: i.Binding, Servant: i.Servant}
}

// Clone returns a deep copy that is safe to hand to another goroutine.
func (i *Instance) Clone() *Instance {
	c := *i
	c.Params = maps.Clone(i.Params)
	c.Links = slices.Clone(i.Links)
	c.Servants = slices.Clone(i.Servants)
	c.Created = slices.Clone(i.Created)
	return &c
}

// UnlinkReport describes what an unlink did.
type UnlinkReport struct {
	Binding string
	Servant string
	// Stopped are the servants stopped because no other instance held them.
	Stopped []artefact.ServantKey
	// Kept are the servants left running for other instances.
	Kept []artefact.ServantKey
	// Missing are servants that were already gone.
	Missing []artefact.ServantKey
}

type instanceKey struct {
	binding string
	servant string
}

// Resolver links and unlinks binding instances.
type Resolver struct {
	registries *registry.Set
	supervisor *servant.Supervisor

	instances map[instanceKey]*Instance
	order     []instanceKey
	holds     map[artefact.ServantKey]int
}

// New creates a resolver over the given registries and supervisor.
func New(registries *registry.Set, supervisor *servant.Supervisor) *Resolver {
	return &Resolver{
		registries: registries,
		supervisor: supervisor,
		instances:  make(map[instanceKey]*Instance),
		holds:      make(map[artefact.ServantKey]int),
	}
}

// Link realizes instance servantID of binding bindingID. params fill the
// `{name}` placeholders of the descriptors; `instance` defaults to
// servantID.
func (r *Resolver) Link(ctx context.Context, bindingID, servantID string, params map[string]string) (_ *Instance, err error) {
	logger := ctxlog.FromContext(ctx).With("binding", bindingID, "instance", servantID)

	def, err := r.registries.Lookup(artefact.Binding, bindingID)
	if err != nil {
		return nil, err
	}
	key := instanceKey{bindingID, servantID}
	if _, exists := r.instances[key]; exists {
		return nil, artefact.Conflict(fmt.Sprintf("binding instance /binding/%s/%s", bindingID, servantID))
	}

	inst, err := r.resolve(def, servantID, params)
	if err != nil {
		logger.Warn("Binding failed validation.", "error", err)
		return nil, err
	}

	var (
		created   []artefact.ServantKey
		connected []artefact.LinkDescriptor
	)
	rollback := func(cause error) error {
		for _, l := range slices.Backward(connected) {
			if err := r.supervisor.Disconnect(l.From.Key(), l.From.Port, l.To.Key(), l.To.Port); err != nil {
				logger.Warn("Rollback failed to disconnect.", "link", l.String(), "error", err)
			}
		}
		rolledBack := slices.Clone(created)
		slices.Reverse(rolledBack)
		for _, k := range rolledBack {
			if err := r.supervisor.Stop(ctx, k); err != nil {
				logger.Warn("Rollback failed to stop servant.", "servant", k.String(), "error", err)
			}
		}
		logger.Error("Link failed, rolled back.", "rolled_back", len(rolledBack), "error", cause)
		return &artefact.PartialFailureError{Binding: bindingID, Servant: servantID, RolledBack: rolledBack, Err: cause}
	}
	defer func() {
		if p := recover(); p != nil {
			err = rollback(fmt.Errorf("internal error: %v", p))
		}
	}()

	for _, k := range inst.Servants {
		if r.supervisor.Has(k) {
			logger.Debug("Sharing running servant.", "servant", k.String())
			continue
		}
		epDef, err := r.registries.Lookup(k.Kind, k.Artefact)
		if err != nil {
			return nil, rollback(err)
		}
		if _, err := r.supervisor.Build(ctx, k, epDef); err != nil {
			return nil, rollback(err)
		}
		created = append(created, k)
	}
	for _, l := range inst.Links {
		if err := r.supervisor.Connect(l.From.Key(), l.From.Port, l.To.Key(), l.To.Port); err != nil {
			return nil, rollback(fmt.Errorf("connecting %s: %w", l, err))
		}
		connected = append(connected, l)
	}
	// Nothing new runs before it is wired, so no early event is lost.
	// Downstream servants go first.
	for _, k := range slices.Backward(created) {
		if err := r.supervisor.Launch(k); err != nil {
			return nil, rollback(err)
		}
	}

	inst.Created = created
	inst.LinkedAt = time.Now()
	for _, k := range inst.Servants {
		r.holds[k]++
	}
	r.instances[key] = inst
	r.order = append(r.order, key)

	logger.Info("Binding linked.", "servants", len(inst.Servants), "created", len(created), "links", len(inst.Links))
	return inst.Clone(), nil
}

// resolve substitutes and validates every descriptor without side effects.
// All problems are collected into one ValidationError.
func (r *Resolver) resolve(def artefact.Definition, servantID string, params map[string]string) (*Instance, error) {
	var problems []string
	if err := artefact.ValidateID(servantID); err != nil {
		problems = append(problems, fmt.Sprintf("instance id: %v", err))
	}
	spec, ok := def.Spec.(*artefact.BindingSpec)
	if !ok {
		problems = append(problems, "definition has no parsed link descriptors")
	}
	if len(problems) > 0 {
		return nil, &artefact.ValidationError{Binding: def.ID, Problems: problems}
	}

	p := maps.Clone(params)
	if p == nil {
		p = make(map[string]string)
	}
	p[ParamInstance] = servantID

	inst := &Instance{Binding: def.ID, Servant: servantID, Params: p}
	seenLink := make(map[string]bool)
	seenKey := make(map[artefact.ServantKey]bool)
	for _, d := range spec.Links {
		from, errFrom := r.endpoint(d.From, servantID, servant.PortOut, p)
		to, errTo := r.endpoint(d.To, servantID, servant.PortIn, p)
		if errFrom != nil || errTo != nil {
			for _, err := range []error{errFrom, errTo} {
				if err != nil {
					problems = append(problems, err.Error())
				}
			}
			continue
		}

		before := len(problems)
		switch from.Kind {
		case artefact.Sink:
			problems = append(problems, fmt.Sprintf("%s: a sink cannot be the origin of a link", d))
		case artefact.Source, artefact.Pipeline:
			if from.Port != servant.PortOut && from.Port != servant.PortErr {
				problems = append(problems, fmt.Sprintf("%s: %s has no output port %q", d, from.Kind, from.Port))
			}
		}
		switch to.Kind {
		case artefact.Source:
			problems = append(problems, fmt.Sprintf("%s: a source cannot be the target of a link", d))
		case artefact.Pipeline, artefact.Sink:
			if to.Port != servant.PortIn {
				problems = append(problems, fmt.Sprintf("%s: %s has no input port %q", d, to.Kind, to.Port))
			}
		}
		if from.Key() == to.Key() {
			problems = append(problems, fmt.Sprintf("%s: links a servant to itself", d))
		}
		resolved := artefact.LinkDescriptor{From: from, To: to}
		if seenLink[resolved.String()] {
			problems = append(problems, fmt.Sprintf("%s: duplicate link", resolved))
		}
		if len(problems) > before {
			continue
		}

		seenLink[resolved.String()] = true
		inst.Links = append(inst.Links, resolved)
		for _, k := range []artefact.ServantKey{from.Key(), to.Key()} {
			if !seenKey[k] {
				seenKey[k] = true
				inst.Servants = append(inst.Servants, k)
			}
		}
	}
	if len(spec.Links) == 0 {
		problems = append(problems, "binding has no links")
	}

	if len(problems) > 0 {
		return nil, &artefact.ValidationError{Binding: def.ID, Problems: problems}
	}
	return inst, nil
}

func (r *Resolver) endpoint(u artefact.URL, servantID, defaultPort string, params map[string]string) (artefact.URL, error) {
	out, err := u.Substitute(params)
	if err != nil {
		return artefact.URL{}, err
	}
	if out.Kind == artefact.Binding {
		return artefact.URL{}, fmt.Errorf("%s: a binding cannot be a link endpoint", u)
	}
	if out.Servant == "" {
		out.Servant = servantID
	}
	if out.Port == "" {
		out.Port = defaultPort
	}
	if !r.registries.For(out.Kind).Has(out.Artefact) {
		return artefact.URL{}, fmt.Errorf("%s %q referenced by %s is not published", out.Kind, out.Artefact, u)
	}
	return out, nil
}

// Unlink tears down an instance: it disconnects its links, releases its
// holds and stops every servant no other instance still holds. Servants that
// are already gone are reported, not treated as failures.
func (r *Resolver) Unlink(ctx context.Context, bindingID, servantID string) (*UnlinkReport, error) {
	logger := ctxlog.FromContext(ctx).With("binding", bindingID, "instance", servantID)

	key := instanceKey{bindingID, servantID}
	inst, ok := r.instances[key]
	if !ok {
		return nil, artefact.NotFound(fmt.Sprintf("binding instance /binding/%s/%s", bindingID, servantID))
	}

	report := &UnlinkReport{Binding: bindingID, Servant: servantID}
	for _, l := range slices.Backward(inst.Links) {
		err := r.supervisor.Disconnect(l.From.Key(), l.From.Port, l.To.Key(), l.To.Port)
		if err != nil && !errors.Is(err, artefact.ErrNotFound) {
			logger.Warn("Failed to disconnect link.", "link", l.String(), "error", err)
		}
	}

	for _, k := range slices.Backward(inst.Servants) {
		r.holds[k]--
		if r.holds[k] > 0 {
			report.Kept = append(report.Kept, k)
			continue
		}
		delete(r.holds, k)
		if !r.supervisor.Has(k) {
			report.Missing = append(report.Missing, k)
			continue
		}
		if err := r.supervisor.Stop(ctx, k); err != nil && !errors.Is(err, artefact.ErrNotFound) {
			logger.Warn("Servant stopped with an error.", "servant", k.String(), "error", err)
		}
		report.Stopped = append(report.Stopped, k)
	}

	delete(r.instances, key)
	if i := slices.Index(r.order, key); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	logger.Info("Binding unlinked.", "stopped", len(report.Stopped), "kept", len(report.Kept), "missing", len(report.Missing))
	return report, nil
}

// Get returns a copy of one linked instance.
func (r *Resolver) Get(bindingID, servantID string) (*Instance, error) {
	inst, ok := r.instances[instanceKey{bindingID, servantID}]
	if !ok {
		return nil, artefact.NotFound(fmt.Sprintf("binding instance /binding/%s/%s", bindingID, servantID))
	}
	return inst.Clone(), nil
}

// Instances returns the linked instance ids of a binding, in link order.
func (r *Resolver) Instances(bindingID string) []string {
	var ids []string
	for _, k := range r.order {
		if k.binding == bindingID {
			ids = append(ids, k.servant)
		}
	}
	return ids
}

// Linked returns copies of every linked instance, in link order.
func (r *Resolver) Linked() []*Instance {
	out := make([]*Instance, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.instances[k].Clone())
	}
	return out
}

// Holders returns how many linked instances hold key.
func (r *Resolver) Holders(key artefact.ServantKey) int {
	return r.holds[key]
}

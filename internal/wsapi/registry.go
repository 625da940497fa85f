package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// SessionMethod is an operation bound to the caller's session.
// Method expressions such as (*APISession).GetVersion satisfy it.
type SessionMethod func(s *APISession, ctx context.Context, rc *RequestContext, payload json.RawMessage) (Result, error)

// Handler is a registry entry. The two variants differ only in how a
// bound call is authorized.
type Handler interface {
	bind(rc *RequestContext) call
}

// call is a Handler bound to one request.
type call interface {
	authorize(ctx context.Context, payload json.RawMessage) (bool, error)
	invoke(ctx context.Context, payload json.RawMessage) (Result, error)
}

// sessionHandler is gated by the session's capability check.
type sessionHandler struct {
	name string
	fn   SessionMethod
}

func (h sessionHandler) bind(rc *RequestContext) call {
	return boundSession{h: h, rc: rc}
}

type boundSession struct {
	h  sessionHandler
	rc *RequestContext
}

func (b boundSession) authorize(context.Context, json.RawMessage) (bool, error) {
	return b.rc.Session.Allowed(b.h.name), nil
}

func (b boundSession) invoke(ctx context.Context, payload json.RawMessage) (Result, error) {
	return b.h.fn(b.rc.Session, ctx, b.rc, payload)
}

// resourceHandler builds a ResourceHandler and checks every permission it
// declares for the verb and payload.
type resourceHandler struct {
	verb    Verb
	factory ResourceFactory
}

func (h resourceHandler) bind(rc *RequestContext) call {
	return boundResource{verb: h.verb, rc: rc, h: h.factory(rc)}
}

type boundResource struct {
	verb Verb
	rc   *RequestContext
	h    ResourceHandler
}

func (b boundResource) authorize(ctx context.Context, payload json.RawMessage) (bool, error) {
	reqs, err := b.h.RequiredPermissions(ctx, b.verb, payload)
	if err != nil {
		return false, err
	}
	for _, req := range reqs {
		ok, err := b.rc.Check(ctx, req)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (b boundResource) invoke(ctx context.Context, payload json.RawMessage) (Result, error) {
	return perform(ctx, b.h, b.verb, payload)
}

// Registry maps method names to handlers. It is filled at startup and
// frozen before the server accepts connections; after Freeze it is
// read-only and safe for concurrent lookups.
type Registry struct {
	resources map[string]Handler
	sessions  map[string]Handler
	frozen    bool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{
		resources: make(map[string]Handler),
		sessions:  make(map[string]Handler),
	}
}

// RegisterSessionMethod adds a session-bound method.
func (r *Registry) RegisterSessionMethod(name string, fn SessionMethod) {
	r.mustRegister(r.sessions, name, sessionHandler{name: name, fn: fn})
}

// RegisterResource adds <prefix>_create, _get, _put and _delete for each
// of verbs.
func (r *Registry) RegisterResource(prefix string, factory ResourceFactory, verbs ...Verb) {
	for _, v := range verbs {
		r.RegisterResourceMethod(prefix+verbSuffixes[v], v, factory)
	}
}

// RegisterResourceMethod adds a resource method under an explicit name,
// for methods that do not follow the <prefix>_<verb> pattern.
func (r *Registry) RegisterResourceMethod(name string, verb Verb, factory ResourceFactory) {
	r.mustRegister(r.resources, name, resourceHandler{verb: verb, factory: factory})
}

func (r *Registry) mustRegister(table map[string]Handler, name string, h Handler) {
	if r.frozen {
		panic(fmt.Sprintf("wsapi: register %q after Freeze", name))
	}
	if name == "" {
		panic("wsapi: register with empty method name")
	}
	if _, dup := r.resources[name]; dup {
		panic(fmt.Sprintf("wsapi: method %q registered twice", name))
	}
	if _, dup := r.sessions[name]; dup {
		panic(fmt.Sprintf("wsapi: method %q registered twice", name))
	}
	table[name] = h
}

// Freeze ends registration.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.frozen }

// Lookup resolves a method, checking resource methods first.
func (r *Registry) Lookup(method string) (Handler, bool) {
	if h, ok := r.resources[method]; ok {
		return h, true
	}
	h, ok := r.sessions[method]
	return h, ok
}

// Methods returns every registered method name, sorted.
func (r *Registry) Methods() []string {
	names := make([]string, 0, len(r.resources)+len(r.sessions))
	for name := range r.resources {
		names = append(names, name)
	}
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

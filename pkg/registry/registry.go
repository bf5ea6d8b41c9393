package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/aretw0/switchyard/pkg/domain"
)

// TransformerFunc converts a completed response into the request of a
// downstream pipeline. It must be deterministic.
type TransformerFunc func(response any) (any, error)

// RequestFactory returns a pointer to a fresh, zero request value.
type RequestFactory func() any

// Transform adapts a typed conversion into a TransformerFunc.
// The response may be passed by value or by pointer.
func Transform[From, To any](fn func(From) (To, error)) TransformerFunc {
	return func(response any) (any, error) {
		switch v := response.(type) {
		case From:
			return fn(v)
		case *From:
			if v != nil {
				return fn(*v)
			}
		}
		var want From
		return nil, fmt.Errorf("transformer expects %T, got %T", want, response)
	}
}

type entry struct {
	seq   int
	route domain.Route
}

type pairKey struct {
	response string
	request  string
}

// Registry stores routes, transformers and request types. Every entry is
// indexed under its fully-qualified and its simple type name.
//
// Registration is meant to happen once at startup. Concurrent reads are safe
// at any time.
type Registry struct {
	mu           sync.RWMutex
	seq          int
	routes       map[string][]entry
	ordered      []domain.Route
	transformers map[pairKey]TransformerFunc
	aliases      map[pairKey]TransformerFunc
	requestTypes map[string]RequestFactory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		routes:       make(map[string][]entry),
		transformers: make(map[pairKey]TransformerFunc),
		aliases:      make(map[pairKey]TransformerFunc),
		requestTypes: make(map[string]RequestFactory),
	}
}

// Register validates and adds a route.
func (r *Registry) Register(route domain.Route) error {
	if err := route.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry{seq: r.seq, route: route}
	r.seq++
	r.ordered = append(r.ordered, route)
	for _, name := range names(route.ResponseType) {
		r.routes[name] = append(r.routes[name], e)
	}
	return nil
}

// RegisterAll registers routes in order, stopping at the first invalid one.
func (r *Registry) RegisterAll(routes ...domain.Route) error {
	for i, route := range routes {
		if err := r.Register(route); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
	}
	return nil
}

// MustRegister is Register for static wiring; it panics on an invalid route.
func (r *Registry) MustRegister(route domain.Route) {
	if err := r.Register(route); err != nil {
		panic(err)
	}
}

// RegisterTransformer adds the conversion used when a route from
// responseType to requestType matches. A later registration for the same
// pair replaces the earlier one.
func (r *Registry) RegisterTransformer(responseType, requestType string, fn TransformerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transformers[pairKey{responseType, requestType}] = fn
	for _, resp := range names(responseType) {
		for _, req := range names(requestType) {
			r.aliases[pairKey{resp, req}] = fn
		}
	}
}

// RegisterRequestType makes a request type constructible by name, which
// enables structural pass-through when no transformer is registered.
func (r *Registry) RegisterRequestType(name string, factory RequestFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names(name) {
		r.requestTypes[n] = factory
	}
}

// RegisterType registers T as a request type under its Go type name.
func RegisterType[T any](r *Registry) {
	fqn, _ := domain.TypeNameOfType(reflect.TypeFor[T]())
	r.RegisterRequestType(fqn, func() any { return new(T) })
}

// ListForResponseType returns the routes indexed under typeName or its
// simple name, in registration order. Candidates still need a type check:
// two different qualified names can share a simple name.
func (r *Registry) ListForResponseType(typeName string) []domain.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int]domain.Route)
	for _, name := range names(typeName) {
		for _, e := range r.routes[name] {
			seen[e.seq] = e.route
		}
	}
	if len(seen) == 0 {
		return []domain.Route{}
	}

	seqs := make([]int, 0, len(seen))
	for seq := range seen {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	out := make([]domain.Route, len(seqs))
	for i, seq := range seqs {
		out[i] = seen[seq]
	}
	return out
}

// Transformer finds the conversion for a (response, request) pair.
// Exact registrations win, then the FQN/simple combinations in order.
func (r *Registry) Transformer(responseType, requestType string) (TransformerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn, ok := r.transformers[pairKey{responseType, requestType}]; ok {
		return fn, true
	}
	for _, resp := range names(responseType) {
		for _, req := range names(requestType) {
			if fn, ok := r.aliases[pairKey{resp, req}]; ok {
				return fn, true
			}
		}
	}
	return nil, false
}

// RequestFactory returns the constructor registered for a request type.
func (r *Registry) RequestFactory(name string) (RequestFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range names(name) {
		if f, ok := r.requestTypes[n]; ok {
			return f, true
		}
	}
	return nil, false
}

// Routes returns every registered route in registration order.
func (r *Registry) Routes() []domain.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Route(nil), r.ordered...)
}

// names returns name followed by its simple form when they differ.
func names(name string) []string {
	simple := domain.SimpleTypeName(name)
	if simple == name || simple == "" {
		return []string{name}
	}
	return []string{name, simple}
}

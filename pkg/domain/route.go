package domain

import (
	"fmt"
	"reflect"
	"strings"
)

// Route is a declarative rule: when a pipeline completes with a response of
// ResponseType that satisfies Condition, start Pipeline with a request of
// RequestType. Routes are immutable once registered.
type Route struct {
	ResponseType string            `json:"response_type" yaml:"response_type" mapstructure:"response_type"`
	Condition    PipelineCondition `json:"condition" yaml:"condition" mapstructure:"condition"`
	Pipeline     string            `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	RequestType  string            `json:"request_type" yaml:"request_type" mapstructure:"request_type"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
}

// Validate checks that the route is complete and its condition well formed.
func (r Route) Validate() error {
	switch {
	case strings.TrimSpace(r.ResponseType) == "":
		return fmt.Errorf("%w: missing response_type", ErrInvalidRoute)
	case strings.TrimSpace(r.Pipeline) == "":
		return fmt.Errorf("%w: missing pipeline", ErrInvalidRoute)
	case strings.TrimSpace(r.RequestType) == "":
		return fmt.Errorf("%w: missing request_type", ErrInvalidRoute)
	}
	if err := r.Condition.Validate(); err != nil {
		return fmt.Errorf("%w: %s -> %s: %w", ErrInvalidRoute, r.ResponseType, r.Pipeline, err)
	}
	return nil
}

// TypeMatches reports whether a response declared as typeName can be handled
// by this route. Two fully-qualified names must be equal; otherwise the
// simple names are compared.
func (r Route) TypeMatches(typeName string) bool {
	return TypeNamesMatch(r.ResponseType, typeName)
}

func (r Route) String() string {
	return fmt.Sprintf("%s [%s] -> %s(%s)", r.ResponseType, r.Condition, r.Pipeline, r.RequestType)
}

// Dispatch is one resolved (pipeline, request) pair. The dispatcher only
// produces these; executing them is the substrate's job.
type Dispatch struct {
	Pipeline    string `json:"pipeline"`
	RequestType string `json:"request_type"`
	Request     any    `json:"request"`
	Route       Route  `json:"route"`
}

// Dispatch error codes.
const (
	CodeUnresolvedTransformer = "UNRESOLVED_TRANSFORMER"
	CodeTransformFailed       = "TRANSFORM_FAILED"
	CodeUnknownPipeline       = "UNKNOWN_PIPELINE"
	// CodeDispatchFailed marks a child run that could not be started after a
	// successful transform.
	CodeDispatchFailed = "DISPATCH_FAILED"
)

// DispatchError reports a per-route failure. It is returned as data and
// never aborts the dispatch of other matching routes.
type DispatchError struct {
	Route   Route  `json:"route"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s -> %s: %s", e.Code, e.Route.ResponseType, e.Route.Pipeline, e.Message)
}

// DispatchResult is the outcome of evaluating every route for one response.
// Dispatches are in route registration order.
type DispatchResult struct {
	Dispatches []Dispatch      `json:"dispatches"`
	Errors     []DispatchError `json:"errors,omitempty"`
}

// SimpleTypeName returns the trailing segment of a type name
// ("github.com/x/pkg.PollResult" and "pkg.PollResult" both yield "PollResult").
func SimpleTypeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// IsQualifiedTypeName reports whether name carries a package qualifier.
func IsQualifiedTypeName(name string) bool {
	return strings.ContainsAny(name, "./")
}

// TypeNamesMatch compares two type names, each of which may be fully
// qualified or simple.
func TypeNamesMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if IsQualifiedTypeName(a) && IsQualifiedTypeName(b) {
		return a == b
	}
	return SimpleTypeName(a) == SimpleTypeName(b)
}

// TypeNameOf returns the fully-qualified ("pkgpath.Name") and simple names of
// v's type, dereferencing pointers. Unnamed types yield their literal form.
func TypeNameOf(v any) (fqn, simple string) {
	if v == nil {
		return "", ""
	}
	return TypeNameOfType(reflect.TypeOf(v))
}

// TypeNameOfType is TypeNameOf for a reflect.Type.
func TypeNameOfType(t reflect.Type) (fqn, simple string) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		s := t.String()
		return s, s
	}
	if t.PkgPath() == "" {
		return t.Name(), t.Name()
	}
	return t.PkgPath() + "." + t.Name(), t.Name()
}

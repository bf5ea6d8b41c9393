package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/aretw0/switchyard/internal/convert"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// Runnable is a type-erased pipeline definition, as held in the substrate's
// pipeline table.
type Runnable interface {
	Name() string
	RequestType() string
	ResponseType() string
	RetryPolicy() domain.RetryPolicy
	// DecodeRequest parses a stored request.
	DecodeRequest(raw json.RawMessage) (any, error)
	// ConvertRequest accepts the request type by value or pointer, or any
	// structurally compatible value (maps, other structs) decoded by field name.
	ConvertRequest(v any) (any, error)
	// Instantiate creates a fresh pipeline owning a fresh use case instance.
	Instantiate(opts ...Option) Instance
}

// Instance is a type-erased Pipeline.
type Instance interface {
	RunAny(ctx context.Context, req any) (any, error)
	Snapshot() domain.PipelineSnapshot
}

// Definition describes how to build pipelines of one kind.
type Definition[Req, Resp any] struct {
	name         string
	factory      func() ports.UseCase[Req, Resp]
	policy       domain.RetryPolicy
	requestType  string
	responseType string
}

// DefinitionOption configures a Definition.
type DefinitionOption func(*definitionConfig)

type definitionConfig struct {
	policy       *domain.RetryPolicy
	requestType  string
	responseType string
}

// WithDefaultRetryPolicy sets the retry policy of every pipeline built from the definition.
func WithDefaultRetryPolicy(p domain.RetryPolicy) DefinitionOption {
	return func(c *definitionConfig) {
		c.policy = &p
	}
}

// WithTypeNames overrides the declared request and response type names used
// for routing. Empty values keep the Go type names.
func WithTypeNames(requestType, responseType string) DefinitionOption {
	return func(c *definitionConfig) {
		if requestType != "" {
			c.requestType = requestType
		}
		if responseType != "" {
			c.responseType = responseType
		}
	}
}

// NewDefinition registers how to build a pipeline named name. factory is
// called once per run.
func NewDefinition[Req, Resp any](name string, factory func() ports.UseCase[Req, Resp], opts ...DefinitionOption) *Definition[Req, Resp] {
	reqFQN, _ := domain.TypeNameOfType(reflect.TypeFor[Req]())
	respFQN, _ := domain.TypeNameOfType(reflect.TypeFor[Resp]())
	cfg := definitionConfig{requestType: reqFQN, responseType: respFQN}
	for _, opt := range opts {
		opt(&cfg)
	}
	policy := domain.DefaultRetryPolicy()
	if cfg.policy != nil {
		policy = *cfg.policy
	}
	return &Definition[Req, Resp]{
		name:         name,
		factory:      factory,
		policy:       policy,
		requestType:  cfg.requestType,
		responseType: cfg.responseType,
	}
}

func (d *Definition[Req, Resp]) Name() string                    { return d.name }
func (d *Definition[Req, Resp]) RequestType() string             { return d.requestType }
func (d *Definition[Req, Resp]) ResponseType() string            { return d.responseType }
func (d *Definition[Req, Resp]) RetryPolicy() domain.RetryPolicy { return d.policy }

// DecodeRequest implements Runnable.
func (d *Definition[Req, Resp]) DecodeRequest(raw json.RawMessage) (any, error) {
	var req Req
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, &domain.ValidationError{Field: "request", Reason: err.Error()}
		}
	}
	return req, nil
}

// ConvertRequest implements Runnable.
func (d *Definition[Req, Resp]) ConvertRequest(v any) (any, error) {
	switch r := v.(type) {
	case Req:
		return r, nil
	case *Req:
		if r == nil {
			return nil, &domain.ValidationError{Field: "request", Reason: "nil request"}
		}
		return *r, nil
	case json.RawMessage:
		return d.DecodeRequest(r)
	}
	var req Req
	if err := convert.Decode(v, &req); err != nil {
		return nil, &domain.ValidationError{
			Field:  "request",
			Reason: fmt.Sprintf("cannot build %s from %T: %v", d.requestType, v, err),
		}
	}
	return req, nil
}

// Instantiate implements Runnable.
func (d *Definition[Req, Resp]) Instantiate(opts ...Option) Instance {
	return d.New(opts...)
}

// New builds a typed pipeline with the definition's retry policy, then opts.
func (d *Definition[Req, Resp]) New(opts ...Option) *Pipeline[Req, Resp] {
	all := append([]Option{WithRetryPolicy(d.policy)}, opts...)
	return New[Req, Resp](d.name, d.factory(), all...)
}

// RunAny is the type-erased Run.
func (p *Pipeline[Req, Resp]) RunAny(ctx context.Context, req any) (any, error) {
	typed, ok := req.(Req)
	if !ok {
		if ptr, isPtr := req.(*Req); isPtr && ptr != nil {
			typed, ok = *ptr, true
		}
	}
	if !ok {
		var want Req
		return nil, &domain.ValidationError{Field: "request", Reason: fmt.Sprintf("%s expects %T, got %T", p.name, want, req)}
	}
	return p.Run(ctx, typed)
}

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/switchyard/internal/convert"
	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/condition"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/registry"
)

// Dispatcher turns a completed response into the dispatches implied by the
// routes in its registry. It holds no mutable state.
type Dispatcher struct {
	registry  *registry.Registry
	evaluator *condition.Evaluator
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. It is also handed to the default evaluator.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithEvaluator replaces the condition evaluator.
func WithEvaluator(e *condition.Evaluator) Option {
	return func(d *Dispatcher) {
		d.evaluator = e
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Dispatcher) {
		d.hooks = hooks
	}
}

// New creates a Dispatcher over reg.
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.evaluator == nil {
		d.evaluator = condition.New(condition.WithLogger(d.logger))
	}
	return d
}

// Registry returns the registry the dispatcher reads from.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Matches reports whether route applies to response declared as typeName.
func (d *Dispatcher) Matches(route domain.Route, response any, typeName string) bool {
	return route.TypeMatches(typeName) && d.evaluator.Evaluate(route.Condition, response)
}

// DispatchValue is Dispatch with the type name taken from response's Go type.
func (d *Dispatcher) DispatchValue(ctx context.Context, response any) domain.DispatchResult {
	fqn, _ := domain.TypeNameOf(response)
	return d.Dispatch(ctx, response, fqn)
}

// Dispatch evaluates every candidate route for typeName against response.
// Per-route failures are collected in the result and never stop other routes.
// Dispatches keep route registration order.
func (d *Dispatcher) Dispatch(ctx context.Context, response any, typeName string) domain.DispatchResult {
	result := domain.DispatchResult{Dispatches: []domain.Dispatch{}}

	for _, route := range d.registry.ListForResponseType(typeName) {
		if !d.Matches(route, response, typeName) {
			continue
		}

		req, derr := d.buildRequest(route, response, typeName)
		if derr != nil {
			d.logger.Warn("route not dispatched",
				"response_type", typeName,
				"pipeline", route.Pipeline,
				"code", derr.Code,
				"err", derr.Message,
			)
			result.Errors = append(result.Errors, *derr)
			continue
		}

		result.Dispatches = append(result.Dispatches, domain.Dispatch{
			Pipeline:    route.Pipeline,
			RequestType: route.RequestType,
			Request:     req,
			Route:       route,
		})
	}

	if d.hooks.OnDispatch != nil {
		d.hooks.OnDispatch(ctx, &domain.DispatchEvent{
			EventBase:    domain.EventBase{Timestamp: time.Now(), Type: domain.EventDispatch},
			ResponseType: typeName,
			Dispatches:   result.Dispatches,
			Errors:       result.Errors,
		})
	}
	return result
}

func (d *Dispatcher) buildRequest(route domain.Route, response any, typeName string) (any, *domain.DispatchError) {
	fn, ok := d.registry.Transformer(route.ResponseType, route.RequestType)
	if !ok {
		fn, ok = d.registry.Transformer(typeName, route.RequestType)
	}
	if ok {
		req, err := safeTransform(fn, response)
		if err != nil {
			return nil, &domain.DispatchError{Route: route, Code: domain.CodeTransformFailed, Message: err.Error()}
		}
		return req, nil
	}

	// Structural pass-through.
	if domain.SimpleTypeName(route.RequestType) == domain.SimpleTypeName(typeName) {
		return response, nil
	}
	factory, ok := d.registry.RequestFactory(route.RequestType)
	if !ok {
		return nil, &domain.DispatchError{
			Route:   route,
			Code:    domain.CodeUnresolvedTransformer,
			Message: fmt.Sprintf("no transformer from %s to %s and request type is not registered", typeName, route.RequestType),
		}
	}
	target := factory()
	if err := convert.Decode(response, target); err != nil {
		return nil, &domain.DispatchError{
			Route:   route,
			Code:    domain.CodeUnresolvedTransformer,
			Message: fmt.Sprintf("structural pass-through to %s: %v", route.RequestType, err),
		}
	}
	return target, nil
}

func safeTransform(fn registry.TransformerFunc, response any) (req any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transformer panicked: %v", r)
		}
	}()
	return fn(response)
}

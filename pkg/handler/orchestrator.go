package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// Detection is what a fine-grained handler receives: the entity and one
// condition detected on it.
type Detection[E any] struct {
	Entity    E
	Condition domain.Condition
}

// String describes the detection for logs.
func (d Detection[E]) String() string {
	if ev, ok := any(d.Entity).(domain.NewDataEvent); ok {
		return fmt.Sprintf("%s on endpoint %s", d.Condition.Name, ev.EndpointID)
	}
	return fmt.Sprintf("%s on %s", d.Condition.Name, describe(d.Entity))
}

// Orchestrator composes a condition detector with one handler per condition name.
type Orchestrator[E any] struct {
	detector ports.UseCase[E, []domain.Condition]
	handlers map[string]ports.Handler[Detection[E]]
	logger   *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorConfig)

type orchestratorConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(c *orchestratorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewOrchestrator creates an Orchestrator. handlers is copied.
func NewOrchestrator[E any](detector ports.UseCase[E, []domain.Condition], handlers map[string]ports.Handler[Detection[E]], opts ...OrchestratorOption) *Orchestrator[E] {
	cfg := orchestratorConfig{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	hs := make(map[string]ports.Handler[Detection[E]], len(handlers))
	for name, h := range handlers {
		hs[name] = h
	}
	return &Orchestrator[E]{detector: detector, handlers: hs, logger: cfg.logger}
}

// Conditions lists the condition names with a registered handler, sorted.
func (o *Orchestrator[E]) Conditions() []string {
	names := make([]string, 0, len(o.handlers))
	for name := range o.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle runs detection once and delegates each condition in detection order.
// A delegate error becomes a rejection carrying the error. A condition with
// no delegate only adds a warning. A detection failure is returned as error.
func (o *Orchestrator[E]) Handle(ctx context.Context, entity E) (*domain.Acknowledgement, error) {
	conds, err := o.detector.Execute(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("detect conditions: %w", err)
	}

	acks := make([]*domain.Acknowledgement, 0, len(conds))
	for _, cond := range conds {
		h, ok := o.handlers[cond.Name]
		if !ok {
			o.logger.Warn("no handler for condition", "condition", cond.Name)
			acks = append(acks, domain.Accept().WithWarning(fmt.Sprintf("no handler registered for condition %q", cond.Name)))
			continue
		}

		ack, err := h.Handle(ctx, Detection[E]{Entity: entity, Condition: cond})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Error("condition handler failed", "condition", cond.Name, "err", err)
			acks = append(acks, domain.Reject(fmt.Sprintf("%s: %v", cond.Name, err)))
			continue
		}
		acks = append(acks, ack)
	}
	return domain.Aggregate(acks...), nil
}

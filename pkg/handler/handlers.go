package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
)

// Null accepts everything and does nothing.
type Null[T any] struct{}

// Handle implements ports.Handler.
func (Null[T]) Handle(context.Context, T) (*domain.Acknowledgement, error) {
	return domain.Accept(), nil
}

// Logging accepts, logs the entity and records a warning. It performs no automation.
type Logging[T any] struct {
	Name   string
	Logger *slog.Logger
}

// NewLogging creates a Logging handler identified by name in its output.
func NewLogging[T any](name string, logger *slog.Logger) *Logging[T] {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Logging[T]{Name: name, Logger: logger}
}

// Handle implements ports.Handler.
func (h *Logging[T]) Handle(ctx context.Context, entity T) (*domain.Acknowledgement, error) {
	msg := fmt.Sprintf("%s: no automated handling for %s", h.Name, describe(entity))
	h.Logger.WarnContext(ctx, "condition left for manual follow-up", "handler", h.Name, "entity", describe(entity))
	return domain.Accept().WithWarning(msg), nil
}

func describe(v any) string {
	switch e := v.(type) {
	case domain.NewDataEvent:
		return "new data on endpoint " + e.EndpointID
	case domain.Condition:
		return e.Name
	case fmt.Stringer:
		return e.String()
	}
	_, simple := domain.TypeNameOf(v)
	if simple == "" {
		return "<nil>"
	}
	return simple
}

// Func adapts a function to ports.Handler.
type Func[T any] func(ctx context.Context, entity T) (*domain.Acknowledgement, error)

// Handle calls f(ctx, entity).
func (f Func[T]) Handle(ctx context.Context, entity T) (*domain.Acknowledgement, error) {
	return f(ctx, entity)
}

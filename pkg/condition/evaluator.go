package condition

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
)

// Evaluator checks PipelineConditions against responses.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	logger *slog.Logger
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for type-mismatch warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate reports whether every field condition of cond holds for response.
func (e *Evaluator) Evaluate(cond domain.PipelineCondition, response any) bool {
	for _, fc := range cond.AllOf {
		if !e.EvaluateField(fc, response) {
			return false
		}
	}
	return true
}

// EvaluateField evaluates a single field condition.
func (e *Evaluator) EvaluateField(fc domain.FieldCondition, response any) bool {
	v := Resolve(response, fc.Field)

	switch fc.Operator {
	case domain.OpIsNone:
		return v == nil
	case domain.OpIsNotNone:
		return v != nil
	case domain.OpIsTrue:
		b, ok := v.(bool)
		return ok && b
	case domain.OpIsFalse:
		b, ok := v.(bool)
		return ok && !b
	case domain.OpEq:
		return equal(v, fc.Value)
	case domain.OpNe:
		return !equal(v, fc.Value)
	case domain.OpIn, domain.OpNotIn:
		found, valid := contains(fc.Value, v)
		if !valid {
			e.mismatch(fc, v)
			return false
		}
		if fc.Operator == domain.OpIn {
			return found
		}
		return !found
	case domain.OpGt, domain.OpGe, domain.OpLt, domain.OpLe:
		cmp, ok := compare(v, fc.Value)
		if !ok {
			e.mismatch(fc, v)
			return false
		}
		switch fc.Operator {
		case domain.OpGt:
			return cmp > 0
		case domain.OpGe:
			return cmp >= 0
		case domain.OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}

	e.logger.Warn("unknown condition operator", "field", fc.Field, "operator", fc.Operator)
	return false
}

func (e *Evaluator) mismatch(fc domain.FieldCondition, resolved any) {
	e.logger.Warn("condition operands are not comparable",
		"field", fc.Field,
		"operator", fc.Operator,
		"resolved_type", fmt.Sprintf("%T", resolved),
		"value_type", fmt.Sprintf("%T", fc.Value),
	)
}

package domain

import (
	"fmt"
	"reflect"
	"strings"
)

// Operator is the comparison applied by a FieldCondition.
type Operator string

const (
	OpEq        Operator = "EQ"
	OpNe        Operator = "NE"
	OpGt        Operator = "GT"
	OpGe        Operator = "GE"
	OpLt        Operator = "LT"
	OpLe        Operator = "LE"
	OpIsTrue    Operator = "IS_TRUE"
	OpIsFalse   Operator = "IS_FALSE"
	OpIsNone    Operator = "IS_NONE"
	OpIsNotNone Operator = "IS_NOT_NONE"
	OpIn        Operator = "IN"
	OpNotIn     Operator = "NOT_IN"
)

var operatorAliases = map[string]Operator{
	"==": OpEq,
	"!=": OpNe,
	">":  OpGt,
	">=": OpGe,
	"<":  OpLt,
	"<=": OpLe,
}

// ParseOperator resolves an operator name (case-insensitive) or its symbolic alias.
func ParseOperator(s string) (Operator, error) {
	clean := strings.TrimSpace(s)
	if op, ok := operatorAliases[clean]; ok {
		return op, nil
	}
	op := Operator(strings.ToUpper(clean))
	if !op.Valid() {
		return "", fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, s)
	}
	return op, nil
}

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe,
		OpIsTrue, OpIsFalse, OpIsNone, OpIsNotNone,
		OpIn, OpNotIn:
		return true
	}
	return false
}

// Unary reports whether op ignores its Value operand.
func (op Operator) Unary() bool {
	switch op {
	case OpIsTrue, OpIsFalse, OpIsNone, OpIsNotNone:
		return true
	}
	return false
}

// FieldCondition is a predicate over one field of a response, addressed by a
// dot-separated path (e.g. "polling_result.success").
type FieldCondition struct {
	Field    string   `json:"field" yaml:"field" mapstructure:"field"`
	Operator Operator `json:"operator" yaml:"operator" mapstructure:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty" mapstructure:"value"`
}

// Validate checks the condition's shape. It does not inspect any response.
func (c FieldCondition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("%w: empty field path", ErrInvalidCondition)
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("%w: unknown operator %q on %s", ErrInvalidCondition, c.Operator, c.Field)
	}
	if c.Operator == OpIn || c.Operator == OpNotIn {
		if !IsContainer(c.Value) {
			return fmt.Errorf("%w: %s on %s requires a list, map or string value", ErrInvalidCondition, c.Operator, c.Field)
		}
	}
	return nil
}

func (c FieldCondition) String() string {
	if c.Operator.Unary() {
		return fmt.Sprintf("%s %s", c.Field, c.Operator)
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// IsContainer reports whether v can be used as the operand of IN / NOT_IN.
func IsContainer(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return true
	}
	return false
}

// PipelineCondition is the conjunction of its field conditions.
// An empty condition is vacuously true.
type PipelineCondition struct {
	AllOf []FieldCondition `json:"all_of" yaml:"all_of" mapstructure:"all_of"`
}

// Validate checks every child condition.
func (c PipelineCondition) Validate() error {
	for i, fc := range c.AllOf {
		if err := fc.Validate(); err != nil {
			return fmt.Errorf("all_of[%d]: %w", i, err)
		}
	}
	return nil
}

func (c PipelineCondition) String() string {
	if len(c.AllOf) == 0 {
		return "always"
	}
	parts := make([]string, len(c.AllOf))
	for i, fc := range c.AllOf {
		parts[i] = fc.String()
	}
	return strings.Join(parts, " AND ")
}

// All builds a conjunction.
func All(conds ...FieldCondition) PipelineCondition {
	return PipelineCondition{AllOf: conds}
}

// Eq matches when field equals v.
func Eq(field string, v any) FieldCondition {
	return FieldCondition{Field: field, Operator: OpEq, Value: v}
}

// Ne matches when field differs from v, including when field is absent.
func Ne(field string, v any) FieldCondition {
	return FieldCondition{Field: field, Operator: OpNe, Value: v}
}

// Gt matches when field is ordered after v.
func Gt(field string, v any) FieldCondition {
	return FieldCondition{Field: field, Operator: OpGt, Value: v}
}

// Ge matches when field is ordered after or equal to v.
func Ge(field string, v any) FieldCondition {
	return FieldCondition{Field: field, Operator: OpGe, Value: v}
}

// Lt matches when field is ordered before v.
func Lt(field string, v any) FieldCondition {
	return FieldCondition{Field: field, Operator: OpLt, Value: v}
}

// Le matches when field is ordered before or equal to v.
func Le(field string, v any) FieldCondition {
	return FieldCondition{Field: field, Operator: OpLe, Value: v}
}

// In matches when field equals one element of the collection v.
func In(field string, v any) FieldCondition {
	return FieldCondition{Field: field, Operator: OpIn, Value: v}
}

// NotIn matches when field equals no element of the collection v.
func NotIn(field string, v any) FieldCondition {
	return FieldCondition{Field: field, Operator: OpNotIn, Value: v}
}

// IsTrue matches when field is the boolean true.
func IsTrue(field string) FieldCondition {
	return FieldCondition{Field: field, Operator: OpIsTrue}
}

// IsFalse matches when field is the boolean false.
func IsFalse(field string) FieldCondition {
	return FieldCondition{Field: field, Operator: OpIsFalse}
}

// IsNone matches when field is absent or null.
func IsNone(field string) FieldCondition {
	return FieldCondition{Field: field, Operator: OpIsNone}
}

// IsNotNone matches when field is present and not null.
func IsNotNone(field string) FieldCondition {
	return FieldCondition{Field: field, Operator: OpIsNotNone}
}

// Condition is a named, structured domain condition detected on an entity.
type Condition struct {
	Name    string         `json:"name"`
	Details map[string]any `json:"details,omitempty"`
}

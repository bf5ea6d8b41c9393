package domain

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"
)

// RetryPolicy declares how failures are retried, both for whole use-case
// attempts and for individual dependency calls.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt. Values below 1 mean a single attempt.
	MaxAttempts        int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialInterval    time.Duration `json:"initial_interval" yaml:"initial_interval" mapstructure:"initial_interval"`
	BackoffCoefficient float64       `json:"backoff_coefficient" yaml:"backoff_coefficient" mapstructure:"backoff_coefficient"`
	MaxInterval        time.Duration `json:"max_interval" yaml:"max_interval" mapstructure:"max_interval"`
	// NonRetryableErrorTypes lists ApplicationError types that fail immediately.
	NonRetryableErrorTypes []string `json:"non_retryable" yaml:"non_retryable" mapstructure:"non_retryable"`
}

// DefaultRetryPolicy returns 3 attempts with exponential backoff from 1s capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        3,
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaxInterval:        30 * time.Second,
	}
}

// Attempts returns the effective attempt budget.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.InitialInterval <= 0 || attempt < 1 {
		return 0
	}
	coef := p.BackoffCoefficient
	if coef < 1 {
		coef = 1
	}
	d := float64(p.InitialInterval) * math.Pow(coef, float64(attempt-1))
	if p.MaxInterval > 0 && d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// IsRetryable classifies err. Validation errors, non-retryable application
// errors, whitelisted error types, replay divergence and cancellation are terminal.
func (p RetryPolicy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNonDeterministic) {
		return false
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return false
	}
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		if appErr.NonRetryable {
			return false
		}
		if slices.Contains(p.NonRetryableErrorTypes, appErr.Type) {
			return false
		}
	}
	return true
}

package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories when an entity does not exist and
// the caller asked for a strict lookup.
var ErrNotFound = errors.New("not found")

// ErrRunNotFound is returned when a run ID cannot be found in the run store.
var ErrRunNotFound = errors.New("run not found")

// ErrUnknownPipeline is returned when a pipeline name is not registered.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// ErrInvalidRoute is returned when a route fails validation at registration.
var ErrInvalidRoute = errors.New("invalid route")

// ErrInvalidCondition is returned when a condition uses an unknown operator
// or a malformed operand.
var ErrInvalidCondition = errors.New("invalid condition")

// ErrNonDeterministic is returned when a replayed run issues a different
// sequence of activities than the one recorded in its journal.
var ErrNonDeterministic = errors.New("non-deterministic replay")

// ErrRunInProgress is returned when a run is already executing in this process.
var ErrRunInProgress = errors.New("run already in progress")

// ErrLockNotAcquired is returned by non-blocking lock attempts.
var ErrLockNotAcquired = errors.New("lock not acquired")

// ApplicationError is a business-logic failure raised by a use case or a
// dependency. Type is matched against a retry policy's non-retryable list.
type ApplicationError struct {
	Type         string
	Message      string
	NonRetryable bool
	Cause        error
}

// NewApplicationError creates a retryable application error.
func NewApplicationError(errType, message string, cause error) *ApplicationError {
	return &ApplicationError{Type: errType, Message: message, Cause: cause}
}

// NewNonRetryableError creates an application error that fails a pipeline
// immediately regardless of its retry policy.
func NewNonRetryableError(errType, message string, cause error) *ApplicationError {
	return &ApplicationError{Type: errType, Message: message, NonRetryable: true, Cause: cause}
}

func (e *ApplicationError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Type == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

func (e *ApplicationError) Unwrap() error {
	return e.Cause
}

// ValidationError reports a domain validation failure. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ErrorType returns a stable type name for err, used when recording failures
// in run journals and matching non-retryable whitelists.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	var appErr *ApplicationError
	if errors.As(err, &appErr) && appErr.Type != "" {
		return appErr.Type
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return "ValidationError"
	}
	return fmt.Sprintf("%T", err)
}

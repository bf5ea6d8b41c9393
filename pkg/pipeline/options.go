package pipeline

import (
	"log/slog"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

type settings struct {
	policy domain.RetryPolicy
	clock  ports.Clock
	logger *slog.Logger
	hooks  domain.LifecycleHooks
	runID  string
}

// Option configures a Pipeline.
type Option func(*settings)

// WithRetryPolicy sets the policy applied to whole use-case attempts.
func WithRetryPolicy(p domain.RetryPolicy) Option {
	return func(s *settings) {
		s.policy = p
	}
}

// WithClock sets the clock used for event timestamps outside the substrate.
func WithClock(c ports.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *settings) {
		s.hooks = hooks
	}
}

// WithRunID tags events and logs with the run this pipeline executes.
func WithRunID(id string) Option {
	return func(s *settings) {
		s.runID = id
	}
}

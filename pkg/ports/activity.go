package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
)

// ActivityFunc is one dependency call issued by a use case.
type ActivityFunc func(ctx context.Context) (any, error)

// ActivityOptions controls how the substrate runs a single activity.
// Zero values fall back to the substrate's defaults.
type ActivityOptions struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         *domain.RetryPolicy
}

// ActivityRunner is the contract between the orchestration core and the
// durable-execution substrate. Every suspension point of a pipeline run goes
// through it so the substrate can independently retry, time out, record and
// replay it.
type ActivityRunner interface {
	// RunActivity executes (or replays) fn and returns its JSON-encoded result.
	RunActivity(ctx context.Context, name string, opts ActivityOptions, fn ActivityFunc) (json.RawMessage, error)

	// Sleep waits for d, or returns immediately when replaying a recorded timer.
	Sleep(ctx context.Context, d time.Duration) error

	// Now returns the current time, recorded on first execution and replayed afterwards.
	Now(ctx context.Context) (time.Time, error)
}

// Clock supplies wall-clock time to components outside a replayed run.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f().
func (f ClockFunc) Now() time.Time { return f() }

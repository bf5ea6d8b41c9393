package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// ErrTypeActivityPanic is the ApplicationError type of an activity that
// panicked.
const ErrTypeActivityPanic = "ActivityPanic"

type runnerKey struct{}

type stepKey struct{}

type stepFunc func(ctx context.Context, step string)

// WithActivityRunner attaches the substrate's runner to ctx.
func WithActivityRunner(ctx context.Context, r ports.ActivityRunner) context.Context {
	return context.WithValue(ctx, runnerKey{}, r)
}

// ActivityRunnerFrom returns the runner attached to ctx, if any.
func ActivityRunnerFrom(ctx context.Context) (ports.ActivityRunner, bool) {
	r, ok := ctx.Value(runnerKey{}).(ports.ActivityRunner)
	return r, ok && r != nil
}

// ReportStep records the use case's current step on the enclosing pipeline.
// It is a no-op outside a pipeline run.
func ReportStep(ctx context.Context, step string) {
	if fn, ok := ctx.Value(stepKey{}).(stepFunc); ok {
		fn(ctx, step)
	}
}

// Call runs fn as a named activity with default options.
func Call[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	return CallWithOptions(ctx, name, ports.ActivityOptions{}, fn)
}

// CallWithOptions runs fn through the ActivityRunner in ctx. The result
// crosses a JSON boundary so a replayed value is indistinguishable from a
// live one. Without a runner fn is called directly, and a panic in fn is
// returned as an ApplicationError as the runner would.
func CallWithOptions[T any](ctx context.Context, name string, opts ports.ActivityOptions, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	runner, ok := ActivityRunnerFrom(ctx)
	if !ok {
		return callDirect(ctx, name, fn)
	}

	raw, err := runner.RunActivity(ctx, name, opts, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return zero, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("decode result of %s: %w", name, err)
	}
	return out, nil
}

func callDirect[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, domain.NewApplicationError(ErrTypeActivityPanic, fmt.Sprintf("activity %s: %v", name, r), nil)
		}
	}()
	return fn(ctx)
}

// Now returns replay-consistent time: recorded by the runner in ctx, or read
// from clock when there is none.
func Now(ctx context.Context, clock ports.Clock) (time.Time, error) {
	if runner, ok := ActivityRunnerFrom(ctx); ok {
		return runner.Now(ctx)
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return clock.Now(), nil
}

// Sleep waits d through the runner's durable timer, or a plain timer outside
// the substrate.
func Sleep(ctx context.Context, d time.Duration) error {
	if runner, ok := ActivityRunnerFrom(ctx); ok {
		return runner.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/pipeline"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetRequest struct {
	Name string `json:"name"`
}

type greetResponse struct {
	Greeting string `json:"greeting"`
}

func greeter() ports.UseCase[greetRequest, greetResponse] {
	return ports.UseCaseFunc[greetRequest, greetResponse](func(ctx context.Context, req greetRequest) (greetResponse, error) {
		pipeline.ReportStep(ctx, "greeting")
		return greetResponse{Greeting: "hello " + req.Name}, nil
	})
}

func fastPolicy(attempts int) domain.RetryPolicy {
	return domain.RetryPolicy{MaxAttempts: attempts}
}

func TestPipeline_Completes(t *testing.T) {
	p := pipeline.New("greet", greeter())

	assert.Equal(t, domain.StatusInitialized, p.Status())
	assert.Equal(t, domain.StepInitialized, p.CurrentStep())

	resp, err := p.Run(context.Background(), greetRequest{Name: "ops"})
	require.NoError(t, err)
	assert.Equal(t, "hello ops", resp.Greeting)

	snap := p.Snapshot()
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	assert.Equal(t, "greeting", snap.CurrentStep)
	assert.Equal(t, 1, snap.Attempt)
	assert.Empty(t, snap.LastError)

	_, err = p.Run(context.Background(), greetRequest{})
	assert.ErrorIs(t, err, pipeline.ErrAlreadyRun)
}

func TestPipeline_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	uc := ports.UseCaseFunc[greetRequest, greetResponse](func(ctx context.Context, req greetRequest) (greetResponse, error) {
		if calls.Add(1) < 3 {
			return greetResponse{}, errors.New("upstream unavailable")
		}
		return greetResponse{Greeting: "ok"}, nil
	})

	var retries int
	p := pipeline.New("flaky", uc,
		pipeline.WithRetryPolicy(fastPolicy(3)),
		pipeline.WithLifecycleHooks(domain.LifecycleHooks{
			OnRetry: func(_ context.Context, e *domain.RunEvent) {
				retries++
				assert.Equal(t, domain.EventRetry, e.Type)
			},
		}),
	)

	resp, err := p.Run(context.Background(), greetRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Greeting)
	assert.Equal(t, 3, p.Attempt())
	assert.Equal(t, 2, retries)
	assert.Equal(t, domain.StatusCompleted, p.Status())
}

func TestPipeline_TerminalFailures(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		policy       domain.RetryPolicy
		wantAttempts int32
	}{
		{"validation error", &domain.ValidationError{Field: "name", Reason: "empty"}, fastPolicy(5), 1},
		{"non-retryable application error", domain.NewNonRetryableError("Quota", "exhausted", nil), fastPolicy(5), 1},
		{"whitelisted type", domain.NewApplicationError("BadInput", "nope", nil), domain.RetryPolicy{MaxAttempts: 5, NonRetryableErrorTypes: []string{"BadInput"}}, 1},
		{"exhausted retries", errors.New("still down"), fastPolicy(3), 3},
		{"single attempt policy", errors.New("down"), fastPolicy(0), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			uc := ports.UseCaseFunc[greetRequest, greetResponse](func(ctx context.Context, req greetRequest) (greetResponse, error) {
				calls.Add(1)
				pipeline.ReportStep(ctx, "validating")
				return greetResponse{}, tt.err
			})
			p := pipeline.New("failing", uc, pipeline.WithRetryPolicy(tt.policy))

			_, err := p.Run(context.Background(), greetRequest{})
			require.ErrorIs(t, err, tt.err)

			assert.Equal(t, tt.wantAttempts, calls.Load())
			assert.Equal(t, domain.StatusFailed, p.Status())
			assert.Equal(t, tt.err, p.LastError())
			assert.Equal(t, "validating", p.CurrentStep())
			assert.Equal(t, tt.err.Error(), p.Snapshot().LastError)
		})
	}
}

func TestPipeline_QueriesWhileRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	uc := ports.UseCaseFunc[greetRequest, greetResponse](func(ctx context.Context, req greetRequest) (greetResponse, error) {
		pipeline.ReportStep(ctx, "fetching")
		close(entered)
		<-release
		return greetResponse{Greeting: "done"}, nil
	})
	p := pipeline.New("slow", uc)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), greetRequest{})
		done <- err
	}()

	<-entered
	assert.Equal(t, domain.StatusRunning, p.Status())
	assert.Equal(t, "fetching", p.CurrentStep())
	_, ok := p.Response()
	assert.False(t, ok)

	close(release)
	require.NoError(t, <-done)
	resp, ok := p.Response()
	assert.True(t, ok)
	assert.Equal(t, "done", resp.Greeting)
}

func TestPipeline_CancellationIsNotTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	uc := ports.UseCaseFunc[greetRequest, greetResponse](func(ctx context.Context, req greetRequest) (greetResponse, error) {
		cancel()
		<-ctx.Done()
		return greetResponse{}, ctx.Err()
	})
	p := pipeline.New("cancelled", uc, pipeline.WithRetryPolicy(fastPolicy(3)))

	_, err := p.Run(ctx, greetRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StatusRunning, p.Status())
	assert.False(t, p.Status().IsTerminal())
	assert.Equal(t, 1, p.Attempt())
}

func TestPipeline_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	uc := ports.UseCaseFunc[greetRequest, greetResponse](func(ctx context.Context, req greetRequest) (greetResponse, error) {
		return greetResponse{}, errors.New("transient")
	})
	p := pipeline.New("backoff", uc,
		pipeline.WithRetryPolicy(domain.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Hour}),
		pipeline.WithLifecycleHooks(domain.LifecycleHooks{
			OnRetry: func(context.Context, *domain.RunEvent) { cancel() },
		}),
	)

	_, err := p.Run(ctx, greetRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StatusRunning, p.Status())
}

func TestDefinition_TypeErased(t *testing.T) {
	def := pipeline.NewDefinition("greet", greeter, pipeline.WithTypeNames("", "Greeting"))
	var run pipeline.Runnable = def

	assert.Equal(t, "greet", run.Name())
	assert.Equal(t, "github.com/aretw0/switchyard/pkg/pipeline_test.greetRequest", run.RequestType())
	assert.Equal(t, "Greeting", run.ResponseType())
	assert.Equal(t, domain.DefaultRetryPolicy(), run.RetryPolicy())

	req, err := run.ConvertRequest(map[string]any{"name": "map"})
	require.NoError(t, err)
	assert.Equal(t, greetRequest{Name: "map"}, req)

	req, err = run.ConvertRequest(&greetRequest{Name: "ptr"})
	require.NoError(t, err)
	assert.Equal(t, greetRequest{Name: "ptr"}, req)

	decoded, err := run.DecodeRequest(json.RawMessage(`{"name":"json"}`))
	require.NoError(t, err)

	inst := run.Instantiate()
	out, err := inst.RunAny(context.Background(), decoded)
	require.NoError(t, err)
	assert.Equal(t, greetResponse{Greeting: "hello json"}, out)
	assert.Equal(t, domain.StatusCompleted, inst.Snapshot().Status)

	_, err = run.Instantiate().RunAny(context.Background(), 42)
	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)

	_, err = run.DecodeRequest(json.RawMessage(`{"name":`))
	assert.ErrorAs(t, err, &valErr)
}

func TestDefinition_FreshUseCasePerRun(t *testing.T) {
	var built int
	def := pipeline.NewDefinition("greet", func() ports.UseCase[greetRequest, greetResponse] {
		built++
		return greeter()
	})

	_ = def.New()
	_ = def.New()
	assert.Equal(t, 2, built)
}

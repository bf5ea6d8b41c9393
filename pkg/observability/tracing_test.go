package observability_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/observability"
)

func TestTracing_RunAndActivitySpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracing := observability.NewTracing(tp)
	hooks := tracing.Hooks()
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	base := domain.EventBase{Timestamp: start, RunID: "r1"}
	hooks.OnRunStart(ctx, &domain.RunEvent{EventBase: base, Pipeline: "change-detection"})
	hooks.OnStep(ctx, &domain.RunEvent{EventBase: base, Pipeline: "change-detection", Step: "polling", Attempt: 1})
	hooks.OnActivity(ctx, &domain.ActivityEvent{
		EventBase: domain.EventBase{Timestamp: start.Add(time.Second), RunID: "r1"},
		Name:      "poller.poll",
		Attempts:  1,
		Duration:  500 * time.Millisecond,
	})
	hooks.OnRunComplete(ctx, &domain.RunEvent{
		EventBase: domain.EventBase{Timestamp: start.Add(2 * time.Second), RunID: "r1"},
		Pipeline:  "change-detection",
		Status:    domain.StatusCompleted,
	})

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	activity, run := spans[0], spans[1]
	assert.Equal(t, "activity poller.poll", activity.Name())
	assert.Equal(t, "pipeline change-detection", run.Name())
	assert.Equal(t, run.SpanContext().SpanID(), activity.Parent().SpanID())
	assert.Equal(t, start.Add(500*time.Millisecond), activity.StartTime())
	assert.Equal(t, start.Add(2*time.Second), run.EndTime())
	assert.Equal(t, codes.Ok, run.Status().Code)
	require.Len(t, run.Events(), 1)
	assert.Equal(t, "step", run.Events()[0].Name)
}

func TestTracing_FailedAndInterruptedRuns(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracing := observability.NewTracing(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	hooks := tracing.Hooks()
	ctx := context.Background()

	hooks.OnRunStart(ctx, &domain.RunEvent{EventBase: domain.EventBase{RunID: "failed"}, Pipeline: "p"})
	hooks.OnRunComplete(ctx, &domain.RunEvent{EventBase: domain.EventBase{RunID: "failed"}, Pipeline: "p", Status: domain.StatusFailed, Error: "boom"})
	hooks.OnRunStart(ctx, &domain.RunEvent{EventBase: domain.EventBase{RunID: "cut"}, Pipeline: "p"})

	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, codes.Error, recorder.Ended()[0].Status().Code)
	assert.Equal(t, "boom", recorder.Ended()[0].Status().Description)

	tracing.Flush()
	assert.Len(t, recorder.Ended(), 2)
}

func TestInitStdout(t *testing.T) {
	var buf bytes.Buffer
	tp, err := observability.InitStdout("switchyard", "test", &buf)
	require.NoError(t, err)

	_, span := observability.NewTracing(tp).StartRunSpan(context.Background(), "p", "r1")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "pipeline p")
}

package observability

import (
	"context"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/switchyard/pkg/domain"
)

// TracerName identifies spans created by this package.
const TracerName = "github.com/aretw0/switchyard"

// InitStdout builds a tracer provider exporting spans as JSON to w. The
// caller owns the provider and must Shutdown it.
func InitStdout(serviceName, serviceVersion string, w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// Tracing records one span per pipeline run with a child span per activity.
type Tracing struct {
	tracer trace.Tracer

	mu   sync.Mutex
	runs map[string]trace.Span
}

// NewTracing creates a Tracing on tp.
func NewTracing(tp trace.TracerProvider) *Tracing {
	return &Tracing{
		tracer: tp.Tracer(TracerName),
		runs:   make(map[string]trace.Span),
	}
}

// StartRunSpan starts the span of a pipeline run.
func (t *Tracing) StartRunSpan(ctx context.Context, pipeline, runID string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("run_id", runID),
	))
	return t.tracer.Start(ctx, "pipeline "+pipeline, opts...)
}

// StartActivitySpan starts the span of one activity.
func (t *Tracing) StartActivitySpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(attribute.String("activity", name)))
	return t.tracer.Start(ctx, "activity "+name, opts...)
}

// Hooks returns lifecycle hooks that drive the spans. Activity spans are
// back-dated from the event's duration.
func (t *Tracing) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			_, span := t.StartRunSpan(ctx, e.Pipeline, e.RunID, trace.WithTimestamp(e.Timestamp))
			t.mu.Lock()
			if prev, ok := t.runs[e.RunID]; ok {
				prev.End()
			}
			t.runs[e.RunID] = span
			t.mu.Unlock()
		},
		OnStep: func(_ context.Context, e *domain.RunEvent) {
			if span := t.run(e.RunID); span != nil {
				span.AddEvent("step", trace.WithAttributes(
					attribute.String("step", e.Step),
					attribute.Int("attempt", e.Attempt),
				), trace.WithTimestamp(e.Timestamp))
			}
		},
		OnRetry: func(_ context.Context, e *domain.RunEvent) {
			if span := t.run(e.RunID); span != nil {
				span.AddEvent("retry", trace.WithAttributes(
					attribute.Int("attempt", e.Attempt),
					attribute.String("error", e.Error),
				), trace.WithTimestamp(e.Timestamp))
			}
		},
		OnRunComplete: func(_ context.Context, e *domain.RunEvent) {
			t.mu.Lock()
			span, ok := t.runs[e.RunID]
			delete(t.runs, e.RunID)
			t.mu.Unlock()
			if !ok {
				return
			}
			span.SetAttributes(attribute.String("status", string(e.Status)))
			if e.Status == domain.StatusFailed {
				span.SetStatus(codes.Error, e.Error)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End(trace.WithTimestamp(e.Timestamp))
		},
		OnActivity: func(ctx context.Context, e *domain.ActivityEvent) {
			if parent := t.run(e.RunID); parent != nil {
				ctx = trace.ContextWithSpan(ctx, parent)
			}
			_, span := t.StartActivitySpan(ctx, e.Name, trace.WithTimestamp(e.Timestamp.Add(-e.Duration)))
			span.SetAttributes(
				attribute.Bool("replayed", e.Replayed),
				attribute.Int("attempts", e.Attempts),
			)
			if e.IsError {
				span.SetStatus(codes.Error, "activity failed")
			}
			span.End(trace.WithTimestamp(e.Timestamp))
		},
	}
}

// Flush ends the spans of runs that never completed, e.g. interrupted ones.
func (t *Tracing) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, span := range t.runs {
		span.SetAttributes(attribute.Bool("interrupted", true))
		span.End()
		delete(t.runs, id)
	}
}

func (t *Tracing) run(runID string) trace.Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs[runID]
}

package observability

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Namespace prefixes every metric name.
const Namespace = "switchyard"

// Metrics counts pipeline, activity, dispatch and detection events.
type Metrics struct {
	runs             *prometheus.CounterVec
	retries          *prometheus.CounterVec
	activities       *prometheus.CounterVec
	activityDuration *prometheus.HistogramVec
	dispatches       *prometheus.CounterVec
	dispatchErrors   *prometheus.CounterVec
	detections       *prometheus.CounterVec
	pollFailures     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs that reached a terminal status.",
		}, []string{"pipeline", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_retries_total",
			Help:      "Use-case attempts that failed and were retried.",
		}, []string{"pipeline"}),
		activities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "activities_total",
			Help:      "Proxied dependency calls by outcome (ok, error, replayed).",
		}, []string{"activity", "outcome"}),
		activityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "activity_duration_seconds",
			Help:      "Duration of executed (not replayed) activities, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"activity"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatches_total",
			Help:      "Resolved dispatches by target pipeline.",
		}, []string{"pipeline"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_errors_total",
			Help:      "Per-route dispatch failures by code.",
		}, []string{"code"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "change_detections_total",
			Help:      "Change-detection runs by endpoint and outcome.",
		}, []string{"endpoint_id", "new_data"}),
		pollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "poll_failures_total",
			Help:      "Polls that reported success=false.",
		}, []string{"endpoint_id"}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		m.runs, m.retries, m.activities, m.activityDuration,
		m.dispatches, m.dispatchErrors, m.detections, m.pollFailures,
	} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRetry: func(_ context.Context, e *domain.RunEvent) {
			m.retries.WithLabelValues(e.Pipeline).Inc()
		},
		OnRunComplete: func(_ context.Context, e *domain.RunEvent) {
			m.runs.WithLabelValues(e.Pipeline, string(e.Status)).Inc()
		},
		OnActivity: func(_ context.Context, e *domain.ActivityEvent) {
			switch {
			case e.Replayed:
				m.activities.WithLabelValues(e.Name, "replayed").Inc()
				return
			case e.IsError:
				m.activities.WithLabelValues(e.Name, "error").Inc()
			default:
				m.activities.WithLabelValues(e.Name, "ok").Inc()
			}
			m.activityDuration.WithLabelValues(e.Name).Observe(e.Duration.Seconds())
		},
		OnDispatch: func(_ context.Context, e *domain.DispatchEvent) {
			for _, d := range e.Dispatches {
				m.dispatches.WithLabelValues(d.Pipeline).Inc()
			}
			for _, de := range e.Errors {
				m.dispatchErrors.WithLabelValues(de.Code).Inc()
			}
		},
		OnDetection: func(_ context.Context, e *domain.DetectionEvent) {
			m.detections.WithLabelValues(e.EndpointID, strconv.FormatBool(e.HasNewData)).Inc()
			if !e.PollSuccess {
				m.pollFailures.WithLabelValues(e.EndpointID).Inc()
			}
		},
	}
}

package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart    EventType = "run_start"
	EventStep        EventType = "step"
	EventRetry       EventType = "retry"
	EventRunComplete EventType = "run_complete"
	EventActivity    EventType = "activity"
	EventDispatch    EventType = "dispatch"
	EventDetection   EventType = "detection"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
}

// RunEvent reports a pipeline lifecycle transition.
type RunEvent struct {
	EventBase
	Pipeline string         `json:"pipeline"`
	Status   PipelineStatus `json:"status"`
	Step     string         `json:"step,omitempty"`
	Attempt  int            `json:"attempt,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ActivityEvent reports one proxied dependency call.
type ActivityEvent struct {
	EventBase
	Name     string        `json:"name"`
	Replayed bool          `json:"replayed,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	IsError  bool          `json:"is_error,omitempty"`
}

// DispatchEvent reports the routing outcome of one completed run.
type DispatchEvent struct {
	EventBase
	ResponseType string          `json:"response_type"`
	Dispatches   []Dispatch      `json:"dispatches,omitempty"`
	Errors       []DispatchError `json:"errors,omitempty"`
}

// DetectionEvent reports the outcome of one change-detection run.
type DetectionEvent struct {
	EventBase
	EndpointID   string `json:"endpoint_id"`
	PollSuccess  bool   `json:"poll_success"`
	HasNewData   bool   `json:"has_new_data"`
	HandlerError string `json:"handler_error,omitempty"`
}

// LifecycleHooks defines callbacks for observability. Nil callbacks are skipped.
type LifecycleHooks struct {
	OnRunStart    func(context.Context, *RunEvent)
	OnStep        func(context.Context, *RunEvent)
	OnRetry       func(context.Context, *RunEvent)
	OnRunComplete func(context.Context, *RunEvent)
	OnActivity    func(context.Context, *ActivityEvent)
	OnDispatch    func(context.Context, *DispatchEvent)
	OnDetection   func(context.Context, *DetectionEvent)
}

// CombineHooks returns hooks that invoke each of the given hooks in order.
func CombineHooks(all ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *RunEvent) {
			for _, h := range all {
				if h.OnRunStart != nil {
					h.OnRunStart(ctx, e)
				}
			}
		},
		OnStep: func(ctx context.Context, e *RunEvent) {
			for _, h := range all {
				if h.OnStep != nil {
					h.OnStep(ctx, e)
				}
			}
		},
		OnRetry: func(ctx context.Context, e *RunEvent) {
			for _, h := range all {
				if h.OnRetry != nil {
					h.OnRetry(ctx, e)
				}
			}
		},
		OnRunComplete: func(ctx context.Context, e *RunEvent) {
			for _, h := range all {
				if h.OnRunComplete != nil {
					h.OnRunComplete(ctx, e)
				}
			}
		},
		OnActivity: func(ctx context.Context, e *ActivityEvent) {
			for _, h := range all {
				if h.OnActivity != nil {
					h.OnActivity(ctx, e)
				}
			}
		},
		OnDispatch: func(ctx context.Context, e *DispatchEvent) {
			for _, h := range all {
				if h.OnDispatch != nil {
					h.OnDispatch(ctx, e)
				}
			}
		},
		OnDetection: func(ctx context.Context, e *DetectionEvent) {
			for _, h := range all {
				if h.OnDetection != nil {
					h.OnDetection(ctx, e)
				}
			}
		},
	}
}

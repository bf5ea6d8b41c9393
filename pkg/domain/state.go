package domain

import (
	"encoding/json"
	"time"
)

// PipelineStatus is the lifecycle state of a durable pipeline run.
type PipelineStatus string

const (
	StatusInitialized PipelineStatus = "initialized" // Created, use case not yet invoked
	StatusRunning     PipelineStatus = "running"     // Use case executing (see CurrentStep)
	StatusCompleted   PipelineStatus = "completed"   // Sink state: response available
	StatusFailed      PipelineStatus = "failed"      // Sink state: retries exhausted or terminal error
)

// IsTerminal reports whether s is a sink state.
func (s PipelineStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepInitialized is the current step of a pipeline before its use case reports one.
const StepInitialized = "initialized"

// PipelineSnapshot is the read-only query view of a pipeline.
type PipelineSnapshot struct {
	Pipeline    string         `json:"pipeline"`
	Status      PipelineStatus `json:"status"`
	CurrentStep string         `json:"current_step"`
	Attempt     int            `json:"attempt"`
	LastError   string         `json:"last_error,omitempty"`
}

// JournalKind classifies a recorded suspension point.
type JournalKind string

const (
	JournalActivity JournalKind = "activity"
	JournalTimer    JournalKind = "timer"
	JournalNow      JournalKind = "now"
)

// JournalEntry is one recorded suspension point of a run. On replay, entries
// are matched by sequence number and their recorded outcome is returned
// instead of re-executing the call.
type JournalEntry struct {
	Seq          int             `json:"seq"`
	Kind         JournalKind     `json:"kind"`
	Name         string          `json:"name"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorType    string          `json:"error_type,omitempty"`
	NonRetryable bool            `json:"non_retryable,omitempty"`
	Attempts     int             `json:"attempts,omitempty"`
}

// DispatchRecord links a completed run to a child run it started.
type DispatchRecord struct {
	Pipeline    string `json:"pipeline"`
	RequestType string `json:"request_type"`
	RunID       string `json:"run_id"`
}

// RunState is the checkpoint the durable substrate persists for one run.
type RunState struct {
	RunID       string         `json:"run_id"`
	Pipeline    string         `json:"pipeline"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	Status      PipelineStatus `json:"status"`
	CurrentStep string         `json:"current_step"`
	Attempt     int            `json:"attempt"`
	LastError   string         `json:"last_error,omitempty"`
	// Interrupted is set when the run was cancelled between suspension points.
	// The run produced no response and can be resumed.
	Interrupted bool `json:"interrupted,omitempty"`

	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`

	Journal        []JournalEntry    `json:"journal,omitempty"`
	Dispatches     []DispatchRecord  `json:"dispatches,omitempty"`
	DispatchErrors []DispatchError   `json:"dispatch_errors,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRunState creates a clean run record in the initialized state.
func NewRunState(runID, pipeline string, now time.Time) *RunState {
	return &RunState{
		RunID:       runID,
		Pipeline:    pipeline,
		Status:      StatusInitialized,
		CurrentStep: StepInitialized,
		Labels:      make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Snapshot returns the query view of the stored run.
func (s *RunState) Snapshot() PipelineSnapshot {
	return PipelineSnapshot{
		Pipeline:    s.Pipeline,
		Status:      s.Status,
		CurrentStep: s.CurrentStep,
		Attempt:     s.Attempt,
		LastError:   s.LastError,
	}
}

// Clone returns a copy whose slices and maps can be mutated independently.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	next := *s
	next.Journal = append([]JournalEntry(nil), s.Journal...)
	next.Dispatches = append([]DispatchRecord(nil), s.Dispatches...)
	next.DispatchErrors = append([]DispatchError(nil), s.DispatchErrors...)
	next.Labels = make(map[string]string, len(s.Labels))
	for k, v := range s.Labels {
		next.Labels[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		next.CompletedAt = &t
	}
	return &next
}

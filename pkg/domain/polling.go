package domain

import "time"

// Protocol selects how an endpoint is polled.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolFile  Protocol = "file"
)

// OverlapPolicy tells the scheduler what to do when a scheduled run fires
// while the previous run of the same endpoint is still executing.
type OverlapPolicy string

const (
	OverlapAllow        OverlapPolicy = "ALLOW_OVERLAP"
	OverlapSkipIfActive OverlapPolicy = "SKIP_IF_RUNNING"
)

// PollingConfig identifies an endpoint and how to poll it.
type PollingConfig struct {
	EndpointID    string            `json:"endpoint_id" yaml:"endpoint_id" mapstructure:"endpoint_id"`
	URL           string            `json:"url" yaml:"url" mapstructure:"url"`
	Protocol      Protocol          `json:"protocol,omitempty" yaml:"protocol,omitempty" mapstructure:"protocol"`
	Method        string            `json:"method,omitempty" yaml:"method,omitempty" mapstructure:"method"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`
	Interval      time.Duration     `json:"interval,omitempty" yaml:"interval,omitempty" mapstructure:"interval"`
	Timeout       time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	OverlapPolicy OverlapPolicy     `json:"overlap_policy,omitempty" yaml:"overlap_policy,omitempty" mapstructure:"overlap_policy"`
	// RateLimit caps polls per second for this endpoint. Zero means unlimited.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// PollingResult is the outcome of one poll. A failed poll is reported with
// Success=false and never raised as an error.
type PollingResult struct {
	Success     bool           `json:"success"`
	Content     []byte         `json:"content,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ContentHash string         `json:"content_hash"`
	PolledAt    time.Time      `json:"polled_at"`
	Error       string         `json:"error,omitempty"`
}

// ChangeDetectionRequest is the input of one change-detection run.
// PreviousCompletion is nil on the first run of an endpoint.
type ChangeDetectionRequest struct {
	Config             PollingConfig              `json:"config"`
	PreviousCompletion *ChangeDetectionCompletion `json:"previous_completion,omitempty"`
}

// DetectionOutcome records the hash comparison of one run.
type DetectionOutcome struct {
	HasNewData   bool   `json:"has_new_data"`
	CurrentHash  string `json:"current_hash"`
	PreviousHash string `json:"previous_hash,omitempty"`
}

// ChangeDetectionCompletion is the full result of one change-detection run.
// It is handed back verbatim as the next run's PreviousCompletion and is the
// only persistence change detection has.
type ChangeDetectionCompletion struct {
	EndpointID      string           `json:"endpoint_id"`
	PollingResult   PollingResult    `json:"polling_result"`
	Detection       DetectionOutcome `json:"detection"`
	Acknowledgement *Acknowledgement `json:"acknowledgement,omitempty"`
	CompletedAt     time.Time        `json:"completed_at"`
}

// NewDataEvent is what a change-detection run hands to its result handler.
type NewDataEvent struct {
	EndpointID      string `json:"endpoint_id"`
	PreviousContent []byte `json:"previous_content,omitempty"`
	CurrentContent  []byte `json:"current_content,omitempty"`
	ContentHash     string `json:"content_hash"`
}

package changedetect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/pipeline"
	"github.com/aretw0/switchyard/pkg/ports"
)

// PipelineName is the registered name of the change-detection pipeline.
const PipelineName = "change-detection"

// Steps reported while a run progresses.
const (
	StepPolling   = "polling"
	StepDetecting = "detecting"
	StepHandling  = "handling"
	StepCompleted = "completed"
)

// Detector is the change-detection use case.
type Detector struct {
	poller      *pipeline.ProxyPoller
	handler     ports.NewDataHandler
	clock       ports.Clock
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	pollOpts    ports.ActivityOptions
	handlerOpts ports.ActivityOptions
}

// Option configures a Detector.
type Option func(*Detector)

// WithHandler sets the handler invoked when new data is detected.
func WithHandler(h ports.NewDataHandler) Option {
	return func(d *Detector) {
		d.handler = h
	}
}

// WithClock sets the clock used outside the durable substrate.
func WithClock(c ports.Clock) Option {
	return func(d *Detector) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Detector) {
		d.hooks = hooks
	}
}

// WithPollOptions sets the activity options of the poll call.
func WithPollOptions(opts ports.ActivityOptions) Option {
	return func(d *Detector) {
		d.pollOpts = opts
	}
}

// WithHandlerOptions sets the activity options of the handler call.
func WithHandlerOptions(opts ports.ActivityOptions) Option {
	return func(d *Detector) {
		d.handlerOpts = opts
	}
}

// NewDetector creates a Detector polling through poller.
func NewDetector(poller ports.Poller, opts ...Option) *Detector {
	d := &Detector{
		clock:  ports.SystemClock{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.poller = pipeline.NewProxyPoller(poller, d.pollOpts)
	if d.handler != nil {
		d.handler = pipeline.NewProxyNewDataHandler(d.handler, d.handlerOpts)
	}
	return d
}

// Execute implements ports.UseCase.
func (d *Detector) Execute(ctx context.Context, req domain.ChangeDetectionRequest) (domain.ChangeDetectionCompletion, error) {
	return d.Detect(ctx, req.Config, req.PreviousCompletion)
}

// Detect runs one poll-hash-compare cycle. It returns an error only when
// the run itself cannot complete (cancellation, replay divergence); poll and
// handler failures are part of the completion.
func (d *Detector) Detect(ctx context.Context, cfg domain.PollingConfig, prev *domain.ChangeDetectionCompletion) (domain.ChangeDetectionCompletion, error) {
	pipeline.ReportStep(ctx, StepPolling)
	result, err := d.poller.PollActivity(ctx, cfg)
	if err != nil {
		return domain.ChangeDetectionCompletion{}, err
	}

	pipeline.ReportStep(ctx, StepDetecting)
	current := contentOf(result)
	result.ContentHash = ContentHash(current)
	detection := Compare(prev, result.ContentHash)

	var (
		ack        *domain.Acknowledgement
		handlerErr error
	)
	if detection.HasNewData && d.handler != nil {
		pipeline.ReportStep(ctx, StepHandling)
		ack, handlerErr = d.handler.HandleNewData(ctx, cfg.EndpointID, contentOf(prev.PollingResult), current, result.ContentHash)
		if handlerErr != nil {
			if ctx.Err() != nil || errors.Is(handlerErr, domain.ErrNonDeterministic) {
				return domain.ChangeDetectionCompletion{}, handlerErr
			}
			d.logger.Error("new data handler failed",
				"endpoint_id", cfg.EndpointID,
				"content_hash", result.ContentHash,
				"err", handlerErr,
			)
			ack = nil
		}
	}

	completedAt, err := pipeline.Now(ctx, d.clock)
	if err != nil {
		return domain.ChangeDetectionCompletion{}, err
	}
	pipeline.ReportStep(ctx, StepCompleted)

	if d.hooks.OnDetection != nil {
		ev := &domain.DetectionEvent{
			EventBase:   domain.EventBase{Timestamp: completedAt, Type: domain.EventDetection},
			EndpointID:  cfg.EndpointID,
			PollSuccess: result.Success,
			HasNewData:  detection.HasNewData,
		}
		if handlerErr != nil {
			ev.HandlerError = handlerErr.Error()
		}
		d.hooks.OnDetection(ctx, ev)
	}

	return domain.ChangeDetectionCompletion{
		EndpointID:      cfg.EndpointID,
		PollingResult:   result,
		Detection:       detection,
		Acknowledgement: ack,
		CompletedAt:     completedAt,
	}, nil
}

// Compare derives the detection outcome from the previous completion and the
// current hash. Without a previous completion there is never new data.
func Compare(prev *domain.ChangeDetectionCompletion, currentHash string) domain.DetectionOutcome {
	out := domain.DetectionOutcome{CurrentHash: currentHash}
	if prev == nil {
		return out
	}
	out.PreviousHash = prev.PollingResult.ContentHash
	out.HasNewData = out.PreviousHash != "" && out.PreviousHash != currentHash
	return out
}

// ContentHash returns the hex SHA-256 digest of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// contentOf treats a failed poll as empty content.
func contentOf(r domain.PollingResult) []byte {
	if !r.Success {
		return nil
	}
	return r.Content
}

// NewDefinition builds the durable definition of the change-detection
// pipeline. Every run gets a fresh Detector.
func NewDefinition(poller ports.Poller, opts []Option, defOpts ...pipeline.DefinitionOption) *pipeline.Definition[domain.ChangeDetectionRequest, domain.ChangeDetectionCompletion] {
	return pipeline.NewDefinition(PipelineName, func() ports.UseCase[domain.ChangeDetectionRequest, domain.ChangeDetectionCompletion] {
		return NewDetector(poller, opts...)
	}, defOpts...)
}

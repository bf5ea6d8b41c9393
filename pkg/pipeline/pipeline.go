package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// ErrAlreadyRun is returned when Run is called a second time on the same instance.
var ErrAlreadyRun = errors.New("pipeline already ran")

// Pipeline runs one use case instance durably.
// All query methods are safe to call concurrently with Run.
type Pipeline[Req, Resp any] struct {
	name    string
	useCase ports.UseCase[Req, Resp]
	cfg     settings

	mu       sync.RWMutex
	started  bool
	status   domain.PipelineStatus
	step     string
	attempt  int
	lastErr  error
	response Resp
}

// New creates a pipeline in the initialized state.
func New[Req, Resp any](name string, uc ports.UseCase[Req, Resp], opts ...Option) *Pipeline[Req, Resp] {
	cfg := settings{
		policy: domain.DefaultRetryPolicy(),
		clock:  ports.SystemClock{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pipeline[Req, Resp]{
		name:    name,
		useCase: uc,
		cfg:     cfg,
		status:  domain.StatusInitialized,
		step:    domain.StepInitialized,
	}
}

// Name returns the pipeline name.
func (p *Pipeline[Req, Resp]) Name() string { return p.name }

// Run executes the use case until it succeeds, fails terminally or ctx is
// cancelled. It is the sole entry point and may be called once.
//
// A cancelled run is left in the running state with no response, so the
// substrate can resume it.
func (p *Pipeline[Req, Resp]) Run(ctx context.Context, req Req) (Resp, error) {
	var zero Resp

	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return zero, ErrAlreadyRun
	}
	p.started = true
	p.mu.Unlock()

	ctx = context.WithValue(ctx, stepKey{}, stepFunc(p.reportStep))
	p.emit(ctx, p.cfg.hooks.OnRunStart, domain.EventRunStart, "")

	attempts := p.cfg.policy.Attempts()
	for attempt := 1; ; attempt++ {
		p.mu.Lock()
		p.status = domain.StatusRunning
		p.attempt = attempt
		p.mu.Unlock()

		resp, err := p.useCase.Execute(ctx, req)
		if err == nil {
			p.mu.Lock()
			p.status = domain.StatusCompleted
			p.response = resp
			p.mu.Unlock()
			p.emit(ctx, p.cfg.hooks.OnRunComplete, domain.EventRunComplete, "")
			return resp, nil
		}

		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()

		if ctx.Err() != nil {
			return zero, err
		}

		if !p.cfg.policy.IsRetryable(err) || attempt >= attempts {
			p.mu.Lock()
			p.status = domain.StatusFailed
			p.mu.Unlock()
			p.cfg.logger.Error("pipeline failed",
				"pipeline", p.name,
				"run_id", p.cfg.runID,
				"attempt", attempt,
				"error_type", domain.ErrorType(err),
				"err", err,
			)
			p.emit(ctx, p.cfg.hooks.OnRunComplete, domain.EventRunComplete, err.Error())
			return zero, err
		}

		delay := p.cfg.policy.Backoff(attempt)
		p.cfg.logger.Info("retrying pipeline",
			"pipeline", p.name,
			"run_id", p.cfg.runID,
			"attempt", attempt,
			"backoff", delay,
			"err", err,
		)
		p.emit(ctx, p.cfg.hooks.OnRetry, domain.EventRetry, err.Error())

		if err := Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry backoff: %w", err)
		}
	}
}

func (p *Pipeline[Req, Resp]) reportStep(ctx context.Context, step string) {
	p.mu.Lock()
	p.step = step
	p.mu.Unlock()
	p.emit(ctx, p.cfg.hooks.OnStep, domain.EventStep, "")
}

func (p *Pipeline[Req, Resp]) emit(ctx context.Context, hook func(context.Context, *domain.RunEvent), evType domain.EventType, errMsg string) {
	if hook == nil {
		return
	}
	snap := p.Snapshot()
	hook(ctx, &domain.RunEvent{
		EventBase: domain.EventBase{Timestamp: p.cfg.clock.Now(), Type: evType, RunID: p.cfg.runID},
		Pipeline:  p.name,
		Status:    snap.Status,
		Step:      snap.CurrentStep,
		Attempt:   snap.Attempt,
		Error:     errMsg,
	})
}

// Status returns the lifecycle state.
func (p *Pipeline[Req, Resp]) Status() domain.PipelineStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// CurrentStep returns the last step reported by the use case.
func (p *Pipeline[Req, Resp]) CurrentStep() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.step
}

// Attempt returns the 1-based number of the current or last attempt.
func (p *Pipeline[Req, Resp]) Attempt() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.attempt
}

// LastError returns the most recent use-case failure. After a terminal
// failure it is the error that failed the pipeline.
func (p *Pipeline[Req, Resp]) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Response returns the use case's response once completed.
func (p *Pipeline[Req, Resp]) Response() (Resp, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.response, p.status == domain.StatusCompleted
}

// Snapshot returns every query value at once.
func (p *Pipeline[Req, Resp]) Snapshot() domain.PipelineSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := domain.PipelineSnapshot{
		Pipeline:    p.name,
		Status:      p.status,
		CurrentStep: p.step,
		Attempt:     p.attempt,
	}
	if p.lastErr != nil {
		snap.LastError = p.lastErr.Error()
	}
	return snap
}

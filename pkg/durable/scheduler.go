package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/changedetect"
	"github.com/aretw0/switchyard/pkg/domain"
)

// LabelEndpointID is the run label carrying the polled endpoint.
const LabelEndpointID = "endpoint_id"

// DefaultPollInterval applies to endpoints configured without an interval.
const DefaultPollInterval = time.Minute

type endpointState struct {
	cfg domain.PollingConfig

	mu   sync.Mutex
	last *domain.ChangeDetectionCompletion
}

// Scheduler runs change detection for a set of endpoints, handing each run
// the completion of the one before it.
type Scheduler struct {
	engine   *Engine
	pipeline string
	locks    *Locks
	logger   *slog.Logger

	endpoints map[string]*endpointState
	order     []string
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSchedulerLocks sets the lock table used for SKIP_IF_RUNNING, typically
// one backed by a DistributedLocker so replicas skip each other's runs.
func WithSchedulerLocks(l *Locks) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.locks = l
		}
	}
}

// WithPipeline overrides the pipeline name (default change-detection).
func WithPipeline(name string) SchedulerOption {
	return func(s *Scheduler) {
		if name != "" {
			s.pipeline = name
		}
	}
}

// NewScheduler creates a scheduler for endpoints. Endpoint ids must be unique.
func NewScheduler(engine *Engine, endpoints []domain.PollingConfig, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		engine:    engine,
		pipeline:  changedetect.PipelineName,
		locks:     NewLocks(),
		logger:    logging.NewNop(),
		endpoints: make(map[string]*endpointState, len(endpoints)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, cfg := range endpoints {
		if cfg.EndpointID == "" {
			return nil, &domain.ValidationError{Field: "endpoint_id", Reason: "empty"}
		}
		if _, dup := s.endpoints[cfg.EndpointID]; dup {
			return nil, &domain.ValidationError{Field: "endpoint_id", Reason: fmt.Sprintf("duplicate %q", cfg.EndpointID)}
		}
		s.endpoints[cfg.EndpointID] = &endpointState{cfg: cfg}
		s.order = append(s.order, cfg.EndpointID)
	}
	return s, nil
}

// Restore seeds each endpoint's previous completion from the newest
// completed run stored for it.
func (s *Scheduler) Restore(ctx context.Context) error {
	return s.load(ctx, "")
}

// load applies stored completions to the endpoint states, all of them when
// only is empty.
func (s *Scheduler) load(ctx context.Context, only string) error {
	runs, err := s.engine.List(ctx)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if run.Pipeline != s.pipeline || run.Status != domain.StatusCompleted {
			continue
		}
		id := run.Labels[LabelEndpointID]
		if only != "" && id != only {
			continue
		}
		st, ok := s.endpoints[id]
		if !ok {
			continue
		}
		var c domain.ChangeDetectionCompletion
		if err := json.Unmarshal(run.Response, &c); err != nil {
			s.logger.Warn("skipping unreadable completion", "run_id", run.RunID, "err", err)
			continue
		}
		st.record(&c)
	}
	return nil
}

// Last returns the completion the next run of endpointID will receive.
func (s *Scheduler) Last(endpointID string) (*domain.ChangeDetectionCompletion, bool) {
	st, ok := s.endpoints[endpointID]
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.last, st.last != nil
}

// Tick performs one scheduled run of endpointID. With SKIP_IF_RUNNING it
// returns domain.ErrRunInProgress when a previous run is still executing,
// here or on another replica. The previous completion is re-read from the run
// store first, so replicas sharing a store continue each other's history. A
// failed or cancelled run leaves the previous completion untouched.
func (s *Scheduler) Tick(ctx context.Context, endpointID string) (*domain.ChangeDetectionCompletion, error) {
	st, ok := s.endpoints[endpointID]
	if !ok {
		return nil, fmt.Errorf("%w: endpoint %s", domain.ErrNotFound, endpointID)
	}

	if st.cfg.OverlapPolicy != domain.OverlapAllow {
		unlock, err := s.locks.TryLock(ctx, "endpoint:"+endpointID)
		if err != nil {
			if errors.Is(err, domain.ErrLockNotAcquired) {
				s.logger.Debug("skipping scheduled run, previous still running", "endpoint_id", endpointID)
				return nil, fmt.Errorf("%w: endpoint %s", domain.ErrRunInProgress, endpointID)
			}
			return nil, err
		}
		defer unlock()
	}

	if err := s.load(ctx, endpointID); err != nil {
		s.logger.Warn("using cached completion, run store unavailable", "endpoint_id", endpointID, "err", err)
	}

	st.mu.Lock()
	prev := st.last
	st.mu.Unlock()

	req := domain.ChangeDetectionRequest{Config: st.cfg, PreviousCompletion: prev}
	state, err := s.engine.Run(ctx, s.pipeline, req, WithLabels(map[string]string{LabelEndpointID: endpointID}))
	if err != nil {
		return nil, err
	}

	var c domain.ChangeDetectionCompletion
	if err := json.Unmarshal(state.Response, &c); err != nil {
		return nil, fmt.Errorf("decode completion of run %s: %w", state.RunID, err)
	}
	st.record(&c)
	return &c, nil
}

// record keeps the newest completion.
func (st *endpointState) record(c *domain.ChangeDetectionCompletion) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.last == nil || !c.CompletedAt.Before(st.last.CompletedAt) {
		st.last = c
	}
}

// Run ticks every endpoint on its interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, id := range s.order {
		st := s.endpoints[id]
		interval := st.cfg.Interval
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		wg.Add(1)
		go func(id string, interval time.Duration) {
			defer wg.Done()
			s.loop(ctx, id, interval)
		}(id, interval)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, id string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	overlap := s.endpoints[id].cfg.OverlapPolicy == domain.OverlapAllow
	var inflight sync.WaitGroup
	defer inflight.Wait()

	fire := func() {
		if _, err := s.Tick(ctx, id); err != nil && ctx.Err() == nil && !errors.Is(err, domain.ErrRunInProgress) {
			s.logger.Error("scheduled change detection failed", "endpoint_id", id, "err", err)
		}
	}

	for {
		if overlap {
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				fire()
			}()
		} else {
			fire()
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Endpoints returns the configured endpoint ids in configuration order.
func (s *Scheduler) Endpoints() []string {
	return append([]string(nil), s.order...)
}

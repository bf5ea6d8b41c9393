package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/dispatch"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/pipeline"
	"github.com/aretw0/switchyard/pkg/ports"
)

// Engine executes registered pipelines durably.
type Engine struct {
	runs           ports.Repository[domain.RunState]
	dispatcher     *dispatch.Dispatcher
	locks          *Locks
	clock          ports.Clock
	logger         *slog.Logger
	hooks          domain.LifecycleHooks
	activityPolicy domain.RetryPolicy
	newID          func() string

	mu        sync.RWMutex
	pipelines map[string]pipeline.Runnable
	active    map[string]*activeRun

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type activeRun struct {
	inst    pipeline.Instance
	journal *journal
}

// Option configures the Engine.
type Option func(*Engine)

// WithDispatcher enables routing of completed responses to child runs.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithLocks replaces the run lock table, e.g. to add a DistributedLocker.
func WithLocks(l *Locks) Option {
	return func(e *Engine) {
		if l != nil {
			e.locks = l
		}
	}
}

// WithClock sets the clock recorded by Now and used for run timestamps.
func WithClock(c ports.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger, which pipelines inherit.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks for every run.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithActivityRetryPolicy sets the retry policy of activities that declare none.
func WithActivityRetryPolicy(p domain.RetryPolicy) Option {
	return func(e *Engine) {
		e.activityPolicy = p
	}
}

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an Engine persisting runs in runs.
func NewEngine(runs ports.Repository[domain.RunState], opts ...Option) *Engine {
	e := &Engine{
		runs:           runs,
		locks:          NewLocks(),
		clock:          ports.SystemClock{},
		logger:         logging.NewNop(),
		activityPolicy: domain.DefaultRetryPolicy(),
		newID:          uuid.NewString,
		pipelines:      make(map[string]pipeline.Runnable),
		active:         make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.base, e.cancel = context.WithCancel(context.Background())
	return e
}

// Register adds a pipeline definition. Names must be unique.
func (e *Engine) Register(def pipeline.Runnable) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.pipelines[def.Name()]; exists {
		return fmt.Errorf("pipeline %q already registered", def.Name())
	}
	e.pipelines[def.Name()] = def
	return nil
}

// Pipelines returns the registered definitions sorted by name.
func (e *Engine) Pipelines() []pipeline.Runnable {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]pipeline.Runnable, 0, len(e.pipelines))
	for _, def := range e.pipelines {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (e *Engine) lookup(name string) (pipeline.Runnable, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPipeline, name)
	}
	return def, nil
}

// RunOption configures a single run.
type RunOption func(*runConfig)

type runConfig struct {
	runID  string
	parent string
	labels map[string]string
}

// WithRunID fixes the run id. Running an id that already completed returns
// the stored run; an unfinished one is resumed.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithParent links the run to the run that dispatched it.
func WithParent(runID string) RunOption {
	return func(c *runConfig) {
		c.parent = runID
	}
}

// WithLabels attaches searchable labels to the run.
func WithLabels(labels map[string]string) RunOption {
	return func(c *runConfig) {
		if c.labels == nil {
			c.labels = make(map[string]string, len(labels))
		}
		for k, v := range labels {
			c.labels[k] = v
		}
	}
}

// Run executes a pipeline synchronously and returns its final state. A
// failed or interrupted run is returned together with the error.
func (e *Engine) Run(ctx context.Context, name string, request any, opts ...RunOption) (*domain.RunState, error) {
	def, state, req, err := e.prepare(ctx, name, request, opts)
	if err != nil {
		return nil, err
	}
	if state.Status.IsTerminal() {
		return state, nil
	}
	return e.execute(ctx, def, state, req)
}

// Start launches a pipeline run in the background and returns its id once
// the initial state is stored. The run outlives ctx; Shutdown interrupts it.
func (e *Engine) Start(ctx context.Context, name string, request any, opts ...RunOption) (string, error) {
	def, state, req, err := e.prepare(ctx, name, request, opts)
	if err != nil {
		return "", err
	}
	if !state.Status.IsTerminal() {
		e.goExecute(def, state, req)
	}
	return state.RunID, nil
}

func (e *Engine) goExecute(def pipeline.Runnable, state *domain.RunState, req any) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.execute(e.base, def, state, req); err != nil && !errors.Is(err, domain.ErrRunInProgress) {
			e.logger.Debug("background run ended with error", "run_id", state.RunID, "err", err)
		}
	}()
}

// Resume continues an unfinished run by replaying its journal.
func (e *Engine) Resume(ctx context.Context, runID string) (*domain.RunState, error) {
	state, err := e.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	if state.Status.IsTerminal() {
		return state, nil
	}
	def, err := e.lookup(state.Pipeline)
	if err != nil {
		return nil, err
	}
	req, err := def.DecodeRequest(state.Request)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, def, state, req)
}

// ResumeAll resumes every unfinished stored run in the background and
// returns how many were started.
func (e *Engine) ResumeAll(ctx context.Context) (int, error) {
	states, err := e.runs.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range states {
		state := states[i]
		if state.Status.IsTerminal() {
			continue
		}
		def, err := e.lookup(state.Pipeline)
		if err != nil {
			e.logger.Warn("cannot resume run", "run_id", state.RunID, "err", err)
			continue
		}
		req, err := def.DecodeRequest(state.Request)
		if err != nil {
			e.logger.Warn("cannot resume run", "run_id", state.RunID, "err", err)
			continue
		}
		e.goExecute(def, &state, req)
		n++
	}
	return n, nil
}

// Query returns the run's state, overlaid with the live pipeline snapshot
// while it executes in this process.
func (e *Engine) Query(ctx context.Context, runID string) (*domain.RunState, error) {
	e.mu.RLock()
	live, ok := e.active[runID]
	e.mu.RUnlock()
	if ok {
		state := live.journal.snapshot()
		applySnapshot(state, live.inst.Snapshot())
		return state, nil
	}

	state, err := e.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	return state, nil
}

// List returns stored runs, oldest first.
func (e *Engine) List(ctx context.Context) ([]domain.RunState, error) {
	states, err := e.runs.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].CreatedAt.Equal(states[j].CreatedAt) {
			return states[i].RunID < states[j].RunID
		}
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	return states, nil
}

// Wait blocks until every background run has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown interrupts background runs and waits for them, or for ctx.
// Interrupted runs stay resumable.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) prepare(ctx context.Context, name string, request any, opts []RunOption) (pipeline.Runnable, *domain.RunState, any, error) {
	def, err := e.lookup(name)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = e.newID()
	}

	existing, err := e.runs.Get(ctx, cfg.runID)
	if err != nil {
		return nil, nil, nil, err
	}
	if existing != nil {
		if existing.Pipeline != name {
			return nil, nil, nil, fmt.Errorf("run %s belongs to pipeline %s, not %s", cfg.runID, existing.Pipeline, name)
		}
		req, err := def.DecodeRequest(existing.Request)
		if err != nil {
			return nil, nil, nil, err
		}
		return def, existing, req, nil
	}

	req, err := def.ConvertRequest(request)
	if err != nil {
		return nil, nil, nil, err
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, nil, nil, &domain.ValidationError{Field: "request", Reason: err.Error()}
	}

	state := domain.NewRunState(cfg.runID, name, e.clock.Now())
	state.ParentRunID = cfg.parent
	state.Request = raw
	for k, v := range cfg.labels {
		state.Labels[k] = v
	}
	if err := e.runs.Save(ctx, state.RunID, *state); err != nil {
		return nil, nil, nil, fmt.Errorf("store run %s: %w", state.RunID, err)
	}
	return def, state, req, nil
}

func (e *Engine) execute(ctx context.Context, def pipeline.Runnable, state *domain.RunState, req any) (*domain.RunState, error) {
	unlock, err := e.locks.TryLock(ctx, "run:"+state.RunID)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunInProgress, state.RunID)
		}
		return nil, err
	}
	defer unlock()

	state = state.Clone()
	state.Interrupted = false
	j := newJournal(e, state)

	steps := domain.LifecycleHooks{
		OnStep: func(ctx context.Context, ev *domain.RunEvent) {
			j.update(func(s *domain.RunState) {
				s.Status = ev.Status
				s.CurrentStep = ev.Step
				s.Attempt = ev.Attempt
			})
			if err := j.checkpoint(ctx); err != nil {
				e.logger.Warn("step checkpoint failed", "run_id", state.RunID, "err", err)
			}
		},
	}
	inst := def.Instantiate(
		pipeline.WithRunID(state.RunID),
		pipeline.WithLogger(e.logger),
		pipeline.WithClock(e.clock),
		pipeline.WithLifecycleHooks(domain.CombineHooks(steps, e.hooks)),
	)

	e.mu.Lock()
	e.active[state.RunID] = &activeRun{inst: inst, journal: j}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, state.RunID)
		e.mu.Unlock()
	}()

	resp, runErr := inst.RunAny(pipeline.WithActivityRunner(ctx, j), req)

	snap := inst.Snapshot()
	j.update(func(s *domain.RunState) {
		applySnapshot(s, snap)
	})

	switch {
	case runErr != nil && !snap.Status.IsTerminal():
		j.update(func(s *domain.RunState) { s.Interrupted = true })
		if err := j.checkpoint(ctx); err != nil {
			return j.snapshot(), errors.Join(runErr, err)
		}
		return j.snapshot(), runErr

	case runErr != nil:
		now := e.clock.Now()
		j.update(func(s *domain.RunState) { s.CompletedAt = &now })
		if err := j.checkpoint(ctx); err != nil {
			return j.snapshot(), errors.Join(runErr, err)
		}
		return j.snapshot(), runErr
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return j.snapshot(), fmt.Errorf("encode response of run %s: %w", state.RunID, err)
	}
	now := e.clock.Now()
	j.update(func(s *domain.RunState) {
		s.Response = raw
		s.CompletedAt = &now
	})

	e.dispatchChildren(ctx, def, j, resp)

	if err := j.checkpoint(ctx); err != nil {
		return j.snapshot(), err
	}
	return j.snapshot(), nil
}

// dispatchChildren starts one child run per dispatch. Child ids are
// <parent>-d<n>, so re-dispatching a replayed parent finds existing children.
func (e *Engine) dispatchChildren(ctx context.Context, def pipeline.Runnable, j *journal, resp any) {
	if e.dispatcher == nil {
		return
	}
	parentID := j.runID
	result := e.dispatcher.Dispatch(ctx, resp, def.ResponseType())

	records := make([]domain.DispatchRecord, 0, len(result.Dispatches))
	errs := append([]domain.DispatchError(nil), result.Errors...)

	for i, d := range result.Dispatches {
		childID := fmt.Sprintf("%s-d%d", parentID, i)
		_, err := e.Start(ctx, d.Pipeline, d.Request, WithRunID(childID), WithParent(parentID))
		if err != nil {
			code := domain.CodeDispatchFailed
			if errors.Is(err, domain.ErrUnknownPipeline) {
				code = domain.CodeUnknownPipeline
			}
			errs = append(errs, domain.DispatchError{Route: d.Route, Code: code, Message: err.Error()})
			continue
		}
		records = append(records, domain.DispatchRecord{Pipeline: d.Pipeline, RequestType: d.RequestType, RunID: childID})
	}

	for _, de := range errs {
		e.logger.Warn("dispatch error", "run_id", parentID, "pipeline", de.Route.Pipeline, "code", de.Code, "err", de.Message)
	}
	j.update(func(s *domain.RunState) {
		s.Dispatches = records
		s.DispatchErrors = errs
	})
}

func applySnapshot(s *domain.RunState, snap domain.PipelineSnapshot) {
	s.Status = snap.Status
	s.CurrentStep = snap.CurrentStep
	s.Attempt = snap.Attempt
	s.LastError = snap.LastError
}

func (e *Engine) emitActivity(ctx context.Context, runID, name string, replayed bool, attempts int, d time.Duration, isErr bool) {
	if e.hooks.OnActivity == nil {
		return
	}
	e.hooks.OnActivity(ctx, &domain.ActivityEvent{
		EventBase: domain.EventBase{Timestamp: e.clock.Now(), Type: domain.EventActivity, RunID: runID},
		Name:      name,
		Replayed:  replayed,
		Attempts:  attempts,
		Duration:  d,
		IsError:   isErr,
	})
}

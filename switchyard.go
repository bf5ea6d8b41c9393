package switchyard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/adapters/poller"
	"github.com/aretw0/switchyard/pkg/changedetect"
	"github.com/aretw0/switchyard/pkg/condition"
	"github.com/aretw0/switchyard/pkg/dispatch"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/durable"
	"github.com/aretw0/switchyard/pkg/pipeline"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/aretw0/switchyard/pkg/registry"
)

// DefaultShutdownTimeout bounds how long Run waits for in-flight pipelines.
const DefaultShutdownTimeout = 10 * time.Second

// Orchestrator wires the registry, dispatcher, durable engine and scheduler
// into one unit with change detection registered.
type Orchestrator struct {
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	engine     *durable.Engine
	scheduler  *durable.Scheduler

	logger          *slog.Logger
	hooks           domain.LifecycleHooks
	routes          []domain.Route
	endpoints       []domain.PollingConfig
	poller          ports.Poller
	handler         ports.NewDataHandler
	policy          domain.RetryPolicy
	locker          ports.DistributedLocker
	clock           ports.Clock
	pipelines       []pipeline.Runnable
	registrars      []func(*registry.Registry) error
	shutdownTimeout time.Duration
}

// Option defines a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom structured logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithRoutes adds routes, registered after any registrar ran.
func WithRoutes(routes ...domain.Route) Option {
	return func(o *Orchestrator) {
		o.routes = append(o.routes, routes...)
	}
}

// WithEndpoints adds endpoints to the change-detection schedule.
func WithEndpoints(endpoints ...domain.PollingConfig) Option {
	return func(o *Orchestrator) {
		o.endpoints = append(o.endpoints, endpoints...)
	}
}

// WithPoller replaces the default HTTP/file poller.
func WithPoller(p ports.Poller) Option {
	return func(o *Orchestrator) {
		o.poller = p
	}
}

// WithNewDataHandler sets the handler change detection delegates new data to.
func WithNewDataHandler(h ports.NewDataHandler) Option {
	return func(o *Orchestrator) {
		o.handler = h
	}
}

// WithRetryPolicy sets the policy of use-case attempts and activity calls.
func WithRetryPolicy(p domain.RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithDistributedLocker coordinates runs and scheduled ticks across replicas.
func WithDistributedLocker(l ports.DistributedLocker) Option {
	return func(o *Orchestrator) {
		o.locker = l
	}
}

// WithClock sets the clock of the engine and change detection.
func WithClock(c ports.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithPipelines registers extra pipeline definitions next to change detection.
func WithPipelines(defs ...pipeline.Runnable) Option {
	return func(o *Orchestrator) {
		o.pipelines = append(o.pipelines, defs...)
	}
}

// WithRegistrar runs fn against the registry before routes are added, for
// transformers and request types.
func WithRegistrar(fn func(*registry.Registry) error) Option {
	return func(o *Orchestrator) {
		o.registrars = append(o.registrars, fn)
	}
}

// WithShutdownTimeout bounds how long Run waits for in-flight pipelines.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.shutdownTimeout = d
	}
}

// New assembles an Orchestrator persisting run state in runs.
func New(runs ports.Repository[domain.RunState], opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		logger:          logging.NewNop(),
		policy:          domain.DefaultRetryPolicy(),
		clock:           ports.SystemClock{},
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.poller == nil {
		o.poller = poller.New(poller.WithLogger(o.logger), poller.WithClock(o.clock))
	}

	o.registry = registry.NewRegistry()
	for _, fn := range o.registrars {
		if err := fn(o.registry); err != nil {
			return nil, fmt.Errorf("registrar: %w", err)
		}
	}
	if err := o.registry.RegisterAll(o.routes...); err != nil {
		return nil, err
	}

	o.dispatcher = dispatch.New(o.registry,
		dispatch.WithLogger(o.logger),
		dispatch.WithEvaluator(condition.New(condition.WithLogger(o.logger))),
		dispatch.WithLifecycleHooks(o.hooks),
	)

	lockOpts := []durable.LocksOption{durable.WithLocksLogger(o.logger)}
	if o.locker != nil {
		lockOpts = append(lockOpts, durable.WithDistributedLocker(o.locker))
	}
	locks := durable.NewLocks(lockOpts...)

	o.engine = durable.NewEngine(runs,
		durable.WithDispatcher(o.dispatcher),
		durable.WithLocks(locks),
		durable.WithClock(o.clock),
		durable.WithLogger(o.logger),
		durable.WithLifecycleHooks(o.hooks),
		durable.WithActivityRetryPolicy(o.policy),
	)

	cdOpts := []changedetect.Option{
		changedetect.WithLogger(o.logger),
		changedetect.WithLifecycleHooks(o.hooks),
		changedetect.WithClock(o.clock),
	}
	if o.handler != nil {
		cdOpts = append(cdOpts, changedetect.WithHandler(o.handler))
	}
	defs := append([]pipeline.Runnable{
		changedetect.NewDefinition(o.poller, cdOpts, pipeline.WithDefaultRetryPolicy(o.policy)),
	}, o.pipelines...)
	for _, def := range defs {
		if err := o.engine.Register(def); err != nil {
			return nil, err
		}
	}

	sched, err := durable.NewScheduler(o.engine, o.endpoints,
		durable.WithSchedulerLogger(o.logger),
		durable.WithSchedulerLocks(locks),
	)
	if err != nil {
		return nil, err
	}
	o.scheduler = sched
	return o, nil
}

// Registry returns the route registry. Routes and transformers registered
// on it take effect for the next completed run.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Dispatcher returns the dispatcher the engine consults after each run.
func (o *Orchestrator) Dispatcher() *dispatch.Dispatcher { return o.dispatcher }

// Engine returns the durable engine running the registered pipelines.
func (o *Orchestrator) Engine() *durable.Engine { return o.engine }

// Scheduler returns the change-detection scheduler for the configured
// endpoints.
func (o *Orchestrator) Scheduler() *durable.Scheduler { return o.scheduler }

// Endpoints returns a copy of the configured endpoints.
func (o *Orchestrator) Endpoints() []domain.PollingConfig {
	return append([]domain.PollingConfig(nil), o.endpoints...)
}

// Endpoint returns the configured endpoint with id.
func (o *Orchestrator) Endpoint(id string) (domain.PollingConfig, bool) {
	for _, ep := range o.endpoints {
		if ep.EndpointID == id {
			return ep, true
		}
	}
	return domain.PollingConfig{}, false
}

// Evaluate routes response as if a pipeline declaring responseType had
// completed with it. Nothing is started.
func (o *Orchestrator) Evaluate(ctx context.Context, responseType string, response any) domain.DispatchResult {
	return o.dispatcher.Dispatch(ctx, response, responseType)
}

// Poll runs change detection once for cfg outside the schedule and waits
// for it. Dispatched children run in the background.
func (o *Orchestrator) Poll(ctx context.Context, cfg domain.PollingConfig, previous *domain.ChangeDetectionCompletion) (*domain.RunState, *domain.ChangeDetectionCompletion, error) {
	state, err := o.engine.Run(ctx, changedetect.PipelineName, domain.ChangeDetectionRequest{
		Config:             cfg,
		PreviousCompletion: previous,
	}, durable.WithLabels(map[string]string{durable.LabelEndpointID: cfg.EndpointID}))
	if err != nil {
		return state, nil, err
	}
	var c domain.ChangeDetectionCompletion
	if err := json.Unmarshal(state.Response, &c); err != nil {
		return state, nil, fmt.Errorf("decode completion of run %s: %w", state.RunID, err)
	}
	return state, &c, nil
}

// Run resumes unfinished runs, restores each endpoint's last completion and
// ticks the schedule until ctx is done. In-flight pipelines are then
// interrupted and left resumable.
func (o *Orchestrator) Run(ctx context.Context) error {
	resumed, err := o.engine.ResumeAll(ctx)
	if err != nil {
		return fmt.Errorf("resume runs: %w", err)
	}
	if resumed > 0 {
		o.logger.Info("resumed unfinished runs", "count", resumed)
	}
	if err := o.scheduler.Restore(ctx); err != nil {
		return fmt.Errorf("restore schedule: %w", err)
	}

	o.logger.Info("scheduler started", "endpoints", len(o.endpoints))
	runErr := o.scheduler.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.shutdownTimeout)
	defer cancel()
	if err := o.engine.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown engine: %w", err)
	}
	if runErr == context.Canceled {
		return nil
	}
	return runErr
}

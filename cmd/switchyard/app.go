package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/aretw0/switchyard"
	"github.com/aretw0/switchyard/internal/config"
	"github.com/aretw0/switchyard/internal/snapshot"
	"github.com/aretw0/switchyard/pkg/adapters/file"
	"github.com/aretw0/switchyard/pkg/adapters/memory"
	"github.com/aretw0/switchyard/pkg/adapters/poller"
	redisadapter "github.com/aretw0/switchyard/pkg/adapters/redis"
	"github.com/aretw0/switchyard/pkg/changedetect"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/handler"
	"github.com/aretw0/switchyard/pkg/observability"
	"github.com/aretw0/switchyard/pkg/persistence/middleware"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/aretw0/switchyard/pkg/registry"

	backend "github.com/redis/go-redis/v9"
)

// app holds everything a command built from the configuration.
type app struct {
	orch     *switchyard.Orchestrator
	metrics  *prometheus.Registry
	tracing  *observability.Tracing
	provider *sdktrace.TracerProvider
	closers  []func() error
}

type appOptions struct {
	observe bool
}

func newApp(ctx context.Context, c config.Config, opts appOptions) (*app, error) {
	a := &app{}

	var client *backend.Client
	if c.Store.Kind == config.StoreRedis {
		client = redisadapter.NewClient(c.Store.Redis.Addr, c.Store.Redis.Password, c.Store.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", c.Store.Redis.Addr, err)
		}
		a.closers = append(a.closers, client.Close)
	}

	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	runs, err := openRepository[domain.RunState](c, client, "runs")
	if err != nil {
		return fail(err)
	}
	if len(c.Store.RedactKeys) > 0 {
		redact, err := middleware.NewPIIMiddleware(c.Store.RedactKeys)
		if err != nil {
			return fail(err)
		}
		runs = redact(runs)
	}
	snapshots, err := openRepository[snapshot.Record](c, client, "snapshots")
	if err != nil {
		return fail(err)
	}

	var hooks []domain.LifecycleHooks
	if opts.observe {
		a.metrics = prometheus.NewRegistry()
		a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := observability.NewMetrics(a.metrics)
		if err != nil {
			return fail(err)
		}
		hooks = append(hooks, m.Hooks())

		if c.Tracing.Enabled {
			w, closeOutput, err := traceOutput(c.Tracing.Output)
			if err != nil {
				return fail(err)
			}
			a.closers = append(a.closers, closeOutput)
			a.provider, err = observability.InitStdout("switchyard", switchyard.Version, w)
			if err != nil {
				return fail(err)
			}
			otel.SetTracerProvider(a.provider)
			a.tracing = observability.NewTracing(a.provider)
			hooks = append(hooks, a.tracing.Hooks())
		}
	}

	orchOpts := []switchyard.Option{
		switchyard.WithLogger(logger),
		switchyard.WithLifecycleHooks(domain.CombineHooks(hooks...)),
		switchyard.WithPoller(poller.New(poller.WithLogger(logger))),
		switchyard.WithNewDataHandler(newDataHandler()),
		switchyard.WithRetryPolicy(c.Retry),
		switchyard.WithEndpoints(c.Endpoints...),
		switchyard.WithRegistrar(func(reg *registry.Registry) error { return snapshot.Register(reg, false) }),
		switchyard.WithRoutes(c.Routes...),
		switchyard.WithPipelines(snapshot.NewDefinition(snapshots, nil)),
	}
	if client != nil {
		orchOpts = append(orchOpts, switchyard.WithDistributedLocker(redisadapter.NewLocker(client, c.Store.Redis.Prefix)))
	}
	a.orch, err = switchyard.New(runs, orchOpts...)
	if err != nil {
		return fail(err)
	}
	return a, nil
}

// Close flushes spans and releases connections.
func (a *app) Close() error {
	var errs []error
	if a.tracing != nil {
		a.tracing.Flush()
	}
	if a.provider != nil {
		errs = append(errs, a.provider.Shutdown(context.Background()))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// newDataHandler logs every content condition the delta detector reports.
func newDataHandler() ports.NewDataHandler {
	handlers := map[string]ports.Handler[handler.Detection[domain.NewDataEvent]]{}
	for _, name := range []string{
		changedetect.ConditionContentChanged,
		changedetect.ConditionContentEmptied,
		changedetect.ConditionContentGrew,
		changedetect.ConditionContentShrank,
	} {
		handlers[name] = handler.NewLogging[handler.Detection[domain.NewDataEvent]](name, logger)
	}
	orch := handler.NewOrchestrator[domain.NewDataEvent](changedetect.ContentDeltaDetector{}, handlers, handler.WithLogger(logger))
	return handler.NewNewDataAdapter(orch)
}

func openRepository[T any](c config.Config, client *backend.Client, collection string) (ports.Repository[T], error) {
	enc, err := c.EncryptionConfig()
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return storeRepository[T](c, client, collection), nil
	}
	mw, err := middleware.NewEncryptionMiddleware[T](*enc)
	if err != nil {
		return nil, err
	}
	return mw(storeRepository[middleware.Envelope](c, client, collection)), nil
}

func storeRepository[T any](c config.Config, client *backend.Client, collection string) ports.Repository[T] {
	switch c.Store.Kind {
	case config.StoreFile:
		return file.New[T](filepath.Join(c.Store.Path, collection))
	case config.StoreRedis:
		return redisadapter.NewRepository[T](client, collection,
			redisadapter.WithPrefix(c.Store.Redis.Prefix),
			redisadapter.WithTTL(c.Store.Redis.TTL),
		)
	default:
		return memory.NewRepository[T]()
	}
}

func traceOutput(target string) (io.Writer, func() error, error) {
	switch target {
	case "", "stderr":
		return os.Stderr, func() error { return nil }, nil
	case "stdout":
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace output: %w", err)
	}
	return f, f.Close, nil
}

package switchyard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/switchyard"
	"github.com/aretw0/switchyard/internal/snapshot"
	"github.com/aretw0/switchyard/pkg/adapters/memory"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/handler"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/aretw0/switchyard/pkg/registry"
)

type feed struct {
	mu      sync.Mutex
	content string
}

func (f *feed) set(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = s
}

func (f *feed) Poll(context.Context, domain.PollingConfig) domain.PollingResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.PollingResult{Success: true, Content: []byte(f.content)}
}

var endpoint = domain.PollingConfig{EndpointID: "feed", URL: "https://example.com/feed", Interval: time.Hour}

func newOrchestrator(t *testing.T, src ports.Poller, opts ...switchyard.Option) (*switchyard.Orchestrator, *memory.Repository[snapshot.Record]) {
	t.Helper()
	snapshots := memory.NewRepository[snapshot.Record]()
	all := append([]switchyard.Option{
		switchyard.WithPoller(src),
		switchyard.WithEndpoints(endpoint),
		switchyard.WithRetryPolicy(domain.RetryPolicy{MaxAttempts: 1}),
		switchyard.WithRegistrar(func(reg *registry.Registry) error { return snapshot.Register(reg, true) }),
		switchyard.WithPipelines(snapshot.NewDefinition(snapshots, nil)),
	}, opts...)
	orch, err := switchyard.New(memory.NewRepository[domain.RunState](), all...)
	require.NoError(t, err)
	return orch, snapshots
}

func TestOrchestrator_PollDispatchesSnapshot(t *testing.T) {
	src := &feed{content: "v1"}
	var handled []string
	var mu sync.Mutex
	h := handler.NewDataFunc(func(_ context.Context, endpointID string, _, current []byte, _ string) (*domain.Acknowledgement, error) {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, string(current))
		return domain.Accept("seen " + endpointID), nil
	})
	orch, snapshots := newOrchestrator(t, src, switchyard.WithNewDataHandler(h))
	ctx := context.Background()

	cfg, ok := orch.Endpoint("feed")
	require.True(t, ok)

	_, first, err := orch.Poll(ctx, cfg, nil)
	require.NoError(t, err)
	assert.False(t, first.Detection.HasNewData)

	src.set("v2")
	run, second, err := orch.Poll(ctx, cfg, first)
	require.NoError(t, err)
	assert.True(t, second.Detection.HasNewData)
	require.NotNil(t, second.Acknowledgement)
	assert.True(t, second.Acknowledgement.WillComply)
	assert.Equal(t, "feed", run.Labels["endpoint_id"])

	orch.Engine().Wait()
	require.Len(t, run.Dispatches, 1)
	stored, err := snapshots.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "v2", string(stored[0].Content))
	assert.Equal(t, []string{"v2"}, handled)
}

func TestOrchestrator_Evaluate(t *testing.T) {
	orch, _ := newOrchestrator(t, &feed{})
	res := orch.Evaluate(context.Background(), "ChangeDetectionCompletion", map[string]any{
		"endpoint_id":    "feed",
		"polling_result": map[string]any{"success": true, "content": "djI="},
		"detection":      map[string]any{"has_new_data": true, "current_hash": "abc"},
	})
	assert.Empty(t, res.Errors)
	require.Len(t, res.Dispatches, 1)
	assert.Equal(t, snapshot.PipelineName, res.Dispatches[0].Pipeline)

	res = orch.Evaluate(context.Background(), "ChangeDetectionCompletion", map[string]any{
		"detection": map[string]any{"has_new_data": false},
	})
	assert.Empty(t, res.Dispatches)
}

func TestOrchestrator_RunTicksUntilCancelled(t *testing.T) {
	src := &feed{content: "v1"}
	orch, _ := newOrchestrator(t, src, switchyard.WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := orch.Scheduler().Last("feed")
		return ok
	}, 2*time.Second, 10*time.Millisecond, "the first tick fires immediately")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNew_InvalidConfiguration(t *testing.T) {
	_, err := switchyard.New(memory.NewRepository[domain.RunState](),
		switchyard.WithRoutes(domain.Route{ResponseType: "X"}),
	)
	assert.ErrorIs(t, err, domain.ErrInvalidRoute)

	_, err = switchyard.New(memory.NewRepository[domain.RunState](),
		switchyard.WithEndpoints(endpoint, endpoint),
	)
	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestOrchestrator_Accessors(t *testing.T) {
	orch, _ := newOrchestrator(t, &feed{content: "v1"})

	assert.NotNil(t, orch.Registry())
	assert.NotNil(t, orch.Dispatcher())
	assert.NotNil(t, orch.Engine())
	assert.Equal(t, []string{"feed"}, orch.Scheduler().Endpoints())

	eps := orch.Endpoints()
	require.Len(t, eps, 1)
	eps[0].EndpointID = "mutated"
	got, ok := orch.Endpoint("feed")
	require.True(t, ok)
	assert.Equal(t, endpoint.URL, got.URL)
	_, ok = orch.Endpoint("mutated")
	assert.False(t, ok)

	route := domain.Route{
		ResponseType: "PollResult",
		Condition:    domain.All(domain.Ge("size", 2), domain.NotIn("kind", []string{"x"}), domain.IsNotNone("size")),
		Pipeline:     "Ingest",
	}
	assert.True(t, orch.Dispatcher().Matches(route, map[string]any{"size": 2, "kind": "y"}, "PollResult"))
	assert.False(t, orch.Dispatcher().Matches(route, map[string]any{"size": 2, "kind": "x"}, "PollResult"))
}

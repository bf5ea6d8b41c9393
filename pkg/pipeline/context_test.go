package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/pipeline"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRunner executes activities live and remembers their names.
type recordingRunner struct {
	names  []string
	slept  []time.Duration
	now    time.Time
	failOn string
}

func (r *recordingRunner) RunActivity(ctx context.Context, name string, _ ports.ActivityOptions, fn ports.ActivityFunc) (json.RawMessage, error) {
	r.names = append(r.names, name)
	if name == r.failOn {
		return nil, domain.ErrNonDeterministic
	}
	v, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (r *recordingRunner) Sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func (r *recordingRunner) Now(context.Context) (time.Time, error) {
	return r.now, nil
}

func TestCall_WithoutRunnerIsDirect(t *testing.T) {
	type payload struct{ N int }
	got, err := pipeline.Call(context.Background(), "direct", func(context.Context) (*payload, error) {
		return &payload{N: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, &payload{N: 1}, got)
}

func TestCall_WithoutRunnerRecoversPanic(t *testing.T) {
	got, err := pipeline.Call(context.Background(), "explode", func(context.Context) (int, error) {
		var counts map[string]int
		counts["x"] = 7
		return counts["x"], nil
	})
	assert.Zero(t, got)
	var appErr *domain.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pipeline.ErrTypeActivityPanic, appErr.Type)
	assert.Contains(t, appErr.Message, "explode")
}

func TestCall_ThroughRunner(t *testing.T) {
	runner := &recordingRunner{}
	ctx := pipeline.WithActivityRunner(context.Background(), runner)

	got, err := pipeline.Call(ctx, "lookup", func(context.Context) (map[string]int, error) {
		return map[string]int{"a": 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, got)

	boom := errors.New("boom")
	_, err = pipeline.Call(ctx, "broken", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	none, err := pipeline.Call(ctx, "nil", func(context.Context) (*domain.Acknowledgement, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, none)

	assert.Equal(t, []string{"lookup", "broken", "nil"}, runner.names)
}

func TestNowAndSleep(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	now, err := pipeline.Now(context.Background(), ports.ClockFunc(func() time.Time { return fixed }))
	require.NoError(t, err)
	assert.Equal(t, fixed, now)

	runner := &recordingRunner{now: fixed.Add(time.Hour)}
	ctx := pipeline.WithActivityRunner(context.Background(), runner)
	now, err = pipeline.Now(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(time.Hour), now)

	require.NoError(t, pipeline.Sleep(ctx, time.Hour))
	assert.Equal(t, []time.Duration{time.Hour}, runner.slept)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pipeline.Sleep(cancelled, time.Hour), context.Canceled)
}

func TestPipeline_BackoffUsesRunnerTimer(t *testing.T) {
	runner := &recordingRunner{}
	ctx := pipeline.WithActivityRunner(context.Background(), runner)

	var calls int
	uc := ports.UseCaseFunc[greetRequest, greetResponse](func(ctx context.Context, req greetRequest) (greetResponse, error) {
		calls++
		if calls == 1 {
			return greetResponse{}, errors.New("transient")
		}
		return greetResponse{Greeting: "ok"}, nil
	})
	policy := domain.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Minute, BackoffCoefficient: 2}
	p := pipeline.New("timed", uc, pipeline.WithRetryPolicy(policy))

	_, err := p.Run(ctx, greetRequest{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Minute}, runner.slept)
}

type memRepo struct {
	items map[string]string
}

func (m *memRepo) Get(_ context.Context, id string) (*string, error) {
	v, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}
func (m *memRepo) Save(_ context.Context, id string, v string) error { m.items[id] = v; return nil }
func (m *memRepo) List(context.Context) ([]string, error) {
	out := make([]string, 0, len(m.items))
	for _, v := range m.items {
		out = append(out, v)
	}
	return out, nil
}
func (m *memRepo) Delete(_ context.Context, id string) (bool, error) {
	_, ok := m.items[id]
	delete(m.items, id)
	return ok, nil
}
func (m *memRepo) GenerateID() string { return "fixed-id" }

func TestProxies(t *testing.T) {
	runner := &recordingRunner{}
	ctx := pipeline.WithActivityRunner(context.Background(), runner)

	repo := pipeline.NewProxyRepository[string]("docs", &memRepo{items: map[string]string{}}, ports.ActivityOptions{})
	require.NoError(t, repo.Save(ctx, "a", "alpha"))
	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", *got)
	missing, err := repo.Get(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, missing)
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, all)
	existed, err := repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, existed)
	id, err := repo.NewID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	poller := pipeline.NewProxyPoller(ports.PollerFunc(func(context.Context, domain.PollingConfig) domain.PollingResult {
		return domain.PollingResult{Success: true, Content: []byte("v1")}
	}), ports.ActivityOptions{})
	res := poller.Poll(ctx, domain.PollingConfig{EndpointID: "e"})
	assert.True(t, res.Success)
	assert.Equal(t, []byte("v1"), res.Content)

	assert.Equal(t, []string{
		"docs.save", "docs.get", "docs.get", "docs.list", "docs.delete", "docs.generate_id", "poller.poll",
	}, runner.names)

	runner.failOn = "poller.poll"
	res = poller.Poll(ctx, domain.PollingConfig{EndpointID: "e"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "non-deterministic")
}

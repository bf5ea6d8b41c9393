package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/aretw0/switchyard/pkg/adapters/http"
	"github.com/aretw0/switchyard/pkg/adapters/memory"
	"github.com/aretw0/switchyard/pkg/dispatch"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/durable"
	"github.com/aretw0/switchyard/pkg/pipeline"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/aretw0/switchyard/pkg/registry"
)

type greetRequest struct {
	Name string `json:"name"`
}

type greetResponse struct {
	Greeting string `json:"greeting"`
}

func newAPI(t *testing.T) (http.Handler, *durable.Engine) {
	t.Helper()
	reg := registry.NewRegistry()
	reg.MustRegister(domain.Route{
		ResponseType: "PollResult",
		Condition:    domain.All(domain.IsTrue("success"), domain.Gt("count", 2)),
		Pipeline:     "ingest",
		RequestType:  "PollResult",
	})
	d := dispatch.New(reg)

	engine := durable.NewEngine(memory.NewRepository[domain.RunState](),
		durable.WithActivityRetryPolicy(domain.RetryPolicy{MaxAttempts: 1}))
	require.NoError(t, engine.Register(pipeline.NewDefinition("greet", func() ports.UseCase[greetRequest, greetResponse] {
		return ports.UseCaseFunc[greetRequest, greetResponse](func(_ context.Context, req greetRequest) (greetResponse, error) {
			if req.Name == "" {
				return greetResponse{}, &domain.ValidationError{Field: "name", Reason: "required"}
			}
			return greetResponse{Greeting: "hello " + req.Name}, nil
		})
	})))
	t.Cleanup(engine.Wait)

	return api.NewHandler(engine, reg, d, api.WithVersion("test")), engine
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h, _ := newAPI(t)
	rr := do(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
}

func TestListRoutes(t *testing.T) {
	h, _ := newAPI(t)

	rr := do(t, h, http.MethodGet, "/routes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var routes []domain.Route
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &routes))
	require.Len(t, routes, 1)
	assert.Equal(t, "ingest", routes[0].Pipeline)

	rr = do(t, h, http.MethodGet, "/routes?response_type=Other", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &routes))
	assert.Empty(t, routes)
}

func TestEvaluateRoutes(t *testing.T) {
	h, _ := newAPI(t)

	rr := do(t, h, http.MethodPost, "/routes/evaluate/PollResult", `{"success":true,"count":3}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result domain.DispatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Len(t, result.Dispatches, 1)
	assert.Equal(t, "ingest", result.Dispatches[0].Pipeline)

	rr = do(t, h, http.MethodPost, "/routes/evaluate/PollResult", `{"success":true,"count":1}`)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Empty(t, result.Dispatches)

	rr = do(t, h, http.MethodPost, "/routes/evaluate/PollResult", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStartAndQueryRuns(t *testing.T) {
	h, engine := newAPI(t)

	rr := do(t, h, http.MethodPost, "/pipelines/greet/runs?wait=true&run_id=r1", `{"name":"ada"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var state domain.RunState
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.JSONEq(t, `{"greeting":"hello ada"}`, string(state.Response))

	rr = do(t, h, http.MethodPost, "/pipelines/greet/runs?run_id=r2", `{"name":"bob"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "/runs/r2", rr.Header().Get("Location"))
	engine.Wait()

	rr = do(t, h, http.MethodGet, "/runs/r2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.JSONEq(t, `{"greeting":"hello bob"}`, string(state.Response))

	rr = do(t, h, http.MethodGet, "/runs?pipeline=greet&status=completed", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []api.RunSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	rr = do(t, h, http.MethodGet, "/runs?limit=1", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestRunErrors(t *testing.T) {
	h, _ := newAPI(t)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/runs/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/pipelines/missing/runs", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/pipelines/greet/runs", `[1,2]`).Code)

	rr := do(t, h, http.MethodPost, "/pipelines/greet/runs?wait=true", `{}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var state domain.RunState
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, domain.StatusFailed, state.Status)
	assert.Contains(t, state.LastError, "name")
}

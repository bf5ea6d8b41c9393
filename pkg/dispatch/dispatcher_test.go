package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/dispatch"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type PollResult struct {
	Success  bool      `json:"success"`
	Size     int       `json:"size"`
	Body     []byte    `json:"body,omitempty"`
	PolledAt time.Time `json:"polled_at"`
}

type IngestRequest struct {
	Size     int       `json:"size"`
	Body     []byte    `json:"body"`
	PolledAt time.Time `json:"polled_at"`
}

type ArchiveRequest struct {
	Bytes int
}

func ingestRoute() domain.Route {
	return domain.Route{
		ResponseType: "PollResult",
		Condition:    domain.All(domain.IsTrue("success")),
		Pipeline:     "Ingest",
		RequestType:  "IngestRequest",
	}
}

func TestDispatch_Scenario(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegister(ingestRoute())
	registry.RegisterType[IngestRequest](reg)
	d := dispatch.New(reg)

	ok := d.Dispatch(context.Background(), map[string]any{"success": true, "size": 10}, "PollResult")
	require.Len(t, ok.Dispatches, 1)
	assert.Empty(t, ok.Errors)
	assert.Equal(t, "Ingest", ok.Dispatches[0].Pipeline)
	assert.Equal(t, &IngestRequest{Size: 10}, ok.Dispatches[0].Request)

	none := d.Dispatch(context.Background(), map[string]any{"success": false}, "PollResult")
	assert.NotNil(t, none.Dispatches)
	assert.Empty(t, none.Dispatches)
	assert.Empty(t, none.Errors)
}

func TestDispatch_NMatchesYieldNDispatches(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegister(ingestRoute())
	reg.MustRegister(domain.Route{
		ResponseType: "PollResult",
		Condition:    domain.All(domain.Gt("size", 5)),
		Pipeline:     "Archive",
		RequestType:  "ArchiveRequest",
	})
	reg.MustRegister(domain.Route{
		ResponseType: "PollResult",
		Condition:    domain.All(domain.Gt("size", 100)),
		Pipeline:     "Alert",
		RequestType:  "PollResult",
	})
	reg.RegisterTransformer("PollResult", "ArchiveRequest", registry.Transform(func(p PollResult) (ArchiveRequest, error) {
		return ArchiveRequest{Bytes: p.Size}, nil
	}))
	reg.RegisterTransformer("PollResult", "IngestRequest", registry.Transform(func(p PollResult) (IngestRequest, error) {
		return IngestRequest{Size: p.Size * 2}, nil
	}))

	d := dispatch.New(reg)
	resp := PollResult{Success: true, Size: 10}
	res := d.DispatchValue(context.Background(), resp)

	require.Len(t, res.Dispatches, 2)
	assert.Equal(t, "Ingest", res.Dispatches[0].Pipeline)
	assert.Equal(t, IngestRequest{Size: 20}, res.Dispatches[0].Request)
	assert.Equal(t, "Archive", res.Dispatches[1].Pipeline)
	assert.Equal(t, ArchiveRequest{Bytes: 10}, res.Dispatches[1].Request)

	big := d.DispatchValue(context.Background(), PollResult{Success: true, Size: 500})
	require.Len(t, big.Dispatches, 3)
	assert.Equal(t, "Alert", big.Dispatches[2].Pipeline)
	assert.Equal(t, PollResult{Success: true, Size: 500}, big.Dispatches[2].Request, "same type passes through unchanged")
}

func TestDispatch_UnresolvedTransformerDoesNotBlockOthers(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegister(domain.Route{
		ResponseType: "PollResult",
		Pipeline:     "Mystery",
		RequestType:  "UnknownRequest",
	})
	reg.MustRegister(ingestRoute())
	registry.RegisterType[IngestRequest](reg)

	d := dispatch.New(reg)
	res := d.Dispatch(context.Background(), map[string]any{"success": true, "size": 1}, "PollResult")

	require.Len(t, res.Dispatches, 1)
	assert.Equal(t, "Ingest", res.Dispatches[0].Pipeline)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, domain.CodeUnresolvedTransformer, res.Errors[0].Code)
	assert.Equal(t, "Mystery", res.Errors[0].Route.Pipeline)
}

func TestDispatch_TransformFailures(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegister(domain.Route{ResponseType: "PollResult", Pipeline: "A", RequestType: "AReq"})
	reg.MustRegister(domain.Route{ResponseType: "PollResult", Pipeline: "B", RequestType: "BReq"})
	reg.RegisterTransformer("PollResult", "AReq", func(any) (any, error) { return nil, errors.New("bad input") })
	reg.RegisterTransformer("PollResult", "BReq", func(any) (any, error) { panic("boom") })

	res := dispatch.New(reg).DispatchValue(context.Background(), PollResult{})

	assert.Empty(t, res.Dispatches)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, domain.CodeTransformFailed, res.Errors[0].Code)
	assert.Contains(t, res.Errors[0].Message, "bad input")
	assert.Equal(t, domain.CodeTransformFailed, res.Errors[1].Code)
	assert.Contains(t, res.Errors[1].Message, "panicked")
}

func TestDispatch_StructuralPassThroughFromStruct(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegister(ingestRoute())
	registry.RegisterType[IngestRequest](reg)

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	res := dispatch.New(reg).DispatchValue(context.Background(), &PollResult{
		Success: true, Size: 7, Body: []byte("hello"), PolledAt: at,
	})

	require.Len(t, res.Dispatches, 1)
	req, ok := res.Dispatches[0].Request.(*IngestRequest)
	require.True(t, ok)
	assert.Equal(t, 7, req.Size)
	assert.Equal(t, []byte("hello"), req.Body)
	assert.True(t, at.Equal(req.PolledAt))
}

func TestMatches_TypeMismatchNeverMatches(t *testing.T) {
	reg := registry.NewRegistry()
	d := dispatch.New(reg)

	r := domain.Route{ResponseType: "example.com/a.PollResult", Pipeline: "X", RequestType: "Y"}
	resp := map[string]any{"success": true}

	assert.True(t, d.Matches(r, resp, "PollResult"))
	assert.True(t, d.Matches(r, resp, "example.com/a.PollResult"))
	assert.False(t, d.Matches(r, resp, "example.com/b.PollResult"))
	assert.False(t, d.Matches(r, resp, "OtherResult"))
}

func TestDispatch_Hook(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegister(ingestRoute())
	registry.RegisterType[IngestRequest](reg)

	var seen *domain.DispatchEvent
	d := dispatch.New(reg, dispatch.WithLifecycleHooks(domain.LifecycleHooks{
		OnDispatch: func(_ context.Context, e *domain.DispatchEvent) { seen = e },
	}))
	d.Dispatch(context.Background(), map[string]any{"success": true}, "PollResult")

	require.NotNil(t, seen)
	assert.Equal(t, "PollResult", seen.ResponseType)
	assert.Len(t, seen.Dispatches, 1)
}

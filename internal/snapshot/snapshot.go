// Package snapshot is a downstream pipeline that keeps a copy of every
// content version change detection reports.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/switchyard/internal/convert"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/pipeline"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/aretw0/switchyard/pkg/registry"
)

// Names the snapshot pipeline registers under.
const (
	PipelineName = "snapshot"
	RequestType  = "SnapshotRequest"
	ResponseType = "SnapshotResult"
)

// Steps reported while a snapshot is stored.
const (
	StepLookup = "lookup"
	StepStore  = "storing"
)

// Request asks for one content version to be stored.
type Request struct {
	EndpointID  string    `json:"endpoint_id"`
	ContentHash string    `json:"content_hash"`
	ContentType string    `json:"content_type,omitempty"`
	Content     []byte    `json:"content,omitempty"`
	PolledAt    time.Time `json:"polled_at"`
}

// Record is a stored content version.
type Record struct {
	ID          string    `json:"id"`
	EndpointID  string    `json:"endpoint_id"`
	ContentHash string    `json:"content_hash"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int       `json:"size"`
	Content     []byte    `json:"content,omitempty"`
	PolledAt    time.Time `json:"polled_at"`
	StoredAt    time.Time `json:"stored_at"`
}

// Result is the response of the snapshot pipeline.
type Result struct {
	SnapshotID string `json:"snapshot_id"`
	Size       int    `json:"size"`
	// Duplicate is set when the version was already stored.
	Duplicate bool `json:"duplicate"`
}

// RecordID derives a stable id from the endpoint and content hash, so a
// replayed or re-dispatched request stores the same record.
func RecordID(endpointID, contentHash string) string {
	short := contentHash
	if len(short) > 16 {
		short = short[:16]
	}
	return endpointID + "-" + short
}

// Store is the snapshot use case.
type Store struct {
	repo  ports.Repository[Record]
	clock ports.Clock
}

// NewStore creates the use case. A nil clock means the system clock.
func NewStore(repo ports.Repository[Record], clock ports.Clock) *Store {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Store{repo: repo, clock: clock}
}

// Execute implements ports.UseCase.
func (s *Store) Execute(ctx context.Context, req Request) (Result, error) {
	if req.EndpointID == "" || req.ContentHash == "" {
		return Result{}, &domain.ValidationError{Field: "request", Reason: "endpoint_id and content_hash are required"}
	}
	id := RecordID(req.EndpointID, req.ContentHash)

	pipeline.ReportStep(ctx, StepLookup)
	existing, err := pipeline.Call(ctx, "snapshot.lookup", func(ctx context.Context) (*Record, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return Result{}, fmt.Errorf("lookup snapshot %s: %w", id, err)
	}
	if existing != nil {
		return Result{SnapshotID: id, Size: existing.Size, Duplicate: true}, nil
	}

	now, err := pipeline.Now(ctx, s.clock)
	if err != nil {
		return Result{}, err
	}

	pipeline.ReportStep(ctx, StepStore)
	rec := Record{
		ID:          id,
		EndpointID:  req.EndpointID,
		ContentHash: req.ContentHash,
		ContentType: req.ContentType,
		Size:        len(req.Content),
		Content:     req.Content,
		PolledAt:    req.PolledAt,
		StoredAt:    now,
	}
	if _, err := pipeline.Call(ctx, "snapshot.save", func(ctx context.Context) (bool, error) {
		return true, s.repo.Save(ctx, id, rec)
	}); err != nil {
		return Result{}, fmt.Errorf("save snapshot %s: %w", id, err)
	}
	return Result{SnapshotID: id, Size: rec.Size}, nil
}

// NewDefinition builds the durable definition of the snapshot pipeline.
func NewDefinition(repo ports.Repository[Record], clock ports.Clock, opts ...pipeline.DefinitionOption) *pipeline.Definition[Request, Result] {
	opts = append([]pipeline.DefinitionOption{pipeline.WithTypeNames(RequestType, ResponseType)}, opts...)
	return pipeline.NewDefinition(PipelineName, func() ports.UseCase[Request, Result] {
		return NewStore(repo, clock)
	}, opts...)
}

// FromCompletion converts a change-detection completion into a snapshot request.
func FromCompletion(c domain.ChangeDetectionCompletion) (Request, error) {
	if !c.PollingResult.Success {
		return Request{}, fmt.Errorf("completion of %s has no content: poll failed", c.EndpointID)
	}
	req := Request{
		EndpointID:  c.EndpointID,
		ContentHash: c.Detection.CurrentHash,
		Content:     c.PollingResult.Content,
		PolledAt:    c.PollingResult.PolledAt,
	}
	if ct, ok := c.PollingResult.Metadata["content_type"].(string); ok {
		req.ContentType = ct
	}
	return req, nil
}

// transform accepts the completion by value, by pointer or as decoded JSON.
func transform(response any) (any, error) {
	var c domain.ChangeDetectionCompletion
	switch v := response.(type) {
	case domain.ChangeDetectionCompletion:
		c = v
	case *domain.ChangeDetectionCompletion:
		if v == nil {
			return nil, fmt.Errorf("nil completion")
		}
		c = *v
	default:
		if err := convert.Decode(response, &c); err != nil {
			return nil, fmt.Errorf("decode completion: %w", err)
		}
	}
	return FromCompletion(c)
}

// Route sends every successful change-detection run with new data to the
// snapshot pipeline.
func Route() domain.Route {
	return domain.Route{
		ResponseType: "ChangeDetectionCompletion",
		Condition: domain.All(
			domain.IsTrue("polling_result.success"),
			domain.IsTrue("detection.has_new_data"),
		),
		Pipeline:    PipelineName,
		RequestType: RequestType,
		Description: "store a snapshot of new content",
	}
}

// Register adds the snapshot request type and its transformer to reg. When
// withRoute is set the default route is registered too.
func Register(reg *registry.Registry, withRoute bool) error {
	reg.RegisterRequestType(RequestType, func() any { return new(Request) })
	reg.RegisterTransformer("ChangeDetectionCompletion", RequestType, transform)
	if withRoute {
		return reg.Register(Route())
	}
	return nil
}

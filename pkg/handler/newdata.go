package handler

import (
	"context"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// NewDataAdapter exposes a Handler of NewDataEvent as the ports.NewDataHandler
// the change-detection pipeline calls.
type NewDataAdapter struct {
	inner ports.Handler[domain.NewDataEvent]
}

// NewNewDataAdapter wraps h.
func NewNewDataAdapter(h ports.Handler[domain.NewDataEvent]) *NewDataAdapter {
	return &NewDataAdapter{inner: h}
}

// HandleNewData implements ports.NewDataHandler.
func (a *NewDataAdapter) HandleNewData(ctx context.Context, endpointID string, previous, current []byte, contentHash string) (*domain.Acknowledgement, error) {
	return a.inner.Handle(ctx, domain.NewDataEvent{
		EndpointID:      endpointID,
		PreviousContent: previous,
		CurrentContent:  current,
		ContentHash:     contentHash,
	})
}

// NewDataFunc adapts a function to ports.NewDataHandler.
type NewDataFunc func(ctx context.Context, endpointID string, previous, current []byte, contentHash string) (*domain.Acknowledgement, error)

// HandleNewData calls f.
func (f NewDataFunc) HandleNewData(ctx context.Context, endpointID string, previous, current []byte, contentHash string) (*domain.Acknowledgement, error) {
	return f(ctx, endpointID, previous, current, contentHash)
}

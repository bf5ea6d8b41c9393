package ports

import (
	"context"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Poller fetches the current content of an endpoint.
// Failures are reported through PollingResult.Success and never returned as errors.
type Poller interface {
	Poll(ctx context.Context, cfg domain.PollingConfig) domain.PollingResult
}

// PollerFunc adapts a function to Poller.
type PollerFunc func(ctx context.Context, cfg domain.PollingConfig) domain.PollingResult

// Poll calls f(ctx, cfg).
func (f PollerFunc) Poll(ctx context.Context, cfg domain.PollingConfig) domain.PollingResult {
	return f(ctx, cfg)
}

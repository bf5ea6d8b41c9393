package ports

import (
	"context"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Handler maps a domain entity to an Acknowledgement, encapsulating "what
// happens next". Handlers may hold injected collaborators but carry no mutable
// state across invocations.
type Handler[T any] interface {
	Handle(ctx context.Context, entity T) (*domain.Acknowledgement, error)
}

// NewDataHandler receives the content of an endpoint whose hash changed.
type NewDataHandler interface {
	HandleNewData(ctx context.Context, endpointID string, previous, current []byte, contentHash string) (*domain.Acknowledgement, error)
}

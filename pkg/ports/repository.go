package ports

import "context"

// Repository is the storage protocol shared by every persisted entity.
// All operations are idempotent.
type Repository[T any] interface {
	// Get returns the entity, or nil (and no error) when it does not exist.
	Get(ctx context.Context, id string) (*T, error)

	// Save creates or replaces the entity stored under id.
	Save(ctx context.Context, id string, entity T) error

	// List returns every stored entity, in no particular order.
	List(ctx context.Context) ([]T, error)

	// Delete removes the entity and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// GenerateID returns a fresh unique identifier for a new entity.
	GenerateID() string
}

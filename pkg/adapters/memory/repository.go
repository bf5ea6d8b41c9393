package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Repository implements ports.Repository in memory.
// Entities are stored as JSON so callers never share memory with the store.
// Safe for concurrent use.
type Repository[T any] struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewRepository creates a new in-memory repository.
func NewRepository[T any]() *Repository[T] {
	return &Repository[T]{
		data: make(map[string][]byte),
	}
}

// Save stores a copy of entity under id.
func (r *Repository[T]) Save(ctx context.Context, id string, entity T) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[id] = raw
	return nil
}

// Get returns a copy of the entity, or nil when absent.
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	r.mu.RLock()
	raw, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity %s: %w", id, err)
	}
	return &out, nil
}

// List returns copies of every entity.
func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.data))
	for id, raw := range r.data {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity %s: %w", id, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Delete removes the entity and reports whether it existed.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.data[id]
	delete(r.data, id)
	return ok, nil
}

// GenerateID returns a random UUID.
func (r *Repository[T]) GenerateID() string {
	return uuid.NewString()
}

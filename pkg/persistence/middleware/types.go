package middleware

import "github.com/aretw0/switchyard/pkg/ports"

// Middleware wraps the envelope repository actually storing records and
// exposes a Repository of plain entities.
type Middleware[T any] func(ports.Repository[Envelope]) ports.Repository[T]

// Envelope is the opaque record written to the underlying repository.
type Envelope struct {
	ID         string `json:"id"`
	Ciphertext []byte `json:"ciphertext"`
}

// Decorator wraps a repository without changing its entity type.
type Decorator[T any] func(ports.Repository[T]) ports.Repository[T]

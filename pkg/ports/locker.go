package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// It lets schedulers and run executors coordinate across replicas.
type DistributedLocker interface {
	// Lock blocks until the lock for key is acquired or ctx is done.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)

	// TryLock makes a single attempt and returns domain.ErrLockNotAcquired
	// when the key is already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// LockExtender is implemented by lockers whose held locks can be kept alive
// past their initial TTL.
type LockExtender interface {
	// Extend resets the expiry of a held lock to ttl. It returns
	// domain.ErrLockNotAcquired when the lock is no longer held.
	Extend(ctx context.Context, key string, ttl time.Duration) error
}

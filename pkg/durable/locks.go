package durable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locks serialises work per key inside the process and, with a
// DistributedLocker, across replicas. Entries are reference counted and
// dropped when unused.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	locker ports.DistributedLocker
	ttl    time.Duration
	logger *slog.Logger
}

// LocksOption configures Locks.
type LocksOption func(*Locks)

// WithDistributedLocker enables cross-replica locking.
func WithDistributedLocker(locker ports.DistributedLocker) LocksOption {
	return func(l *Locks) {
		l.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) LocksOption {
	return func(l *Locks) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLocksLogger sets the logger.
func WithLocksLogger(logger *slog.Logger) LocksOption {
	return func(l *Locks) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocks creates an empty lock table.
func NewLocks(opts ...LocksOption) *Locks {
	l := &Locks{
		locks:  make(map[string]*lockEntry),
		ttl:    30 * time.Second,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locks) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		entry = &lockEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *Locks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, key)
	}
}

// Lock blocks until key is held locally and, if configured, remotely.
// The returned function releases both.
func (l *Locks) Lock(ctx context.Context, key string) (func(), error) {
	entry := l.acquire(key)
	entry.mu.Lock()
	return l.holdRemote(ctx, key, entry, false)
}

// TryLock is Lock without waiting. It returns domain.ErrLockNotAcquired when
// key is held here or on another replica.
func (l *Locks) TryLock(ctx context.Context, key string) (func(), error) {
	entry := l.acquire(key)
	if !entry.mu.TryLock() {
		l.release(key)
		return nil, domain.ErrLockNotAcquired
	}
	return l.holdRemote(ctx, key, entry, true)
}

func (l *Locks) holdRemote(ctx context.Context, key string, entry *lockEntry, try bool) (func(), error) {
	local := func() {
		entry.mu.Unlock()
		l.release(key)
	}
	if l.locker == nil {
		return local, nil
	}

	var (
		unlock ports.UnlockFunc
		err    error
	)
	if try {
		unlock, err = l.locker.TryLock(ctx, key, l.ttl)
	} else {
		unlock, err = l.locker.Lock(ctx, key, l.ttl)
	}
	if err != nil {
		local()
		return nil, fmt.Errorf("distributed lock %s: %w", key, err)
	}

	stop := l.keepAlive(ctx, key)
	return func() {
		stop()
		// The caller's context may already be done; release with a fresh one.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := unlock(rctx); err != nil {
			l.logger.Warn("failed to release distributed lock (will expire via TTL)", "key", key, "err", err)
		}
		local()
	}, nil
}

// keepAlive extends a held distributed lock every third of its TTL until the
// returned stop function is called. It is a no-op for lockers that cannot
// extend.
func (l *Locks) keepAlive(ctx context.Context, key string) (stop func()) {
	ext, ok := l.locker.(ports.LockExtender)
	if !ok {
		return func() {}
	}
	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ectx, cancel := context.WithTimeout(bg, interval)
			err := ext.Extend(ectx, key, l.ttl)
			cancel()
			if err != nil {
				l.logger.Warn("failed to extend distributed lock", "key", key, "err", err)
				if errors.Is(err, domain.ErrLockNotAcquired) {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// WithLock runs fn while holding key.
func (l *Locks) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

package durable_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/durable"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	return f.TryLock(ctx, key, ttl)
}

func (f *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockNotAcquired
	}
	f.held[key] = true
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
		f.released = append(f.released, key)
		return nil
	}, nil
}

type extendingLocker struct {
	*fakeLocker
	extends atomic.Int32
}

func (e *extendingLocker) Extend(_ context.Context, key string, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.held[key] {
		return domain.ErrLockNotAcquired
	}
	e.extends.Add(1)
	return nil
}

func TestLocks_TryLock(t *testing.T) {
	locks := durable.NewLocks()
	ctx := context.Background()

	unlock, err := locks.TryLock(ctx, "a")
	require.NoError(t, err)

	_, err = locks.TryLock(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	other, err := locks.TryLock(ctx, "b")
	require.NoError(t, err)
	other()

	unlock()
	again, err := locks.TryLock(ctx, "a")
	require.NoError(t, err)
	again()
}

func TestLocks_SerialisesWork(t *testing.T) {
	locks := durable.NewLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locks.WithLock(context.Background(), "shared", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocks_DistributedLocker(t *testing.T) {
	remote := newFakeLocker()
	replicaA := durable.NewLocks(durable.WithDistributedLocker(remote))
	replicaB := durable.NewLocks(durable.WithDistributedLocker(remote))
	ctx := context.Background()

	unlock, err := replicaA.TryLock(ctx, "endpoint:feed")
	require.NoError(t, err)

	_, err = replicaB.TryLock(ctx, "endpoint:feed")
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	unlock()
	assert.Equal(t, []string{"endpoint:feed"}, remote.released)

	unlockB, err := replicaB.TryLock(ctx, "endpoint:feed")
	require.NoError(t, err)
	unlockB()
}

func TestLocks_WithLockReturnsError(t *testing.T) {
	locks := durable.NewLocks()
	boom := errors.New("boom")
	err := locks.WithLock(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestLocks_RenewsDistributedLockWhileHeld(t *testing.T) {
	remote := &extendingLocker{fakeLocker: newFakeLocker()}
	locks := durable.NewLocks(
		durable.WithDistributedLocker(remote),
		durable.WithLockTTL(30*time.Millisecond),
	)

	unlock, err := locks.Lock(context.Background(), "endpoint:slow")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return remote.extends.Load() >= 2 }, time.Second, 5*time.Millisecond)

	unlock()
	after := remote.extends.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, remote.extends.Load(), "renewal kept running after release")
	assert.Equal(t, []string{"endpoint:slow"}, remote.released)
}

func TestLocks_NoRenewalWithoutExtender(t *testing.T) {
	remote := newFakeLocker()
	locks := durable.NewLocks(durable.WithDistributedLocker(remote), durable.WithLockTTL(10*time.Millisecond))

	unlock, err := locks.Lock(context.Background(), "k")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	unlock()
	assert.Equal(t, []string{"k"}, remote.released)
}

package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/lock"
)

func testConfig() lock.Config {
	return lock.Config{
		TTL:             30 * time.Second,
		ConflictWindow:  time.Minute,
		PollInterval:    10 * time.Millisecond,
		MaxConflictWait: 200 * time.Millisecond,
	}
}

func TestMemoryManager_AcquireRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := lock.NewMemoryManager(testConfig())

	token, err := mgr.Acquire(ctx, "cust_1", "subscription-updated", 0)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "cust_1", token.SubjectID)
	assert.Equal(t, "subscription-updated", token.Tag)

	// Same subject is busy, a different subject is not.
	_, err = mgr.Acquire(ctx, "cust_1", "invoice-paid", 0)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	other, err := mgr.Acquire(ctx, "cust_2", "invoice-paid", 0)
	require.NoError(t, err)
	require.NoError(t, mgr.Release(ctx, other))

	require.NoError(t, mgr.Release(ctx, token))

	// Released subject is acquirable again.
	token, err = mgr.Acquire(ctx, "cust_1", "invoice-paid", 0)
	require.NoError(t, err)
	require.NoError(t, mgr.Release(ctx, token))
}

func TestMemoryManager_ConcurrentAcquire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := lock.NewMemoryManager(testConfig())

	var wg sync.WaitGroup
	tokens := make(chan *lock.Token, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := mgr.Acquire(ctx, "cust_1", "invoice-paid", 0)
			if err == nil {
				tokens <- token
			}
		}()
	}
	wg.Wait()
	close(tokens)

	var won int
	for range tokens {
		won++
	}
	assert.Equal(t, 1, won, "at most one concurrent acquire may win while the lock is live")
}

func TestMemoryManager_ExpiredLockIsAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := lock.NewMemoryManager(testConfig())

	stale, err := mgr.Acquire(ctx, "cust_1", "invoice-paid", 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	// The expired lock is silently overwritten.
	fresh, err := mgr.Acquire(ctx, "cust_1", "subscription-deleted", 0)
	require.NoError(t, err)

	// The stale token must not remove the new holder's lock.
	require.NoError(t, mgr.Release(ctx, stale))
	_, err = mgr.Acquire(ctx, "cust_1", "invoice-paid", 0)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	require.NoError(t, mgr.Release(ctx, fresh))
}

func TestMemoryManager_FindConflicting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := lock.NewMemoryManager(testConfig())

	token, err := mgr.Acquire(ctx, "cust_1", "subscription-updated", 20*time.Millisecond)
	require.NoError(t, err)

	// Same tag is not a conflict.
	conflicts, err := mgr.FindConflicting(ctx, "cust_1", "subscription-updated", 0)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	// A different tag is.
	conflicts, err = mgr.FindConflicting(ctx, "cust_1", "subscription-deleted", 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "subscription-updated", conflicts[0].Tag)
	assert.Equal(t, "cust_1", conflicts[0].SubjectID)

	// Lock expiry alone does not clear the operation: the previous holder
	// may still be running. Only release does.
	time.Sleep(30 * time.Millisecond)
	conflicts, err = mgr.FindConflicting(ctx, "cust_1", "subscription-deleted", 0)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	require.NoError(t, mgr.Release(ctx, token))
	conflicts, err = mgr.FindConflicting(ctx, "cust_1", "subscription-deleted", 0)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestMemoryManager_ConflictWindowPrunes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.ConflictWindow = 30 * time.Millisecond
	mgr := lock.NewMemoryManager(cfg)

	_, err := mgr.Acquire(ctx, "cust_1", "subscription-updated", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	// An unreleased operation older than the window no longer counts.
	conflicts, err := mgr.FindConflicting(ctx, "cust_1", "invoice-paid", 0)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestAwait(t *testing.T) {
	t.Parallel()

	t.Run("returns immediately without conflicts", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		mgr := lock.NewMemoryManager(testConfig())

		remaining, err := lock.Await(ctx, mgr, "cust_1", "invoice-paid", testConfig(), lock.AwaitOptions{})
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})

	t.Run("waits until the conflict clears", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		cfg := testConfig()
		mgr := lock.NewMemoryManager(cfg)

		token, err := mgr.Acquire(ctx, "cust_1", "subscription-updated", 0)
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = mgr.Release(context.Background(), token)
		}()

		start := time.Now()
		remaining, err := lock.Await(ctx, mgr, "cust_1", "subscription-deleted", cfg, lock.AwaitOptions{})
		require.NoError(t, err)
		assert.Empty(t, remaining)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("proceeds with remaining conflicts on timeout", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		cfg := testConfig()
		cfg.MaxConflictWait = 50 * time.Millisecond
		mgr := lock.NewMemoryManager(cfg)

		_, err := mgr.Acquire(ctx, "cust_1", "subscription-updated", 0)
		require.NoError(t, err)

		remaining, err := lock.Await(ctx, mgr, "cust_1", "subscription-deleted", cfg, lock.AwaitOptions{})
		require.NoError(t, err, "timeout is soft: no error, the caller proceeds")
		assert.Len(t, remaining, 1)
	})
}

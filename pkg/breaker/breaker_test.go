package breaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/breaker"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	t.Parallel()

	t.Run("closed to open after failure threshold", func(t *testing.T) {
		t.Parallel()

		cb := breaker.New(breaker.Config{FailureThreshold: 2, SuccessThreshold: 1, RecoveryTimeout: 100 * time.Millisecond})

		assert.Equal(t, breaker.StateClosed, cb.State())
		assert.True(t, cb.Allow())

		cb.RecordFailure()
		assert.Equal(t, breaker.StateClosed, cb.State())
		assert.True(t, cb.Allow())

		cb.RecordFailure()
		assert.Equal(t, breaker.StateOpen, cb.State())
		assert.False(t, cb.Allow())
	})

	t.Run("open to half-open after recovery timeout", func(t *testing.T) {
		t.Parallel()

		cb := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: 50 * time.Millisecond})

		cb.RecordFailure()
		assert.False(t, cb.Allow())

		time.Sleep(60 * time.Millisecond)

		assert.True(t, cb.Allow())
		assert.Equal(t, breaker.StateHalfOpen, cb.State())
	})

	t.Run("half-open closes after success threshold", func(t *testing.T) {
		t.Parallel()

		cb := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, RecoveryTimeout: 50 * time.Millisecond})

		cb.RecordFailure()
		time.Sleep(60 * time.Millisecond)
		assert.True(t, cb.Allow())

		cb.RecordSuccess()
		assert.Equal(t, breaker.StateHalfOpen, cb.State())

		cb.RecordSuccess()
		assert.Equal(t, breaker.StateClosed, cb.State())
	})

	t.Run("half-open admits one trial call at a time", func(t *testing.T) {
		t.Parallel()

		cb := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, RecoveryTimeout: 50 * time.Millisecond})

		cb.RecordFailure()
		time.Sleep(60 * time.Millisecond)

		// A burst arriving after the cooldown gets exactly one call through
		// until the trial's outcome is known.
		assert.True(t, cb.Allow())
		assert.False(t, cb.Allow())
		assert.False(t, cb.Allow())

		// The trial succeeded; the next caller becomes the second probe.
		cb.RecordSuccess()
		assert.True(t, cb.Allow())
		assert.False(t, cb.Allow())

		cb.RecordSuccess()
		assert.Equal(t, breaker.StateClosed, cb.State())
		assert.True(t, cb.Allow())
	})

	t.Run("failed trial call blocks the burst and reopens", func(t *testing.T) {
		t.Parallel()

		cb := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: 50 * time.Millisecond})

		cb.RecordFailure()
		time.Sleep(60 * time.Millisecond)

		assert.True(t, cb.Allow())
		assert.False(t, cb.Allow())

		cb.RecordFailure()
		assert.Equal(t, breaker.StateOpen, cb.State())
		assert.False(t, cb.Allow())
	})

	t.Run("half-open reopens on failed probe", func(t *testing.T) {
		t.Parallel()

		cb := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, RecoveryTimeout: 50 * time.Millisecond})

		cb.RecordFailure()
		time.Sleep(60 * time.Millisecond)
		assert.True(t, cb.Allow())

		cb.RecordFailure()
		assert.Equal(t, breaker.StateOpen, cb.State())
		assert.False(t, cb.Allow())
	})
}

func TestCircuitBreaker_Do(t *testing.T) {
	t.Parallel()

	t.Run("short-circuits without invoking fn when open", func(t *testing.T) {
		t.Parallel()

		cb := breaker.New(breaker.Config{FailureThreshold: 5, SuccessThreshold: 1, RecoveryTimeout: time.Minute})
		ctx := context.Background()

		calls := 0
		for range 5 {
			err := cb.Do(ctx, func(context.Context) error {
				calls++
				return errBoom
			})
			require.ErrorIs(t, err, errBoom)
		}
		assert.Equal(t, 5, calls)

		err := cb.Do(ctx, func(context.Context) error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, breaker.ErrOpen)
		assert.Equal(t, 5, calls, "fn must not run while the circuit is open")
	})

	t.Run("exactly one probe allowed after cooldown", func(t *testing.T) {
		t.Parallel()

		cb := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, RecoveryTimeout: 50 * time.Millisecond})
		ctx := context.Background()

		require.ErrorIs(t, cb.Do(ctx, func(context.Context) error { return errBoom }), errBoom)
		require.ErrorIs(t, cb.Do(ctx, func(context.Context) error { return nil }), breaker.ErrOpen)

		time.Sleep(60 * time.Millisecond)

		require.NoError(t, cb.Do(ctx, func(context.Context) error { return nil }))
		assert.Equal(t, breaker.StateHalfOpen, cb.State())
	})

	t.Run("success resets consecutive failure count", func(t *testing.T) {
		t.Parallel()

		cb := breaker.New(breaker.Config{FailureThreshold: 3, SuccessThreshold: 1, RecoveryTimeout: time.Minute})
		ctx := context.Background()

		for range 2 {
			_ = cb.Do(ctx, func(context.Context) error { return errBoom })
		}
		require.NoError(t, cb.Do(ctx, func(context.Context) error { return nil }))

		for range 2 {
			_ = cb.Do(ctx, func(context.Context) error { return errBoom })
		}
		assert.Equal(t, breaker.StateClosed, cb.State())
	})
}

func TestCircuitBreaker_Concurrency(t *testing.T) {
	t.Parallel()

	cb := breaker.New(breaker.Config{FailureThreshold: 50, SuccessThreshold: 2, RecoveryTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
			cb.Allow()
			cb.State()
		}(i)
	}
	wg.Wait()

	// No assertion on the final state; the test guards against data races.
	cb.Reset()
	assert.Equal(t, breaker.StateClosed, cb.State())
}

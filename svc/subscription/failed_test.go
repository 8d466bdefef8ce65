package subscription_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/svc/subscription"
)

func TestMemoryFailedOpStore_ListFiltersByStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryFailedOpStore()

	for _, op := range []*subscription.FailedOperation{
		{Fingerprint: "a", Status: subscription.FailedOpPending},
		{Fingerprint: "b", Status: subscription.FailedOpExceeded},
		{Fingerprint: "c", Status: subscription.FailedOpPending},
	} {
		require.NoError(t, store.Save(ctx, op))
	}

	pending, err := store.List(ctx, subscription.FailedOpPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	limited, err := store.List(ctx, subscription.FailedOpPending, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	exceeded, err := store.List(ctx, subscription.FailedOpExceeded, 0)
	require.NoError(t, err)
	require.Len(t, exceeded, 1)
	assert.Equal(t, "b", exceeded[0].Fingerprint)

	require.NoError(t, store.Delete(ctx, "b"))
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, subscription.ErrFailedOpNotFound)
}

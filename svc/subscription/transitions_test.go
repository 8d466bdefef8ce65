package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/svc/subscription"
)

func TestTransitions_CheckoutWithoutTierStartsTrial(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	proc, deps := newTestProcessor(t)

	_, err := proc.Process(ctx, subscription.Event{
		ID:        "evt_1",
		Type:      subscription.EventCheckoutCompleted,
		SubjectID: "cus_1",
		Payload:   subscription.Payload{ObjectID: "txn_1"},
	})
	require.NoError(t, err)

	rec, err := deps.store.Get(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, rec.Status)
	assert.Equal(t, subscription.TierTrial, rec.Tier)
}

func TestTransitions_ActivateClearsCancellation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	proc, deps := newTestProcessor(t)

	_, err := proc.Process(ctx, checkoutEvent("evt_1", "cus_1"))
	require.NoError(t, err)
	_, err = proc.Process(ctx, subscription.Event{
		ID:        "evt_2",
		Type:      subscription.EventPaymentFailed,
		SubjectID: "cus_1",
		Payload:   subscription.Payload{ObjectID: "sub_abc"},
	})
	require.NoError(t, err)

	// A fresh subscription.created after the failure reactivates cleanly.
	_, err = proc.Process(ctx, subscription.Event{
		ID:        "evt_3",
		Type:      subscription.EventSubscriptionCreated,
		SubjectID: "cus_1",
		Payload:   subscription.Payload{ObjectID: "sub_new", Tier: subscription.TierStarter},
	})
	require.NoError(t, err)

	rec, err := deps.store.Get(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, rec.Status)
	assert.Equal(t, subscription.TierStarter, rec.Tier)
	assert.Empty(t, rec.CancellationReason)
	assert.False(t, rec.CancelAtPeriodEnd)
}

func TestTransitions_UpdateSchedulesCancelAtPeriodEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	proc, deps := newTestProcessor(t)

	_, err := proc.Process(ctx, checkoutEvent("evt_1", "cus_1"))
	require.NoError(t, err)

	cancel := true
	_, err = proc.Process(ctx, subscription.Event{
		ID:        "evt_2",
		Type:      subscription.EventSubscriptionUpdated,
		SubjectID: "cus_1",
		Payload: subscription.Payload{
			ObjectID:          "sub_abc",
			ProviderStatus:    "active",
			CancelAtPeriodEnd: &cancel,
		},
	})
	require.NoError(t, err)

	// The flag is set but the subscription runs until the period ends.
	rec, err := deps.store.Get(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, rec.Status)
	assert.True(t, rec.CancelAtPeriodEnd)

	// The provider reports the subscription gone at period end.
	_, err = proc.Process(ctx, subscription.Event{
		ID:        "evt_3",
		Type:      subscription.EventSubscriptionUpdated,
		SubjectID: "cus_1",
		Payload: subscription.Payload{
			ObjectID:          "sub_abc",
			ProviderStatus:    "canceled",
			CancelAtPeriodEnd: &cancel,
		},
	})
	require.NoError(t, err)

	rec, err = deps.store.Get(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, rec.Status)
	assert.Equal(t, subscription.ReasonCancelAtPeriodEnd, rec.CancellationReason)
}

func TestTransitions_TierChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	proc, deps := newTestProcessor(t)

	_, err := proc.Process(ctx, checkoutEvent("evt_1", "cus_1"))
	require.NoError(t, err)

	_, err = proc.Process(ctx, subscription.Event{
		ID:        "evt_2",
		Type:      subscription.EventSubscriptionUpdated,
		SubjectID: "cus_1",
		Payload: subscription.Payload{
			ObjectID: "sub_abc",
			Tier:     subscription.TierPro,
			Amount:   9900,
			Currency: "USD",
		},
	})
	require.NoError(t, err)

	rec, err := deps.store.Get(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, rec.Tier)
	assert.Equal(t, int64(9900), rec.Billing.Amount)
}

func TestTransitions_TrialExpiryRecheckUnderLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	proc, deps := newTestProcessor(t)

	// Subject converted to a paid plan before the sweep's event arrives.
	_, err := proc.Process(ctx, checkoutEvent("evt_1", "cus_1"))
	require.NoError(t, err)

	res, err := proc.Process(ctx, subscription.Event{
		ID:         "trial_expiry:cus_1:2025-06-15",
		Type:       subscription.EventTrialExpired,
		SubjectID:  "cus_1",
		Payload:    subscription.Payload{ObjectID: "sub_abc"},
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeNoChange, res.Outcome)

	rec, err := deps.store.Get(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, rec.Status)
	assert.Equal(t, subscription.TierGrowth, rec.Tier)
}

func TestTransitions_TrialExpiryAtExactPeriodEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	proc, deps := newTestProcessor(t)

	end := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	_, err := proc.Process(ctx, subscription.Event{
		ID:        "evt_1",
		Type:      subscription.EventCheckoutCompleted,
		SubjectID: "cus_1",
		Payload:   subscription.Payload{ObjectID: "txn_1", PeriodEnd: &end},
	})
	require.NoError(t, err)

	// At the exact period-end instant the trial is still running; the
	// transition and IsTrialExpiredAt agree on strictly-after.
	res, err := proc.Process(ctx, subscription.Event{
		ID:         "trial_expiry:cus_1:at",
		Type:       subscription.EventTrialExpired,
		SubjectID:  "cus_1",
		Payload:    subscription.Payload{ObjectID: "txn_1"},
		OccurredAt: end,
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeNoChange, res.Outcome)

	rec, err := deps.store.Get(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, rec.Status)
	assert.False(t, rec.IsTrialExpiredAt(end))

	// One instant past the boundary it expires.
	res, err = proc.Process(ctx, subscription.Event{
		ID:         "trial_expiry:cus_1:after",
		Type:       subscription.EventTrialExpired,
		SubjectID:  "cus_1",
		Payload:    subscription.Payload{ObjectID: "txn_1"},
		OccurredAt: end.Add(time.Nanosecond),
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeApplied, res.Outcome)

	rec, err = deps.store.Get(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, rec.Status)
	assert.Equal(t, subscription.ReasonTrialExpired, rec.CancellationReason)
}

func TestProcessor_CustomTransitionOverride(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	called := false
	proc, _ := newTestProcessor(t, subscription.WithTransition(
		subscription.EventSubscriptionDeleted,
		func(cur *subscription.Record, evt subscription.Event) (*subscription.Update, error) {
			called = true
			return nil, nil
		}))

	res, err := proc.Process(ctx, subscription.Event{
		ID:        "evt_1",
		Type:      subscription.EventSubscriptionDeleted,
		SubjectID: "cus_1",
		Payload:   subscription.Payload{ObjectID: "sub_abc"},
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, subscription.OutcomeNoChange, res.Outcome)
}

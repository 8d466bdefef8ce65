package subscription

import (
	"time"

	"github.com/dmitrymomot/subsync/pkg/ledger"
)

// EventType is the normalized billing event type the processor consumes.
// Provider adapters map their native event names onto these.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout-completed"
	EventSubscriptionCreated EventType = "subscription-created"
	EventSubscriptionUpdated EventType = "subscription-updated"
	EventSubscriptionDeleted EventType = "subscription-deleted"
	EventInvoicePaid         EventType = "invoice-paid"
	EventPaymentFailed       EventType = "payment-failed"

	// EventTrialExpired is internal: synthesized by the trial sweeper, never
	// delivered by a provider.
	EventTrialExpired EventType = "trial-expired"
)

// Event is one normalized delivery from the payment provider. Deliveries are
// at-least-once and possibly out of order; the Fingerprint identifies the
// logical effect so redeliveries can be recognized.
type Event struct {
	ID         string    `bson:"id" json:"id"`                 // provider event id
	Type       EventType `bson:"type" json:"type"`             //
	SubjectID  string    `bson:"subject_id" json:"subject_id"` // customer the event is about
	Payload    Payload   `bson:"payload" json:"payload"`
	OccurredAt time.Time `bson:"occurred_at" json:"occurred_at"`
}

// Payload carries the subscription attributes an event may update. Absent
// (zero or nil) fields leave the record untouched; this replaces the
// arbitrary-key update objects of loosely typed webhook handlers with a
// structure that is validated before merging.
type Payload struct {
	ObjectID           string     `bson:"object_id,omitempty" json:"object_id,omitempty"` // provider object the event is about (sub_xxx, txn_xxx)
	Tier               Tier       `bson:"tier,omitempty" json:"tier,omitempty"`
	Amount             int64      `bson:"amount,omitempty" json:"amount,omitempty"`
	Currency           string     `bson:"currency,omitempty" json:"currency,omitempty"`
	ProviderSubID      string     `bson:"provider_sub_id,omitempty" json:"provider_sub_id,omitempty"`
	ProviderCustomerID string     `bson:"provider_customer_id,omitempty" json:"provider_customer_id,omitempty"`
	ProviderStatus     string     `bson:"provider_status,omitempty" json:"provider_status,omitempty"` // status as reported by the source
	PeriodStart        *time.Time `bson:"period_start,omitempty" json:"period_start,omitempty"`
	PeriodEnd          *time.Time `bson:"period_end,omitempty" json:"period_end,omitempty"`
	CancelAtPeriodEnd  *bool      `bson:"cancel_at_period_end,omitempty" json:"cancel_at_period_end,omitempty"`
}

// Fingerprint derives the idempotency key for this delivery.
func (e Event) Fingerprint() ledger.Fingerprint {
	return ledger.NewFingerprint(e.ID, e.Payload.ObjectID)
}

package subscription

import "time"

// Record is the authoritative local subscription state for one subject
// (customer). It is owned exclusively by the Store: callers never assign
// fields directly, every mutation goes through MergeWrite so the version
// counter keeps its meaning.
type Record struct {
	SubjectID          string     `bson:"_id" json:"subject_id"`
	Status             Status     `bson:"status" json:"status"`
	Tier               Tier       `bson:"tier" json:"tier"`
	PeriodStart        *time.Time `bson:"period_start,omitempty" json:"period_start,omitempty"`
	PeriodEnd          *time.Time `bson:"period_end,omitempty" json:"period_end,omitempty"`
	CancelAtPeriodEnd  bool       `bson:"cancel_at_period_end" json:"cancel_at_period_end"`
	CancellationReason string     `bson:"cancellation_reason,omitempty" json:"cancellation_reason,omitempty"`
	Billing            Billing    `bson:"billing" json:"billing"`
	ProviderSubID      string     `bson:"provider_sub_id,omitempty" json:"provider_sub_id,omitempty"`
	ProviderCustomerID string     `bson:"provider_customer_id,omitempty" json:"provider_customer_id,omitempty"`

	// Version strictly increases by one on every accepted write. Two
	// writers that read the same version can never both succeed.
	Version int64 `bson:"version" json:"version"`

	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
	LastEventAt time.Time `bson:"last_event_at" json:"last_event_at"` // when the last provider event touched this record
}

func (r *Record) IsActive() bool    { return r.Status == StatusActive }
func (r *Record) IsCancelled() bool { return r.Status == StatusCancelled }

// IsTrialExpiredAt reports whether the subject sits on an expired trial at
// the given time. Taking the clock as a parameter keeps the sweep testable.
func (r *Record) IsTrialExpiredAt(now time.Time) bool {
	if r.Tier != TierTrial || r.PeriodEnd == nil {
		return false
	}
	return now.After(*r.PeriodEnd)
}

// Clone returns a deep copy. The store hands out and accepts copies only, so
// callers can never mutate shared state through an aliased pointer.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.PeriodStart != nil {
		t := *r.PeriodStart
		cp.PeriodStart = &t
	}
	if r.PeriodEnd != nil {
		t := *r.PeriodEnd
		cp.PeriodEnd = &t
	}
	return &cp
}

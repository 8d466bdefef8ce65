package subscription

import "time"

// Update is a typed partial update to a Record. Nil fields leave the current
// value untouched; the merge is shallow per field, with Billing replaced as
// one block. Transition functions build Updates, the Store applies them.
type Update struct {
	// BaseVersion is the record version the update was computed from. A
	// non-zero BaseVersion that no longer matches the stored record makes
	// MergeWrite fail with ErrStaleVersion instead of losing the
	// intervening write. Zero skips the check (create path).
	BaseVersion int64

	Status             *Status
	Tier               *Tier
	PeriodStart        *time.Time
	PeriodEnd          *time.Time
	CancelAtPeriodEnd  *bool
	CancellationReason *string
	Billing            *Billing
	ProviderSubID      *string
	ProviderCustomerID *string
}

// IsEmpty reports whether the update would change nothing.
func (u Update) IsEmpty() bool {
	return u.Status == nil && u.Tier == nil &&
		u.PeriodStart == nil && u.PeriodEnd == nil &&
		u.CancelAtPeriodEnd == nil && u.CancellationReason == nil &&
		u.Billing == nil && u.ProviderSubID == nil && u.ProviderCustomerID == nil
}

// apply merges the update into the record in place. Version bookkeeping and
// timestamps are the store's job, not apply's.
func (u Update) apply(r *Record) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.Tier != nil {
		r.Tier = *u.Tier
	}
	if u.PeriodStart != nil {
		t := *u.PeriodStart
		r.PeriodStart = &t
	}
	if u.PeriodEnd != nil {
		t := *u.PeriodEnd
		r.PeriodEnd = &t
	}
	if u.CancelAtPeriodEnd != nil {
		r.CancelAtPeriodEnd = *u.CancelAtPeriodEnd
	}
	if u.CancellationReason != nil {
		r.CancellationReason = *u.CancellationReason
	}
	if u.Billing != nil {
		r.Billing = *u.Billing
	}
	if u.ProviderSubID != nil {
		r.ProviderSubID = *u.ProviderSubID
	}
	if u.ProviderCustomerID != nil {
		r.ProviderCustomerID = *u.ProviderCustomerID
	}
}

func ptr[T any](v T) *T { return &v }

package subscription

// TransitionFunc computes the partial update an event applies to the
// subject's record. cur is nil when no record exists yet. Returning a nil
// update with a nil error means the event has nothing to change; it is still
// marked processed so redeliveries stay no-ops. A returned error should be a
// *TransitionError for domain failures.
//
// The processor ships defaults for every consumed event type; callers may
// override individual types with WithTransition.
type TransitionFunc func(cur *Record, evt Event) (*Update, error)

func defaultTransitions() map[EventType]TransitionFunc {
	return map[EventType]TransitionFunc{
		EventCheckoutCompleted:   transitionActivate,
		EventSubscriptionCreated: transitionActivate,
		EventSubscriptionUpdated: transitionUpdate,
		EventSubscriptionDeleted: transitionDelete,
		EventInvoicePaid:         transitionRenew,
		EventPaymentFailed:       transitionPaymentFailed,
		EventTrialExpired:        transitionTrialExpiry,
	}
}

// transitionActivate handles checkout completion and subscription creation:
// no record or a trialing one becomes an active subscription on the paid
// tier, with billing and provider references filled in.
func transitionActivate(cur *Record, evt Event) (*Update, error) {
	p := evt.Payload
	if p.Tier != "" && !p.Tier.Valid() {
		return nil, newTransitionError(evt, "unknown tier "+string(p.Tier))
	}

	upd := &Update{
		Status:             ptr(StatusActive),
		CancelAtPeriodEnd:  ptr(false),
		CancellationReason: ptr(""),
	}
	if p.Tier != "" {
		upd.Tier = ptr(p.Tier)
	} else if cur == nil {
		upd.Tier = ptr(TierTrial)
	}
	if p.Amount != 0 || p.Currency != "" {
		upd.Billing = &Billing{Amount: p.Amount, Currency: p.Currency}
	}
	if p.ProviderSubID != "" {
		upd.ProviderSubID = ptr(p.ProviderSubID)
	}
	if p.ProviderCustomerID != "" {
		upd.ProviderCustomerID = ptr(p.ProviderCustomerID)
	}
	if p.PeriodStart != nil {
		upd.PeriodStart = p.PeriodStart
	}
	if p.PeriodEnd != nil {
		upd.PeriodEnd = p.PeriodEnd
	}
	return upd, nil
}

// transitionRenew handles a successful recurring payment: the subscription
// stays active and the period end moves forward.
func transitionRenew(cur *Record, evt Event) (*Update, error) {
	if cur == nil {
		return nil, newTransitionError(evt, "payment for a subject with no subscription record")
	}

	upd := &Update{
		Status:             ptr(StatusActive),
		CancellationReason: ptr(""),
	}
	if evt.Payload.PeriodEnd != nil {
		upd.PeriodEnd = evt.Payload.PeriodEnd
	}
	if evt.Payload.Amount != 0 || evt.Payload.Currency != "" {
		upd.Billing = &Billing{Amount: evt.Payload.Amount, Currency: evt.Payload.Currency}
	}
	if evt.Payload.ProviderSubID != "" {
		upd.ProviderSubID = ptr(evt.Payload.ProviderSubID)
	}
	return upd, nil
}

// transitionUpdate handles plan and cancellation-flag changes. When the
// source reports the subscription as no longer active and the
// cancel-at-period-end flag is set, the record moves to cancelled.
func transitionUpdate(cur *Record, evt Event) (*Update, error) {
	if cur == nil {
		return nil, newTransitionError(evt, "update for a subject with no subscription record")
	}
	p := evt.Payload
	if p.Tier != "" && !p.Tier.Valid() {
		return nil, newTransitionError(evt, "unknown tier "+string(p.Tier))
	}

	upd := &Update{}
	if p.Tier != "" {
		upd.Tier = ptr(p.Tier)
	}
	if p.CancelAtPeriodEnd != nil {
		upd.CancelAtPeriodEnd = p.CancelAtPeriodEnd
	}
	if p.PeriodEnd != nil {
		upd.PeriodEnd = p.PeriodEnd
	}
	if p.Amount != 0 || p.Currency != "" {
		upd.Billing = &Billing{Amount: p.Amount, Currency: p.Currency}
	}
	if p.ProviderSubID != "" {
		upd.ProviderSubID = ptr(p.ProviderSubID)
	}

	cancelRequested := p.CancelAtPeriodEnd != nil && *p.CancelAtPeriodEnd
	sourceInactive := p.ProviderStatus != "" && p.ProviderStatus != "active" && p.ProviderStatus != "trialing"
	if cancelRequested && sourceInactive {
		upd.Status = ptr(StatusCancelled)
		upd.CancellationReason = ptr(ReasonCancelAtPeriodEnd)
	}
	return upd, nil
}

// transitionDelete handles subscription removal at the provider. The record
// goes inactive, which is final; deleting an unknown subject changes nothing.
func transitionDelete(cur *Record, evt Event) (*Update, error) {
	if cur == nil {
		return nil, nil
	}
	return &Update{
		Status:             ptr(StatusInactive),
		CancellationReason: ptr(ReasonSubscriptionDeleted),
	}, nil
}

// transitionPaymentFailed cancels the current billing cycle. Unlike delete
// this is recoverable: a later successful payment reactivates.
func transitionPaymentFailed(cur *Record, evt Event) (*Update, error) {
	if cur == nil {
		return nil, newTransitionError(evt, "payment failure for a subject with no subscription record")
	}
	return &Update{
		Status:             ptr(StatusCancelled),
		CancellationReason: ptr(ReasonPaymentFailed),
	}, nil
}

// transitionTrialExpiry handles the sweeper's internal event. Only a record
// still on the trial tier with its end date in the past is cancelled; the
// recheck under the subject lock protects against a conversion to a paid
// plan racing the sweep.
func transitionTrialExpiry(cur *Record, evt Event) (*Update, error) {
	if cur == nil {
		return nil, newTransitionError(evt, "trial expiry for a subject with no subscription record")
	}
	if cur.Tier != TierTrial || cur.Status != StatusActive {
		return nil, nil
	}
	if cur.PeriodEnd == nil || !evt.OccurredAt.After(*cur.PeriodEnd) {
		return nil, nil
	}
	return &Update{
		Status:             ptr(StatusCancelled),
		CancellationReason: ptr(ReasonTrialExpired),
	}, nil
}

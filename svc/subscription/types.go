package subscription

// Status represents the lifecycle state of a subject's subscription record.
// A trialing subject is an active record on the trial tier; "no record yet"
// is not a status, it is the absence of the record.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled" // terminal for the billing cycle, recoverable
	StatusInactive  Status = "inactive"  // final
)

// Tier represents the plan level a subject is on.
type Tier string

const (
	TierTrial      Tier = "trial"
	TierStarter    Tier = "starter"
	TierGrowth     Tier = "growth"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether the tier is one of the known plan levels.
func (t Tier) Valid() bool {
	switch t {
	case TierTrial, TierStarter, TierGrowth, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Billing summarizes what the subject is paying, in the smallest currency
// unit. $29.00 USD is Amount: 2900, Currency: "USD".
type Billing struct {
	Amount   int64  `bson:"amount" json:"amount"`
	Currency string `bson:"currency" json:"currency"` // ISO 4217 code
}

// Cancellation reasons stamped on records when they leave the active state.
const (
	ReasonTrialExpired        = "trial_expired"
	ReasonPaymentFailed       = "payment_failed"
	ReasonSubscriptionDeleted = "subscription_deleted"
	ReasonCancelAtPeriodEnd   = "cancel_at_period_end"
)

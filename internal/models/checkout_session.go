package models

import "time"

type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionConsumed SessionStatus = "consumed"
)

// PaymentOutcome is what the processor reported for a session.
type PaymentOutcome string

const (
	OutcomeSuccess   PaymentOutcome = "success"
	OutcomeFailure   PaymentOutcome = "failure"
	OutcomeExpired   PaymentOutcome = "expired"
	OutcomeCancelled PaymentOutcome = "cancelled" // closed on our side, e.g. processor rejected creation
)

// Valid reports whether o may arrive from the processor.
func (o PaymentOutcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure || o == OutcomeExpired
}

// CheckoutSession is one attempt to pay for a package on a listing. It is consumed exactly
// once and never reused for another listing or package.
type CheckoutSession struct {
	ID            string         `bson:"_id" json:"id"`
	ListingID     string         `bson:"listing_id" json:"listingId"`
	OwnerID       string         `bson:"owner_id" json:"ownerId"`
	PackageCode   string         `bson:"package_code" json:"packageCode"`
	RuntimeMonths int            `bson:"runtime_months" json:"runtimeMonths"`
	AmountCents   int64          `bson:"amount_cents" json:"amountCents"`
	Currency      string         `bson:"currency" json:"currency"`
	Renewal       bool           `bson:"renewal" json:"renewal"`
	ProcessorRef  string         `bson:"processor_ref,omitempty" json:"processorRef,omitempty"`
	RedirectURL   string         `bson:"redirect_url,omitempty" json:"redirectUrl,omitempty"`
	Status        SessionStatus  `bson:"status" json:"status"`
	Outcome       PaymentOutcome `bson:"outcome,omitempty" json:"outcome,omitempty"`
	CreatedAt     time.Time      `bson:"created_at" json:"createdAt"`
	ExpiresAt     time.Time      `bson:"expires_at" json:"expiresAt"`
	ConsumedAt    *time.Time     `bson:"consumed_at,omitempty" json:"consumedAt,omitempty"`
	AppliedAt     *time.Time     `bson:"applied_at,omitempty" json:"appliedAt,omitempty"`
}

// Applied reports whether the listing side effects of a consumed session are done.
func (s *CheckoutSession) Applied() bool {
	return s.AppliedAt != nil
}

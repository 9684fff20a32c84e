package models

import "time"

// PackageSelection binds a paid package to a listing for one runtime period.
// Price and currency are copied at purchase time so later catalog changes never touch it.
type PackageSelection struct {
	Code          string    `bson:"code" json:"code"`
	Segment       string    `bson:"segment" json:"segment"`
	Tier          string    `bson:"tier" json:"tier"`
	RuntimeMonths int       `bson:"runtime_months" json:"runtimeMonths"`
	PriceCents    int64     `bson:"price_cents" json:"priceCents"`
	Currency      string    `bson:"currency" json:"currency"`
	SessionID     string    `bson:"session_id" json:"sessionId"`
	PeriodStart   time.Time `bson:"period_start" json:"periodStart"`
	PeriodEnd     time.Time `bson:"period_end" json:"periodEnd"`
}

// Expired reports whether the runtime period is over at now.
func (p *PackageSelection) Expired(now time.Time) bool {
	return !now.Before(p.PeriodEnd)
}

// PeriodFrom computes the runtime period that starts at start.
func PeriodFrom(start time.Time, runtimeMonths int) (time.Time, time.Time) {
	return start, start.AddDate(0, runtimeMonths, 0)
}

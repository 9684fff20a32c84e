package models

import "time"

// Readiness reports whether a listing could be submitted for checkout right now.
type Readiness struct {
	ListingID string        `json:"listingId"`
	OwnerID   string        `json:"ownerId"`
	Status    ListingStatus `json:"status"`
	Ready     bool          `json:"ready"`
	Missing   []string      `json:"missing"`
	Invalid   []string      `json:"invalid"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// CheckReadiness runs both validation modes over the listing content.
func CheckReadiness(l *Listing, at time.Time) *Readiness {
	missing := l.MissingMandatory()
	invalid := l.StructuralProblems()
	if missing == nil {
		missing = []string{}
	}
	if invalid == nil {
		invalid = []string{}
	}
	return &Readiness{
		ListingID: l.ID,
		OwnerID:   l.OwnerID,
		Status:    l.Status,
		Ready:     len(missing) == 0 && len(invalid) == 0,
		Missing:   missing,
		Invalid:   invalid,
		CheckedAt: at,
	}
}

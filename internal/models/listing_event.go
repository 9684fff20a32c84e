package models

import "time"

const (
	EventListingChanged       = "listing.changed"
	EventListingStatusChanged = "listing.status_changed"
)

// ListingEvent is published on every content write and status change.
type ListingEvent struct {
	Type       string        `json:"type"`
	ListingID  string        `json:"listingId"`
	OwnerID    string        `json:"ownerId"`
	Status     ListingStatus `json:"status"`
	FromStatus ListingStatus `json:"fromStatus,omitempty"`
	Trigger    string        `json:"trigger,omitempty"`
	At         time.Time     `json:"at"`
}

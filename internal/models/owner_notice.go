package models

import "time"

// NoticeKind names an owner email.
type NoticeKind string

const (
	NoticeActivated NoticeKind = "listing-activated"
	NoticeExpired   NoticeKind = "listing-expired"
	NoticeRenewal   NoticeKind = "renewal-payment"
)

// OwnerNotice is an email to the listing contact about a lifecycle change.
type OwnerNotice struct {
	Kind        NoticeKind `json:"kind"`
	ListingID   string     `json:"listingId"`
	OwnerID     string     `json:"ownerId"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Title       string     `json:"title"`
	PackageCode string     `json:"packageCode,omitempty"`
	PeriodEnd   *time.Time `json:"periodEnd,omitempty"`
	RedirectURL string     `json:"redirectUrl,omitempty"`
}

// NewOwnerNotice fills a notice from the listing's contact and package data.
func NewOwnerNotice(kind NoticeKind, l *Listing) OwnerNotice {
	n := OwnerNotice{
		Kind:      kind,
		ListingID: l.ID,
		OwnerID:   l.OwnerID,
		Email:     l.Contact.Email,
		Name:      l.Contact.Name,
		Title:     l.Basis.Title,
	}
	if l.PackageSelection != nil {
		end := l.PackageSelection.PeriodEnd
		n.PackageCode = l.PackageSelection.Code
		n.PeriodEnd = &end
	}
	return n
}

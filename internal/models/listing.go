package models

import (
	"time"
)

// ListingStatus is the lifecycle position of a listing. It is the single source of truth
// for what the listing may do next.
type ListingStatus string

const (
	StatusDraft          ListingStatus = "draft"
	StatusPendingPayment ListingStatus = "pending_payment"
	StatusPendingSync    ListingStatus = "pending_sync"
	StatusActive         ListingStatus = "active"
	StatusDeactivated    ListingStatus = "deactivated"
	StatusMarketed       ListingStatus = "marketed"
	StatusArchived       ListingStatus = "archived"
	StatusDeleted        ListingStatus = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingPayment, StatusPendingSync, StatusActive,
		StatusDeactivated, StatusMarketed, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// Editable reports whether the owner may still replace the listing content.
func (s ListingStatus) Editable() bool {
	return s == StatusDraft || s == StatusPendingPayment
}

// Terminal statuses never change again.
func (s ListingStatus) Terminal() bool {
	return s == StatusArchived || s == StatusDeleted
}

// TransactionType doubles as the package segment a listing can be bought for.
const (
	TransactionSale = "sale"
	TransactionRent = "rent"
)

// ListingBasis holds the classification and the free texts of a listing.
type ListingBasis struct {
	TransactionType string `bson:"transaction_type" json:"transactionType"`
	UsageType       string `bson:"usage_type" json:"usageType"`
	OfferType       string `bson:"offer_type" json:"offerType"`
	Category        string `bson:"category" json:"category"`
	Subtype         string `bson:"subtype" json:"subtype"`
	Title           string `bson:"title" json:"title"`
	Description     string `bson:"description" json:"description"`
}

// ListingAddress is the property location. HideExactAddress keeps street and house
// number out of public exports.
type ListingAddress struct {
	Street           string `bson:"street" json:"street"`
	HouseNumber      string `bson:"house_number" json:"houseNumber"`
	PostalCode       string `bson:"postal_code" json:"postalCode"`
	City             string `bson:"city" json:"city"`
	Country          string `bson:"country" json:"country"`
	HideExactAddress bool   `bson:"hide_exact_address" json:"hideExactAddress"`
}

// ListingDetails are the measurable facts of the property.
type ListingDetails struct {
	LivingArea *float64 `bson:"living_area,omitempty" json:"livingArea,omitempty"` // m²
	LandArea   *float64 `bson:"land_area,omitempty" json:"landArea,omitempty"`     // m²
	Rooms      *float64 `bson:"rooms,omitempty" json:"rooms,omitempty"`
	Floors     *int     `bson:"floors,omitempty" json:"floors,omitempty"`
	Floor      *int     `bson:"floor,omitempty" json:"floor,omitempty"`
	YearBuilt  *int     `bson:"year_built,omitempty" json:"yearBuilt,omitempty"`
}

// ListingEnergy is the energy certificate data.
type ListingEnergy struct {
	CertificateType  string     `bson:"certificate_type" json:"certificateType"` // demand | consumption | none
	EnergyClass      string     `bson:"energy_class" json:"energyClass"`
	ConsumptionValue *float64   `bson:"consumption_value,omitempty" json:"consumptionValue,omitempty"` // kWh/(m²·a)
	HeatingType      string     `bson:"heating_type" json:"heatingType"`
	ValidUntil       *time.Time `bson:"valid_until,omitempty" json:"validUntil,omitempty"`
}

// ListingPricing holds the asking price and the cost side of a rental.
type ListingPricing struct {
	Price          *float64 `bson:"price,omitempty" json:"price,omitempty"`
	Currency       string   `bson:"currency" json:"currency"`
	AncillaryCosts *float64 `bson:"ancillary_costs,omitempty" json:"ancillaryCosts,omitempty"`
	Deposit        *float64 `bson:"deposit,omitempty" json:"deposit,omitempty"`
	PriceOnRequest bool     `bson:"price_on_request" json:"priceOnRequest"`
}

// ListingAvailability describes when the property can be taken over.
type ListingAvailability struct {
	AvailableFrom *time.Time `bson:"available_from,omitempty" json:"availableFrom,omitempty"`
	AvailableNow  bool       `bson:"available_now" json:"availableNow"`
	TakeoverNote  string     `bson:"takeover_note" json:"takeoverNote"`
}

// ListingContact is the owner's contact block. The Show* flags control which fields are
// visible on the published listing.
type ListingContact struct {
	Name      string `bson:"name" json:"name"`
	Email     string `bson:"email" json:"email"`
	Phone     string `bson:"phone" json:"phone"`
	ShowName  bool   `bson:"show_name" json:"showName"`
	ShowEmail bool   `bson:"show_email" json:"showEmail"`
	ShowPhone bool   `bson:"show_phone" json:"showPhone"`
}

// ListingConsent records the explicit confirmations the owner gave.
type ListingConsent struct {
	AcceptTerms   bool `bson:"accept_terms" json:"acceptTerms"`
	AcceptPrivacy bool `bson:"accept_privacy" json:"acceptPrivacy"`
}

// ListingContent is everything the owner edits. Updates replace it as a whole.
type ListingContent struct {
	Basis        ListingBasis        `bson:"basis" json:"basis"`
	Address      ListingAddress      `bson:"address" json:"address"`
	Details      ListingDetails      `bson:"details" json:"details"`
	Energy       ListingEnergy       `bson:"energy" json:"energy"`
	Pricing      ListingPricing      `bson:"pricing" json:"pricing"`
	Availability ListingAvailability `bson:"availability" json:"availability"`
	Contact      ListingContact      `bson:"contact" json:"contact"`
	Consent      ListingConsent      `bson:"consent" json:"consent"`
}

// Listing is a property advert moving through the lifecycle.
type Listing struct {
	ID             string `bson:"_id" json:"id"`
	OwnerID        string `bson:"owner_id" json:"ownerId"`
	ListingContent `bson:",inline"`

	Status           ListingStatus     `bson:"status" json:"status"`
	PackageSelection *PackageSelection `bson:"package_selection,omitempty" json:"packageSelection,omitempty"`
	PaymentHistory   bool              `bson:"payment_history" json:"-"` // reached pending_payment at least once

	CreatedAt       time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `bson:"updated_at" json:"updatedAt"`
	StatusChangedAt time.Time  `bson:"status_changed_at" json:"statusChangedAt"`
	StatusTrigger   string     `bson:"status_trigger,omitempty" json:"statusTrigger,omitempty"` // cause of the last status change
	MarketedAt      *time.Time `bson:"marketed_at,omitempty" json:"marketedAt,omitempty"`
}

// Segment returns the package segment this listing can be bought for.
func (l *Listing) Segment() string {
	return l.Basis.TransactionType
}

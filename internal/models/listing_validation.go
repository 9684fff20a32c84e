package models

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 10000
	MaxShortTextLength   = 200
	MaxNoteLength        = 1000
	MaxCodeLength        = 20
)

var (
	postalCodeDE = regexp.MustCompile(`^[0-9]{5}$`)
	currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)
)

var (
	usageTypes       = map[string]bool{"residential": true, "commercial": true}
	offerTypes       = map[string]bool{"private": true, "commercial": true}
	certificateTypes = map[string]bool{"demand": true, "consumption": true, "none": true}
	energyClasses    = map[string]bool{"A+": true, "A": true, "B": true, "C": true, "D": true, "E": true, "F": true, "G": true, "H": true}
)

// StructuralProblems checks shape only: enum values, lengths, formats and signs.
// Empty fields are fine; drafts are allowed to be incomplete.
// The result names the offending fields.
func (c *ListingContent) StructuralProblems() []string {
	var bad []string
	add := func(field string) { bad = append(bad, field) }

	b := c.Basis
	if b.TransactionType != "" && b.TransactionType != TransactionSale && b.TransactionType != TransactionRent {
		add("transactionType")
	}
	if b.UsageType != "" && !usageTypes[b.UsageType] {
		add("usageType")
	}
	if b.OfferType != "" && !offerTypes[b.OfferType] {
		add("offerType")
	}
	if utf8.RuneCountInString(b.Category) > MaxShortTextLength {
		add("category")
	}
	if utf8.RuneCountInString(b.Subtype) > MaxShortTextLength {
		add("subtype")
	}
	if utf8.RuneCountInString(b.Title) > MaxTitleLength {
		add("title")
	}
	if utf8.RuneCountInString(b.Description) > MaxDescriptionLength {
		add("description")
	}

	a := c.Address
	germanPostalCode := a.Country == "" || strings.EqualFold(a.Country, "DE")
	if a.PostalCode != "" && germanPostalCode && !postalCodeDE.MatchString(a.PostalCode) {
		add("postalCode")
	}
	if utf8.RuneCountInString(a.Street) > MaxShortTextLength {
		add("street")
	}
	if utf8.RuneCountInString(a.City) > MaxShortTextLength {
		add("city")
	}
	if utf8.RuneCountInString(a.HouseNumber) > MaxCodeLength {
		add("houseNumber")
	}
	if !germanPostalCode && utf8.RuneCountInString(a.PostalCode) > MaxCodeLength {
		add("postalCode")
	}
	if utf8.RuneCountInString(a.Country) > MaxCodeLength {
		add("country")
	}

	d := c.Details
	if negative(d.LivingArea) {
		add("livingArea")
	}
	if negative(d.LandArea) {
		add("landArea")
	}
	if negative(d.Rooms) {
		add("rooms")
	}
	if d.Floors != nil && *d.Floors < 0 {
		add("floors")
	}
	if d.YearBuilt != nil && (*d.YearBuilt < 1000 || *d.YearBuilt > 2100) {
		add("yearBuilt")
	}

	e := c.Energy
	if e.CertificateType != "" && !certificateTypes[e.CertificateType] {
		add("certificateType")
	}
	if e.EnergyClass != "" && !energyClasses[e.EnergyClass] {
		add("energyClass")
	}
	if negative(e.ConsumptionValue) {
		add("consumptionValue")
	}
	if utf8.RuneCountInString(e.HeatingType) > MaxShortTextLength {
		add("heatingType")
	}

	p := c.Pricing
	if negative(p.Price) {
		add("price")
	}
	if negative(p.AncillaryCosts) {
		add("ancillaryCosts")
	}
	if negative(p.Deposit) {
		add("deposit")
	}
	if p.Currency != "" && !currencyCode.MatchString(p.Currency) {
		add("currency")
	}

	if utf8.RuneCountInString(c.Availability.TakeoverNote) > MaxNoteLength {
		add("takeoverNote")
	}

	ct := c.Contact
	if ct.Email != "" {
		if utf8.RuneCountInString(ct.Email) > MaxShortTextLength {
			add("contactEmail")
		} else if _, err := mail.ParseAddress(ct.Email); err != nil {
			add("contactEmail")
		}
	}
	if utf8.RuneCountInString(ct.Name) > MaxShortTextLength {
		add("contactName")
	}
	if utf8.RuneCountInString(ct.Phone) > MaxCodeLength*2 {
		add("contactPhone")
	}
	return bad
}

// MissingMandatory lists the fields that must be filled before the listing can leave the
// draft status. An empty result means the listing is ready for checkout.
func (c *ListingContent) MissingMandatory() []string {
	var missing []string
	need := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}
	need(c.Basis.TransactionType != "", "transactionType")
	need(strings.TrimSpace(c.Basis.Category) != "", "category")
	need(strings.TrimSpace(c.Basis.Title) != "", "title")
	need(strings.TrimSpace(c.Address.Street) != "", "street")
	need(strings.TrimSpace(c.Address.PostalCode) != "", "postalCode")
	need(strings.TrimSpace(c.Address.City) != "", "city")
	need(c.Pricing.PriceOnRequest || c.Pricing.Price != nil, "price")
	need(strings.TrimSpace(c.Contact.Name) != "", "contactName")
	need(strings.TrimSpace(c.Contact.Email) != "", "contactEmail")
	need(c.Consent.AcceptTerms, "acceptTerms")
	need(c.Consent.AcceptPrivacy, "acceptPrivacy")
	return missing
}

func negative(v *float64) bool {
	return v != nil && *v < 0
}

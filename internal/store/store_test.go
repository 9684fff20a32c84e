package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/JBD-GER/maklernull-sub000/internal/db"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/store"
	"github.com/JBD-GER/maklernull-sub000/internal/utils"
)

func setupTestDBStore(t *testing.T, dbName string) *mongo.Database {
	database := utils.SetupTestDB(t, dbName, store.ListingsCollection, store.CheckoutSessionsCollection, store.OwnerPreferencesCollection)
	require.NoError(t, db.EnsureIndexes(context.Background(), database, store.Indexes()))
	return database
}

func newDraft(ownerID string) *models.Listing {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Listing{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		ListingContent: models.ListingContent{
			Basis: models.ListingBasis{TransactionType: models.TransactionRent, Category: "Wohnung", Title: "Altbau"},
		},
		Status:          models.StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}
}

func TestListingStore_CompareAndSwapStatus(t *testing.T) {
	database := setupTestDBStore(t, "testdb_store_listing_cas")
	s := store.NewListingStore(database)
	ctx := context.Background()

	l := newDraft("owner-1")
	require.NoError(t, s.Insert(ctx, l))

	now := time.Now().UTC()
	updated, err := s.CompareAndSwapStatus(ctx, l.ID, models.StatusDraft, models.StatusPendingPayment, store.StatusChange{At: now, MarkPaymentHistory: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, updated.Status)
	assert.True(t, updated.PaymentHistory)

	_, err = s.CompareAndSwapStatus(ctx, l.ID, models.StatusDraft, models.StatusPendingPayment, store.StatusChange{At: now})
	assert.True(t, errors.Is(err, store.ErrStatusConflict))

	_, err = s.CompareAndSwapStatus(ctx, "missing", models.StatusDraft, models.StatusPendingPayment, store.StatusChange{At: now})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestListingStore_ConcurrentSwapHasOneWinner(t *testing.T) {
	database := setupTestDBStore(t, "testdb_store_listing_race")
	s := store.NewListingStore(database)
	ctx := context.Background()

	l := newDraft("owner-1")
	require.NoError(t, s.Insert(ctx, l))

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CompareAndSwapStatus(ctx, l.ID, models.StatusDraft, models.StatusPendingPayment, store.StatusChange{At: time.Now().UTC()})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrStatusConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, conflicts)
}

func TestListingStore_ReplaceContent(t *testing.T) {
	database := setupTestDBStore(t, "testdb_store_listing_replace")
	s := store.NewListingStore(database)
	ctx := context.Background()

	l := newDraft("owner-1")
	l.Address.City = "Leipzig"
	require.NoError(t, s.Insert(ctx, l))

	content := models.ListingContent{Basis: models.ListingBasis{TransactionType: models.TransactionSale, Category: "Haus"}}
	editable := []models.ListingStatus{models.StatusDraft, models.StatusPendingPayment}
	updated, err := s.ReplaceContent(ctx, l.ID, editable, content, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "Haus", updated.Basis.Category)
	assert.Empty(t, updated.Address.City, "replace must not keep old fields")

	_, err = s.CompareAndSwapStatus(ctx, l.ID, models.StatusDraft, models.StatusArchived, store.StatusChange{At: time.Now().UTC()})
	require.NoError(t, err)
	_, err = s.ReplaceContent(ctx, l.ID, editable, content, time.Now().UTC())
	assert.True(t, errors.Is(err, store.ErrStatusConflict))
}

func TestListingStore_ContentRoundTrip(t *testing.T) {
	database := setupTestDBStore(t, "testdb_store_listing_roundtrip")
	s := store.NewListingStore(database)
	ctx := context.Background()

	payload := fullContent()
	l := newDraft("owner-1")
	l.ListingContent = payload
	require.NoError(t, s.Insert(ctx, l))

	replaced, err := s.ReplaceContent(ctx, l.ID, []models.ListingStatus{models.StatusDraft}, payload, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, payload, replaced.ListingContent)

	found, err := s.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, payload, found.ListingContent)

	// Unset optional fields stay unset instead of coming back as zero values.
	sparse := models.ListingContent{Basis: models.ListingBasis{Title: "Nur ein Titel"}}
	replaced, err = s.ReplaceContent(ctx, l.ID, []models.ListingStatus{models.StatusDraft}, sparse, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, sparse, replaced.ListingContent)
	assert.Nil(t, replaced.Details.LivingArea)
	assert.Nil(t, replaced.Energy.ValidUntil)
}

func fullContent() models.ListingContent {
	livingArea, landArea, rooms := 112.5, 430.0, 4.5
	consumption, price, ancillary, deposit := 96.3, 1450.0, 280.0, 4350.0
	floors, floor, yearBuilt := 3, 2, 1912
	validUntil := time.Date(2031, 3, 14, 0, 0, 0, 0, time.UTC)
	availableFrom := time.Date(2024, 9, 1, 12, 30, 15, 123000000, time.UTC)
	return models.ListingContent{
		Basis: models.ListingBasis{
			TransactionType: models.TransactionRent,
			UsageType:       "residential",
			OfferType:       "private",
			Category:        "Wohnung",
			Subtype:         "Altbauwohnung",
			Title:           "Altbau mit Stuck und Südbalkon",
			Description:     "Frisch renovierte Wohnung im zweiten Obergeschoss.\nDielenboden, Einbauküche.",
		},
		Address: models.ListingAddress{
			Street:           "Bergmannstraße",
			HouseNumber:      "7a",
			PostalCode:       "10961",
			City:             "Berlin",
			Country:          "DE",
			HideExactAddress: true,
		},
		Details: models.ListingDetails{
			LivingArea: &livingArea,
			LandArea:   &landArea,
			Rooms:      &rooms,
			Floors:     &floors,
			Floor:      &floor,
			YearBuilt:  &yearBuilt,
		},
		Energy: models.ListingEnergy{
			CertificateType:  "consumption",
			EnergyClass:      "C",
			ConsumptionValue: &consumption,
			HeatingType:      "Fernwärme",
			ValidUntil:       &validUntil,
		},
		Pricing: models.ListingPricing{
			Price:          &price,
			Currency:       "EUR",
			AncillaryCosts: &ancillary,
			Deposit:        &deposit,
		},
		Availability: models.ListingAvailability{
			AvailableFrom: &availableFrom,
			TakeoverNote:  "Nach Absprache auch früher.",
		},
		Contact: models.ListingContact{
			Name:      "Erika Muster",
			Email:     "erika@example.de",
			Phone:     "+49 30 1234567",
			ShowName:  true,
			ShowEmail: true,
		},
		Consent: models.ListingConsent{AcceptTerms: true, AcceptPrivacy: true},
	}
}

func TestListingStore_FindExpiredActive(t *testing.T) {
	database := setupTestDBStore(t, "testdb_store_listing_expired")
	s := store.NewListingStore(database)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newDraft("owner-1")
	expired.Status = models.StatusActive
	expired.PackageSelection = &models.PackageSelection{Code: "VM_BASIS_1", PeriodStart: now.AddDate(0, -1, 0), PeriodEnd: now.Add(-time.Hour)}
	running := newDraft("owner-1")
	running.Status = models.StatusActive
	running.PackageSelection = &models.PackageSelection{Code: "VM_BASIS_1", PeriodStart: now, PeriodEnd: now.AddDate(0, 1, 0)}
	require.NoError(t, s.Insert(ctx, expired))
	require.NoError(t, s.Insert(ctx, running))

	found, err := s.FindExpiredActive(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, expired.ID, found[0].ID)
}

func TestSessionStore_OneOpenSessionPerListing(t *testing.T) {
	database := setupTestDBStore(t, "testdb_store_session_open")
	s := store.NewCheckoutSessionStore(database)
	ctx := context.Background()
	now := time.Now().UTC()

	first := &models.CheckoutSession{ID: uuid.NewString(), ListingID: "l-1", PackageCode: "VK_BASIS_1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.InsertOpen(ctx, first))

	second := &models.CheckoutSession{ID: uuid.NewString(), ListingID: "l-1", PackageCode: "VK_BASIS_1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, errors.Is(s.InsertOpen(ctx, second), store.ErrOpenSessionExists))

	consumed, err := s.Consume(ctx, first.ID, models.OutcomeFailure, now)
	require.NoError(t, err)
	assert.Equal(t, models.SessionConsumed, consumed.Status)

	_, err = s.Consume(ctx, first.ID, models.OutcomeFailure, now)
	assert.True(t, errors.Is(err, store.ErrSessionConsumed))

	// once consumed, a new session may open
	assert.NoError(t, s.InsertOpen(ctx, second))
}

func TestSessionStore_ProcessorRef(t *testing.T) {
	database := setupTestDBStore(t, "testdb_store_session_ref")
	s := store.NewCheckoutSessionStore(database)
	ctx := context.Background()
	now := time.Now().UTC()

	session := &models.CheckoutSession{ID: uuid.NewString(), ListingID: "l-2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.InsertOpen(ctx, session))
	require.NoError(t, s.AttachProcessorRef(ctx, session.ID, "cs_test_123", "https://pay.example/cs_test_123"))

	found, err := s.FindByProcessorRef(ctx, "cs_test_123")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, "https://pay.example/cs_test_123", found.RedirectURL)

	_, err = s.FindByProcessorRef(ctx, "cs_unknown")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPreferenceStore_AutoRenew(t *testing.T) {
	database := setupTestDBStore(t, "testdb_store_preferences")
	s := store.NewPreferenceStore(database)
	ctx := context.Background()

	_, err := database.Collection(store.OwnerPreferencesCollection).InsertOne(ctx, models.OwnerPreference{OwnerID: "owner-renew", AutoRenew: true, UpdatedAt: time.Now().UTC()})
	require.NoError(t, err)

	on, err := s.AutoRenew(ctx, "owner-renew")
	require.NoError(t, err)
	assert.True(t, on)

	off, err := s.AutoRenew(ctx, "owner-without-preference")
	require.NoError(t, err)
	assert.False(t, off)
}

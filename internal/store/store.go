// Package store persists listings, checkout sessions and owner preferences in MongoDB.
// Status writes are conditional on the stored status so concurrent writers cannot
// overwrite each other.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JBD-GER/maklernull-sub000/internal/db"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
)

const (
	ListingsCollection         = "listings"
	CheckoutSessionsCollection = "checkout_sessions"
	OwnerPreferencesCollection = "owner_preferences"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrStatusConflict    = errors.New("status changed concurrently")
	ErrOpenSessionExists = errors.New("an open checkout session already exists for this listing")
	ErrSessionConsumed   = errors.New("checkout session already consumed")
)

// StatusChange carries the fields written together with a status swap.
type StatusChange struct {
	At                 time.Time
	Trigger            string
	Selection          *models.PackageSelection
	MarkPaymentHistory bool
	MarketedAt         *time.Time
}

// IListingStore persists listings.
type IListingStore interface {
	Insert(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id string) (*models.Listing, error)
	FindByOwner(ctx context.Context, ownerID string, status models.ListingStatus, limit int) ([]models.Listing, error)
	// ReplaceContent swaps the whole content if the stored status is one of allowed.
	ReplaceContent(ctx context.Context, id string, allowed []models.ListingStatus, content models.ListingContent, at time.Time) (*models.Listing, error)
	// CompareAndSwapStatus moves expected → next. ErrStatusConflict if the stored status differs.
	CompareAndSwapStatus(ctx context.Context, id string, expected, next models.ListingStatus, change StatusChange) (*models.Listing, error)
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Listing, error)
	FindStalePending(ctx context.Context, changedBefore time.Time, limit int) ([]models.Listing, error)
}

// ICheckoutSessionStore persists checkout sessions.
type ICheckoutSessionStore interface {
	// InsertOpen fails with ErrOpenSessionExists if the listing already has an open session.
	InsertOpen(ctx context.Context, session *models.CheckoutSession) error
	FindByID(ctx context.Context, id string) (*models.CheckoutSession, error)
	FindByProcessorRef(ctx context.Context, ref string) (*models.CheckoutSession, error)
	FindOpenByListing(ctx context.Context, listingID string) (*models.CheckoutSession, error)
	AttachProcessorRef(ctx context.Context, id, ref, redirectURL string) error
	// Consume closes an open session once. ErrSessionConsumed if it was already closed.
	Consume(ctx context.Context, id string, outcome models.PaymentOutcome, at time.Time) (*models.CheckoutSession, error)
	MarkApplied(ctx context.Context, id string, at time.Time) error
	FindExpiredOpen(ctx context.Context, now time.Time, limit int) ([]models.CheckoutSession, error)
}

// IPreferenceStore reads owner preferences written by the settings service.
type IPreferenceStore interface {
	AutoRenew(ctx context.Context, ownerID string) (bool, error)
}

// Indexes returns the index set the stores rely on. The partial unique index on open
// sessions is what makes InsertOpen race-free.
func Indexes() []db.IndexSpec {
	return []db.IndexSpec{
		{
			Collection: ListingsCollection,
			Models: []mongo.IndexModel{
				{Keys: db.Keys("owner_id", "-created_at"), Options: options.Index().SetName("owner_feed")},
				{Keys: db.Keys("status", "package_selection.period_end"), Options: options.Index().SetName("status_period_end")},
				{Keys: db.Keys("status", "status_changed_at"), Options: options.Index().SetName("status_changed")},
			},
		},
		{
			Collection: CheckoutSessionsCollection,
			Models: []mongo.IndexModel{
				{
					Keys: db.Keys("listing_id"),
					Options: options.Index().SetName("open_session_per_listing").SetUnique(true).
						SetPartialFilterExpression(bson.M{"status": string(models.SessionOpen)}),
				},
				{
					Keys: db.Keys("processor_ref"),
					Options: options.Index().SetName("processor_ref").SetUnique(true).
						SetPartialFilterExpression(bson.M{"processor_ref": bson.M{"$exists": true}}),
				},
				{Keys: db.Keys("status", "expires_at"), Options: options.Index().SetName("open_expiry")},
			},
		},
	}
}

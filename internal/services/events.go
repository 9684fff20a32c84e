package services

import (
	"context"
	"time"

	"github.com/JBD-GER/maklernull-sub000/internal/models"
)

// now is the service clock. Tests replace it.
var now = func() time.Time { return time.Now().UTC() }

// IEventBus carries notifications out of the core. Delivery is fire-and-forget: a failed
// publish is logged and never undoes the state change that caused it.
type IEventBus interface {
	ListingChanged(ctx context.Context, event models.ListingEvent) error
	ListingActivated(ctx context.Context, listing *models.Listing) error
	SessionConsumed(ctx context.Context, session *models.CheckoutSession) error
	OwnerNotice(ctx context.Context, notice models.OwnerNotice) error
}

// IReadinessCache keeps the latest submit-readiness report per listing.
type IReadinessCache interface {
	Get(ctx context.Context, listingID string) (*models.Readiness, error)
	Set(ctx context.Context, readiness *models.Readiness) error
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/JBD-GER/maklernull-sub000/internal/catalog"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/store"
)

// Trigger names the cause of a status transition.
type Trigger string

const (
	TriggerSubmitForCheckout Trigger = "submit-for-checkout"
	TriggerPaymentConfirmed  Trigger = "payment-confirmed"
	TriggerPaymentAbandoned  Trigger = "payment-abandoned"
	TriggerOwnerDeactivates  Trigger = "owner-deactivates"
	TriggerRuntimeExpired    Trigger = "runtime-expired"
	TriggerOwnerMarksSuccess Trigger = "owner-marks-success"
	TriggerReactivationPaid  Trigger = "reactivation-paid"
	TriggerOwnerDeletes      Trigger = "owner-deletes"
	TriggerOwnerDiscards     Trigger = "owner-discards"
)

// transitions is the only place that decides which status may follow which.
var transitions = map[Trigger]map[models.ListingStatus]models.ListingStatus{
	TriggerSubmitForCheckout: {models.StatusDraft: models.StatusPendingPayment},
	TriggerPaymentConfirmed:  {models.StatusPendingPayment: models.StatusActive},
	TriggerPaymentAbandoned:  {models.StatusPendingPayment: models.StatusDraft},
	TriggerOwnerDeactivates:  {models.StatusActive: models.StatusDeactivated},
	TriggerRuntimeExpired:    {models.StatusActive: models.StatusDeactivated},
	TriggerOwnerMarksSuccess: {models.StatusActive: models.StatusMarketed},
	TriggerReactivationPaid:  {models.StatusDeactivated: models.StatusActive},
	TriggerOwnerDeletes: {
		models.StatusDraft:          models.StatusArchived,
		models.StatusPendingPayment: models.StatusArchived,
		models.StatusActive:         models.StatusArchived,
		models.StatusDeactivated:    models.StatusArchived,
		models.StatusMarketed:       models.StatusArchived,
	},
	TriggerOwnerDiscards: {models.StatusDraft: models.StatusDeleted},
}

// Redeliverable triggers come from retried webhooks or sweeps. Re-applying one to a
// listing that already reached its target is a no-op success.
var redeliverable = map[Trigger]bool{
	TriggerPaymentConfirmed: true,
	TriggerPaymentAbandoned: true,
	TriggerRuntimeExpired:   true,
	TriggerReactivationPaid: true,
}

// NextStatus looks up the transition table.
func NextStatus(from models.ListingStatus, trigger Trigger) (models.ListingStatus, bool) {
	to, ok := transitions[trigger][from]
	return to, ok
}

// TransitionRequest asks the state machine to move a listing. Expected is the status the
// caller believes the listing is in; the write only happens if that still holds.
type TransitionRequest struct {
	ListingID string
	Trigger   Trigger
	Expected  models.ListingStatus
	Selection *models.PackageSelection
}

// ILifecycleService is the listing status state machine.
type ILifecycleService interface {
	Apply(ctx context.Context, req TransitionRequest) (*models.Listing, error)
	Deactivate(ctx context.Context, listingID, ownerID string) (*models.Listing, error)
	MarkMarketed(ctx context.Context, listingID, ownerID string) (*models.Listing, error)
	Archive(ctx context.Context, listingID, ownerID string) (*models.Listing, error)
	Readiness(ctx context.Context, listingID, ownerID string) (*models.Readiness, error)
	RefreshReadiness(ctx context.Context, listingID string) error
}

type lifecycleService struct {
	listings  store.IListingStore
	sessions  store.ICheckoutSessionStore
	bus       IEventBus
	readiness IReadinessCache
}

// NewLifecycleService creates the state machine. readiness may be nil.
func NewLifecycleService(listings store.IListingStore, sessions store.ICheckoutSessionStore, bus IEventBus, readiness IReadinessCache) ILifecycleService {
	return &lifecycleService{listings: listings, sessions: sessions, bus: bus, readiness: readiness}
}

func (s *lifecycleService) Apply(ctx context.Context, req TransitionRequest) (*models.Listing, error) {
	to, ok := NextStatus(req.Expected, req.Trigger)
	if !ok {
		return nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, req.Trigger, req.Expected)
	}

	listing, err := s.listings.FindByID(ctx, req.ListingID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if listing.Status != req.Expected {
		if redeliverable[req.Trigger] && listing.Status == to {
			return listing, nil
		}
		return nil, fmt.Errorf("%w: listing %s is %s, expected %s", ErrConflict, listing.ID, listing.Status, req.Expected)
	}

	if err := s.guard(listing, req); err != nil {
		return nil, err
	}

	at := now()
	change := store.StatusChange{At: at, Trigger: string(req.Trigger), Selection: req.Selection}
	switch to {
	case models.StatusPendingPayment:
		change.MarkPaymentHistory = true
	case models.StatusMarketed:
		change.MarketedAt = &at
	}

	updated, err := s.listings.CompareAndSwapStatus(ctx, listing.ID, req.Expected, to, change)
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			if current, errRead := s.listings.FindByID(ctx, listing.ID); errRead == nil &&
				redeliverable[req.Trigger] && current.Status == to {
				return current, nil
			}
			return nil, fmt.Errorf("%w: listing %s changed while applying %s", ErrConflict, listing.ID, req.Trigger)
		}
		return nil, mapStoreError(err)
	}

	log.Printf("Listing %s: %s -> %s (%s)", updated.ID, req.Expected, to, req.Trigger)
	s.publishStatusChange(ctx, updated, req.Expected, req.Trigger)
	return updated, nil
}

// guard enforces the per-transition preconditions.
func (s *lifecycleService) guard(listing *models.Listing, req TransitionRequest) error {
	switch req.Trigger {
	case TriggerSubmitForCheckout:
		if invalid := listing.StructuralProblems(); len(invalid) > 0 {
			return &ValidationError{Invalid: invalid, Missing: listing.MissingMandatory()}
		}
		if missing := listing.MissingMandatory(); len(missing) > 0 {
			return MissingFieldsError(missing)
		}
	case TriggerPaymentConfirmed, TriggerReactivationPaid:
		sel := req.Selection
		if sel == nil || sel.SessionID == "" || sel.Code == "" {
			return fmt.Errorf("%w: %s requires the package selection of a checkout session", ErrInvalidTransition, req.Trigger)
		}
		if !sel.PeriodEnd.After(sel.PeriodStart) {
			return fmt.Errorf("%w: empty runtime period", ErrInvalidTransition)
		}
		if missing := listing.MissingMandatory(); len(missing) > 0 {
			return MissingFieldsError(missing)
		}
		if sel.Segment != "" && sel.Segment != catalog.SegmentTest && sel.Segment != listing.Segment() {
			return fmt.Errorf("%w: %s is a %s package, listing is %q", ErrSegmentMismatch, sel.Code, sel.Segment, listing.Segment())
		}
	case TriggerOwnerDiscards:
		if listing.PaymentHistory {
			return fmt.Errorf("%w: listing %s has payment history and can only be archived", ErrInvalidTransition, listing.ID)
		}
	}
	return nil
}

func (s *lifecycleService) publishStatusChange(ctx context.Context, listing *models.Listing, from models.ListingStatus, trigger Trigger) {
	if s.bus == nil {
		return
	}
	event := models.ListingEvent{
		Type:       models.EventListingStatusChanged,
		ListingID:  listing.ID,
		OwnerID:    listing.OwnerID,
		Status:     listing.Status,
		FromStatus: from,
		Trigger:    string(trigger),
		At:         listing.StatusChangedAt,
	}
	if err := s.bus.ListingChanged(ctx, event); err != nil {
		log.Printf("WARN: failed to publish status change of listing %s: %v", listing.ID, err)
	}
	if listing.Status == models.StatusActive {
		if err := s.bus.ListingActivated(ctx, listing); err != nil {
			log.Printf("WARN: failed to queue bridge notification for listing %s: %v", listing.ID, err)
		}
	}

	var kind models.NoticeKind
	switch {
	case listing.Status == models.StatusActive:
		kind = models.NoticeActivated
	case trigger == TriggerRuntimeExpired:
		kind = models.NoticeExpired
	default:
		return
	}
	if err := s.bus.OwnerNotice(ctx, models.NewOwnerNotice(kind, listing)); err != nil {
		log.Printf("WARN: failed to queue %s notice for listing %s: %v", kind, listing.ID, err)
	}
}

// ownedListing loads a listing for an owner-initiated transition.
func (s *lifecycleService) ownedListing(ctx context.Context, listingID, ownerID string) (*models.Listing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if listing.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return listing, nil
}

func (s *lifecycleService) ownerApply(ctx context.Context, listingID, ownerID string, trigger Trigger) (*models.Listing, error) {
	listing, err := s.ownedListing(ctx, listingID, ownerID)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, TransitionRequest{ListingID: listing.ID, Trigger: trigger, Expected: listing.Status})
}

func (s *lifecycleService) Deactivate(ctx context.Context, listingID, ownerID string) (*models.Listing, error) {
	return s.ownerApply(ctx, listingID, ownerID, TriggerOwnerDeactivates)
}

func (s *lifecycleService) MarkMarketed(ctx context.Context, listingID, ownerID string) (*models.Listing, error) {
	return s.ownerApply(ctx, listingID, ownerID, TriggerOwnerMarksSuccess)
}

// Archive retires a listing for good. An open checkout session is closed as cancelled;
// a payment that still arrives for it is acknowledged without effect.
func (s *lifecycleService) Archive(ctx context.Context, listingID, ownerID string) (*models.Listing, error) {
	archived, err := s.ownerApply(ctx, listingID, ownerID, TriggerOwnerDeletes)
	if err != nil {
		return nil, err
	}
	if s.sessions == nil {
		return archived, nil
	}
	open, err := s.sessions.FindOpenByListing(ctx, archived.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("WARN: could not look up open session of archived listing %s: %v", archived.ID, err)
		}
		return archived, nil
	}
	if _, err := s.sessions.Consume(ctx, open.ID, models.OutcomeCancelled, now()); err != nil && !errors.Is(err, store.ErrSessionConsumed) {
		log.Printf("WARN: could not cancel session %s of archived listing %s: %v", open.ID, archived.ID, err)
	}
	return archived, nil
}

// Readiness returns the cached report when it is at least as new as the listing content.
func (s *lifecycleService) Readiness(ctx context.Context, listingID, ownerID string) (*models.Readiness, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if listing.OwnerID != ownerID || listing.Status == models.StatusDeleted {
		return nil, ErrNotFound
	}

	if s.readiness != nil {
		cached, err := s.readiness.Get(ctx, listingID)
		if err != nil {
			log.Printf("WARN: readiness cache read failed for listing %s: %v", listingID, err)
		} else if cached != nil && cached.Status == listing.Status && !cached.CheckedAt.Before(listing.UpdatedAt) {
			return cached, nil
		}
	}

	report := models.CheckReadiness(listing, now())
	s.cacheReadiness(ctx, report)
	return report, nil
}

// RefreshReadiness recomputes the report after a listing.changed event.
func (s *lifecycleService) RefreshReadiness(ctx context.Context, listingID string) error {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return mapStoreError(err)
	}
	s.cacheReadiness(ctx, models.CheckReadiness(listing, now()))
	return nil
}

func (s *lifecycleService) cacheReadiness(ctx context.Context, report *models.Readiness) {
	if s.readiness == nil {
		return
	}
	if err := s.readiness.Set(ctx, report); err != nil {
		log.Printf("WARN: readiness cache write failed for listing %s: %v", report.ListingID, err)
	}
}

// mapStoreError translates storage sentinels into service errors.
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrStatusConflict):
		return ErrConflict
	}
	return err
}

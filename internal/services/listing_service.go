package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/store"
)

// IListingService is the owner-facing draft store.
type IListingService interface {
	CreateDraft(ctx context.Context, ownerID string, content models.ListingContent) (*models.Listing, error)
	UpdateDraft(ctx context.Context, listingID, ownerID string, content models.ListingContent) (*models.Listing, error)
	Get(ctx context.Context, listingID, ownerID string) (*models.Listing, error)
	ListByOwner(ctx context.Context, ownerID string, status models.ListingStatus, limit int) ([]models.Listing, error)
	Delete(ctx context.Context, listingID, ownerID string) error
}

type listingService struct {
	cfg       *config.Config
	listings  store.IListingStore
	lifecycle ILifecycleService
	bus       IEventBus
}

// NewListingService creates a new ListingService.
func NewListingService(cfg *config.Config, listings store.IListingStore, lifecycle ILifecycleService, bus IEventBus) IListingService {
	return &listingService{cfg: cfg, listings: listings, lifecycle: lifecycle, bus: bus}
}

// CreateDraft stores a new listing in draft. Only the structural checks apply; missing
// fields are expected at this point.
func (s *listingService) CreateDraft(ctx context.Context, ownerID string, content models.ListingContent) (*models.Listing, error) {
	if invalid := content.StructuralProblems(); len(invalid) > 0 {
		return nil, InvalidFieldsError(invalid...)
	}

	at := now()
	listing := &models.Listing{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		ListingContent:  content,
		Status:          models.StatusDraft,
		CreatedAt:       at,
		UpdatedAt:       at,
		StatusChangedAt: at,
	}
	if err := s.listings.Insert(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to create draft for owner %s: %w", ownerID, err)
	}

	s.publishChanged(ctx, listing)
	return listing, nil
}

// UpdateDraft replaces the full content. Fields absent from content end up empty.
func (s *listingService) UpdateDraft(ctx context.Context, listingID, ownerID string, content models.ListingContent) (*models.Listing, error) {
	current, err := s.Get(ctx, listingID, ownerID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Editable() {
		return nil, fmt.Errorf("%w: listing %s is %s", ErrInvalidState, listingID, current.Status)
	}
	if invalid := content.StructuralProblems(); len(invalid) > 0 {
		return nil, InvalidFieldsError(invalid...)
	}
	// Past draft the listing is waiting for a payment of a package bought for its segment.
	if current.Status != models.StatusDraft {
		if missing := content.MissingMandatory(); len(missing) > 0 {
			return nil, MissingFieldsError(missing)
		}
		if content.Basis.TransactionType != current.Basis.TransactionType {
			return nil, fmt.Errorf("%w: listing %s is checked out as %q", ErrSegmentMismatch, listingID, current.Basis.TransactionType)
		}
	}

	updated, err := s.listings.ReplaceContent(ctx, listingID, []models.ListingStatus{current.Status}, content, now())
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: listing %s changed status during the update", ErrConflict, listingID)
		}
		return nil, mapStoreError(err)
	}

	s.publishChanged(ctx, updated)
	return updated, nil
}

// Get returns a listing of the caller. Foreign and discarded listings are reported as
// not found.
func (s *listingService) Get(ctx context.Context, listingID, ownerID string) (*models.Listing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if listing.OwnerID != ownerID || listing.Status == models.StatusDeleted {
		return nil, ErrNotFound
	}
	return listing, nil
}

func (s *listingService) ListByOwner(ctx context.Context, ownerID string, status models.ListingStatus, limit int) ([]models.Listing, error) {
	if status != "" && (!status.Valid() || status == models.StatusDeleted) {
		return nil, InvalidFieldsError("status")
	}
	maxLimit := 100
	if s.cfg != nil && s.cfg.MaxListingsPerPage > 0 {
		maxLimit = s.cfg.MaxListingsPerPage
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	return s.listings.FindByOwner(ctx, ownerID, status, limit)
}

// Delete removes a draft. A draft that never reached checkout is discarded; one with
// payment history is archived instead. Any other status is a conflict. Like the other
// owner actions it reports foreign listings as forbidden.
func (s *listingService) Delete(ctx context.Context, listingID, ownerID string) error {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return mapStoreError(err)
	}
	if listing.Status == models.StatusDeleted {
		return ErrNotFound
	}
	if listing.OwnerID != ownerID {
		return ErrForbidden
	}
	if listing.Status != models.StatusDraft {
		return fmt.Errorf("%w: only drafts can be deleted, listing %s is %s", ErrConflict, listingID, listing.Status)
	}

	trigger := TriggerOwnerDiscards
	if listing.PaymentHistory {
		trigger = TriggerOwnerDeletes
	}
	_, err = s.lifecycle.Apply(ctx, TransitionRequest{ListingID: listingID, Trigger: trigger, Expected: models.StatusDraft})
	return err
}

func (s *listingService) publishChanged(ctx context.Context, listing *models.Listing) {
	if s.bus == nil {
		return
	}
	event := models.ListingEvent{
		Type:      models.EventListingChanged,
		ListingID: listing.ID,
		OwnerID:   listing.OwnerID,
		Status:    listing.Status,
		At:        listing.UpdatedAt,
	}
	if err := s.bus.ListingChanged(ctx, event); err != nil {
		log.Printf("WARN: failed to publish change of listing %s: %v", listing.ID, err)
	}
}

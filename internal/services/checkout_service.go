package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JBD-GER/maklernull-sub000/internal/catalog"
	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/payment"
	"github.com/JBD-GER/maklernull-sub000/internal/store"
)

// CheckoutResult is what the owner needs to continue at the processor.
type CheckoutResult struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

// OutcomeResult describes what a payment notification did.
type OutcomeResult struct {
	Known     bool                 `json:"known"`
	Duplicate bool                 `json:"duplicate"`
	SessionID string               `json:"sessionId,omitempty"`
	ListingID string               `json:"listingId,omitempty"`
	Status    models.ListingStatus `json:"status,omitempty"`
}

// ICheckoutService ties package purchase to the listing lifecycle.
type ICheckoutService interface {
	StartCheckout(ctx context.Context, listingID, ownerID, packageCode string, runtimeMonths int) (*CheckoutResult, error)
	StartRenewal(ctx context.Context, listing *models.Listing) (*CheckoutResult, error)
	HandlePaymentOutcome(ctx context.Context, sessionRef string, outcome models.PaymentOutcome) (*OutcomeResult, error)
	ExpireSession(ctx context.Context, session *models.CheckoutSession) error
}

type checkoutService struct {
	cfg       *config.Config
	catalog   catalog.ICatalog
	listings  store.IListingStore
	sessions  store.ICheckoutSessionStore
	lifecycle ILifecycleService
	processor payment.IProcessor
	bus       IEventBus
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(cfg *config.Config, cat catalog.ICatalog, listings store.IListingStore, sessions store.ICheckoutSessionStore, lifecycle ILifecycleService, processor payment.IProcessor, bus IEventBus) ICheckoutService {
	return &checkoutService{
		cfg:       cfg,
		catalog:   cat,
		listings:  listings,
		sessions:  sessions,
		lifecycle: lifecycle,
		processor: processor,
		bus:       bus,
	}
}

// StartCheckout opens a payment session for a package. A draft is first submitted for
// checkout, which runs the mandatory-field guard. Activation only ever happens when the
// processor confirms the payment.
func (s *checkoutService) StartCheckout(ctx context.Context, listingID, ownerID, packageCode string, runtimeMonths int) (*CheckoutResult, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if listing.Status == models.StatusDeleted {
		return nil, ErrNotFound
	}
	if listing.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	pkg, err := s.resolvePackage(listing, packageCode, runtimeMonths)
	if err != nil {
		return nil, err
	}

	switch listing.Status {
	case models.StatusDraft:
		listing, err = s.lifecycle.Apply(ctx, TransitionRequest{
			ListingID: listing.ID,
			Trigger:   TriggerSubmitForCheckout,
			Expected:  models.StatusDraft,
		})
		if err != nil {
			return nil, err
		}
	case models.StatusPendingPayment, models.StatusDeactivated:
	default:
		return nil, fmt.Errorf("%w: cannot check out a listing that is %s", ErrInvalidTransition, listing.Status)
	}

	return s.openSession(ctx, listing, pkg, false)
}

// StartRenewal opens a session for the package the listing ran with last.
func (s *checkoutService) StartRenewal(ctx context.Context, listing *models.Listing) (*CheckoutResult, error) {
	if listing.PackageSelection == nil {
		return nil, fmt.Errorf("%w: listing %s has no previous package", ErrUnknownPackage, listing.ID)
	}
	if listing.Status != models.StatusDeactivated {
		return nil, fmt.Errorf("%w: renewal needs a deactivated listing, %s is %s", ErrInvalidTransition, listing.ID, listing.Status)
	}
	pkg, err := s.catalog.Lookup(listing.PackageSelection.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPackage, err)
	}
	result, err := s.openSession(ctx, listing, pkg, true)
	if err != nil {
		return nil, err
	}

	notice := models.NewOwnerNotice(models.NoticeRenewal, listing)
	notice.PackageCode = pkg.Code
	notice.RedirectURL = result.RedirectURL
	if s.bus != nil {
		if err := s.bus.OwnerNotice(ctx, notice); err != nil {
			log.Printf("WARN: failed to queue renewal notice for listing %s: %v", listing.ID, err)
		}
	}
	return result, nil
}

func (s *checkoutService) resolvePackage(listing *models.Listing, code string, runtimeMonths int) (catalog.Package, error) {
	if runtimeMonths < catalog.MinRuntimeMonths || runtimeMonths > catalog.MaxRuntimeMonths {
		return catalog.Package{}, InvalidFieldsError("runtimeMonths")
	}
	pkg, err := s.catalog.Lookup(code)
	if err != nil {
		return catalog.Package{}, fmt.Errorf("%w: %s", ErrUnknownPackage, code)
	}
	if pkg.Segment == catalog.SegmentTest {
		if s.cfg == nil || !s.cfg.AllowTestPackages {
			return catalog.Package{}, fmt.Errorf("%w: %s", ErrUnknownPackage, code)
		}
	} else if pkg.Segment != listing.Segment() {
		return catalog.Package{}, fmt.Errorf("%w: %s is a %s package, listing is %q", ErrSegmentMismatch, code, pkg.Segment, listing.Segment())
	}
	if pkg.RuntimeMonths != runtimeMonths {
		return catalog.Package{}, InvalidFieldsError("runtimeMonths")
	}
	return pkg, nil
}

func (s *checkoutService) openSession(ctx context.Context, listing *models.Listing, pkg catalog.Package, renewal bool) (*CheckoutResult, error) {
	existing, err := s.sessions.FindOpenByListing(ctx, listing.ID)
	switch {
	case err == nil:
		// A session whose creation timed out never reached the owner; retry it.
		if existing.ProcessorRef == "" && existing.PackageCode == pkg.Code && now().Before(existing.ExpiresAt) {
			log.Printf("Retrying processor call for session %s of listing %s", existing.ID, listing.ID)
			return s.requestProcessorSession(ctx, existing, listing)
		}
		return nil, fmt.Errorf("%w: %w", ErrConflict, ErrOpenSession)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to look up open session of listing %s: %w", listing.ID, err)
	}

	at := now()
	session := &models.CheckoutSession{
		ID:            uuid.NewString(),
		ListingID:     listing.ID,
		OwnerID:       listing.OwnerID,
		PackageCode:   pkg.Code,
		RuntimeMonths: pkg.RuntimeMonths,
		AmountCents:   pkg.PriceCents,
		Currency:      pkg.Currency,
		Renewal:       renewal,
		Status:        models.SessionOpen,
		CreatedAt:     at,
		ExpiresAt:     at.Add(s.sessionTTL()),
	}
	if err := s.sessions.InsertOpen(ctx, session); err != nil {
		if errors.Is(err, store.ErrOpenSessionExists) {
			return nil, fmt.Errorf("%w: %w", ErrConflict, ErrOpenSession)
		}
		return nil, err
	}
	return s.requestProcessorSession(ctx, session, listing)
}

// requestProcessorSession asks the processor for the hosted checkout. A timeout leaves the
// session open for a retry or the sweeper. Any other failure cancels it and a listing
// waiting for this payment goes back to draft.
func (s *checkoutService) requestProcessorSession(ctx context.Context, session *models.CheckoutSession, listing *models.Listing) (*CheckoutResult, error) {
	pctx, cancel := context.WithTimeout(ctx, s.paymentTimeout())
	defer cancel()

	ps, err := s.processor.CreateSession(pctx, payment.SessionRequest{
		IdempotencyKey: session.ID,
		AmountCents:    session.AmountCents,
		Currency:       session.Currency,
		Description:    fmt.Sprintf("%s: %s", session.PackageCode, listing.Basis.Title),
		SuccessURL:     s.cfg.CheckoutSuccessURL,
		CancelURL:      s.cfg.CheckoutCancelURL,
		ExpiresAt:      session.ExpiresAt,
		Metadata: map[string]string{
			"listingId":     listing.ID,
			"sessionId":     session.ID,
			"packageCode":   session.PackageCode,
			"runtimeMonths": strconv.Itoa(session.RuntimeMonths),
		},
	})
	if err != nil {
		if errors.Is(err, payment.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			log.Printf("WARN: processor timed out for session %s (listing %s); leaving it open", session.ID, listing.ID)
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		log.Printf("ERROR: processor refused session %s (listing %s): %v", session.ID, listing.ID, err)
		if cancelled, cerr := s.sessions.Consume(ctx, session.ID, models.OutcomeCancelled, now()); cerr != nil {
			log.Printf("ERROR: could not close failed session %s: %v", session.ID, cerr)
		} else if _, aerr := s.applyOutcome(ctx, cancelled); aerr != nil {
			log.Printf("ERROR: could not return listing %s after failed session %s: %v", listing.ID, session.ID, aerr)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if err := s.sessions.AttachProcessorRef(ctx, session.ID, ps.Ref, ps.RedirectURL); err != nil {
		return nil, fmt.Errorf("failed to record processor session %s: %w", ps.Ref, err)
	}
	log.Printf("Checkout session %s opened for listing %s (%s, ref %s)", session.ID, listing.ID, session.PackageCode, ps.Ref)
	return &CheckoutResult{SessionID: session.ID, RedirectURL: ps.RedirectURL}, nil
}

// HandlePaymentOutcome consumes the session named by the processor reference and drives
// the listing accordingly. Unknown references and repeated notifications are acknowledged
// without side effects.
func (s *checkoutService) HandlePaymentOutcome(ctx context.Context, sessionRef string, outcome models.PaymentOutcome) (*OutcomeResult, error) {
	if !outcome.Valid() {
		return nil, InvalidFieldsError("outcome")
	}

	session, err := s.sessions.FindByProcessorRef(ctx, sessionRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("WARN: payment outcome %s for unknown session ref %s acknowledged", outcome, sessionRef)
			return &OutcomeResult{Known: false}, nil
		}
		return nil, err
	}

	if session.Status == models.SessionOpen {
		consumed, err := s.sessions.Consume(ctx, session.ID, outcome, now())
		switch {
		case err == nil:
			session = consumed
		case errors.Is(err, store.ErrSessionConsumed):
			if session, err = s.sessions.FindByID(ctx, session.ID); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	if session.Outcome != outcome {
		if outcome == models.OutcomeSuccess {
			log.Printf("ERROR: processor reports success for session %s closed as %s (listing %s); refund required",
				session.ID, session.Outcome, session.ListingID)
		} else {
			log.Printf("WARN: processor reports %s for session %s already closed as %s", outcome, session.ID, session.Outcome)
		}
	}

	if session.Applied() {
		return &OutcomeResult{Known: true, Duplicate: true, SessionID: session.ID, ListingID: session.ListingID}, nil
	}
	return s.applyOutcome(ctx, session)
}

// ExpireSession closes an open session the owner never finished.
func (s *checkoutService) ExpireSession(ctx context.Context, session *models.CheckoutSession) error {
	consumed, err := s.sessions.Consume(ctx, session.ID, models.OutcomeExpired, now())
	if err != nil {
		if errors.Is(err, store.ErrSessionConsumed) {
			return nil
		}
		return err
	}
	_, err = s.applyOutcome(ctx, consumed)
	return err
}

// applyOutcome performs the listing side of a consumed session. It is safe to repeat
// until MarkApplied succeeds.
func (s *checkoutService) applyOutcome(ctx context.Context, session *models.CheckoutSession) (*OutcomeResult, error) {
	result := &OutcomeResult{Known: true, SessionID: session.ID, ListingID: session.ListingID}

	listing, err := s.listings.FindByID(ctx, session.ListingID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if listing != nil {
		result.Status = listing.Status
		updated, err := s.transitionFor(ctx, session, listing)
		if err != nil {
			return nil, err
		}
		if updated != nil {
			result.Status = updated.Status
		}
	} else {
		log.Printf("WARN: session %s refers to missing listing %s", session.ID, session.ListingID)
	}

	if err := s.sessions.MarkApplied(ctx, session.ID, now()); err != nil {
		return nil, fmt.Errorf("failed to mark session %s applied: %w", session.ID, err)
	}
	if s.bus != nil {
		if err := s.bus.SessionConsumed(ctx, session); err != nil {
			log.Printf("WARN: failed to queue archive of session %s: %v", session.ID, err)
		}
	}
	return result, nil
}

func (s *checkoutService) transitionFor(ctx context.Context, session *models.CheckoutSession, listing *models.Listing) (*models.Listing, error) {
	switch session.Outcome {
	case models.OutcomeSuccess:
		var trigger Trigger
		switch listing.Status {
		case models.StatusPendingPayment:
			trigger = TriggerPaymentConfirmed
		case models.StatusDeactivated:
			trigger = TriggerReactivationPaid
		case models.StatusActive:
			if listing.PackageSelection != nil && listing.PackageSelection.SessionID == session.ID {
				return listing, nil
			}
			fallthrough
		default:
			log.Printf("ERROR: payment for session %s arrived while listing %s is %s; refund required",
				session.ID, listing.ID, listing.Status)
			return nil, nil
		}
		updated, err := s.lifecycle.Apply(ctx, TransitionRequest{
			ListingID: listing.ID,
			Trigger:   trigger,
			Expected:  listing.Status,
			Selection: s.selectionFor(session),
		})
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrSegmentMismatch) {
			log.Printf("ERROR: payment for session %s cannot activate listing %s: %v; refund required",
				session.ID, listing.ID, err)
			return nil, nil
		}
		return updated, err

	case models.OutcomeFailure, models.OutcomeExpired, models.OutcomeCancelled:
		if listing.Status != models.StatusPendingPayment || session.Renewal {
			return nil, nil
		}
		updated, err := s.lifecycle.Apply(ctx, TransitionRequest{
			ListingID: listing.ID,
			Trigger:   TriggerPaymentAbandoned,
			Expected:  models.StatusPendingPayment,
		})
		if errors.Is(err, ErrInvalidTransition) {
			return nil, nil
		}
		return updated, err
	}
	return nil, nil
}

func (s *checkoutService) selectionFor(session *models.CheckoutSession) *models.PackageSelection {
	start, end := models.PeriodFrom(*session.ConsumedAt, session.RuntimeMonths)
	sel := &models.PackageSelection{
		Code:          session.PackageCode,
		RuntimeMonths: session.RuntimeMonths,
		PriceCents:    session.AmountCents,
		Currency:      session.Currency,
		SessionID:     session.ID,
		PeriodStart:   start,
		PeriodEnd:     end,
	}
	if pkg, err := s.catalog.Lookup(session.PackageCode); err == nil {
		sel.Segment = pkg.Segment
		sel.Tier = pkg.Tier
	}
	return sel
}

func (s *checkoutService) sessionTTL() time.Duration {
	if s.cfg != nil && s.cfg.CheckoutSessionTTL > 0 {
		return s.cfg.CheckoutSessionTTL
	}
	return time.Hour
}

func (s *checkoutService) paymentTimeout() time.Duration {
	if s.cfg != nil && s.cfg.PaymentTimeout > 0 {
		return s.cfg.PaymentTimeout
	}
	return 10 * time.Second
}

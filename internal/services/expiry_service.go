package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/store"
)

const sweepLeaseKey = "lease:listing-expiry-sweep"

// ILease is a cluster-wide mutual exclusion with a TTL.
type ILease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Skipped         bool `json:"skipped"`
	Deactivated     int  `json:"deactivated"`
	Renewals        int  `json:"renewals"`
	SessionsExpired int  `json:"sessionsExpired"`
	Abandoned       int  `json:"abandoned"`
	Failures        int  `json:"failures"`
}

// IExpiryService runs the periodic runtime and session expiry.
type IExpiryService interface {
	Sweep(ctx context.Context) (*SweepResult, error)
}

type expiryService struct {
	cfg         *config.Config
	listings    store.IListingStore
	sessions    store.ICheckoutSessionStore
	preferences store.IPreferenceStore
	lifecycle   ILifecycleService
	checkout    ICheckoutService
	lease       ILease
}

// NewExpiryService creates the sweeper. lease may be nil when only one instance runs.
func NewExpiryService(cfg *config.Config, listings store.IListingStore, sessions store.ICheckoutSessionStore, preferences store.IPreferenceStore, lifecycle ILifecycleService, checkout ICheckoutService, lease ILease) IExpiryService {
	return &expiryService{
		cfg:         cfg,
		listings:    listings,
		sessions:    sessions,
		preferences: preferences,
		lifecycle:   lifecycle,
		checkout:    checkout,
		lease:       lease,
	}
}

// Sweep deactivates listings whose runtime ended, closes checkout sessions nobody finished
// and returns listings stuck in pending_payment to draft. Every step goes through the
// state machine, so a second sweep over the same data changes nothing.
func (s *expiryService) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}

	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, sweepLeaseKey, s.leaseTTL())
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sweep lease: %w", err)
		}
		if !ok {
			log.Println("Expiry sweep already running elsewhere, skipping")
			result.Skipped = true
			return result, nil
		}
		defer func() {
			if err := s.lease.Release(context.WithoutCancel(ctx), sweepLeaseKey); err != nil {
				log.Printf("WARN: failed to release sweep lease: %v", err)
			}
		}()
	}

	at := now()
	if err := s.expireListings(ctx, at, result); err != nil {
		return result, err
	}
	if err := s.expireSessions(ctx, at, result); err != nil {
		return result, err
	}
	if err := s.abandonStalePending(ctx, at, result); err != nil {
		return result, err
	}

	log.Printf("Expiry sweep done: %d deactivated, %d renewals, %d sessions expired, %d abandoned, %d failures",
		result.Deactivated, result.Renewals, result.SessionsExpired, result.Abandoned, result.Failures)
	return result, nil
}

func (s *expiryService) expireListings(ctx context.Context, at time.Time, result *SweepResult) error {
	expired, err := s.listings.FindExpiredActive(ctx, at, s.batchSize())
	if err != nil {
		return fmt.Errorf("failed to load expired listings: %w", err)
	}
	for i := range expired {
		listing := &expired[i]
		updated, err := s.lifecycle.Apply(ctx, TransitionRequest{
			ListingID: listing.ID,
			Trigger:   TriggerRuntimeExpired,
			Expected:  models.StatusActive,
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				// the owner got there first
				continue
			}
			log.Printf("ERROR: failed to expire listing %s: %v", listing.ID, err)
			result.Failures++
			continue
		}
		if updated.StatusTrigger != string(TriggerRuntimeExpired) {
			// deactivated by the owner after the listing was loaded
			continue
		}
		result.Deactivated++
		s.renewIfWanted(ctx, updated, result)
	}
	return nil
}

func (s *expiryService) renewIfWanted(ctx context.Context, listing *models.Listing, result *SweepResult) {
	if s.preferences == nil || s.checkout == nil {
		return
	}
	autoRenew, err := s.preferences.AutoRenew(ctx, listing.OwnerID)
	if err != nil {
		log.Printf("WARN: could not read auto-renew preference of owner %s: %v", listing.OwnerID, err)
		return
	}
	if !autoRenew {
		return
	}
	checkout, err := s.checkout.StartRenewal(ctx, listing)
	if err != nil {
		if errors.Is(err, ErrOpenSession) {
			return
		}
		log.Printf("ERROR: renewal of listing %s failed: %v", listing.ID, err)
		result.Failures++
		return
	}
	log.Printf("Renewal session %s opened for listing %s", checkout.SessionID, listing.ID)
	result.Renewals++
}

func (s *expiryService) expireSessions(ctx context.Context, at time.Time, result *SweepResult) error {
	if s.sessions == nil || s.checkout == nil {
		return nil
	}
	open, err := s.sessions.FindExpiredOpen(ctx, at, s.batchSize())
	if err != nil {
		return fmt.Errorf("failed to load expired checkout sessions: %w", err)
	}
	for i := range open {
		if err := s.checkout.ExpireSession(ctx, &open[i]); err != nil {
			log.Printf("ERROR: failed to expire checkout session %s: %v", open[i].ID, err)
			result.Failures++
			continue
		}
		result.SessionsExpired++
	}
	return nil
}

// abandonStalePending catches listings left in pending_payment without a session, e.g.
// when the processor refused to open one and the owner never retried.
func (s *expiryService) abandonStalePending(ctx context.Context, at time.Time, result *SweepResult) error {
	stale, err := s.listings.FindStalePending(ctx, at.Add(-s.sessionTTL()), s.batchSize())
	if err != nil {
		return fmt.Errorf("failed to load stale pending listings: %w", err)
	}
	for i := range stale {
		listing := &stale[i]
		if s.sessions != nil {
			if _, err := s.sessions.FindOpenByListing(ctx, listing.ID); err == nil {
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				log.Printf("WARN: could not check sessions of listing %s: %v", listing.ID, err)
				continue
			}
		}
		_, err := s.lifecycle.Apply(ctx, TransitionRequest{
			ListingID: listing.ID,
			Trigger:   TriggerPaymentAbandoned,
			Expected:  models.StatusPendingPayment,
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			log.Printf("ERROR: failed to return listing %s to draft: %v", listing.ID, err)
			result.Failures++
			continue
		}
		result.Abandoned++
	}
	return nil
}

func (s *expiryService) batchSize() int {
	if s.cfg != nil && s.cfg.SweepBatchSize > 0 {
		return s.cfg.SweepBatchSize
	}
	return 200
}

func (s *expiryService) leaseTTL() time.Duration {
	if s.cfg != nil && s.cfg.SweepLeaseTTL > 0 {
		return s.cfg.SweepLeaseTTL
	}
	return 4 * time.Minute
}

func (s *expiryService) sessionTTL() time.Duration {
	if s.cfg != nil && s.cfg.CheckoutSessionTTL > 0 {
		return s.cfg.CheckoutSessionTTL
	}
	return time.Hour
}

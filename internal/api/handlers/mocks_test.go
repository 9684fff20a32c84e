package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/services"
)

// --- Mocks ---

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateDraft(ctx context.Context, ownerID string, content models.ListingContent) (*models.Listing, error) {
	args := m.Called(ctx, ownerID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) UpdateDraft(ctx context.Context, listingID, ownerID string, content models.ListingContent) (*models.Listing, error) {
	args := m.Called(ctx, listingID, ownerID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) Get(ctx context.Context, listingID, ownerID string) (*models.Listing, error) {
	args := m.Called(ctx, listingID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) ListByOwner(ctx context.Context, ownerID string, status models.ListingStatus, limit int) ([]models.Listing, error) {
	args := m.Called(ctx, ownerID, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) Delete(ctx context.Context, listingID, ownerID string) error {
	args := m.Called(ctx, listingID, ownerID)
	return args.Error(0)
}

// MockLifecycleService
type MockLifecycleService struct {
	mock.Mock
}

func (m *MockLifecycleService) listingResult(args mock.Arguments) (*models.Listing, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockLifecycleService) Apply(ctx context.Context, req services.TransitionRequest) (*models.Listing, error) {
	return m.listingResult(m.Called(ctx, req))
}

func (m *MockLifecycleService) Deactivate(ctx context.Context, listingID, ownerID string) (*models.Listing, error) {
	return m.listingResult(m.Called(ctx, listingID, ownerID))
}

func (m *MockLifecycleService) MarkMarketed(ctx context.Context, listingID, ownerID string) (*models.Listing, error) {
	return m.listingResult(m.Called(ctx, listingID, ownerID))
}

func (m *MockLifecycleService) Archive(ctx context.Context, listingID, ownerID string) (*models.Listing, error) {
	return m.listingResult(m.Called(ctx, listingID, ownerID))
}

func (m *MockLifecycleService) Readiness(ctx context.Context, listingID, ownerID string) (*models.Readiness, error) {
	args := m.Called(ctx, listingID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Readiness), args.Error(1)
}

func (m *MockLifecycleService) RefreshReadiness(ctx context.Context, listingID string) error {
	args := m.Called(ctx, listingID)
	return args.Error(0)
}

// MockCheckoutService
type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) StartCheckout(ctx context.Context, listingID, ownerID, packageCode string, runtimeMonths int) (*services.CheckoutResult, error) {
	args := m.Called(ctx, listingID, ownerID, packageCode, runtimeMonths)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CheckoutResult), args.Error(1)
}

func (m *MockCheckoutService) StartRenewal(ctx context.Context, listing *models.Listing) (*services.CheckoutResult, error) {
	args := m.Called(ctx, listing)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CheckoutResult), args.Error(1)
}

func (m *MockCheckoutService) HandlePaymentOutcome(ctx context.Context, sessionRef string, outcome models.PaymentOutcome) (*services.OutcomeResult, error) {
	args := m.Called(ctx, sessionRef, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.OutcomeResult), args.Error(1)
}

func (m *MockCheckoutService) ExpireSession(ctx context.Context, session *models.CheckoutSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

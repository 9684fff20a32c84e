package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JBD-GER/maklernull-sub000/internal/catalog"
	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/payment"
	"github.com/JBD-GER/maklernull-sub000/internal/store"
)

// memListingStore mirrors the conditional-write semantics of the Mongo store.
type memListingStore struct {
	mu    sync.Mutex
	items map[string]models.Listing
}

func newMemListingStore() *memListingStore {
	return &memListingStore{items: map[string]models.Listing{}}
}

func copyListing(l models.Listing) *models.Listing {
	if l.PackageSelection != nil {
		sel := *l.PackageSelection
		l.PackageSelection = &sel
	}
	return &l
}

func (s *memListingStore) Insert(ctx context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[listing.ID] = *copyListing(*listing)
	return nil
}

func (s *memListingStore) FindByID(ctx context.Context, id string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyListing(l), nil
}

func (s *memListingStore) FindByOwner(ctx context.Context, ownerID string, status models.ListingStatus, limit int) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Listing{}
	for _, l := range s.items {
		if l.OwnerID != ownerID {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		if status == "" && l.Status == models.StatusDeleted {
			continue
		}
		out = append(out, *copyListing(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memListingStore) ReplaceContent(ctx context.Context, id string, allowed []models.ListingStatus, content models.ListingContent, at time.Time) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	match := false
	for _, st := range allowed {
		if l.Status == st {
			match = true
		}
	}
	if !match {
		return nil, store.ErrStatusConflict
	}
	l.ListingContent = content
	l.UpdatedAt = at
	s.items[id] = l
	return copyListing(l), nil
}

func (s *memListingStore) CompareAndSwapStatus(ctx context.Context, id string, expected, next models.ListingStatus, change store.StatusChange) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if l.Status != expected {
		return nil, store.ErrStatusConflict
	}
	l.Status = next
	l.StatusChangedAt = change.At
	l.StatusTrigger = change.Trigger
	l.UpdatedAt = change.At
	if change.Selection != nil {
		sel := *change.Selection
		l.PackageSelection = &sel
	}
	if change.MarkPaymentHistory {
		l.PaymentHistory = true
	}
	if change.MarketedAt != nil {
		l.MarketedAt = change.MarketedAt
	}
	s.items[id] = l
	return copyListing(l), nil
}

func (s *memListingStore) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Listing, error) {
	return s.filter(limit, func(l models.Listing) bool {
		return l.Status == models.StatusActive && l.PackageSelection != nil && l.PackageSelection.Expired(now)
	}), nil
}

func (s *memListingStore) FindStalePending(ctx context.Context, changedBefore time.Time, limit int) ([]models.Listing, error) {
	return s.filter(limit, func(l models.Listing) bool {
		return l.Status == models.StatusPendingPayment && !l.StatusChangedAt.After(changedBefore)
	}), nil
}

func (s *memListingStore) filter(limit int, keep func(models.Listing) bool) []models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Listing{}
	for _, l := range s.items {
		if keep(l) && len(out) < limit {
			out = append(out, *copyListing(l))
		}
	}
	return out
}

// put stores a listing as-is, bypassing the state machine.
func (s *memListingStore) put(l models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[l.ID] = *copyListing(l)
}

type memSessionStore struct {
	mu    sync.Mutex
	items map[string]models.CheckoutSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{items: map[string]models.CheckoutSession{}}
}

func (s *memSessionStore) InsertOpen(ctx context.Context, session *models.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.ListingID == session.ListingID && existing.Status == models.SessionOpen {
			return store.ErrOpenSessionExists
		}
	}
	session.Status = models.SessionOpen
	s.items[session.ID] = *session
	return nil
}

func (s *memSessionStore) FindByID(ctx context.Context, id string) (*models.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

func (s *memSessionStore) FindByProcessorRef(ctx context.Context, ref string) (*models.CheckoutSession, error) {
	return s.findOne(func(cs models.CheckoutSession) bool { return ref != "" && cs.ProcessorRef == ref })
}

func (s *memSessionStore) FindOpenByListing(ctx context.Context, listingID string) (*models.CheckoutSession, error) {
	return s.findOne(func(cs models.CheckoutSession) bool {
		return cs.ListingID == listingID && cs.Status == models.SessionOpen
	})
}

func (s *memSessionStore) findOne(match func(models.CheckoutSession) bool) (*models.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cs := range s.items {
		if match(cs) {
			return &cs, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memSessionStore) AttachProcessorRef(ctx context.Context, id, ref, redirectURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.items[id]
	if !ok {
		return store.ErrNotFound
	}
	if cs.Status != models.SessionOpen {
		return store.ErrSessionConsumed
	}
	cs.ProcessorRef = ref
	cs.RedirectURL = redirectURL
	s.items[id] = cs
	return nil
}

func (s *memSessionStore) Consume(ctx context.Context, id string, outcome models.PaymentOutcome, at time.Time) (*models.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if cs.Status != models.SessionOpen {
		return nil, store.ErrSessionConsumed
	}
	cs.Status = models.SessionConsumed
	cs.Outcome = outcome
	cs.ConsumedAt = &at
	s.items[id] = cs
	return &cs, nil
}

func (s *memSessionStore) MarkApplied(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.items[id]
	if !ok || cs.Status != models.SessionConsumed {
		return store.ErrNotFound
	}
	cs.AppliedAt = &at
	s.items[id] = cs
	return nil
}

func (s *memSessionStore) FindExpiredOpen(ctx context.Context, now time.Time, limit int) ([]models.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.CheckoutSession{}
	for _, cs := range s.items {
		if cs.Status == models.SessionOpen && !cs.ExpiresAt.After(now) && len(out) < limit {
			out = append(out, cs)
		}
	}
	return out, nil
}

func (s *memSessionStore) all() []models.CheckoutSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.CheckoutSession{}
	for _, cs := range s.items {
		out = append(out, cs)
	}
	return out
}

type memPreferences map[string]bool

func (p memPreferences) AutoRenew(ctx context.Context, ownerID string) (bool, error) {
	return p[ownerID], nil
}

type recordingBus struct {
	mu        sync.Mutex
	events    []models.ListingEvent
	activated []string
	consumed  []string
	notices   []models.OwnerNotice
}

func (b *recordingBus) ListingChanged(ctx context.Context, event models.ListingEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) ListingActivated(ctx context.Context, listing *models.Listing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activated = append(b.activated, listing.ID)
	return nil
}

func (b *recordingBus) SessionConsumed(ctx context.Context, session *models.CheckoutSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumed = append(b.consumed, session.ID)
	return nil
}

func (b *recordingBus) OwnerNotice(ctx context.Context, notice models.OwnerNotice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, notice)
	return nil
}

func (b *recordingBus) noticeKinds() []models.NoticeKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.NoticeKind
	for _, n := range b.notices {
		out = append(out, n.Kind)
	}
	return out
}

func (b *recordingBus) statusEvents() []models.ListingEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.ListingEvent
	for _, e := range b.events {
		if e.Type == models.EventListingStatusChanged {
			out = append(out, e)
		}
	}
	return out
}

type memReadinessCache struct {
	mu      sync.Mutex
	reports map[string]models.Readiness
	gets    int
}

func (c *memReadinessCache) Get(ctx context.Context, listingID string) (*models.Readiness, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	r, ok := c.reports[listingID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *memReadinessCache) Set(ctx context.Context, readiness *models.Readiness) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[readiness.ListingID] = *readiness
	return nil
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	args := m.Called(ctx, req)
	var session *payment.Session
	switch v := args.Get(0).(type) {
	case func(context.Context, payment.SessionRequest) *payment.Session:
		session = v(ctx, req)
	case *payment.Session:
		session = v
	}
	return session, args.Error(1)
}

// okSession answers every processor call with a ref derived from the idempotency key.
func (m *mockProcessor) okSession() *mock.Call {
	return m.On("CreateSession", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, req payment.SessionRequest) *payment.Session {
			return &payment.Session{Ref: "cs_" + req.IdempotencyKey, RedirectURL: "https://pay.example/" + req.IdempotencyKey}
		},
		nil,
	)
}

type memLease struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLease) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type fixture struct {
	cfg       *config.Config
	clock     time.Time
	listings  *memListingStore
	sessions  *memSessionStore
	prefs     memPreferences
	bus       *recordingBus
	readiness *memReadinessCache
	processor *mockProcessor
	lease     *memLease

	lifecycle ILifecycleService
	drafts    IListingService
	checkout  ICheckoutService
	expiry    IExpiryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	f := &fixture{
		cfg: &config.Config{
			PaymentTimeout:     time.Second,
			CheckoutSessionTTL: time.Hour,
			CheckoutSuccessURL: "https://app.example/ok",
			CheckoutCancelURL:  "https://app.example/cancel",
			SweepBatchSize:     50,
			SweepLeaseTTL:      time.Minute,
			MaxListingsPerPage: 20,
		},
		clock:     time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		listings:  newMemListingStore(),
		sessions:  newMemSessionStore(),
		prefs:     memPreferences{},
		bus:       &recordingBus{},
		readiness: &memReadinessCache{reports: map[string]models.Readiness{}},
		processor: &mockProcessor{},
		lease:     &memLease{held: map[string]bool{}},
	}

	previous := now
	now = func() time.Time { return f.clock }
	t.Cleanup(func() { now = previous })

	f.lifecycle = NewLifecycleService(f.listings, f.sessions, f.bus, f.readiness)
	f.drafts = NewListingService(f.cfg, f.listings, f.lifecycle, f.bus)
	f.checkout = NewCheckoutService(f.cfg, cat, f.listings, f.sessions, f.lifecycle, f.processor, f.bus)
	f.expiry = NewExpiryService(f.cfg, f.listings, f.sessions, f.prefs, f.lifecycle, f.checkout, f.lease)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) status(t *testing.T, id string) models.ListingStatus {
	t.Helper()
	l, err := f.listings.FindByID(context.Background(), id)
	require.NoError(t, err)
	return l.Status
}

// listingIn stores a listing with the given status directly.
func (f *fixture) listingIn(id, owner string, status models.ListingStatus) models.Listing {
	l := models.Listing{
		ID:              id,
		OwnerID:         owner,
		ListingContent:  completeContent(models.TransactionSale),
		Status:          status,
		CreatedAt:       f.clock,
		UpdatedAt:       f.clock,
		StatusChangedAt: f.clock,
	}
	if status != models.StatusDraft {
		l.PaymentHistory = true
	}
	f.listings.put(l)
	return l
}

func floatPtr(v float64) *float64 { return &v }

func completeContent(transaction string) models.ListingContent {
	return models.ListingContent{
		Basis: models.ListingBasis{
			TransactionType: transaction,
			UsageType:       "residential",
			Category:        "Wohnung",
			Title:           "Helle 3-Zimmer-Wohnung mit Balkon",
		},
		Address: models.ListingAddress{Street: "Lindenstraße", HouseNumber: "12", PostalCode: "10969", City: "Berlin", Country: "DE"},
		Pricing: models.ListingPricing{Price: floatPtr(250000), Currency: "EUR"},
		Contact: models.ListingContact{Name: "Erika Muster", Email: "erika@example.de"},
		Consent: models.ListingConsent{AcceptTerms: true, AcceptPrivacy: true},
	}
}

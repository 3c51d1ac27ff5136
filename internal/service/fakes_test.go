package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/catalog"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory CouponStore, OrderStore, GatewayConfigStore and BlockedCountryStore
type memStore struct {
	mu         sync.Mutex
	coupons    map[string]models.Coupon
	orders     map[string]models.Order
	configs    []models.GatewayConfig
	blocked    map[string]bool
	configErr  error
	increments int
	clock      func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		coupons: make(map[string]models.Coupon),
		orders:  make(map[string]models.Order),
		blocked: make(map[string]bool),
		clock:   time.Now,
	}
}

func (s *memStore) GetCoupon(_ context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memStore) IncrementCouponUses(_ context.Context, code string, expectedUses int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok || c.CurrentUses != expectedUses || c.CurrentUses >= c.MaxUses {
		return false, nil
	}
	c.CurrentUses++
	s.coupons[code] = c
	s.increments++
	return true, nil
}

func (s *memStore) UpsertOrder(_ context.Context, order *models.Order) (*models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.orders[order.ExternalID]
	if ok {
		if existing.Status != models.OrderStatusPending {
			return &existing, false, nil
		}
		existing.Status = order.Status
		existing.FailureReason = order.FailureReason
		existing.UpdatedAt = s.clock()
		s.orders[order.ExternalID] = existing
		return &existing, true, nil
	}

	row := *order
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.clock()
	}
	row.UpdatedAt = row.CreatedAt
	s.orders[order.ExternalID] = row
	return &row, true, nil
}

func (s *memStore) GetOrderByExternalID(_ context.Context, externalID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[externalID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *memStore) ListStalePendingOrders(_ context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(createdBefore) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) GetGatewayConfig(_ context.Context) (*models.GatewayConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configErr != nil {
		return nil, s.configErr
	}
	if len(s.configs) == 0 {
		return nil, nil
	}
	cfg := s.configs[len(s.configs)-1]
	return &cfg, nil
}

func (s *memStore) SaveGatewayConfig(_ context.Context, cfg *models.GatewayConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.ID = int64(len(s.configs) + 1)
	s.configs = append(s.configs, *cfg)
	return nil
}

func (s *memStore) IsCountryBlocked(_ context.Context, country string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked[country], nil
}

func (s *memStore) order(t *testing.T, externalID string) models.Order {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[externalID]
	require.True(t, ok, "order %s not stored", externalID)
	return o
}

func (s *memStore) coupon(code string) models.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[code]
}

type memAttempts struct {
	mu   sync.Mutex
	last map[string]time.Time
	err  error
}

func newMemAttempts() *memAttempts {
	return &memAttempts{last: make(map[string]time.Time)}
}

func (a *memAttempts) LastAttempt(_ context.Context, clientKey string) (time.Time, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return time.Time{}, false, a.err
	}
	at, ok := a.last[clientKey]
	return at, ok, nil
}

func (a *memAttempts) RecordAttempt(_ context.Context, clientKey string, at time.Time, _ time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last[clientKey] = at
	return nil
}

// fakeAdapter scripts gateway responses and counts calls
type fakeAdapter struct {
	mu   sync.Mutex
	name string

	createErrs     []error
	confirmOutcome gateway.Outcome
	confirmErr     error
	lookupOutcome  gateway.Outcome
	lookupErr      error

	createCalls  int
	confirmCalls int
	lookupCalls  int
	keys         []string
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{
		name:           name,
		confirmOutcome: gateway.Confirmed(),
		lookupOutcome:  gateway.Outcome{Kind: gateway.OutcomePending},
	}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) CreateIntent(_ context.Context, req gateway.CreateIntentRequest) (models.PaymentIntentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.keys = append(f.keys, req.IdempotencyKey)
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return models.PaymentIntentRef{}, err
		}
	}
	return models.PaymentIntentRef{
		Gateway:      f.name,
		ExternalID:   f.name + "_" + req.Reference,
		ClientSecret: "secret_" + req.Reference,
		Status:       "created",
	}, nil
}

func (f *fakeAdapter) Confirm(_ context.Context, _ models.PaymentIntentRef, _ gateway.ConfirmRequest) (gateway.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	return f.confirmOutcome, f.confirmErr
}

func (f *fakeAdapter) Lookup(_ context.Context, _ models.PaymentIntentRef) (gateway.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	return f.lookupOutcome, f.lookupErr
}

func (f *fakeAdapter) calls() (create, confirm, lookup int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.confirmCalls, f.lookupCalls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.OrderReconciledEvent
}

func (p *recordingPublisher) PublishOrderReconciled(_ context.Context, event *models.OrderReconciledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// harness wires an orchestrator over in-memory stores and scripted adapters
type harness struct {
	store      *memStore
	attempts   *memAttempts
	publisher  *recordingPublisher
	stripe     *fakeAdapter
	sumup      *fakeAdapter
	catalog    *catalog.Catalog
	validator  *CouponValidator
	pricing    *PriceCalculator
	reconciler *OrderReconciler
	orch       *CheckoutOrchestrator
	now        time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cat, err := catalog.Load("")
	require.NoError(t, err)

	h := &harness{
		store:     newMemStore(),
		attempts:  newMemAttempts(),
		publisher: &recordingPublisher{},
		stripe:    newFakeAdapter(models.GatewayStripe),
		sumup:     newFakeAdapter(models.GatewaySumUp),
		catalog:   cat,
		now:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.store.clock = clock

	factory := gateway.NewFactory(
		gateway.WithBuilder(models.GatewayStripe, func(*models.GatewayConfig) (gateway.Adapter, error) { return h.stripe, nil }),
		gateway.WithBuilder(models.GatewaySumUp, func(*models.GatewayConfig) (gateway.Adapter, error) { return h.sumup, nil }),
	)

	h.validator = NewCouponValidator(h.store, 100, clock)
	h.pricing = NewPriceCalculator(cat, h.validator, 100)
	h.reconciler = NewOrderReconciler(h.store, h.store, nil, h.publisher, ReconcilerConfig{
		LockTTL:             time.Second,
		LockWait:            10 * time.Millisecond,
		CouponRetries:       8,
		CouponRetryInterval: time.Millisecond,
	})
	h.orch = NewCheckoutOrchestrator(h.store, factory, cat, h.pricing, h.attempts, h.store, h.reconciler, OrchestratorConfig{
		MinCharge:        100,
		AttemptWindow:    30 * time.Second,
		CreateRetryDelay: time.Millisecond,
		ReturnURL:        "https://shop.example/checkout/return",
	}, clock)

	h.useGateway(models.GatewayStripe, true)
	return h
}

func (h *harness) useGateway(name string, enabled bool) {
	_ = h.store.SaveGatewayConfig(context.Background(), &models.GatewayConfig{
		ActiveGateway:        name,
		IsEnabled:            enabled,
		StripePublishableKey: "pk_test",
		StripeSecretKey:      "sk_test",
		SumUpAPIKey:          "sup_sk_test",
		SumUpMerchantEmail:   "merchant@example.com",
	})
}

func (h *harness) addCoupon(code, kind, value string, maxUses, currentUses int) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.coupons[code] = models.Coupon{
		Code:          code,
		DiscountType:  kind,
		DiscountValue: decimal.RequireFromString(value),
		MaxUses:       maxUses,
		CurrentUses:   currentUses,
		ValidUntil:    h.now.Add(24 * time.Hour),
	}
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func intentFor(email, pkg string, features ...string) models.CheckoutIntent {
	return models.CheckoutIntent{
		PackageID:  pkg,
		FeatureIDs: features,
		Client: models.ClientInfo{
			Email:   email,
			Name:    "Test Buyer",
			Phone:   "+31600000000",
			Country: "NL",
		},
	}
}

func requireKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	require.Error(t, err)
	var serr *Error
	require.True(t, errors.As(err, &serr), "expected service error, got %v", err)
	require.Equal(t, kind, serr.Kind, fmt.Sprintf("error: %v", err))
	return serr
}

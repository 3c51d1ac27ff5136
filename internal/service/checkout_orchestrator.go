package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/money"
	"checkout-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutState is a step of the checkout state machine
type CheckoutState string

const (
	StateDraft               CheckoutState = "draft"
	StatePricingComputed     CheckoutState = "pricing_computed"
	StateIntentCreated       CheckoutState = "intent_created"
	StatePendingConfirmation CheckoutState = "pending_confirmation"
	StateConfirmed           CheckoutState = "confirmed"
	StateDeclined            CheckoutState = "declined"
	StateReconciled          CheckoutState = "reconciled"
)

const (
	reasonAbandoned = "abandoned"
	reasonDeclined  = "declined"
)

// OrchestratorConfig holds the checkout policy knobs
type OrchestratorConfig struct {
	MinCharge        int64
	AttemptWindow    time.Duration
	CreateRetryDelay time.Duration
	ReturnURL        string
	SweepBatchSize   int
}

// CheckoutResult is returned once a gateway intent exists for the checkout
type CheckoutResult struct {
	OrderID             string            `json:"order_id"`
	ExternalID          string            `json:"external_id"`
	Gateway             string            `json:"gateway"`
	State               CheckoutState     `json:"state"`
	Subtotal            money.Money       `json:"subtotal"`
	Discount            money.Money       `json:"discount"`
	Total               money.Money       `json:"total"`
	CouponCode          string            `json:"coupon_code,omitempty"`
	ConfirmationPayload map[string]string `json:"confirmation_payload"`
}

// ConfirmResult describes where a checkout stands after confirm or resume
type ConfirmResult struct {
	ExternalID  string            `json:"external_id"`
	Gateway     string            `json:"gateway"`
	State       CheckoutState     `json:"state"`
	OrderStatus string            `json:"order_status"`
	Total       money.Money       `json:"total"`
	Redirect    *gateway.Redirect `json:"redirect,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}

// CheckoutOrchestrator drives one checkout from intent to reconciled order
type CheckoutOrchestrator struct {
	configs    GatewayConfigStore
	gateways   AdapterFactory
	catalog    ProductCatalog
	pricing    *PriceCalculator
	attempts   AttemptTracker
	orders     OrderStore
	reconciler *OrderReconciler
	cfg        OrchestratorConfig
	clock      func() time.Time
	logger     *zap.Logger
}

// NewCheckoutOrchestrator creates a checkout orchestrator
func NewCheckoutOrchestrator(
	configs GatewayConfigStore,
	gateways AdapterFactory,
	catalog ProductCatalog,
	pricing *PriceCalculator,
	attempts AttemptTracker,
	orders OrderStore,
	reconciler *OrderReconciler,
	cfg OrchestratorConfig,
	clock func() time.Time,
) *CheckoutOrchestrator {
	if clock == nil {
		clock = time.Now
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	return &CheckoutOrchestrator{
		configs:    configs,
		gateways:   gateways,
		catalog:    catalog,
		pricing:    pricing,
		attempts:   attempts,
		orders:     orders,
		reconciler: reconciler,
		cfg:        cfg,
		clock:      clock,
		logger:     util.GetLogger(),
	}
}

// Checkout prices the intent, opens a gateway intent and records the pending order.
// Every coupon, pricing and rate-limit failure is returned before the gateway is called.
func (o *CheckoutOrchestrator) Checkout(ctx context.Context, intent models.CheckoutIntent) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.Checkout",
		attribute.String("package_id", intent.PackageID))
	defer span.End()

	intent, err := o.normalizeIntent(intent)
	if err != nil {
		util.CheckoutRejectedTotal.WithLabelValues(string(KindValidation)).Inc()
		return nil, err
	}
	o.logger.Debug("Checkout intent accepted",
		zap.String("state", string(StateDraft)),
		zap.String("client_key", intent.ClientKey))

	adapter, err := o.activeAdapter(ctx)
	if err != nil {
		util.CheckoutRejectedTotal.WithLabelValues(string(KindConfiguration)).Inc()
		return nil, err
	}

	quote, err := o.pricing.Quote(ctx, intent)
	if err != nil {
		util.CheckoutRejectedTotal.WithLabelValues(rejectLabel(err)).Inc()
		return nil, err
	}
	if quote.Total.Amount < o.cfg.MinCharge {
		util.CheckoutRejectedTotal.WithLabelValues(string(KindAmountTooLow)).Inc()
		return nil, &Error{
			Kind:    KindAmountTooLow,
			Reason:  string(KindAmountTooLow),
			Message: fmt.Sprintf("order total %s is below the minimum charge", quote.Total),
		}
	}
	o.logger.Debug("Checkout priced",
		zap.String("state", string(StatePricingComputed)),
		zap.Int64("total", quote.Total.Amount))

	now := o.clock()
	if err := o.checkRateLimit(ctx, intent.ClientKey, now); err != nil {
		util.CheckoutRejectedTotal.WithLabelValues(string(KindRateLimited)).Inc()
		return nil, err
	}
	if err := o.attempts.RecordAttempt(ctx, intent.ClientKey, now, o.cfg.AttemptWindow); err != nil {
		o.logger.Warn("Failed to record checkout attempt", zap.String("client_key", intent.ClientKey), zap.Error(err))
	}

	util.CheckoutAttemptsTotal.WithLabelValues(adapter.Name()).Inc()

	reference := uuid.New().String()
	ref, err := o.createIntent(ctx, adapter, gateway.CreateIntentRequest{
		Amount:         quote.Total,
		Client:         intent.Client,
		IdempotencyKey: intent.IdempotencyKey,
		Reference:      reference,
		Description:    quote.Package.Name,
		ReturnURL:      o.cfg.ReturnURL,
		Metadata: map[string]string{
			"package_id": quote.Package.ID,
			"coupon":     intent.CouponCode,
		},
	})
	if err != nil {
		util.CheckoutRejectedTotal.WithLabelValues(rejectLabel(err)).Inc()
		return nil, err
	}

	order := buildOrder(intent, quote, ref)
	order.ID = reference
	stored, err := o.reconciler.RecordPending(ctx, order)
	if err != nil {
		o.logger.Error("Gateway intent created but order not recorded",
			zap.String("external_id", ref.ExternalID),
			zap.String("gateway", ref.Gateway),
			zap.Error(err))
		return nil, &Error{Kind: KindPaymentFailed, Reason: string(KindPaymentFailed), Message: msgPaymentFailed, Err: err}
	}

	o.logger.Info("Checkout intent created",
		zap.String("order_id", stored.ID),
		zap.String("external_id", ref.ExternalID),
		zap.String("gateway", ref.Gateway),
		zap.String("total", quote.Total.String()))

	result := &CheckoutResult{
		OrderID:    stored.ID,
		ExternalID: ref.ExternalID,
		Gateway:    ref.Gateway,
		State:      StateIntentCreated,
		Subtotal:   quote.Subtotal,
		Discount:   quote.Discount,
		Total:      quote.Total,
		ConfirmationPayload: map[string]string{
			"client_secret": ref.ClientSecret,
			"external_id":   ref.ExternalID,
		},
	}
	if quote.Coupon != nil {
		result.CouponCode = quote.Coupon.Code
	}
	return result, nil
}

// Confirm forwards buyer confirmation material to the gateway the order was created with.
// Confirmation is never retried: a failed call reports Declined and needs a fresh checkout.
func (o *CheckoutOrchestrator) Confirm(ctx context.Context, externalID string, req gateway.ConfirmRequest) (*ConfirmResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.Confirm",
		attribute.String("external_id", externalID))
	defer span.End()

	order, adapter, err := o.orderAdapter(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminal(order.Status) {
		return reconciledResult(order), nil
	}
	if req.ReturnURL == "" {
		req.ReturnURL = o.cfg.ReturnURL
	}

	start := time.Now()
	outcome, err := adapter.Confirm(ctx, order.Ref(), req)
	util.GatewayRequestLatency.WithLabelValues(adapter.Name(), "confirm").Observe(time.Since(start).Seconds())
	if err != nil {
		return o.confirmFailed(ctx, order, err)
	}

	return o.apply(ctx, order, outcome)
}

// Resume rebuilds an in-flight checkout from its external id after a redirect round trip
func (o *CheckoutOrchestrator) Resume(ctx context.Context, externalID string) (*ConfirmResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.Resume",
		attribute.String("external_id", externalID))
	defer span.End()

	order, adapter, err := o.orderAdapter(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminal(order.Status) {
		return reconciledResult(order), nil
	}

	start := time.Now()
	outcome, err := adapter.Lookup(ctx, order.Ref())
	util.GatewayRequestLatency.WithLabelValues(adapter.Name(), "lookup").Observe(time.Since(start).Seconds())
	if err != nil {
		o.countGatewayError(adapter.Name(), err)
		return nil, fromGatewayError(err)
	}

	return o.apply(ctx, order, outcome)
}

// ApplyGatewayEvent reconciles an order from a verified gateway notification
func (o *CheckoutOrchestrator) ApplyGatewayEvent(ctx context.Context, event gateway.WebhookEvent) error {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.ApplyGatewayEvent",
		attribute.String("external_id", event.ExternalID),
		attribute.String("gateway", event.Gateway))
	defer span.End()

	if !event.Outcome.Terminal() {
		return nil
	}

	order, err := o.orders.GetOrderByExternalID(ctx, event.ExternalID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		o.logger.Warn("Gateway event for unknown order",
			zap.String("external_id", event.ExternalID),
			zap.String("event_id", event.ID))
		util.WebhookEventsTotal.WithLabelValues(event.Gateway, "unknown_order").Inc()
		return nil
	}
	if order.PaymentMethod != event.Gateway {
		o.logger.Warn("Gateway event does not match order gateway",
			zap.String("external_id", event.ExternalID),
			zap.String("order_gateway", order.PaymentMethod),
			zap.String("event_gateway", event.Gateway))
		util.WebhookEventsTotal.WithLabelValues(event.Gateway, "gateway_mismatch").Inc()
		return nil
	}

	if _, err := o.reconcileOutcome(ctx, order, event.Outcome); err != nil {
		return err
	}
	util.WebhookEventsTotal.WithLabelValues(event.Gateway, "applied").Inc()
	return nil
}

// SweepStale resolves pending orders older than olderThan. Orders the gateway still reports as
// open are marked failed; orders whose gateway cannot be reached are left for the next sweep.
func (o *CheckoutOrchestrator) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.SweepStale")
	defer span.End()

	stale, err := o.orders.ListStalePendingOrders(ctx, o.clock().Add(-olderThan), o.cfg.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale orders: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	cfg, err := o.configs.GetGatewayConfig(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load gateway config: %w", err)
	}

	resolved := 0
	for i := range stale {
		order := &stale[i]
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		outcome, err := o.lookupForSweep(ctx, cfg, order)
		if err != nil {
			o.logger.Warn("Stale order left pending",
				zap.String("external_id", order.ExternalID),
				zap.Error(err))
			continue
		}

		stored, err := o.reconcileOutcome(ctx, order, outcome)
		if err != nil {
			o.logger.Error("Failed to reconcile stale order", zap.String("external_id", order.ExternalID), zap.Error(err))
			continue
		}
		util.StaleOrdersSweptTotal.WithLabelValues(stored.Status).Inc()
		resolved++
	}

	o.logger.Info("Stale order sweep finished",
		zap.Int("candidates", len(stale)),
		zap.Int("resolved", resolved))
	return resolved, nil
}

func (o *CheckoutOrchestrator) lookupForSweep(ctx context.Context, cfg *models.GatewayConfig, order *models.Order) (gateway.Outcome, error) {
	adapter, err := o.gateways.Build(cfg, order.PaymentMethod)
	if err != nil {
		return gateway.Outcome{}, err
	}

	outcome, err := adapter.Lookup(ctx, order.Ref())
	switch {
	case err == nil && outcome.Terminal():
		return outcome, nil
	case err == nil:
		return gateway.Declined(reasonAbandoned), nil
	case gateway.IsKind(err, gateway.KindRejected):
		// the gateway no longer knows the intent
		return gateway.Declined(reasonAbandoned), nil
	default:
		return gateway.Outcome{}, err
	}
}

// apply moves the order according to a confirm or lookup outcome
func (o *CheckoutOrchestrator) apply(ctx context.Context, order *models.Order, outcome gateway.Outcome) (*ConfirmResult, error) {
	if !outcome.Terminal() {
		if outcome.Kind == gateway.OutcomePendingRedirect {
			util.PendingRedirectsTotal.WithLabelValues(order.PaymentMethod).Inc()
		}
		return &ConfirmResult{
			ExternalID:  order.ExternalID,
			Gateway:     order.PaymentMethod,
			State:       StatePendingConfirmation,
			OrderStatus: order.Status,
			Total:       order.Total(),
			Redirect:    outcome.Redirect,
		}, nil
	}

	state := StateConfirmed
	if outcome.Kind == gateway.OutcomeDeclined {
		state = StateDeclined
	}
	o.logger.Debug("Gateway outcome received",
		zap.String("external_id", order.ExternalID),
		zap.String("state", string(state)))

	stored, err := o.reconcileOutcome(ctx, order, outcome)
	if err != nil {
		return nil, err
	}
	return reconciledResult(stored), nil
}

func (o *CheckoutOrchestrator) reconcileOutcome(ctx context.Context, order *models.Order, outcome gateway.Outcome) (*models.Order, error) {
	status := models.OrderStatusPaid
	reason := ""
	if outcome.Kind == gateway.OutcomeDeclined {
		status = models.OrderStatusFailed
		reason = outcome.Reason
		if reason == "" {
			reason = reasonDeclined
		}
	}
	return o.reconciler.Reconcile(ctx, order.Ref(), status, reason, order)
}

// confirmFailed maps a failed confirmation. Rejections fail the order; an unreachable gateway
// leaves it pending because the payment may have gone through.
func (o *CheckoutOrchestrator) confirmFailed(ctx context.Context, order *models.Order, err error) (*ConfirmResult, error) {
	o.countGatewayError(order.PaymentMethod, err)
	serr := fromGatewayError(err)

	switch serr.Kind {
	case KindGatewayRejected:
		stored, rerr := o.reconciler.Reconcile(ctx, order.Ref(), models.OrderStatusFailed, serr.Message, order)
		if rerr != nil {
			return nil, rerr
		}
		result := reconciledResult(stored)
		result.Reason = serr.Message
		return result, nil
	case KindGatewayUnavailable:
		o.logger.Warn("Confirmation failed, order left pending",
			zap.String("external_id", order.ExternalID),
			zap.Error(err))
		return &ConfirmResult{
			ExternalID:  order.ExternalID,
			Gateway:     order.PaymentMethod,
			State:       StateDeclined,
			OrderStatus: order.Status,
			Total:       order.Total(),
			Reason:      msgTryAgain,
		}, nil
	default:
		o.logger.Error("Confirmation failed", zap.String("external_id", order.ExternalID), zap.Error(err))
		return nil, serr
	}
}

// createIntent calls the adapter, retrying once with the same idempotency key when the gateway is unavailable
func (o *CheckoutOrchestrator) createIntent(ctx context.Context, adapter gateway.Adapter, req gateway.CreateIntentRequest) (models.PaymentIntentRef, error) {
	var ref models.PaymentIntentRef
	attempt := 0

	op := func() error {
		attempt++
		start := time.Now()
		var err error
		ref, err = adapter.CreateIntent(ctx, req)
		util.GatewayRequestLatency.WithLabelValues(adapter.Name(), "create_intent").Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}

		o.countGatewayError(adapter.Name(), err)
		if gateway.IsKind(err, gateway.KindUnavailable) {
			o.logger.Warn("Gateway unavailable while creating intent",
				zap.String("gateway", adapter.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(o.cfg.CreateRetryDelay), 1), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if gateway.IsKind(err, gateway.KindUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return models.PaymentIntentRef{}, &Error{
				Kind:    KindPaymentFailed,
				Reason:  string(KindPaymentFailed),
				Message: msgPaymentFailed,
				Err:     err,
			}
		}
		serr := fromGatewayError(err)
		if serr.Kind == KindConfiguration {
			o.logger.Error("Gateway configuration error", zap.String("gateway", adapter.Name()), zap.Error(err))
		}
		return models.PaymentIntentRef{}, serr
	}

	ref.Gateway = adapter.Name()
	return ref, nil
}

func (o *CheckoutOrchestrator) checkRateLimit(ctx context.Context, clientKey string, now time.Time) error {
	last, ok, err := o.attempts.LastAttempt(ctx, clientKey)
	if err != nil {
		o.logger.Warn("Attempt tracker unavailable", zap.String("client_key", clientKey), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed < 0 || elapsed >= o.cfg.AttemptWindow {
		return nil
	}

	wait := o.cfg.AttemptWindow - elapsed
	seconds := int(math.Ceil(wait.Seconds()))
	return &Error{
		Kind:       KindRateLimited,
		Reason:     string(KindRateLimited),
		Message:    fmt.Sprintf("Please wait %d seconds before trying again", seconds),
		RetryAfter: time.Duration(seconds) * time.Second,
	}
}

// activeAdapter selects the adapter for a new checkout from the admin configuration
func (o *CheckoutOrchestrator) activeAdapter(ctx context.Context) (gateway.Adapter, error) {
	cfg, err := o.configs.GetGatewayConfig(ctx)
	if err != nil {
		o.logger.Error("Failed to load gateway config", zap.Error(err))
		return nil, configurationError(err)
	}
	if cfg == nil || !cfg.IsEnabled {
		return nil, configurationError(errors.New("payments are disabled"))
	}

	adapter, err := o.gateways.Build(cfg, cfg.ActiveGateway)
	if err != nil {
		o.logger.Error("Active gateway misconfigured", zap.String("gateway", cfg.ActiveGateway), zap.Error(err))
		return nil, configurationError(err)
	}
	return adapter, nil
}

// orderAdapter loads an order and rebuilds the adapter of the gateway it was created with
func (o *CheckoutOrchestrator) orderAdapter(ctx context.Context, externalID string) (*models.Order, gateway.Adapter, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, nil, validationError("external id is required")
	}

	order, err := o.orders.GetOrderByExternalID(ctx, externalID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, nil, notFoundError("checkout", externalID)
	}
	if models.IsTerminal(order.Status) {
		return order, nil, nil
	}

	cfg, err := o.configs.GetGatewayConfig(ctx)
	if err != nil {
		o.logger.Error("Failed to load gateway config", zap.Error(err))
		return nil, nil, configurationError(err)
	}
	adapter, err := o.gateways.Build(cfg, order.PaymentMethod)
	if err != nil {
		o.logger.Error("Order gateway misconfigured", zap.String("gateway", order.PaymentMethod), zap.Error(err))
		return nil, nil, configurationError(err)
	}
	return order, adapter, nil
}

func (o *CheckoutOrchestrator) normalizeIntent(intent models.CheckoutIntent) (models.CheckoutIntent, error) {
	intent.PackageID = strings.TrimSpace(intent.PackageID)
	intent.CouponCode = models.NormalizeCouponCode(intent.CouponCode)
	intent.Client.Email = strings.TrimSpace(intent.Client.Email)
	intent.Client.Name = strings.TrimSpace(intent.Client.Name)
	intent.Client.Phone = strings.TrimSpace(intent.Client.Phone)
	intent.Client.Country = strings.ToUpper(strings.TrimSpace(intent.Client.Country))

	if intent.PackageID == "" {
		return intent, validationError("package is required")
	}
	if intent.Client.Name == "" {
		return intent, validationError("name is required")
	}
	if _, err := mail.ParseAddress(intent.Client.Email); err != nil {
		return intent, validationError("a valid email is required")
	}
	if intent.Client.Country == "" || !o.catalog.AllowsCountry(intent.Client.Country) {
		return intent, validationError("country %q is not supported", intent.Client.Country)
	}

	if strings.TrimSpace(intent.ClientKey) == "" {
		intent.ClientKey = strings.ToLower(intent.Client.Email)
	}
	if strings.TrimSpace(intent.IdempotencyKey) == "" {
		intent.IdempotencyKey = uuid.New().String()
	}
	return intent, nil
}

func (o *CheckoutOrchestrator) countGatewayError(name string, err error) {
	var gerr *gateway.Error
	kind := "unknown"
	if errors.As(err, &gerr) {
		kind = string(gerr.Kind)
	}
	util.GatewayErrorsTotal.WithLabelValues(name, kind).Inc()
}

func rejectLabel(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}

func buildOrder(intent models.CheckoutIntent, quote *Quote, ref models.PaymentIntentRef) *models.Order {
	featureIDs := make([]string, 0, len(quote.Features))
	for _, f := range quote.Features {
		featureIDs = append(featureIDs, f.ID)
	}

	order := &models.Order{
		ExternalID:    ref.ExternalID,
		Status:        models.OrderStatusPending,
		PackageID:     quote.Package.ID,
		FeatureIDs:    featureIDs,
		Subtotal:      quote.Subtotal.Amount,
		FinalAmount:   quote.Total.Amount,
		Currency:      quote.Total.Currency,
		PaymentMethod: ref.Gateway,
		GatewayFields: models.JSONMap{"intent_status": ref.Status},
		ClientEmail:   intent.Client.Email,
		ClientPhone:   intent.Client.Phone,
		ClientName:    intent.Client.Name,
		ClientCountry: intent.Client.Country,
	}
	if quote.Coupon != nil {
		code := quote.Coupon.Code
		discount := quote.Discount.Amount
		order.CouponCode = &code
		order.CouponDiscount = &discount
	}
	return order
}

func reconciledResult(order *models.Order) *ConfirmResult {
	state := StateReconciled
	if order.Status == models.OrderStatusFailed {
		state = StateDeclined
	}
	return &ConfirmResult{
		ExternalID:  order.ExternalID,
		Gateway:     order.PaymentMethod,
		State:       state,
		OrderStatus: order.Status,
		Total:       order.Total(),
		Reason:      order.FailureReason,
	}
}

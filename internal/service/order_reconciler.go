package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errCouponConflict = errors.New("coupon use counter changed concurrently")

// ReconcilerConfig tunes lock and retry behaviour
type ReconcilerConfig struct {
	LockTTL             time.Duration
	LockWait            time.Duration
	CouponRetries       uint64
	CouponRetryInterval time.Duration
}

// DefaultReconcilerConfig returns production defaults
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		LockTTL:             10 * time.Second,
		LockWait:            2 * time.Second,
		CouponRetries:       8,
		CouponRetryInterval: 20 * time.Millisecond,
	}
}

// OrderReconciler persists checkout outcomes and consumes coupon uses for paid orders
type OrderReconciler struct {
	orders    OrderStore
	coupons   CouponStore
	locker    Locker
	publisher OrderEventPublisher
	cfg       ReconcilerConfig
	logger    *zap.Logger
}

// NewOrderReconciler creates an order reconciler. locker and publisher may be nil.
func NewOrderReconciler(
	orders OrderStore,
	coupons CouponStore,
	locker Locker,
	publisher OrderEventPublisher,
	cfg ReconcilerConfig,
) *OrderReconciler {
	return &OrderReconciler{
		orders:    orders,
		coupons:   coupons,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// RecordPending stores the pending order created together with a gateway intent
func (r *OrderReconciler) RecordPending(ctx context.Context, order *models.Order) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderReconciler.RecordPending",
		attribute.String("external_id", order.ExternalID))
	defer span.End()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.Status = models.OrderStatusPending

	stored, _, err := r.orders.UpsertOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to record pending order: %w", err)
	}

	util.OrdersCreatedTotal.WithLabelValues(order.PaymentMethod).Inc()
	r.logger.Info("Pending order recorded",
		zap.String("order_id", stored.ID),
		zap.String("external_id", stored.ExternalID),
		zap.String("gateway", stored.PaymentMethod))
	return stored, nil
}

// Reconcile writes the terminal status for ref. intended carries the order fields of the checkout
// attempt and is used when no pending row exists yet. Calling it again for the same external id
// returns the stored row; a terminal row never changes and the coupon is consumed once.
func (r *OrderReconciler) Reconcile(
	ctx context.Context,
	ref models.PaymentIntentRef,
	status string,
	reason string,
	intended *models.Order,
) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderReconciler.Reconcile",
		attribute.String("external_id", ref.ExternalID),
		attribute.String("status", status))
	defer span.End()

	if !models.IsTerminal(status) {
		return nil, validationError("status %q is not terminal", status)
	}
	if ref.ExternalID == "" || intended == nil {
		return nil, validationError("external id and order fields are required")
	}

	release := r.lock(ctx, ref.ExternalID)
	defer release()

	row := *intended
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	row.ExternalID = ref.ExternalID
	if ref.Gateway != "" {
		row.PaymentMethod = ref.Gateway
	}
	row.Status = status
	row.FailureReason = reason

	stored, applied, err := r.orders.UpsertOrder(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert order: %w", err)
	}

	if !applied {
		r.logger.Info("Order already reconciled",
			zap.String("external_id", stored.ExternalID),
			zap.String("status", stored.Status))
		return stored, nil
	}

	switch status {
	case models.OrderStatusPaid:
		util.OrdersPaidTotal.WithLabelValues(stored.PaymentMethod).Inc()
		if stored.CouponCode != nil && *stored.CouponCode != "" {
			if err := r.redeemCoupon(ctx, *stored.CouponCode); err != nil {
				r.logger.Error("Failed to consume coupon use",
					zap.String("external_id", stored.ExternalID),
					zap.String("code", *stored.CouponCode),
					zap.Error(err))
			}
		}
	case models.OrderStatusFailed:
		util.OrdersFailedTotal.WithLabelValues(failureLabel(reason)).Inc()
	}

	r.publish(ctx, stored)

	r.logger.Info("Order reconciled",
		zap.String("order_id", stored.ID),
		zap.String("external_id", stored.ExternalID),
		zap.String("status", stored.Status))
	return stored, nil
}

// redeemCoupon increments the coupon use counter with compare-and-increment, retrying on conflicts
func (r *OrderReconciler) redeemCoupon(ctx context.Context, code string) error {
	op := func() error {
		coupon, err := r.coupons.GetCoupon(ctx, code)
		if err != nil {
			return backoff.Permanent(err)
		}
		if coupon == nil {
			return backoff.Permanent(ErrCouponNotFound)
		}
		if coupon.CurrentUses >= coupon.MaxUses {
			return backoff.Permanent(ErrCouponExhausted)
		}

		ok, err := r.coupons.IncrementCouponUses(ctx, code, coupon.CurrentUses)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			util.CouponConflictsTotal.Inc()
			return errCouponConflict
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.CouponRetryInterval
	b.MaxElapsedTime = 0

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.CouponRetries), ctx)); err != nil {
		return err
	}

	util.CouponRedemptionsTotal.Inc()
	return nil
}

// lock takes the per-order reconcile lock. Lock failures fall back to the upsert guard alone.
func (r *OrderReconciler) lock(ctx context.Context, externalID string) func() {
	if r.locker == nil {
		return func() {}
	}

	key := "reconcile:" + externalID
	deadline := time.Now().Add(r.cfg.LockWait)
	for {
		ok, err := r.locker.AcquireLock(ctx, key, r.cfg.LockTTL)
		if err != nil {
			r.logger.Warn("Reconcile lock unavailable", zap.String("external_id", externalID), zap.Error(err))
			return func() {}
		}
		if ok {
			return func() {
				if err := r.locker.ReleaseLock(context.Background(), key); err != nil {
					r.logger.Warn("Failed to release reconcile lock", zap.String("external_id", externalID), zap.Error(err))
				}
			}
		}
		if time.Now().After(deadline) {
			r.logger.Warn("Reconcile lock busy, proceeding", zap.String("external_id", externalID))
			return func() {}
		}

		select {
		case <-ctx.Done():
			return func() {}
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (r *OrderReconciler) publish(ctx context.Context, order *models.Order) {
	if r.publisher == nil {
		return
	}

	eventType := models.EventTypeOrderFailed
	if order.Status == models.OrderStatusPaid {
		eventType = models.EventTypeOrderPaid
	}

	event := &models.OrderReconciledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		ExternalID:    order.ExternalID,
		Status:        order.Status,
		Amount:        order.FinalAmount,
		Currency:      order.Currency,
		PaymentMethod: order.PaymentMethod,
		Reason:        order.FailureReason,
	}
	if order.CouponCode != nil {
		event.CouponCode = *order.CouponCode
	}

	if err := r.publisher.PublishOrderReconciled(ctx, event); err != nil {
		r.logger.Error("Failed to publish order event", zap.String("external_id", order.ExternalID), zap.Error(err))
	}
}

func failureLabel(reason string) string {
	if reason == reasonAbandoned {
		return reasonAbandoned
	}
	return "declined"
}

package service

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/money"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// CouponValidator checks coupon codes against the coupon store. It never changes use counters.
type CouponValidator struct {
	coupons   CouponStore
	minCharge int64
	clock     func() time.Time
	logger    *zap.Logger
}

// NewCouponValidator creates a coupon validator
func NewCouponValidator(coupons CouponStore, minCharge int64, clock func() time.Time) *CouponValidator {
	if clock == nil {
		clock = time.Now
	}
	return &CouponValidator{
		coupons:   coupons,
		minCharge: minCharge,
		clock:     clock,
		logger:    util.GetLogger(),
	}
}

// Validate returns the discount a code grants on subtotal
func (v *CouponValidator) Validate(ctx context.Context, code string, subtotal money.Money) (*models.Discount, error) {
	ctx, span := util.StartSpan(ctx, "CouponValidator.Validate")
	defer span.End()

	code = models.NormalizeCouponCode(code)
	if code == "" {
		return nil, validationError("coupon code is required")
	}

	coupon, err := v.coupons.GetCoupon(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}

	if sentinel := v.check(coupon, subtotal); sentinel != nil {
		util.CouponValidationsTotal.WithLabelValues(sentinel.Error()).Inc()
		v.logger.Info("Coupon rejected",
			zap.String("code", code),
			zap.String("reason", sentinel.Error()))
		return nil, couponError(sentinel)
	}

	util.CouponValidationsTotal.WithLabelValues("valid").Inc()
	return &models.Discount{
		Code:  coupon.Code,
		Type:  coupon.DiscountType,
		Value: coupon.DiscountValue,
	}, nil
}

func (v *CouponValidator) check(coupon *models.Coupon, subtotal money.Money) error {
	if coupon == nil {
		return ErrCouponNotFound
	}
	if !v.clock().Before(coupon.ValidUntil) {
		return ErrCouponExpired
	}
	if coupon.CurrentUses >= coupon.MaxUses {
		return ErrCouponExhausted
	}

	discount := &models.Discount{Type: coupon.DiscountType, Value: coupon.DiscountValue}
	if discountedMinor(subtotal, discount).Round(0).IntPart() < v.minCharge {
		return ErrCouponBelowMinimum
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCoupon(t *testing.T) {
	h := newHarness(t)
	h.addCoupon("SPRING20", models.DiscountTypePercentage, "20", 5, 2)

	d, err := h.validator.Validate(context.Background(), " spring20 ", money.New(4999, "EUR"))
	require.NoError(t, err)
	assert.Equal(t, "SPRING20", d.Code)
	assert.Equal(t, models.DiscountTypePercentage, d.Type)
	assert.Equal(t, "20", d.Value.String())
	assert.Equal(t, 2, h.store.coupon("SPRING20").CurrentUses)
}

func TestValidateCouponFailures(t *testing.T) {
	h := newHarness(t)
	h.addCoupon("ACTIVE", models.DiscountTypePercentage, "10", 5, 0)
	h.addCoupon("USEDUP", models.DiscountTypePercentage, "10", 3, 3)
	h.addCoupon("BIG60", models.DiscountTypeFixed, "60", 5, 0)
	h.addCoupon("OLD", models.DiscountTypePercentage, "10", 3, 3)
	h.store.mu.Lock()
	old := h.store.coupons["OLD"]
	old.ValidUntil = h.now.Add(-time.Hour)
	h.store.coupons["OLD"] = old
	h.store.mu.Unlock()

	tests := []struct {
		name     string
		code     string
		subtotal int64
		expected error
	}{
		{name: "unknown code", code: "NOPE", subtotal: 2999, expected: ErrCouponNotFound},
		// expired and exhausted: expiry is reported first
		{name: "expired", code: "OLD", subtotal: 2999, expected: ErrCouponExpired},
		{name: "exhausted while still valid", code: "USEDUP", subtotal: 2999, expected: ErrCouponExhausted},
		{name: "below minimum", code: "BIG60", subtotal: 2999, expected: ErrCouponBelowMinimum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.validator.Validate(context.Background(), tt.code, money.New(tt.subtotal, "EUR"))
			serr := requireKind(t, err, KindCoupon)
			assert.True(t, errors.Is(err, tt.expected))
			assert.Equal(t, tt.expected.Error(), serr.Reason)
			assert.NotEmpty(t, serr.Message)
		})
	}

	t.Run("fixed discount above the floor", func(t *testing.T) {
		_, err := h.validator.Validate(context.Background(), "BIG60", money.New(7000, "EUR"))
		assert.NoError(t, err)
	})
}

func TestValidateCouponExpiresAtValidUntil(t *testing.T) {
	h := newHarness(t)
	h.addCoupon("EDGE", models.DiscountTypePercentage, "10", 5, 0)

	h.advance(24 * time.Hour)
	_, err := h.validator.Validate(context.Background(), "EDGE", money.New(2999, "EUR"))
	assert.True(t, errors.Is(err, ErrCouponExpired))
}

func TestValidateCouponBlankCode(t *testing.T) {
	h := newHarness(t)

	_, err := h.validator.Validate(context.Background(), "   ", money.New(2999, "EUR"))
	requireKind(t, err, KindValidation)
}

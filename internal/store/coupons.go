package store

import (
	"context"
	"database/sql"

	"checkout-service/internal/models"
)

// GetCoupon retrieves a coupon by code
func (s *Store) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon, "SELECT * FROM coupons WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// IncrementCouponUses consumes one use if the counter still equals expectedUses and is below the limit
func (s *Store) IncrementCouponUses(ctx context.Context, code string, expectedUses int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coupons SET current_uses = current_uses + 1, updated_at = NOW()
		 WHERE code = $1 AND current_uses = $2 AND current_uses < max_uses`,
		code, expectedUses)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreateCoupon inserts a coupon
func (s *Store) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	query := `
		INSERT INTO coupons (code, discount_type, discount_value, max_uses, current_uses, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		coupon.Code, coupon.DiscountType, coupon.DiscountValue, coupon.MaxUses, coupon.CurrentUses, coupon.ValidUntil,
	).Scan(&coupon.CreatedAt, &coupon.UpdatedAt)
}

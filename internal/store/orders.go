package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
)

const upsertOrderQuery = `
	INSERT INTO orders (
		id, external_id, status, package_id, feature_ids, subtotal, final_amount, currency,
		coupon_code, coupon_discount, payment_method, gateway_fields,
		client_email, client_phone, client_name, client_country, failure_reason
	) VALUES (
		:id, :external_id, :status, :package_id, :feature_ids, :subtotal, :final_amount, :currency,
		:coupon_code, :coupon_discount, :payment_method, :gateway_fields,
		:client_email, :client_phone, :client_name, :client_country, :failure_reason
	)
	ON CONFLICT (external_id) DO UPDATE
		SET status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = NOW()
		WHERE orders.status = 'pending'
	RETURNING *`

// UpsertOrder inserts the order or moves a pending row to the order's status.
// A row that is already terminal is returned unchanged with applied=false.
func (s *Store) UpsertOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	if order.FeatureIDs == nil {
		order.FeatureIDs = models.StringList{}
	}
	if order.GatewayFields == nil {
		order.GatewayFields = models.JSONMap{}
	}

	query, args, err := s.db.BindNamed(upsertOrderQuery, order)
	if err != nil {
		return nil, false, fmt.Errorf("failed to bind order: %w", err)
	}

	var stored models.Order
	err = s.db.GetContext(ctx, &stored, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := s.GetOrderByExternalID(ctx, order.ExternalID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("order vanished during upsert: %s", order.ExternalID)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &stored, true, nil
}

// GetOrderByExternalID retrieves an order by its gateway id
func (s *Store) GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE external_id = $1", externalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListStalePendingOrders returns the oldest pending orders created before the cutoff
func (s *Store) ListStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE status = 'pending' AND created_at < $1 ORDER BY created_at LIMIT $2",
		createdBefore, limit)
	return orders, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

package store

import (
	"context"
	"database/sql"
	"strings"

	"checkout-service/internal/models"
)

// GetGatewayConfig returns the most recent payment configuration
func (s *Store) GetGatewayConfig(ctx context.Context) (*models.GatewayConfig, error) {
	var cfg models.GatewayConfig
	err := s.db.GetContext(ctx, &cfg, "SELECT * FROM payment_config ORDER BY created_at DESC, id DESC LIMIT 1")
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveGatewayConfig stores a new payment configuration row
func (s *Store) SaveGatewayConfig(ctx context.Context, cfg *models.GatewayConfig) error {
	query := `
		INSERT INTO payment_config (
			active_gateway, is_enabled, stripe_publishable_key, stripe_secret_key,
			stripe_webhook_secret, sumup_api_key, sumup_merchant_email
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		cfg.ActiveGateway, cfg.IsEnabled, cfg.StripePublishableKey, cfg.StripeSecretKey,
		cfg.StripeWebhookSecret, cfg.SumUpAPIKey, cfg.SumUpMerchantEmail,
	).Scan(&cfg.ID, &cfg.CreatedAt)
}

// IsCountryBlocked reports whether the country code is in blocked_countries
func (s *Store) IsCountryBlocked(ctx context.Context, country string) (bool, error) {
	var blocked bool
	err := s.db.GetContext(ctx, &blocked,
		"SELECT EXISTS(SELECT 1 FROM blocked_countries WHERE country_code = $1)",
		strings.ToUpper(country))
	return blocked, err
}

// BlockCountry adds a country to blocked_countries
func (s *Store) BlockCountry(ctx context.Context, country string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO blocked_countries (country_code) VALUES ($1) ON CONFLICT (country_code) DO NOTHING",
		strings.ToUpper(country))
	return err
}

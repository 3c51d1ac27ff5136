package service

import (
	"context"
	"fmt"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Public payment config statuses
const (
	ConfigStatusAvailable   = "available"
	ConfigStatusUnavailable = "unavailable"
	ConfigStatusError       = "error"
)

// PublicGatewayConfig is the storefront view of the payment configuration
type PublicGatewayConfig struct {
	ActiveGateway        string  `json:"active_gateway"`
	StripePublishableKey *string `json:"stripe_publishable_key"`
	IsEnabled            bool    `json:"is_enabled"`
	Status               string  `json:"status"`
}

// GatewayConfigUpdate is a partial admin update. Nil fields keep their stored value.
type GatewayConfigUpdate struct {
	ActiveGateway        *string `json:"active_gateway"`
	IsEnabled            *bool   `json:"is_enabled"`
	StripePublishableKey *string `json:"stripe_publishable_key"`
	StripeSecretKey      *string `json:"stripe_secret_key"`
	StripeWebhookSecret  *string `json:"stripe_webhook_secret"`
	SumUpAPIKey          *string `json:"sumup_api_key"`
	SumUpMerchantEmail   *string `json:"sumup_merchant_email"`
}

// PaymentConfigService manages the admin payment configuration
type PaymentConfigService struct {
	store    GatewayConfigStore
	gateways AdapterFactory
	logger   *zap.Logger
}

// NewPaymentConfigService creates a payment config service
func NewPaymentConfigService(store GatewayConfigStore, gateways AdapterFactory) *PaymentConfigService {
	return &PaymentConfigService{
		store:    store,
		gateways: gateways,
		logger:   util.GetLogger(),
	}
}

// Get returns the current configuration, or a disabled SumUp default when none is stored
func (s *PaymentConfigService) Get(ctx context.Context) (*models.GatewayConfig, error) {
	cfg, err := s.store.GetGatewayConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment configuration: %w", err)
	}
	if cfg == nil {
		return &models.GatewayConfig{ActiveGateway: models.GatewaySumUp}, nil
	}
	return cfg, nil
}

// Public projects the configuration for the storefront. It never fails: a store error yields
// the disabled SumUp fallback with status "error".
func (s *PaymentConfigService) Public(ctx context.Context) PublicGatewayConfig {
	cfg, err := s.store.GetGatewayConfig(ctx)
	if err != nil || cfg == nil {
		if err != nil {
			s.logger.Error("Failed to load payment configuration", zap.Error(err))
		}
		return PublicGatewayConfig{
			ActiveGateway: models.GatewaySumUp,
			IsEnabled:     false,
			Status:        ConfigStatusError,
		}
	}

	out := PublicGatewayConfig{
		ActiveGateway: cfg.ActiveGateway,
		IsEnabled:     cfg.IsEnabled,
		Status:        ConfigStatusUnavailable,
	}
	if cfg.IsEnabled {
		out.Status = ConfigStatusAvailable
	}
	if cfg.StripePublishableKey != "" {
		key := cfg.StripePublishableKey
		out.StripePublishableKey = &key
	}
	return out
}

// Update merges a partial update into the stored configuration and validates the
// credentials required by the resulting active gateway
func (s *PaymentConfigService) Update(ctx context.Context, upd GatewayConfigUpdate) (*models.GatewayConfig, error) {
	if upd.ActiveGateway == nil && upd.IsEnabled == nil {
		return nil, validationError("Invalid request body")
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	next := *current

	if upd.ActiveGateway != nil {
		name := strings.ToLower(strings.TrimSpace(*upd.ActiveGateway))
		if !s.gateways.Supported(name) {
			return nil, validationError("unsupported gateway %q", name)
		}
		next.ActiveGateway = name
	}
	if upd.IsEnabled != nil {
		next.IsEnabled = *upd.IsEnabled
	}
	assignTrimmed(&next.StripePublishableKey, upd.StripePublishableKey)
	assignTrimmed(&next.StripeSecretKey, upd.StripeSecretKey)
	assignTrimmed(&next.StripeWebhookSecret, upd.StripeWebhookSecret)
	assignTrimmed(&next.SumUpAPIKey, upd.SumUpAPIKey)
	assignTrimmed(&next.SumUpMerchantEmail, upd.SumUpMerchantEmail)

	switch next.ActiveGateway {
	case models.GatewayStripe:
		if next.StripePublishableKey == "" || next.StripeSecretKey == "" {
			return nil, validationError("Stripe publishable key and secret key are required")
		}
	case models.GatewaySumUp:
		if next.SumUpAPIKey == "" || next.SumUpMerchantEmail == "" {
			return nil, validationError("SumUp API key and merchant email are required")
		}
	}

	if err := s.store.SaveGatewayConfig(ctx, &next); err != nil {
		return nil, fmt.Errorf("failed to update payment configuration: %w", err)
	}

	s.logger.Info("Payment configuration updated",
		zap.String("active_gateway", next.ActiveGateway),
		zap.Bool("is_enabled", next.IsEnabled))
	return &next, nil
}

func assignTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

package service

import (
	"context"
	"errors"
	"testing"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestPaymentConfigDefaults(t *testing.T) {
	store := newMemStore()
	svc := NewPaymentConfigService(store, gateway.NewFactory())

	cfg, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.GatewaySumUp, cfg.ActiveGateway)
	assert.False(t, cfg.IsEnabled)

	public := svc.Public(context.Background())
	assert.Equal(t, ConfigStatusError, public.Status)
	assert.False(t, public.IsEnabled)
}

func TestPaymentConfigUpdate(t *testing.T) {
	store := newMemStore()
	svc := NewPaymentConfigService(store, gateway.NewFactory())
	ctx := context.Background()

	_, err := svc.Update(ctx, GatewayConfigUpdate{
		ActiveGateway:        strPtr("Stripe"),
		IsEnabled:            boolPtr(true),
		StripePublishableKey: strPtr(" pk_live_123 "),
		StripeSecretKey:      strPtr("sk_live_123"),
	})
	require.NoError(t, err)

	stored, err := store.GetGatewayConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GatewayStripe, stored.ActiveGateway)
	assert.Equal(t, "pk_live_123", stored.StripePublishableKey)

	public := svc.Public(ctx)
	assert.Equal(t, ConfigStatusAvailable, public.Status)
	require.NotNil(t, public.StripePublishableKey)
	assert.Equal(t, "pk_live_123", *public.StripePublishableKey)

	// partial update keeps the stored keys
	_, err = svc.Update(ctx, GatewayConfigUpdate{IsEnabled: boolPtr(false)})
	require.NoError(t, err)
	stored, err = store.GetGatewayConfig(ctx)
	require.NoError(t, err)
	assert.False(t, stored.IsEnabled)
	assert.Equal(t, "sk_live_123", stored.StripeSecretKey)
	assert.Equal(t, ConfigStatusUnavailable, svc.Public(ctx).Status)
	assert.Len(t, store.configs, 2)
}

func TestPaymentConfigUpdateValidation(t *testing.T) {
	store := newMemStore()
	svc := NewPaymentConfigService(store, gateway.NewFactory())
	ctx := context.Background()

	tests := []struct {
		name    string
		update  GatewayConfigUpdate
		message string
	}{
		{
			name:    "empty body",
			update:  GatewayConfigUpdate{},
			message: "Invalid request body",
		},
		{
			name:   "unknown gateway",
			update: GatewayConfigUpdate{ActiveGateway: strPtr("paypal")},
		},
		{
			name:    "stripe without keys",
			update:  GatewayConfigUpdate{ActiveGateway: strPtr("stripe"), StripePublishableKey: strPtr("pk")},
			message: "Stripe publishable key and secret key are required",
		},
		{
			name:    "sumup without merchant",
			update:  GatewayConfigUpdate{ActiveGateway: strPtr("sumup"), SumUpAPIKey: strPtr("sup_sk")},
			message: "SumUp API key and merchant email are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.update)
			serr := requireKind(t, err, KindValidation)
			if tt.message != "" {
				assert.Equal(t, tt.message, serr.Message)
			}
		})
	}
	assert.Empty(t, store.configs)
}

func TestPaymentConfigPublicOnStoreError(t *testing.T) {
	store := newMemStore()
	store.configErr = errors.New("connection refused")
	svc := NewPaymentConfigService(store, gateway.NewFactory())

	public := svc.Public(context.Background())
	assert.Equal(t, models.GatewaySumUp, public.ActiveGateway)
	assert.False(t, public.IsEnabled)
	assert.Equal(t, ConfigStatusError, public.Status)

	_, err := svc.Get(context.Background())
	assert.Error(t, err)
}

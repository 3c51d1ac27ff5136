package gateway

import (
	"net/http"
	"strings"

	"checkout-service/internal/models"

	"github.com/stripe/stripe-go/v78"
)

// Builder constructs an adapter from the admin-managed gateway configuration.
type Builder func(cfg *models.GatewayConfig) (Adapter, error)

// Factory resolves a gateway name to an adapter built with the current keys.
type Factory struct {
	builders map[string]Builder
}

// FactoryOption configures optional behaviour when building a Factory.
type FactoryOption func(*Factory)

// WithBuilder registers or replaces the builder for a gateway name.
func WithBuilder(name string, b Builder) FactoryOption {
	return func(f *Factory) {
		f.builders[normalizeName(name)] = b
	}
}

// WithSumUpEndpoint points the SumUp adapter at another base URL and HTTP client.
func WithSumUpEndpoint(baseURL string, httpClient *http.Client) FactoryOption {
	return func(f *Factory) {
		f.builders[models.GatewaySumUp] = func(cfg *models.GatewayConfig) (Adapter, error) {
			return buildSumUp(cfg, baseURL, httpClient)
		}
	}
}

// WithStripeBackends routes Stripe calls through custom backends.
func WithStripeBackends(backends *stripe.Backends) FactoryOption {
	return func(f *Factory) {
		f.builders[models.GatewayStripe] = func(cfg *models.GatewayConfig) (Adapter, error) {
			return buildStripe(cfg, backends)
		}
	}
}

// NewFactory returns a factory knowing the Stripe and SumUp adapters.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		builders: map[string]Builder{
			models.GatewayStripe: func(cfg *models.GatewayConfig) (Adapter, error) {
				return buildStripe(cfg, nil)
			},
			models.GatewaySumUp: func(cfg *models.GatewayConfig) (Adapter, error) {
				return buildSumUp(cfg, "", nil)
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build returns the adapter for name. Unknown names and missing keys are configuration errors.
func (f *Factory) Build(cfg *models.GatewayConfig, name string) (Adapter, error) {
	name = normalizeName(name)
	if cfg == nil {
		return nil, Misconfigured(name, "gateway configuration is missing", nil)
	}
	b, ok := f.builders[name]
	if !ok {
		return nil, Misconfigured(name, "unsupported gateway", nil)
	}
	return b(cfg)
}

// Supported reports whether the factory knows the gateway name.
func (f *Factory) Supported(name string) bool {
	_, ok := f.builders[normalizeName(name)]
	return ok
}

func buildStripe(cfg *models.GatewayConfig, backends *stripe.Backends) (Adapter, error) {
	s, err := NewStripe(StripeConfig{SecretKey: cfg.StripeSecretKey, Backends: backends})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func buildSumUp(cfg *models.GatewayConfig, baseURL string, httpClient *http.Client) (Adapter, error) {
	s, err := NewSumUp(SumUpConfig{
		APIKey:        cfg.SumUpAPIKey,
		MerchantEmail: cfg.SumUpMerchantEmail,
		BaseURL:       baseURL,
		HTTPClient:    httpClient,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

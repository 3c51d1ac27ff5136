package service

import (
	"context"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
)

// CouponStore reads coupons and performs the optimistic use increment.
// GetCoupon returns nil, nil when the code does not exist.
type CouponStore interface {
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
	IncrementCouponUses(ctx context.Context, code string, expectedUses int) (bool, error)
}

// OrderStore persists orders keyed by their gateway external id.
// UpsertOrder reports applied=false when the stored row was already terminal and left untouched.
type OrderStore interface {
	UpsertOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error)
	ListStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
}

// GatewayConfigStore reads and writes the admin-managed payment configuration.
// GetGatewayConfig returns nil, nil when nothing was configured yet.
type GatewayConfigStore interface {
	GetGatewayConfig(ctx context.Context) (*models.GatewayConfig, error)
	SaveGatewayConfig(ctx context.Context, cfg *models.GatewayConfig) error
}

// BlockedCountryStore answers whether a country is refused service.
type BlockedCountryStore interface {
	IsCountryBlocked(ctx context.Context, country string) (bool, error)
}

// AttemptTracker remembers the last checkout attempt per client key.
type AttemptTracker interface {
	LastAttempt(ctx context.Context, clientKey string) (time.Time, bool, error)
	RecordAttempt(ctx context.Context, clientKey string, at time.Time, window time.Duration) error
}

// Locker serializes work on one key across instances.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// OrderEventPublisher announces reconciled orders.
type OrderEventPublisher interface {
	PublishOrderReconciled(ctx context.Context, event *models.OrderReconciledEvent) error
}

// AdapterFactory builds the adapter for a gateway name from the current configuration.
type AdapterFactory interface {
	Build(cfg *models.GatewayConfig, name string) (gateway.Adapter, error)
	Supported(name string) bool
}

// ProductCatalog resolves catalog ids.
type ProductCatalog interface {
	Currency() string
	Package(id string) (models.Package, error)
	Features(ids []string) ([]models.Feature, error)
	AllowsCountry(country string) bool
}

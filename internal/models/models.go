package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"checkout-service/internal/money"

	"github.com/shopspring/decimal"
)

// Package represents a subscription package in the catalog
type Package struct {
	ID            string      `json:"id" yaml:"id"`
	Name          string      `json:"name" yaml:"name"`
	Description   string      `json:"description" yaml:"description"`
	UnitPrice     money.Money `json:"unit_price" yaml:"-"`
	BillingPeriod string      `json:"billing_period" yaml:"billing_period"`
	Popular       bool        `json:"popular,omitempty" yaml:"popular"`
}

// Feature represents an optional add-on
type Feature struct {
	ID    string      `json:"id" yaml:"id"`
	Label string      `json:"label" yaml:"label"`
	Price money.Money `json:"price" yaml:"-"`
}

// Discount types
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// Coupon represents a discount code
type Coupon struct {
	Code          string          `db:"code" json:"code"`
	DiscountType  string          `db:"discount_type" json:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value" json:"discount_value"`
	MaxUses       int             `db:"max_uses" json:"max_uses"`
	CurrentUses   int             `db:"current_uses" json:"current_uses"`
	ValidUntil    time.Time       `db:"valid_until" json:"valid_until"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Discount is the validated descriptor returned for a coupon
type Discount struct {
	Code  string          `json:"code"`
	Type  string          `json:"discount_type"`
	Value decimal.Decimal `json:"discount_value"`
}

// NormalizeCouponCode canonicalises a coupon code for lookups.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ClientInfo holds the buyer's contact details
type ClientInfo struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

// CheckoutIntent is one immutable checkout attempt as submitted by the storefront
type CheckoutIntent struct {
	PackageID      string
	FeatureIDs     []string
	CouponCode     string
	Client         ClientInfo
	ClientKey      string
	IdempotencyKey string
}

// PaymentIntentRef points at the gateway-side payment object of one checkout
type PaymentIntentRef struct {
	Gateway      string `json:"gateway"`
	ExternalID   string `json:"external_id"`
	ClientSecret string `json:"-"`
	Status       string `json:"status"`
}

// Order represents a persisted checkout outcome
type Order struct {
	ID             string     `db:"id" json:"id"`
	ExternalID     string     `db:"external_id" json:"external_id"`
	Status         string     `db:"status" json:"status"`
	PackageID      string     `db:"package_id" json:"package_id"`
	FeatureIDs     StringList `db:"feature_ids" json:"feature_ids"`
	Subtotal       int64      `db:"subtotal" json:"subtotal"`
	FinalAmount    int64      `db:"final_amount" json:"final_amount"`
	Currency       string     `db:"currency" json:"currency"`
	CouponCode     *string    `db:"coupon_code" json:"coupon_code,omitempty"`
	CouponDiscount *int64     `db:"coupon_discount" json:"coupon_discount,omitempty"`
	PaymentMethod  string     `db:"payment_method" json:"payment_method"`
	GatewayFields  JSONMap    `db:"gateway_fields" json:"gateway_fields,omitempty"`
	ClientEmail    string     `db:"client_email" json:"client_email"`
	ClientPhone    string     `db:"client_phone" json:"client_phone"`
	ClientName     string     `db:"client_name" json:"client_name"`
	ClientCountry  string     `db:"client_country" json:"client_country"`
	FailureReason  string     `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusFailed   = "failed"
	OrderStatusRefunded = "refunded"
)

// IsTerminal reports whether the status can no longer change through checkout
func IsTerminal(status string) bool {
	switch status {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusRefunded:
		return true
	}
	return false
}

// Total returns the order's final amount as Money
func (o *Order) Total() money.Money {
	return money.New(o.FinalAmount, o.Currency)
}

// Ref returns the gateway reference stored on the order
func (o *Order) Ref() PaymentIntentRef {
	return PaymentIntentRef{
		Gateway:    o.PaymentMethod,
		ExternalID: o.ExternalID,
		Status:     o.Status,
	}
}

// Gateways
const (
	GatewayStripe = "stripe"
	GatewaySumUp  = "sumup"
)

// GatewayConfig is the admin-managed payment configuration
type GatewayConfig struct {
	ID                   int64     `db:"id" json:"-"`
	ActiveGateway        string    `db:"active_gateway" json:"active_gateway"`
	IsEnabled            bool      `db:"is_enabled" json:"is_enabled"`
	StripePublishableKey string    `db:"stripe_publishable_key" json:"stripe_publishable_key,omitempty"`
	StripeSecretKey      string    `db:"stripe_secret_key" json:"stripe_secret_key,omitempty"`
	StripeWebhookSecret  string    `db:"stripe_webhook_secret" json:"stripe_webhook_secret,omitempty"`
	SumUpAPIKey          string    `db:"sumup_api_key" json:"sumup_api_key,omitempty"`
	SumUpMerchantEmail   string    `db:"sumup_merchant_email" json:"sumup_merchant_email,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// StringList is a string slice stored as a JSON column
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	data, err := scanBytes(src)
	if err != nil || data == nil {
		*l = nil
		return err
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// JSONMap stores gateway specific fields as a JSON object
type JSONMap map[string]string

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(m))
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src interface{}) error {
	data, err := scanBytes(src)
	if err != nil || data == nil {
		*m = nil
		return err
	}
	return json.Unmarshal(data, (*map[string]string)(m))
}

func scanBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported JSON column type")
	}
}

package models

import "time"

// Event types
const (
	EventTypeOrderPaid               = "ORDER_PAID"
	EventTypeOrderFailed             = "ORDER_FAILED"
	EventTypeGatewayPaymentSucceeded = "GATEWAY_PAYMENT_SUCCEEDED"
	EventTypeGatewayPaymentFailed    = "GATEWAY_PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderReconciledEvent published when an order reaches a terminal status
type OrderReconciledEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	ExternalID    string `json:"external_id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
	CouponCode    string `json:"coupon_code,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// GatewayPaymentEvent carries a verified gateway notification to the worker
type GatewayPaymentEvent struct {
	BaseEvent
	Gateway        string `json:"gateway"`
	GatewayEventID string `json:"gateway_event_id"`
	ExternalID     string `json:"external_id"`
	Reason         string `json:"reason,omitempty"`
}

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Total number of checkout submissions by gateway",
	}, []string{"gateway"})

	CheckoutRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_rejected_total",
		Help: "Total number of checkout submissions rejected before or at the gateway",
	}, []string{"kind"})

	CouponValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_validations_total",
		Help: "Total number of coupon validations by result",
	}, []string{"result"})

	CouponRedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_redemptions_total",
		Help: "Total number of coupon uses consumed by paid orders",
	})

	CouponConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_increment_conflicts_total",
		Help: "Total number of optimistic conflicts while incrementing coupon uses",
	})

	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of pending orders created",
	}, []string{"gateway"})

	OrdersPaidTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders reconciled as paid",
	}, []string{"gateway"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of orders reconciled as failed",
	}, []string{"reason"})

	PendingRedirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_pending_redirects_total",
		Help: "Total number of confirmations that required a 3-D Secure redirect",
	}, []string{"gateway"})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "operation"})

	GatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Total number of payment gateway errors by kind",
	}, []string{"gateway", "kind"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of gateway webhook events by result",
	}, []string{"gateway", "result"})

	StaleOrdersSweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stale_orders_swept_total",
		Help: "Total number of stale pending orders resolved by the sweep",
	}, []string{"status"})

	GeoBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_blocked_requests_total",
		Help: "Total number of requests refused by country",
	}, []string{"country"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

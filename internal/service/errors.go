package service

import (
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/gateway"
)

// ErrorKind classifies failures surfaced by the checkout services
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation_error"
	KindCoupon             ErrorKind = "coupon_error"
	KindGatewayRejected    ErrorKind = "gateway_rejected"
	KindGatewayUnavailable ErrorKind = "gateway_unavailable"
	KindRateLimited        ErrorKind = "rate_limited"
	KindConfiguration      ErrorKind = "configuration_error"
	KindAmountTooLow       ErrorKind = "amount_too_low"
	KindPaymentFailed      ErrorKind = "payment_failed"
	KindNotFound           ErrorKind = "not_found"
)

// Coupon failures, checked in this order
var (
	ErrCouponNotFound     = errors.New("coupon_not_found")
	ErrCouponExpired      = errors.New("coupon_expired")
	ErrCouponExhausted    = errors.New("coupon_exhausted")
	ErrCouponBelowMinimum = errors.New("coupon_below_minimum")
)

var couponMessages = map[error]string{
	ErrCouponNotFound:     "This coupon code does not exist",
	ErrCouponExpired:      "This coupon has expired",
	ErrCouponExhausted:    "This coupon has reached its usage limit",
	ErrCouponBelowMinimum: "This coupon cannot be applied to the current order amount",
}

// Generic messages for failures whose detail must not reach buyers
const (
	msgTryAgain       = "The payment provider is temporarily unavailable, please try again"
	msgPaymentFailed  = "Payment failed, please try again or contact support"
	msgPaymentsClosed = "Payments are currently unavailable"
)

// Error is the typed error returned by every service operation
type Error struct {
	Kind       ErrorKind
	Reason     string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: string(KindValidation), Message: fmt.Sprintf(format, args...)}
}

func couponError(sentinel error) *Error {
	return &Error{
		Kind:    KindCoupon,
		Reason:  sentinel.Error(),
		Message: couponMessages[sentinel],
		Err:     sentinel,
	}
}

func configurationError(err error) *Error {
	return &Error{Kind: KindConfiguration, Reason: string(KindConfiguration), Message: msgPaymentsClosed, Err: err}
}

func notFoundError(what, id string) *Error {
	return &Error{Kind: KindNotFound, Reason: string(KindNotFound), Message: fmt.Sprintf("%s %s not found", what, id)}
}

// fromGatewayError maps adapter failures at the orchestrator boundary. Raw provider errors stay in Err.
func fromGatewayError(err error) *Error {
	var gerr *gateway.Error
	if !errors.As(err, &gerr) {
		return &Error{Kind: KindPaymentFailed, Reason: string(KindPaymentFailed), Message: msgPaymentFailed, Err: err}
	}

	switch gerr.Kind {
	case gateway.KindRejected:
		return &Error{Kind: KindGatewayRejected, Reason: string(KindGatewayRejected), Message: gerr.Message, Err: err}
	case gateway.KindConfiguration:
		return configurationError(err)
	default:
		return &Error{Kind: KindGatewayUnavailable, Reason: string(KindGatewayUnavailable), Message: msgTryAgain, Err: err}
	}
}

// KindOf returns the kind of a service error, or an empty kind for anything else
func KindOf(err error) ErrorKind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return ""
}

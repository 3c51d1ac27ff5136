package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// KindRejected is a card or validation error the buyer can correct.
	KindRejected ErrorKind = "gateway_rejected"
	// KindUnavailable is a network, rate limit or 5xx failure that may succeed on retry.
	KindUnavailable ErrorKind = "gateway_unavailable"
	// KindConfiguration is a missing or invalid credential. It is never shown to buyers.
	KindConfiguration ErrorKind = "configuration_error"
)

// Error is returned by every adapter operation.
type Error struct {
	Kind    ErrorKind
	Gateway string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Gateway, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Gateway, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected builds a KindRejected error carrying the gateway's own message.
func Rejected(gateway, message string, err error) *Error {
	return &Error{Kind: KindRejected, Gateway: gateway, Message: message, Err: err}
}

// Unavailable builds a KindUnavailable error.
func Unavailable(gateway, message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Gateway: gateway, Message: message, Err: err}
}

// Misconfigured builds a KindConfiguration error.
func Misconfigured(gateway, message string, err error) *Error {
	return &Error{Kind: KindConfiguration, Gateway: gateway, Message: message, Err: err}
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == kind
}

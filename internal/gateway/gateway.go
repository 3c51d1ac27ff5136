package gateway

import (
	"context"

	"checkout-service/internal/models"
	"checkout-service/internal/money"
)

// OutcomeKind enumerates the results of confirming or looking up a payment.
type OutcomeKind string

const (
	// OutcomeConfirmed means the gateway reports the payment as captured.
	OutcomeConfirmed OutcomeKind = "confirmed"
	// OutcomeDeclined means the gateway reports a terminal failure.
	OutcomeDeclined OutcomeKind = "declined"
	// OutcomePendingRedirect means the buyer must complete an out-of-band step (3-D Secure) first.
	OutcomePendingRedirect OutcomeKind = "pending_redirect"
	// OutcomePending means the gateway has no terminal status yet and asks nothing of the buyer.
	OutcomePending OutcomeKind = "pending"
)

// Redirect describes the out-of-band step the buyer has to follow.
type Redirect struct {
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Outcome is the tagged result of Confirm and Lookup.
type Outcome struct {
	Kind     OutcomeKind
	Reason   string
	Redirect *Redirect
}

// Terminal reports whether the outcome ends the payment.
func (o Outcome) Terminal() bool {
	return o.Kind == OutcomeConfirmed || o.Kind == OutcomeDeclined
}

// Confirmed builds a confirmed outcome.
func Confirmed() Outcome { return Outcome{Kind: OutcomeConfirmed} }

// Declined builds a declined outcome with a reason.
func Declined(reason string) Outcome { return Outcome{Kind: OutcomeDeclined, Reason: reason} }

// PendingRedirect builds a redirect outcome.
func PendingRedirect(url, method string, payload map[string]string) Outcome {
	return Outcome{Kind: OutcomePendingRedirect, Redirect: &Redirect{URL: url, Method: method, Payload: payload}}
}

// CreateIntentRequest carries everything a gateway needs to open a payment.
type CreateIntentRequest struct {
	Amount         money.Money
	Client         models.ClientInfo
	IdempotencyKey string
	Reference      string
	Description    string
	ReturnURL      string
	Metadata       map[string]string
}

// Card is raw card data collected in-form for gateways that accept it server-side.
type Card struct {
	Name        string `json:"name"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
}

// ConfirmRequest carries the buyer-supplied confirmation material.
type ConfirmRequest struct {
	Secret    string
	Card      *Card
	ReturnURL string
}

// Adapter drives one payment gateway through intent creation and confirmation.
type Adapter interface {
	Name() string
	CreateIntent(ctx context.Context, req CreateIntentRequest) (models.PaymentIntentRef, error)
	Confirm(ctx context.Context, ref models.PaymentIntentRef, req ConfirmRequest) (Outcome, error)
	Lookup(ctx context.Context, ref models.PaymentIntentRef) (Outcome, error)
}

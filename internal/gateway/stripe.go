package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"
)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	SecretKey string
	Backends  *stripe.Backends

	intents stripeIntentAPI
}

// Stripe creates PaymentIntents server-side; the storefront confirms them with the client secret.
type Stripe struct {
	intents stripeIntentAPI
	logger  *zap.Logger
}

// NewStripe builds a Stripe adapter.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	intents := cfg.intents
	if intents == nil {
		key := strings.TrimSpace(cfg.SecretKey)
		if key == "" {
			return nil, Misconfigured(models.GatewayStripe, "secret key is required", nil)
		}
		intents = client.New(key, cfg.Backends).PaymentIntents
	}

	return &Stripe{
		intents: intents,
		logger:  util.GetLogger().With(zap.String("gateway", models.GatewayStripe)),
	}, nil
}

// Name implements Adapter
func (s *Stripe) Name() string {
	return models.GatewayStripe
}

// CreateIntent opens a PaymentIntent for the amount
func (s *Stripe) CreateIntent(ctx context.Context, req CreateIntentRequest) (models.PaymentIntentRef, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount.Amount),
		Currency: stripe.String(strings.ToLower(req.Amount.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.Client.Email != "" {
		params.ReceiptEmail = stripe.String(req.Client.Email)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}

	params.Metadata = map[string]string{
		"reference": req.Reference,
		"name":      req.Client.Name,
		"phone":     req.Client.Phone,
		"country":   req.Client.Country,
	}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	intent, err := s.intents.New(params)
	if err != nil {
		return models.PaymentIntentRef{}, s.mapError("create payment intent", err)
	}

	s.logger.Info("Payment intent created",
		zap.String("external_id", intent.ID),
		zap.String("status", string(intent.Status)))

	return models.PaymentIntentRef{
		Gateway:      models.GatewayStripe,
		ExternalID:   intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}, nil
}

// Confirm confirms server-side when given a payment method id, otherwise reads back the
// status of an intent the storefront already confirmed with its client secret.
func (s *Stripe) Confirm(ctx context.Context, ref models.PaymentIntentRef, req ConfirmRequest) (Outcome, error) {
	secret := strings.TrimSpace(req.Secret)
	if !strings.HasPrefix(secret, "pm_") {
		return s.Lookup(ctx, ref)
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(secret),
	}
	params.Context = ctx
	if req.ReturnURL != "" {
		params.ReturnURL = stripe.String(req.ReturnURL)
	}

	intent, err := s.intents.Confirm(ref.ExternalID, params)
	if err != nil {
		return Outcome{}, s.mapError("confirm payment intent", err)
	}

	s.logger.Info("Payment intent confirmed",
		zap.String("external_id", intent.ID),
		zap.String("status", string(intent.Status)))

	return stripeOutcome(intent), nil
}

// Lookup reads the current PaymentIntent status
func (s *Stripe) Lookup(ctx context.Context, ref models.PaymentIntentRef) (Outcome, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := s.intents.Get(ref.ExternalID, params)
	if err != nil {
		return Outcome{}, s.mapError("lookup payment intent", err)
	}
	return stripeOutcome(intent), nil
}

func stripeOutcome(intent *stripe.PaymentIntent) Outcome {
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return Confirmed()
	case stripe.PaymentIntentStatusCanceled:
		return Declined("payment canceled")
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if intent.LastPaymentError != nil {
			return Declined(intent.LastPaymentError.Msg)
		}
		return Outcome{Kind: OutcomePending}
	case stripe.PaymentIntentStatusRequiresAction:
		if na := intent.NextAction; na != nil && na.RedirectToURL != nil && na.RedirectToURL.URL != "" {
			return PendingRedirect(na.RedirectToURL.URL, http.MethodGet, nil)
		}
		return PendingRedirect("", "stripe_sdk", map[string]string{"client_secret": intent.ClientSecret})
	default:
		return Outcome{Kind: OutcomePending}
	}
}

func (s *Stripe) mapError(op string, err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return Unavailable(models.GatewayStripe, op, err)
	}

	switch {
	case serr.Type == stripe.ErrorTypeCard:
		return Rejected(models.GatewayStripe, serr.Msg, err)
	case serr.HTTPStatusCode == http.StatusUnauthorized || serr.HTTPStatusCode == http.StatusForbidden:
		return Misconfigured(models.GatewayStripe, op, err)
	case serr.HTTPStatusCode == http.StatusTooManyRequests || serr.HTTPStatusCode >= 500 || serr.HTTPStatusCode == 0:
		return Unavailable(models.GatewayStripe, op, err)
	case serr.Type == stripe.ErrorTypeInvalidRequest || serr.Type == stripe.ErrorTypeIdempotency:
		return Rejected(models.GatewayStripe, serr.Msg, err)
	default:
		return Unavailable(models.GatewayStripe, op, err)
	}
}

// WebhookEvent is a verified gateway notification reduced to what reconciliation needs
type WebhookEvent struct {
	ID         string
	Gateway    string
	ExternalID string
	Outcome    Outcome
}

// ParseStripeWebhook verifies the Stripe-Signature header and extracts the PaymentIntent outcome.
// ok is false for event types reconciliation does not care about.
func ParseStripeWebhook(payload []byte, signature, secret string) (event WebhookEvent, ok bool, err error) {
	if strings.TrimSpace(secret) == "" {
		return WebhookEvent{}, false, Misconfigured(models.GatewayStripe, "webhook secret is not configured", nil)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, false, fmt.Errorf("stripe webhook: %w", err)
	}

	var outcome Outcome
	switch string(evt.Type) {
	case "payment_intent.succeeded":
		outcome = Confirmed()
	case "payment_intent.payment_failed", "payment_intent.canceled":
		outcome = Declined(string(evt.Type))
	default:
		return WebhookEvent{}, false, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
		return WebhookEvent{}, false, fmt.Errorf("stripe webhook: decode payment intent: %w", err)
	}
	if outcome.Kind == OutcomeDeclined && intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		outcome.Reason = intent.LastPaymentError.Msg
	}

	return WebhookEvent{
		ID:         evt.ID,
		Gateway:    models.GatewayStripe,
		ExternalID: intent.ID,
		Outcome:    outcome,
	}, true, nil
}

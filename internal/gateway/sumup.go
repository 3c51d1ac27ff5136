package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

const defaultSumUpBaseURL = "https://api.sumup.com"

// SumUp checkout statuses
const (
	sumUpStatusPending = "PENDING"
	sumUpStatusPaid    = "PAID"
	sumUpStatusFailed  = "FAILED"
)

// SumUpConfig configures the SumUp adapter.
type SumUpConfig struct {
	APIKey        string
	MerchantEmail string
	BaseURL       string
	HTTPClient    *http.Client
}

// SumUp drives the SumUp checkouts API. Card data is collected in-form and sent on confirmation.
type SumUp struct {
	apiKey        string
	merchantEmail string
	baseURL       string
	http          *http.Client
	logger        *zap.Logger
}

// NewSumUp builds a SumUp adapter.
func NewSumUp(cfg SumUpConfig) (*SumUp, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.MerchantEmail) == "" {
		return nil, Misconfigured(models.GatewaySumUp, "api key and merchant email are required", nil)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultSumUpBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &SumUp{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		merchantEmail: strings.TrimSpace(cfg.MerchantEmail),
		baseURL:       baseURL,
		http:          httpClient,
		logger:        util.GetLogger().With(zap.String("gateway", models.GatewaySumUp)),
	}, nil
}

type sumUpCheckout struct {
	ID                string         `json:"id"`
	CheckoutReference string         `json:"checkout_reference"`
	Amount            json.Number    `json:"amount"`
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	NextStep          *sumUpNextStep `json:"next_step,omitempty"`
}

type sumUpNextStep struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	RedirectURL string            `json:"redirect_url"`
	Payload     map[string]string `json:"payload"`
}

type sumUpErrorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

// Name implements Adapter
func (s *SumUp) Name() string {
	return models.GatewaySumUp
}

// CreateIntent opens a SumUp checkout. The idempotency key is sent as the checkout reference, so a
// repeated call returns the checkout created by the first one.
func (s *SumUp) CreateIntent(ctx context.Context, req CreateIntentRequest) (models.PaymentIntentRef, error) {
	reference := req.IdempotencyKey
	if reference == "" {
		reference = req.Reference
	}

	body := map[string]interface{}{
		"checkout_reference": reference,
		"amount":             json.Number(req.Amount.Decimal().StringFixed(2)),
		"currency":           req.Amount.Currency,
		"pay_to_email":       s.merchantEmail,
		"description":        req.Description,
	}
	if req.ReturnURL != "" {
		body["redirect_url"] = req.ReturnURL
	}

	var checkout sumUpCheckout
	status, err := s.do(ctx, http.MethodPost, "/v0.1/checkouts", body, &checkout)
	if status == http.StatusConflict {
		existing, lerr := s.findByReference(ctx, reference)
		if lerr != nil {
			return models.PaymentIntentRef{}, lerr
		}
		checkout = *existing
		err = nil
	}
	if err != nil {
		return models.PaymentIntentRef{}, err
	}

	s.logger.Info("Checkout created",
		zap.String("external_id", checkout.ID),
		zap.String("reference", reference))

	return models.PaymentIntentRef{
		Gateway:      models.GatewaySumUp,
		ExternalID:   checkout.ID,
		ClientSecret: checkout.ID,
		Status:       checkout.Status,
	}, nil
}

// Confirm processes the checkout with the buyer's card
func (s *SumUp) Confirm(ctx context.Context, ref models.PaymentIntentRef, req ConfirmRequest) (Outcome, error) {
	if req.Card == nil {
		return Outcome{}, Rejected(models.GatewaySumUp, "card details are required", nil)
	}

	body := map[string]interface{}{
		"payment_type": "card",
		"card":         req.Card,
	}

	var checkout sumUpCheckout
	if _, err := s.do(ctx, http.MethodPut, "/v0.1/checkouts/"+url.PathEscape(ref.ExternalID), body, &checkout); err != nil {
		return Outcome{}, err
	}

	s.logger.Info("Checkout processed",
		zap.String("external_id", ref.ExternalID),
		zap.String("status", checkout.Status))

	return sumUpOutcome(&checkout), nil
}

// Lookup reads the checkout status
func (s *SumUp) Lookup(ctx context.Context, ref models.PaymentIntentRef) (Outcome, error) {
	var checkout sumUpCheckout
	if _, err := s.do(ctx, http.MethodGet, "/v0.1/checkouts/"+url.PathEscape(ref.ExternalID), nil, &checkout); err != nil {
		return Outcome{}, err
	}
	return sumUpOutcome(&checkout), nil
}

func (s *SumUp) findByReference(ctx context.Context, reference string) (*sumUpCheckout, error) {
	var checkouts []sumUpCheckout
	path := "/v0.1/checkouts?checkout_reference=" + url.QueryEscape(reference)
	if _, err := s.do(ctx, http.MethodGet, path, nil, &checkouts); err != nil {
		return nil, err
	}
	if len(checkouts) == 0 {
		return nil, Unavailable(models.GatewaySumUp, "duplicate checkout reference but no checkout found", nil)
	}
	return &checkouts[0], nil
}

func sumUpOutcome(c *sumUpCheckout) Outcome {
	if c.NextStep != nil && c.NextStep.URL != "" {
		method := c.NextStep.Method
		if method == "" {
			method = http.MethodPost
		}
		return PendingRedirect(c.NextStep.URL, method, c.NextStep.Payload)
	}

	switch strings.ToUpper(c.Status) {
	case sumUpStatusPaid:
		return Confirmed()
	case sumUpStatusFailed:
		return Declined("payment failed")
	default:
		return Outcome{Kind: OutcomePending}
	}
}

// do performs one API call. The returned status is the HTTP status, or zero when no response arrived.
func (s *SumUp) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("sumup: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("sumup: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, Unavailable(models.GatewaySumUp, method+" "+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, Unavailable(models.GatewaySumUp, "read response", err)
	}

	if resp.StatusCode >= 300 {
		return resp.StatusCode, s.mapStatus(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, Unavailable(models.GatewaySumUp, "decode response", err)
		}
	}
	return resp.StatusCode, nil
}

func (s *SumUp) mapStatus(status int, body []byte) error {
	message := http.StatusText(status)
	var single sumUpErrorBody
	var list []sumUpErrorBody
	switch {
	case json.Unmarshal(body, &single) == nil && single.Message != "":
		message = single.Message
	case json.Unmarshal(body, &list) == nil && len(list) > 0 && list[0].Message != "":
		message = list[0].Message
	}

	cause := errors.New(strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Misconfigured(models.GatewaySumUp, message, cause)
	case status == http.StatusTooManyRequests || status >= 500:
		return Unavailable(models.GatewaySumUp, message, cause)
	default:
		return Rejected(models.GatewaySumUp, message, cause)
	}
}

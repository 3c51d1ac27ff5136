package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"checkout-service/internal/models"
	"checkout-service/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSumUp(t *testing.T, handler http.HandlerFunc) *SumUp {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewSumUp(SumUpConfig{
		APIKey:        "sup_sk_test",
		MerchantEmail: "merchant@example.com",
		BaseURL:       srv.URL,
		HTTPClient:    srv.Client(),
	})
	require.NoError(t, err)
	return s
}

func TestSumUpCreateIntent(t *testing.T) {
	var body map[string]interface{}
	s := newTestSumUp(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v0.1/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer sup_sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"chk_1","checkout_reference":"idem-1","amount":39.99,"currency":"EUR","status":"PENDING"}`))
	})

	ref, err := s.CreateIntent(context.Background(), CreateIntentRequest{
		Amount:         money.New(3999, "EUR"),
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "chk_1", ref.ExternalID)
	assert.Equal(t, models.GatewaySumUp, ref.Gateway)
	assert.Equal(t, "idem-1", body["checkout_reference"])
	assert.Equal(t, 39.99, body["amount"])
	assert.Equal(t, "merchant@example.com", body["pay_to_email"])
}

func TestSumUpCreateIntentDuplicateReference(t *testing.T) {
	s := newTestSumUp(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error_code":"DUPLICATED_CHECKOUT","message":"Checkout with this reference already exists"}`))
		case http.MethodGet:
			assert.Equal(t, "idem-1", r.URL.Query().Get("checkout_reference"))
			_, _ = w.Write([]byte(`[{"id":"chk_existing","checkout_reference":"idem-1","status":"PENDING"}]`))
		}
	})

	ref, err := s.CreateIntent(context.Background(), CreateIntentRequest{Amount: money.New(100, "EUR"), IdempotencyKey: "idem-1"})
	require.NoError(t, err)
	assert.Equal(t, "chk_existing", ref.ExternalID)
}

func TestSumUpConfirm(t *testing.T) {
	ref := models.PaymentIntentRef{Gateway: models.GatewaySumUp, ExternalID: "chk_1"}
	card := &Card{Name: "Ana", Number: "4242424242424242", ExpiryMonth: "12", ExpiryYear: "30", CVV: "123"}

	s := newTestSumUp(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v0.1/checkouts/chk_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"chk_1","status":"PAID"}`))
	})
	out, err := s.Confirm(context.Background(), ref, ConfirmRequest{Card: card})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, out.Kind)

	s = newTestSumUp(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chk_1","status":"PENDING","next_step":{"url":"https://acs.bank/3ds","method":"POST","payload":{"PaReq":"abc","MD":"chk_1"}}}`))
	})
	out, err = s.Confirm(context.Background(), ref, ConfirmRequest{Card: card})
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingRedirect, out.Kind)
	assert.Equal(t, "https://acs.bank/3ds", out.Redirect.URL)
	assert.Equal(t, "POST", out.Redirect.Method)
	assert.Equal(t, "abc", out.Redirect.Payload["PaReq"])

	_, err = s.Confirm(context.Background(), ref, ConfirmRequest{})
	assert.True(t, IsKind(err, KindRejected))
}

func TestSumUpErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, KindConfiguration},
		{http.StatusForbidden, KindConfiguration},
		{http.StatusBadRequest, KindRejected},
		{http.StatusTooManyRequests, KindUnavailable},
		{http.StatusBadGateway, KindUnavailable},
	}

	for _, tc := range cases {
		var calls int32
		s := newTestSumUp(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"message":"card declined"}`))
		})
		_, err := s.Lookup(context.Background(), models.PaymentIntentRef{ExternalID: "chk_1"})
		assert.True(t, IsKind(err, tc.kind), "status %d: %v", tc.status, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	}
}

func TestSumUpUnreachable(t *testing.T) {
	s, err := NewSumUp(SumUpConfig{APIKey: "k", MerchantEmail: "m@example.com", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = s.Lookup(context.Background(), models.PaymentIntentRef{ExternalID: "chk_1"})
	assert.True(t, IsKind(err, KindUnavailable))
}

func TestSumUpLookupStatuses(t *testing.T) {
	s := newTestSumUp(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chk_1","status":"FAILED"}`))
	})
	out, err := s.Lookup(context.Background(), models.PaymentIntentRef{ExternalID: "chk_1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, out.Kind)
}

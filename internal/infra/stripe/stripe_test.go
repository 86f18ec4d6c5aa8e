package stripe

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-payments/internal/domain/billing"
	"course-payments/internal/errdefs"
	"course-payments/internal/payments"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v75/webhook"
)

const testSecret = "whsec_test"

func signed(payload []byte, secret string, at time.Time) http.Header {
	sig := webhook.ComputeSignature(at, payload, secret)
	h := http.Header{}
	h.Set(SignatureHeader, fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig)))
	return h
}

func sessionEvent(typ, paymentStatus, clientRef, metaInvoice string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_123",
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": "cs_test_abc",
			"object": "checkout.session",
			"payment_status": %q,
			"client_reference_id": %q,
			"metadata": {"invoice_id": %q}
		}}
	}`, typ, paymentStatus, clientRef, metaInvoice))
}

func TestVerifierMapsEvents(t *testing.T) {
	v := NewVerifier(testSecret)

	tests := []struct {
		name    string
		payload []byte
		kind    billing.EventKind
		invoice uint
		session string
	}{
		{"completed and paid", sessionEvent("checkout.session.completed", "paid", "42", ""), billing.EventPaymentSucceeded, 42, "cs_test_abc"},
		{"completed but unpaid", sessionEvent("checkout.session.completed", "unpaid", "42", ""), billing.EventOther, 42, "cs_test_abc"},
		{"async succeeded via metadata", sessionEvent("checkout.session.async_payment_succeeded", "paid", "", "7"), billing.EventPaymentSucceeded, 7, "cs_test_abc"},
		{"async failed", sessionEvent("checkout.session.async_payment_failed", "unpaid", "9", ""), billing.EventPaymentFailed, 9, "cs_test_abc"},
		{"expired", sessionEvent("checkout.session.expired", "unpaid", "9", ""), billing.EventCheckoutExpired, 9, "cs_test_abc"},
		{"intent failed", []byte(`{"id":"evt_9","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1","object":"payment_intent","metadata":{"invoice_id":"5"}}}}`), billing.EventPaymentFailed, 5, ""},
		{"unrelated", []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`), billing.EventOther, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := v.Verify(tt.payload, signed(tt.payload, testSecret, time.Now()))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.invoice, ev.InvoiceID)
			assert.Equal(t, tt.session, ev.Session)
			assert.Equal(t, billing.MethodStripe, ev.Provider)
			assert.NotEmpty(t, ev.EventID)
		})
	}
}

func TestVerifierRejectsBadSignatures(t *testing.T) {
	v := NewVerifier(testSecret)
	payload := sessionEvent("checkout.session.completed", "paid", "42", "")

	t.Run("missing header", func(t *testing.T) {
		_, err := v.Verify(payload, http.Header{})
		assert.ErrorIs(t, err, errdefs.ErrUnauthenticated)
	})
	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(payload, signed(payload, "whsec_other", time.Now()))
		assert.ErrorIs(t, err, errdefs.ErrUnauthenticated)
	})
	t.Run("tampered body", func(t *testing.T) {
		h := signed(payload, testSecret, time.Now())
		_, err := v.Verify(sessionEvent("checkout.session.completed", "paid", "43", ""), h)
		assert.ErrorIs(t, err, errdefs.ErrUnauthenticated)
	})
	t.Run("stale timestamp", func(t *testing.T) {
		_, err := v.Verify(payload, signed(payload, testSecret, time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, errdefs.ErrUnauthenticated)
	})
	t.Run("malformed json", func(t *testing.T) {
		body := []byte(`{"id": "evt_1", "type":`)
		_, err := v.Verify(body, signed(body, testSecret, time.Now()))
		assert.ErrorIs(t, err, errdefs.ErrValidation)
	})
}

func TestGatewayCreatesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.Form.Get("mode"))
		assert.Equal(t, "42", r.Form.Get("client_reference_id"))
		assert.Equal(t, "eur", r.Form.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "4999", r.Form.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "INV-20260101-ABCDEF12", r.Form.Get("metadata[invoice_number]"))
		assert.Equal(t, "buyer@example.com", r.Form.Get("customer_email"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}))
	defer srv.Close()

	g := NewGateway("sk_test_123", srv.URL, 5*time.Second)
	s, err := g.CreateCheckout(context.Background(), payments.CheckoutRequest{
		InvoiceID:     42,
		InvoiceNumber: "INV-20260101-ABCDEF12",
		UserID:        3,
		Amount:        decimal.RequireFromString("49.99"),
		Currency:      "EUR",
		Description:   "Go Basics",
		BuyerEmail:    "buyer@example.com",
		SuccessURL:    "https://app.example.com/ok",
		CancelURL:     "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", s.URL)
}

func TestGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`))
	}))
	defer srv.Close()

	g := NewGateway("sk_test_123", srv.URL, 5*time.Second)
	_, err := g.CreateCheckout(context.Background(), payments.CheckoutRequest{
		InvoiceID: 1, Amount: decimal.NewFromInt(10), Currency: "XXX",
		SuccessURL: "https://a.example", CancelURL: "https://b.example",
	})

	var perr *errdefs.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "stripe", perr.Provider)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "Invalid currency", perr.Body)
}

func TestMinorUnits(t *testing.T) {
	assert.EqualValues(t, 5000, minorUnits(decimal.RequireFromString("50"), "EUR"))
	assert.EqualValues(t, 1999, minorUnits(decimal.RequireFromString("19.99"), "USD"))
	assert.EqualValues(t, 500, minorUnits(decimal.RequireFromString("500"), "JPY"))
}

package payments_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/users"
	"course-payments/internal/errdefs"
	"course-payments/internal/payments"
	"course-payments/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var invoiceNumberRe = regexp.MustCompile(`^INV-\d{8}-[0-9A-F]{8}$`)

func newCheckout(t *testing.T, f *fixture, gateways ...payments.Gateway) *payments.CheckoutService {
	return payments.NewCheckoutService(f.store, f.machine, gateways, payments.CheckoutConfig{
		DefaultCurrency:      "eur",
		DueDays:              7,
		AppURL:               "https://app.example.com/",
		TransferInstructions: "IBAN DE00 0000 0000 0000",
	}, zaptest.NewLogger(t))
}

func TestCheckoutCreatesInvoiceAndSession(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{method: billing.MethodStripe}
	svc := newCheckout(t, f, gw)

	u := testutil.SeedUser(t, f.db, "buyer@example.com", users.RoleUser)
	p := testutil.SeedProduct(t, f.db, "Go Basics", nil, "5000")

	res, err := svc.Checkout(context.Background(), payments.CheckoutInput{
		UserID:    u.ID,
		ProductID: p.ID,
		BaseURL:   "https://api.example.com/",
	})
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, "https://pay.example.com/cs_test_1", res.CheckoutURL)
	assert.Equal(t, "cs_test_1", res.SessionID)

	inv := f.invoice(t, res.Invoice.ID)
	assert.Regexp(t, invoiceNumberRe, inv.Number)
	assert.Equal(t, billing.StatusUnpaid, inv.Status)
	assert.Equal(t, "EUR", inv.Currency)
	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(5000)), inv.Amount.String())
	assert.Equal(t, "Go Basics", inv.ProductName)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), inv.DueDate, time.Minute)
	assert.True(t, inv.HasTracked(billing.EventCheckoutStarted, "stripe", "cs_test_1"))
	require.NotEmpty(t, inv.Tracking)
	assert.Equal(t, billing.EventCreated, inv.Tracking[0].Kind)

	require.Len(t, gw.requests, 1)
	req := gw.requests[0]
	assert.Equal(t, inv.ID, req.InvoiceID)
	assert.Equal(t, "buyer@example.com", req.BuyerEmail)
	assert.Equal(t, "https://api.example.com/webhooks/stripe", req.CallbackURL)
	assert.Contains(t, req.SuccessURL, "https://app.example.com/checkout/success?invoice=INV-")
}

func TestCheckoutReusesOpenInvoice(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{method: billing.MethodStripe}
	svc := newCheckout(t, f, gw)
	ctx := context.Background()

	u := testutil.SeedUser(t, f.db, "buyer@example.com", users.RoleUser)
	p := testutil.SeedProduct(t, f.db, "Go Basics", nil, "5000")

	first, err := svc.Checkout(ctx, payments.CheckoutInput{UserID: u.ID, ProductID: p.ID})
	require.NoError(t, err)
	second, err := svc.Checkout(ctx, payments.CheckoutInput{UserID: u.ID, ProductID: p.ID})
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)
	assert.Equal(t, first.Invoice.Number, second.Invoice.Number)

	var n int64
	require.NoError(t, f.db.Model(&billing.Invoice{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCheckoutManualTransfer(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{method: billing.MethodStripe}
	svc := newCheckout(t, f, gw)

	u := testutil.SeedUser(t, f.db, "buyer@example.com", users.RoleUser)
	p := testutil.SeedProduct(t, f.db, "Go Basics", nil, "5000")

	res, err := svc.Checkout(context.Background(), payments.CheckoutInput{
		UserID: u.ID, ProductID: p.ID, Method: "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, "IBAN DE00 0000 0000 0000", res.Instructions)
	assert.Empty(t, res.CheckoutURL)
	assert.Equal(t, billing.MethodBankTransfer, res.Invoice.Method)
	assert.Empty(t, gw.requests)
}

func TestCheckoutGatewayFailureKeepsInvoice(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{
		method: billing.MethodStripe,
		err:    &errdefs.ProviderError{Provider: "stripe", StatusCode: 502, Body: "upstream down"},
	}
	svc := newCheckout(t, f, gw)

	u := testutil.SeedUser(t, f.db, "buyer@example.com", users.RoleUser)
	p := testutil.SeedProduct(t, f.db, "Go Basics", nil, "5000")

	res, err := svc.Checkout(context.Background(), payments.CheckoutInput{UserID: u.ID, ProductID: p.ID})
	require.Error(t, err)
	assert.Nil(t, res)

	var perr *errdefs.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 502, perr.StatusCode)

	var invoices []billing.Invoice
	require.NoError(t, f.db.Find(&invoices).Error)
	require.Len(t, invoices, 1)
	assert.Equal(t, billing.StatusUnpaid, invoices[0].Status)
	last := invoices[0].Tracking[len(invoices[0].Tracking)-1]
	assert.Equal(t, billing.EventCheckoutFailed, last.Kind)

	// A retry reuses the preserved invoice.
	gw.err = errors.New("timeout")
	_, err = svc.Checkout(context.Background(), payments.CheckoutInput{UserID: u.ID, ProductID: p.ID})
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "stripe", perr.Provider)

	var n int64
	require.NoError(t, f.db.Model(&billing.Invoice{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	svc := newCheckout(t, f, &fakeGateway{method: billing.MethodStripe})

	u := testutil.SeedUser(t, f.db, "buyer@example.com", users.RoleUser)
	p := testutil.SeedProduct(t, f.db, "Go Basics", nil, "5000")

	tests := []struct {
		name string
		in   payments.CheckoutInput
		want error
	}{
		{"anonymous", payments.CheckoutInput{ProductID: p.ID}, errdefs.ErrUnauthenticated},
		{"unknown user", payments.CheckoutInput{UserID: 999, ProductID: p.ID}, errdefs.ErrUnauthenticated},
		{"missing product", payments.CheckoutInput{UserID: u.ID}, errdefs.ErrValidation},
		{"unknown product", payments.CheckoutInput{UserID: u.ID, ProductID: 999}, errdefs.ErrValidation},
		{"bad currency", payments.CheckoutInput{UserID: u.ID, ProductID: p.ID, Currency: "EURO"}, errdefs.ErrValidation},
		{"unpriced currency", payments.CheckoutInput{UserID: u.ID, ProductID: p.ID, Currency: "usd"}, errdefs.ErrValidation},
		{"unknown method", payments.CheckoutInput{UserID: u.ID, ProductID: p.ID, Method: "cash"}, errdefs.ErrValidation},
		{"unconfigured gateway", payments.CheckoutInput{UserID: u.ID, ProductID: p.ID, Method: "paylink"}, errdefs.ErrValidation},
		{"relative redirect", payments.CheckoutInput{UserID: u.ID, ProductID: p.ID, SuccessURL: "/done"}, errdefs.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Checkout(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&billing.Invoice{}).Count(&n).Error)
	assert.Zero(t, n)
}

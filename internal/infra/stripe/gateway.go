// Package stripe connects the payment pipeline to Stripe: hosted checkout
// sessions out, signed webhooks in.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"course-payments/internal/domain/billing"
	"course-payments/internal/errdefs"
	"course-payments/internal/payments"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
)

// zeroDecimal lists the currencies Stripe expects in whole units.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

type Gateway struct {
	api *client.API
}

// NewGateway builds a client bound to its own backend, so the key and the
// timeout never leak into the package-level Stripe state. An empty apiURL
// targets the live API.
func NewGateway(secretKey, apiURL string, timeout time.Duration) *Gateway {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if apiURL != "" {
		cfg.URL = stripe.String(strings.TrimRight(apiURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Gateway{api: api}
}

func (g *Gateway) Method() billing.Method { return billing.MethodStripe }

func (g *Gateway) CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	currency := strings.ToUpper(req.Currency)
	metadata := map[string]string{
		"invoice_id":     fmt.Sprint(req.InvoiceID),
		"invoice_number": req.InvoiceNumber,
		"user_id":        fmt.Sprint(req.UserID),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(fmt.Sprint(req.InvoiceID)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(currency)),
					UnitAmount: stripe.Int64(minorUnits(req.Amount, currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.BuyerEmail != "" {
		params.CustomerEmail = stripe.String(req.BuyerEmail)
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, providerError(err)
	}
	return &payments.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func minorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimal[currency] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

func providerError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		return &errdefs.ProviderError{
			Provider:   string(billing.MethodStripe),
			StatusCode: serr.HTTPStatusCode,
			Body:       serr.Msg,
			Err:        err,
		}
	}
	return &errdefs.ProviderError{Provider: string(billing.MethodStripe), Err: err}
}

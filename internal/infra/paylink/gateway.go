// Package paylink talks to the Paylink hosted payment page API.
package paylink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"course-payments/internal/domain/billing"
	"course-payments/internal/errdefs"
	"course-payments/internal/payments"
)

type Gateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGateway(baseURL, apiKey string, timeout time.Duration) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *Gateway) Method() billing.Method { return billing.MethodPaylink }

type checkoutRequest struct {
	OrderID     string            `json:"order_id"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url"`
	SuccessURL  string            `json:"success_url"`
	FailureURL  string            `json:"failure_url"`
	Customer    customer          `json:"customer"`
	Metadata    map[string]string `json:"metadata"`
}

type customer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type checkoutResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
	URL         string `json:"url"`
}

func (g *Gateway) CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	orderID := fmt.Sprint(req.InvoiceID)
	payload, err := json.Marshal(checkoutRequest{
		OrderID:     orderID,
		Amount:      req.Amount.StringFixed(2),
		Currency:    strings.ToUpper(req.Currency),
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		SuccessURL:  req.SuccessURL,
		FailureURL:  req.CancelURL,
		Customer:    customer{Email: req.BuyerEmail, Name: req.BuyerName},
		Metadata: map[string]string{
			"order_id":       orderID,
			"invoice_number": req.InvoiceNumber,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal paylink checkout: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/v1/checkouts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build paylink request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.InvoiceNumber)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &errdefs.ProviderError{Provider: string(billing.MethodPaylink), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &errdefs.ProviderError{Provider: string(billing.MethodPaylink), StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errdefs.ProviderError{
			Provider:   string(billing.MethodPaylink),
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 512),
		}
	}

	var out checkoutResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &errdefs.ProviderError{Provider: string(billing.MethodPaylink), StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	url := out.RedirectURL
	if url == "" {
		url = out.URL
	}
	if out.ID == "" || url == "" {
		return nil, &errdefs.ProviderError{
			Provider:   string(billing.MethodPaylink),
			StatusCode: resp.StatusCode,
			Body:       "response without checkout id or url",
		}
	}
	return &payments.CheckoutSession{ID: out.ID, URL: url}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

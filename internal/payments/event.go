// Package payments holds the payment-to-entitlement pipeline: the invoice
// state machine and the workflows that feed it (gateway webhooks, checkout
// creation and proof review).
package payments

import (
	"context"
	"net/http"

	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/notifications"

	"github.com/shopspring/decimal"
)

// Event is a verified gateway callback reduced to what the pipeline needs.
type Event struct {
	Kind     billing.EventKind
	Provider billing.Method

	// InvoiceID is zero when the payload carried no usable correlation id.
	InvoiceID uint

	// Reference is the gateway object the event is about (session, payment).
	Reference string
	// Session is the checkout session the event belongs to, when known.
	Session string
	// EventID identifies this delivery; redeliveries reuse it.
	EventID string
	RawType string
}

// DedupKey is the reference recorded in the invoice history. Replays of one
// delivery share it.
func (e *Event) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.Reference
}

// Verifier authenticates and decodes the webhooks of one gateway.
type Verifier interface {
	Provider() billing.Method
	Verify(body []byte, header http.Header) (*Event, error)
}

type CheckoutRequest struct {
	InvoiceID     uint
	InvoiceNumber string
	UserID        uint
	Amount        decimal.Decimal
	Currency      string
	Description   string
	BuyerEmail    string
	BuyerName     string
	SuccessURL    string
	CancelURL     string
	CallbackURL   string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway opens hosted checkout sessions. Implementations bound every call
// with their own timeout and report failures as *errdefs.ProviderError.
type Gateway interface {
	Method() billing.Method
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Notifier delivers notices after the transition that produced them has
// been committed. It never fails.
type Notifier interface {
	Dispatch(ctx context.Context, notices []notifications.Notice)
}

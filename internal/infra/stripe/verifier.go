package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"course-payments/internal/domain/billing"
	"course-payments/internal/errdefs"
	"course-payments/internal/payments"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
)

const SignatureHeader = "Stripe-Signature"

type Verifier struct {
	secret string
}

func NewVerifier(webhookSecret string) *Verifier {
	return &Verifier{secret: webhookSecret}
}

func (v *Verifier) Provider() billing.Method { return billing.MethodStripe }

// Verify checks the Stripe-Signature header (timestamped HMAC-SHA256) and
// decodes the event. Unsigned payloads are always rejected.
func (v *Verifier) Verify(body []byte, header http.Header) (*payments.Event, error) {
	sig := header.Get(SignatureHeader)
	if strings.TrimSpace(sig) == "" {
		return nil, fmt.Errorf("%w: missing %s header", errdefs.ErrUnauthenticated, SignatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(body, sig, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return nil, fmt.Errorf("%w: %v", errdefs.ErrUnauthenticated, err)
		default:
			return nil, errdefs.Validation("stripe event: %v", err)
		}
	}

	out := &payments.Event{
		Provider: billing.MethodStripe,
		EventID:  event.ID,
		RawType:  string(event.Type),
		Kind:     billing.EventOther,
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	switch {
	case strings.HasPrefix(string(event.Type), "checkout.session."):
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, errdefs.Validation("stripe checkout session: %v", err)
		}
		out.Kind = eventKind(event.Type, session.PaymentStatus)
		out.InvoiceID = invoiceID(session.ClientReferenceID, session.Metadata)
		out.Reference = session.ID
		out.Session = session.ID

	case strings.HasPrefix(string(event.Type), "payment_intent."):
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, errdefs.Validation("stripe payment intent: %v", err)
		}
		out.Kind = eventKind(event.Type, "")
		out.InvoiceID = invoiceID("", intent.Metadata)
		out.Reference = intent.ID
	}
	return out, nil
}

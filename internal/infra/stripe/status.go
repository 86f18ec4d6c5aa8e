package stripe

import (
	"strconv"
	"strings"

	"course-payments/internal/domain/billing"

	"github.com/stripe/stripe-go/v75"
)

// eventKind maps a Stripe event type onto the invoice event it represents.
// Completed sessions only count as paid once the money has arrived; delayed
// methods report through the async events.
func eventKind(typ stripe.EventType, paymentStatus stripe.CheckoutSessionPaymentStatus) billing.EventKind {
	switch typ {
	case "checkout.session.completed":
		if paymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			return billing.EventPaymentSucceeded
		}
		return billing.EventOther
	case "checkout.session.async_payment_succeeded":
		return billing.EventPaymentSucceeded
	case "checkout.session.async_payment_failed", "payment_intent.payment_failed":
		return billing.EventPaymentFailed
	case "checkout.session.expired":
		return billing.EventCheckoutExpired
	default:
		return billing.EventOther
	}
}

// invoiceID reads the correlation id, preferring the client reference over
// metadata.
func invoiceID(clientReference string, metadata map[string]string) uint {
	for _, raw := range []string{clientReference, metadata["invoice_id"]} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			return uint(id)
		}
	}
	return 0
}

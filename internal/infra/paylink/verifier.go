package paylink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"course-payments/internal/domain/billing"
	"course-payments/internal/errdefs"
	"course-payments/internal/payments"
)

const SignatureHeader = "X-Paylink-Signature"

type Verifier struct {
	secret string
}

func NewVerifier(webhookSecret string) *Verifier {
	return &Verifier{secret: webhookSecret}
}

func (v *Verifier) Provider() billing.Method { return billing.MethodPaylink }

// VerifyHMAC validates a hex encoded HMAC-SHA256 of body.
func VerifyHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	sigBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, sigBytes)
}

// Sign returns the signature Paylink puts in SignatureHeader.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type notification struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Status   string          `json:"status"`
	OrderID  json.RawMessage `json:"order_id"`
	Invoice  json.RawMessage `json:"invoice_id"`
	Payment  string          `json:"payment_id"`
	Checkout string          `json:"checkout_id"`
	Metadata struct {
		OrderID json.RawMessage `json:"order_id"`
	} `json:"metadata"`
}

func (v *Verifier) Verify(body []byte, header http.Header) (*payments.Event, error) {
	sig := header.Get(SignatureHeader)
	if sig == "" {
		return nil, fmt.Errorf("%w: missing %s header", errdefs.ErrUnauthenticated, SignatureHeader)
	}
	if v.secret == "" || !VerifyHMAC(body, sig, v.secret) {
		return nil, fmt.Errorf("%w: paylink signature mismatch", errdefs.ErrUnauthenticated)
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, errdefs.Validation("paylink payload: %v", err)
	}

	typ := n.Type
	if typ == "" {
		typ = n.Status
	}
	ref := n.Payment
	if ref == "" {
		ref = n.ID
	}

	return &payments.Event{
		Kind:      eventKind(typ),
		Provider:  billing.MethodPaylink,
		InvoiceID: firstID(n.OrderID, n.Metadata.OrderID, n.Invoice),
		Reference: ref,
		Session:   n.Checkout,
		EventID:   n.ID,
		RawType:   typ,
	}, nil
}

func eventKind(typ string) billing.EventKind {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "payment.succeeded", "payment_succeeded", "paid", "succeeded", "success":
		return billing.EventPaymentSucceeded
	case "payment.failed", "payment_failed", "failed", "declined":
		return billing.EventPaymentFailed
	case "checkout.expired", "checkout_expired", "expired":
		return billing.EventCheckoutExpired
	default:
		return billing.EventOther
	}
}

// firstID accepts ids sent either as JSON numbers or as strings.
func firstID(candidates ...json.RawMessage) uint {
	for _, raw := range candidates {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
		if id, err := strconv.ParseUint(s, 10, 64); err == nil && id > 0 {
			return uint(id)
		}
	}
	return 0
}

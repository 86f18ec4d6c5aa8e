package notifications

type Audience string

const (
	AudienceBuyer Audience = "buyer"
	AudienceAdmin Audience = "admin"
)

// Notification types produced by the payment pipeline.
const (
	TypePaymentConfirmed      = "payment_confirmed"
	TypeInvoicePaid           = "invoice_paid"
	TypePaymentFailed         = "payment_failed"
	TypeCheckoutExpired       = "checkout_expired"
	TypeProofUploaded         = "proof_uploaded"
	TypeProofRejected         = "proof_rejected"
	TypeEntitlementUnresolved = "entitlement_unresolved"
	TypePaymentAfterCancel    = "payment_after_cancel"
	TypeUnknownInvoice        = "webhook_unknown_invoice"
)

// Notice is a message produced by a state transition. It is delivered after
// the transition has been committed.
type Notice struct {
	Audience      Audience `json:"audience"`
	Type          string   `json:"type"`
	UserID        uint     `json:"user_id,omitempty"`
	InvoiceID     uint     `json:"invoice_id,omitempty"`
	InvoiceNumber string   `json:"invoice_number,omitempty"`
	Title         string   `json:"title"`
	Message       string   `json:"message"`
	Priority      Priority `json:"priority"`
}

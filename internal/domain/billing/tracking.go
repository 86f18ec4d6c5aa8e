package billing

import "time"

// EventKind names everything that can happen to an invoice. It doubles as
// the kind of the tracking entry recorded for it.
type EventKind string

const (
	EventCreated          EventKind = "created"
	EventCheckoutStarted  EventKind = "checkout_started"
	EventCheckoutFailed   EventKind = "checkout_failed"
	EventProofUploaded    EventKind = "proof_uploaded"
	EventProofApproved    EventKind = "proof_approved"
	EventProofRejected    EventKind = "proof_rejected"
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventCheckoutExpired  EventKind = "checkout_expired"
	EventIgnored          EventKind = "ignored"
	EventOther            EventKind = "other"
)

// TrackingEntry is one line of the append-only invoice history.
type TrackingEntry struct {
	Kind      EventKind `json:"kind"`
	Provider  string    `json:"provider"`
	At        time.Time `json:"at"`
	Reference string    `json:"reference,omitempty"`
	Note      string    `json:"note,omitempty"`
}

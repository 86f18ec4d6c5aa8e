package billing

import "time"

type ProofStatus string

const (
	ProofPending  ProofStatus = "pending"
	ProofApproved ProofStatus = "approved"
	ProofRejected ProofStatus = "rejected"
)

// PaymentProof is a buyer-uploaded document evidencing an out-of-band payment.
type PaymentProof struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	InvoiceID uint `gorm:"not null;index" json:"invoice_id"`

	StoredName   string `gorm:"not null" json:"stored_name"`
	OriginalName string `json:"original_name"`
	Path         string `gorm:"not null" json:"-"`
	Size         int64  `json:"size"`
	MimeType     string `gorm:"type:varchar(100)" json:"mime_type"`

	Status          ProofStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ReviewedBy      *uint       `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time  `json:"reviewed_at,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

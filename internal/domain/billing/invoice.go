package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusUnpaid        Status = "unpaid"
	StatusProofUploaded Status = "proof_uploaded"
	StatusPaid          Status = "paid"
	StatusCancelled     Status = "cancelled"
)

// OpenStatuses are the statuses an invoice can be reused or paid from.
var OpenStatuses = []Status{StatusUnpaid, StatusProofUploaded}

func (s Status) IsOpen() bool {
	return s == StatusUnpaid || s == StatusProofUploaded
}

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

func (s Status) Valid() bool {
	return s.IsOpen() || s.IsTerminal()
}

type Method string

const (
	MethodBankTransfer   Method = "bank_transfer"
	MethodPostalTransfer Method = "postal_transfer"
	MethodStripe         Method = "stripe"
	MethodPaylink        Method = "paylink"
)

func ParseMethod(s string) (Method, bool) {
	switch m := Method(s); m {
	case MethodBankTransfer, MethodPostalTransfer, MethodStripe, MethodPaylink:
		return m, true
	}
	return "", false
}

// IsGateway reports whether the method is settled by an online gateway
// rather than by a manually reviewed transfer.
func (m Method) IsGateway() bool {
	return m == MethodStripe || m == MethodPaylink
}

var (
	ErrNonPositiveAmount = errors.New("invoice amount must be positive")
	ErrPaidAtMismatch    = errors.New("paid_at must be set exactly when status is paid")
)

type Invoice struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	UserID    uint `gorm:"not null;index:idx_invoices_user_product,priority:1" json:"user_id"`
	ProductID uint `gorm:"not null;index:idx_invoices_user_product,priority:2" json:"product_id"`

	// Number is assigned once at creation and never written again.
	Number      string `gorm:"<-:create;type:varchar(32);not null;uniqueIndex:idx_invoices_number" json:"number"`
	ProductName string `gorm:"not null" json:"product_name"`

	Currency string          `gorm:"type:varchar(3);not null" json:"currency"`
	Amount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Method   Method          `gorm:"type:varchar(20);not null" json:"method"`
	Status   Status          `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"status"`

	DueDate time.Time  `json:"due_date"`
	PaidAt  *time.Time `json:"paid_at,omitempty"`

	Tracking datatypes.JSONSlice[TrackingEntry] `json:"tracking"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeSave guards the invariants every write must keep.
func (inv *Invoice) BeforeSave(tx *gorm.DB) error {
	if !inv.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if (inv.Status == StatusPaid) != (inv.PaidAt != nil) {
		return ErrPaidAtMismatch
	}
	return nil
}

func (inv *Invoice) Track(e TrackingEntry) {
	inv.Tracking = append(inv.Tracking, e)
}

// HasTracked reports whether an entry with the same kind, provider and
// reference was already recorded. Entries without a reference never match.
func (inv *Invoice) HasTracked(kind EventKind, provider, reference string) bool {
	if reference == "" {
		return false
	}
	for _, e := range inv.Tracking {
		if e.Kind == kind && e.Provider == provider && e.Reference == reference {
			return true
		}
	}
	return false
}

// LatestCheckout returns the reference of the most recent gateway session
// opened for the invoice with the given provider.
func (inv *Invoice) LatestCheckout(provider string) string {
	for i := len(inv.Tracking) - 1; i >= 0; i-- {
		e := inv.Tracking[i]
		if e.Kind == EventCheckoutStarted && e.Provider == provider {
			return e.Reference
		}
	}
	return ""
}

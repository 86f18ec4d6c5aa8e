package ledger

import (
	"context"
	"fmt"

	"course-payments/internal/domain/billing"
)

func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	if err := s.conn(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id uint) (*billing.Invoice, error) {
	var inv billing.Invoice
	if err := s.conn(ctx).First(&inv, id).Error; err != nil {
		return nil, notFound(err, "invoice")
	}
	return &inv, nil
}

// LockInvoice loads an invoice and holds its row lock for the rest of the
// transaction.
func (s *Store) LockInvoice(ctx context.Context, id uint) (*billing.Invoice, error) {
	var inv billing.Invoice
	if err := forUpdate(s.conn(ctx)).First(&inv, id).Error; err != nil {
		return nil, notFound(err, "invoice")
	}
	return &inv, nil
}

// FindOpenInvoice returns the newest unresolved invoice of a buyer for a
// product.
func (s *Store) FindOpenInvoice(ctx context.Context, userID, productID uint) (*billing.Invoice, error) {
	var inv billing.Invoice
	err := s.conn(ctx).
		Where("user_id = ? AND product_id = ? AND status IN ?", userID, productID, billing.OpenStatuses).
		Order("created_at DESC").
		First(&inv).Error
	if err != nil {
		return nil, notFound(err, "open invoice")
	}
	return &inv, nil
}

// SaveInvoiceState writes the fields the state machine owns.
func (s *Store) SaveInvoiceState(ctx context.Context, inv *billing.Invoice) error {
	err := s.conn(ctx).
		Model(inv).
		Select("status", "paid_at", "tracking", "updated_at").
		Updates(inv).Error
	if err != nil {
		return fmt.Errorf("save invoice %d: %w", inv.ID, err)
	}
	return nil
}

func (s *Store) ListInvoicesByUser(ctx context.Context, userID uint) ([]billing.Invoice, error) {
	var out []billing.Invoice
	if err := s.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return out, nil
}

type InvoiceFilter struct {
	Status billing.Status
	UserID uint
	Limit  int
	Offset int
}

func (s *Store) ListInvoices(ctx context.Context, f InvoiceFilter) ([]billing.Invoice, error) {
	q := s.conn(ctx).Model(&billing.Invoice{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var out []billing.Invoice
	if err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return out, nil
}

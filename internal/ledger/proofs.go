package ledger

import (
	"context"
	"fmt"
	"time"

	"course-payments/internal/domain/billing"
)

func (s *Store) CreateProof(ctx context.Context, p *billing.PaymentProof) error {
	if err := s.conn(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create proof: %w", err)
	}
	return nil
}

func (s *Store) GetProof(ctx context.Context, id uint) (*billing.PaymentProof, error) {
	var p billing.PaymentProof
	if err := s.conn(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, "payment proof")
	}
	return &p, nil
}

func (s *Store) LockProof(ctx context.Context, id uint) (*billing.PaymentProof, error) {
	var p billing.PaymentProof
	if err := forUpdate(s.conn(ctx)).First(&p, id).Error; err != nil {
		return nil, notFound(err, "payment proof")
	}
	return &p, nil
}

func (s *Store) ListProofs(ctx context.Context, invoiceID uint) ([]billing.PaymentProof, error) {
	var out []billing.PaymentProof
	if err := s.conn(ctx).Where("invoice_id = ?", invoiceID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list proofs: %w", err)
	}
	return out, nil
}

func (s *Store) ListPendingProofs(ctx context.Context) ([]billing.PaymentProof, error) {
	var out []billing.PaymentProof
	if err := s.conn(ctx).Where("status = ?", billing.ProofPending).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list pending proofs: %w", err)
	}
	return out, nil
}

// DeletePendingProofs removes the pending proofs of an invoice and returns
// them so their files can be cleaned up.
func (s *Store) DeletePendingProofs(ctx context.Context, invoiceID uint) ([]billing.PaymentProof, error) {
	var pending []billing.PaymentProof
	db := s.conn(ctx)
	if err := db.Where("invoice_id = ? AND status = ?", invoiceID, billing.ProofPending).Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("find pending proofs: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	if err := db.Where("invoice_id = ? AND status = ?", invoiceID, billing.ProofPending).Delete(&billing.PaymentProof{}).Error; err != nil {
		return nil, fmt.Errorf("delete pending proofs: %w", err)
	}
	return pending, nil
}

// SaveProofReview writes the review outcome of a proof.
func (s *Store) SaveProofReview(ctx context.Context, p *billing.PaymentProof) error {
	err := s.conn(ctx).
		Model(p).
		Select("status", "reviewed_by", "reviewed_at", "rejection_reason").
		Updates(p).Error
	if err != nil {
		return fmt.Errorf("save proof %d: %w", p.ID, err)
	}
	return nil
}

// SupersedePendingProofs rejects every pending proof of an invoice except
// keepID. reviewer is nil when no admin decided, as for gateway payments.
func (s *Store) SupersedePendingProofs(ctx context.Context, invoiceID, keepID uint, reviewer *uint, at time.Time) (int64, error) {
	res := s.conn(ctx).
		Model(&billing.PaymentProof{}).
		Where("invoice_id = ? AND status = ? AND id <> ?", invoiceID, billing.ProofPending, keepID).
		Updates(map[string]any{
			"status":           billing.ProofRejected,
			"reviewed_by":      reviewer,
			"reviewed_at":      at,
			"rejection_reason": "superseded",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("supersede proofs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

package payments

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"
	"time"

	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/users"
	"course-payments/internal/errdefs"
	"course-payments/internal/ledger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// allowedProofTypes is checked against the sniffed content, not the name.
var allowedProofTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}

// FileStore keeps uploaded proof documents.
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Actor is the authenticated caller of a workflow.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == users.RoleAdmin }

type UploadInput struct {
	Actor     Actor
	InvoiceID uint
	Filename  string
	Body      io.Reader
}

type ReviewResult struct {
	Proof   *billing.PaymentProof `json:"proof"`
	Invoice *billing.Invoice      `json:"invoice"`
}

type ProofService struct {
	store    *ledger.Store
	machine  *Machine
	files    FileStore
	sink     Notifier
	maxBytes int64
	names    *bluemonday.Policy
	logger   *zap.Logger
	now      func() time.Time
}

func NewProofService(store *ledger.Store, machine *Machine, files FileStore, sink Notifier, maxBytes int64, logger *zap.Logger) *ProofService {
	return &ProofService{
		store:    store,
		machine:  machine,
		files:    files,
		sink:     sink,
		maxBytes: maxBytes,
		names:    bluemonday.StrictPolicy(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores a buyer's payment evidence for an open invoice, replacing
// any proof still waiting for review.
func (s *ProofService) Upload(ctx context.Context, in UploadInput) (*billing.PaymentProof, error) {
	if in.Actor.UserID == 0 {
		return nil, errdefs.ErrUnauthenticated
	}
	if in.Body == nil {
		return nil, errdefs.Validation("file is required")
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return nil, errdefs.Validation("file is empty")
	case int64(len(data)) > s.maxBytes:
		return nil, errdefs.Validation("file exceeds %d bytes", s.maxBytes)
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedProofTypes...) {
		return nil, errdefs.Validation("file type %s is not accepted", mt.String())
	}

	inv, err := s.store.GetInvoice(ctx, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := checkUploadable(inv, in.Actor); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("proofs/%d/%s%s", inv.ID, uuid.NewString(), mt.Extension())
	if err := s.files.Save(ctx, key, bytes.NewReader(data), int64(len(data)), mt.String()); err != nil {
		return nil, fmt.Errorf("store proof file: %w", err)
	}

	var (
		proof    *billing.PaymentProof
		replaced []billing.PaymentProof
		out      *Outcome
	)
	err = s.store.Transaction(ctx, func(tx *ledger.Store) error {
		locked, err := tx.LockInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		if err := checkUploadable(locked, in.Actor); err != nil {
			return err
		}

		replaced, err = tx.DeletePendingProofs(ctx, locked.ID)
		if err != nil {
			return err
		}

		proof = &billing.PaymentProof{
			InvoiceID:    locked.ID,
			StoredName:   filepath.Base(key),
			OriginalName: s.cleanName(in.Filename),
			Path:         key,
			Size:         int64(len(data)),
			MimeType:     mt.String(),
			Status:       billing.ProofPending,
		}
		if err := tx.CreateProof(ctx, proof); err != nil {
			return err
		}

		out, err = s.machine.Apply(ctx, tx, locked, Transition{
			Event:     billing.EventProofUploaded,
			Provider:  "buyer",
			Reference: fmt.Sprintf("proof:%d", proof.ID),
			ProofID:   proof.ID,
		})
		return err
	})
	if err != nil {
		s.removeFile(ctx, key)
		return nil, err
	}

	for _, old := range replaced {
		s.removeFile(ctx, old.Path)
	}
	s.sink.Dispatch(ctx, out.Notices)
	return proof, nil
}

// Approve accepts a pending proof and pays its invoice.
func (s *ProofService) Approve(ctx context.Context, actor Actor, proofID uint) (*ReviewResult, error) {
	return s.review(ctx, actor, proofID, billing.ProofApproved, "")
}

// Reject turns a pending proof down. The invoice stays open for a new upload.
func (s *ProofService) Reject(ctx context.Context, actor Actor, proofID uint, reason string) (*ReviewResult, error) {
	// The reason lands in a plain-text email, so entities are decoded again.
	reason = strings.TrimSpace(html.UnescapeString(s.names.Sanitize(reason)))
	return s.review(ctx, actor, proofID, billing.ProofRejected, reason)
}

func (s *ProofService) review(ctx context.Context, actor Actor, proofID uint, decision billing.ProofStatus, reason string) (*ReviewResult, error) {
	if !actor.IsAdmin() {
		return nil, errdefs.ErrForbidden
	}

	proof, err := s.store.GetProof(ctx, proofID)
	if err != nil {
		return nil, err
	}

	var out *Outcome
	err = s.store.Transaction(ctx, func(tx *ledger.Store) error {
		// Invoice first, like every other transition, then re-read the proof
		// under that lock.
		inv, err := tx.LockInvoice(ctx, proof.InvoiceID)
		if err != nil {
			return err
		}
		proof, err = tx.LockProof(ctx, proofID)
		if err != nil {
			return err
		}
		if proof.Status != billing.ProofPending {
			return errdefs.Conflict("proof %d is already %s", proof.ID, proof.Status)
		}
		if inv.Status.IsTerminal() {
			return errdefs.Conflict("invoice %s is already %s", inv.Number, inv.Status)
		}

		now := s.now()
		proof.Status = decision
		proof.ReviewedBy = &actor.UserID
		proof.ReviewedAt = &now
		proof.RejectionReason = reason
		if err := tx.SaveProofReview(ctx, proof); err != nil {
			return err
		}

		t := Transition{
			Provider:   "admin",
			Reference:  fmt.Sprintf("proof:%d", proof.ID),
			ProofID:    proof.ID,
			ReviewerID: actor.UserID,
			Note:       reason,
		}
		if decision == billing.ProofApproved {
			t.Event = billing.EventProofApproved
		} else {
			t.Event = billing.EventProofRejected
		}

		out, err = s.machine.Apply(ctx, tx, inv, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("proof reviewed",
		zap.Uint("proof_id", proof.ID),
		zap.String("decision", string(decision)),
		zap.Uint("admin_id", actor.UserID))
	s.sink.Dispatch(ctx, out.Notices)
	return &ReviewResult{Proof: proof, Invoice: out.Invoice}, nil
}

// OpenFile streams a stored proof to an admin or to the invoice owner.
func (s *ProofService) OpenFile(ctx context.Context, actor Actor, proofID uint) (io.ReadCloser, *billing.PaymentProof, error) {
	if actor.UserID == 0 {
		return nil, nil, errdefs.ErrUnauthenticated
	}
	proof, err := s.store.GetProof(ctx, proofID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsAdmin() {
		inv, err := s.store.GetInvoice(ctx, proof.InvoiceID)
		if err != nil {
			return nil, nil, err
		}
		if inv.UserID != actor.UserID {
			return nil, nil, errdefs.ErrForbidden
		}
	}

	rc, err := s.files.Open(ctx, proof.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open proof file: %w", err)
	}
	return rc, proof, nil
}

// supersedePending closes the proofs still waiting for review once the
// invoice is paid, whichever rail paid it. Proof review state is written
// from this file only.
func supersedePending(ctx context.Context, tx *ledger.Store, inv *billing.Invoice, t Transition, now time.Time, logger *zap.Logger) error {
	var reviewer *uint
	if t.ReviewerID != 0 {
		reviewer = &t.ReviewerID
	}
	n, err := tx.SupersedePendingProofs(ctx, inv.ID, t.ProofID, reviewer, now)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("pending proofs superseded",
			zap.String("invoice", inv.Number),
			zap.String("provider", t.Provider),
			zap.Int64("count", n))
	}
	return nil
}

func (s *ProofService) cleanName(name string) string {
	name = s.names.Sanitize(filepath.Base(name))
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}

func (s *ProofService) removeFile(ctx context.Context, key string) {
	if err := s.files.Delete(ctx, key); err != nil {
		s.logger.Warn("proof file cleanup failed", zap.String("key", key), zap.Error(err))
	}
}

func checkUploadable(inv *billing.Invoice, actor Actor) error {
	if inv.UserID != actor.UserID {
		return errdefs.ErrForbidden
	}
	if !inv.Status.IsOpen() {
		return errdefs.Conflict("invoice %s is %s", inv.Number, inv.Status)
	}
	return nil
}

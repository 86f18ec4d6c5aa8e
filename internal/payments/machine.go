package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/enrollments"
	"course-payments/internal/domain/notifications"
	"course-payments/internal/errdefs"
	"course-payments/internal/ledger"

	"go.uber.org/zap"
)

var (
	ErrNoCourse        = errors.New("no course matches the purchased product")
	ErrAmbiguousCourse = errors.New("several courses match the purchased product")
)

// Transition is one event applied to one invoice.
type Transition struct {
	Event    billing.EventKind
	Provider string
	// Reference makes the transition idempotent: a (event, provider,
	// reference) triple already present in the history is not applied again.
	Reference string
	ProofID   uint
	// Session is the gateway checkout session an expiry refers to.
	Session string
	// ReviewerID is the admin deciding a proof, zero for gateway events.
	ReviewerID uint
	Note       string
}

// Outcome is what a transition did. Notices are delivered by the caller
// once the transaction has committed.
type Outcome struct {
	Invoice *billing.Invoice
	From    billing.Status
	To      billing.Status

	// Applied is false when the transition was a no-op.
	Applied           bool
	EnrollmentGranted bool
	CourseID          uint
	Notices           []notifications.Notice
}

// Machine is the only writer of invoice status, paid timestamp and history.
type Machine struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewMachine(logger *zap.Logger) *Machine {
	return &Machine{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Apply decides the transition and writes it through tx, which must hold
// the invoice's row lock. The invoice is updated in place.
func (m *Machine) Apply(ctx context.Context, tx *ledger.Store, inv *billing.Invoice, t Transition) (*Outcome, error) {
	out := &Outcome{Invoice: inv, From: inv.Status, To: inv.Status}

	if inv.HasTracked(t.Event, t.Provider, t.Reference) {
		m.logger.Info("transition replay ignored",
			zap.String("invoice", inv.Number),
			zap.String("event", string(t.Event)),
			zap.String("reference", t.Reference))
		return out, nil
	}

	now := m.now()
	entry := billing.TrackingEntry{Kind: t.Event, Provider: t.Provider, At: now, Reference: t.Reference, Note: t.Note}

	switch t.Event {
	case billing.EventProofUploaded:
		if !inv.Status.IsOpen() {
			return nil, errdefs.Conflict("invoice %s is %s", inv.Number, inv.Status)
		}
		inv.Status = billing.StatusProofUploaded
		inv.Track(entry)
		out.Notices = append(out.Notices, adminNotice(inv, notifications.TypeProofUploaded, notifications.PriorityNormal,
			"New payment proof",
			fmt.Sprintf("A payment proof was uploaded for invoice %s (%s).", inv.Number, inv.ProductName)))

	case billing.EventPaymentSucceeded, billing.EventProofApproved:
		switch inv.Status {
		case billing.StatusPaid:
			return out, nil
		case billing.StatusCancelled:
			if t.Event == billing.EventProofApproved {
				return nil, errdefs.Conflict("invoice %s is cancelled", inv.Number)
			}
			return m.ignoreAfterCancel(ctx, tx, inv, t, out)
		}
		inv.Status = billing.StatusPaid
		inv.PaidAt = &now
		inv.Track(entry)

	case billing.EventPaymentFailed:
		if inv.Status.IsTerminal() {
			return out, nil
		}
		inv.Track(entry)
		out.Notices = append(out.Notices, adminNotice(inv, notifications.TypePaymentFailed, notifications.PriorityNormal,
			"Payment failed",
			fmt.Sprintf("A %s payment for invoice %s failed. The invoice stays open.", t.Provider, inv.Number)))

	case billing.EventCheckoutExpired:
		if inv.Status.IsTerminal() {
			return out, nil
		}
		// A reused invoice may have a newer session the buyer can still pay.
		if latest := inv.LatestCheckout(t.Provider); t.Session != "" && latest != "" && latest != t.Session {
			entry.Note = strings.TrimSpace(entry.Note + " (superseded session " + t.Session + ")")
			inv.Track(entry)
			break
		}
		inv.Status = billing.StatusCancelled
		inv.Track(entry)
		out.Notices = append(out.Notices, adminNotice(inv, notifications.TypeCheckoutExpired, notifications.PriorityLow,
			"Checkout expired",
			fmt.Sprintf("The %s checkout for invoice %s expired. The invoice was cancelled.", t.Provider, inv.Number)))

	case billing.EventProofRejected:
		if inv.Status.IsTerminal() {
			return nil, errdefs.Conflict("invoice %s is %s", inv.Number, inv.Status)
		}
		inv.Track(entry)
		msg := fmt.Sprintf("Your payment proof for invoice %s was rejected. Please upload a new one.", inv.Number)
		if t.Note != "" {
			msg = fmt.Sprintf("Your payment proof for invoice %s was rejected: %s. Please upload a new one.", inv.Number, t.Note)
		}
		out.Notices = append(out.Notices, buyerNotice(inv, notifications.TypeProofRejected, "Payment proof rejected", msg))

	case billing.EventCreated, billing.EventCheckoutStarted, billing.EventCheckoutFailed, billing.EventOther:
		inv.Track(entry)

	default:
		return nil, errdefs.Validation("unknown invoice event %q", t.Event)
	}

	if err := tx.SaveInvoiceState(ctx, inv); err != nil {
		return nil, err
	}
	out.Applied = true
	out.To = inv.Status

	if out.To == billing.StatusPaid && out.From != billing.StatusPaid {
		if err := supersedePending(ctx, tx, inv, t, now, m.logger); err != nil {
			return nil, err
		}
		m.grant(ctx, tx, inv, out)
		out.Notices = append(out.Notices,
			buyerNotice(inv, notifications.TypePaymentConfirmed, "Payment confirmed",
				fmt.Sprintf("Your payment for %s (invoice %s) has been received.", inv.ProductName, inv.Number)),
			adminNotice(inv, notifications.TypeInvoicePaid, notifications.PriorityNormal, "Invoice paid",
				fmt.Sprintf("Invoice %s for %s was paid: %s %s via %s.", inv.Number, inv.ProductName, inv.Amount.StringFixed(2), inv.Currency, t.Provider)),
		)
	}

	m.logger.Info("invoice transition",
		zap.String("invoice", inv.Number),
		zap.String("event", string(t.Event)),
		zap.String("provider", t.Provider),
		zap.String("from", string(out.From)),
		zap.String("to", string(out.To)))
	return out, nil
}

// ignoreAfterCancel records a payment that arrived for a cancelled invoice.
// The money has to be handled by hand, so an admin is told once per
// reference.
func (m *Machine) ignoreAfterCancel(ctx context.Context, tx *ledger.Store, inv *billing.Invoice, t Transition, out *Outcome) (*Outcome, error) {
	if inv.HasTracked(billing.EventIgnored, t.Provider, t.Reference) {
		return out, nil
	}

	inv.Track(billing.TrackingEntry{
		Kind:      billing.EventIgnored,
		Provider:  t.Provider,
		At:        m.now(),
		Reference: t.Reference,
		Note:      "payment received after cancellation",
	})
	if err := tx.SaveInvoiceState(ctx, inv); err != nil {
		return nil, err
	}

	m.logger.Warn("payment for cancelled invoice ignored",
		zap.String("invoice", inv.Number),
		zap.String("provider", t.Provider),
		zap.String("reference", t.Reference))

	out.Applied = true
	out.Notices = append(out.Notices, adminNotice(inv, notifications.TypePaymentAfterCancel, notifications.PriorityHigh,
		"Payment after cancellation",
		fmt.Sprintf("A %s payment (%s) arrived for cancelled invoice %s. No access was granted; review and refund if needed.", t.Provider, t.Reference, inv.Number)))
	return out, nil
}

// grant resolves the purchased course and enrolls the buyer. It runs in a
// savepoint: a failure is reported to admins and never undoes the payment.
func (m *Machine) grant(ctx context.Context, tx *ledger.Store, inv *billing.Invoice, out *Outcome) {
	err := tx.Transaction(ctx, func(sp *ledger.Store) error {
		courseID, err := resolveCourse(ctx, sp, inv)
		if err != nil {
			return err
		}
		out.CourseID = courseID

		created, err := sp.GrantEnrollment(ctx, &enrollments.Enrollment{
			UserID:    inv.UserID,
			CourseID:  courseID,
			InvoiceID: &inv.ID,
			Status:    enrollments.StatusActive,
			GrantedAt: m.now(),
		})
		if err != nil {
			return err
		}
		out.EnrollmentGranted = created
		return nil
	})
	if err == nil {
		return
	}

	out.CourseID = 0
	out.EnrollmentGranted = false
	m.logger.Error("enrollment not granted",
		zap.String("invoice", inv.Number),
		zap.Uint("user_id", inv.UserID),
		zap.Error(err))
	out.Notices = append(out.Notices, adminNotice(inv, notifications.TypeEntitlementUnresolved, notifications.PriorityHigh,
		"Enrollment needs attention",
		fmt.Sprintf("Invoice %s (%s) is paid but no enrollment was granted: %v.", inv.Number, inv.ProductName, err)))
}

// resolveCourse prefers the product's course reference and falls back to an
// exact, case-insensitive match of the product name snapshot.
func resolveCourse(ctx context.Context, tx *ledger.Store, inv *billing.Invoice) (uint, error) {
	product, err := tx.GetProduct(ctx, inv.ProductID)
	switch {
	case err == nil && product.CourseID != nil:
		return *product.CourseID, nil
	case err != nil && !errors.Is(err, errdefs.ErrNotFound):
		return 0, err
	}

	courses, err := tx.CoursesByTitle(ctx, inv.ProductName)
	if err != nil {
		return 0, err
	}
	switch len(courses) {
	case 0:
		return 0, ErrNoCourse
	case 1:
		return courses[0].ID, nil
	default:
		return 0, ErrAmbiguousCourse
	}
}

func buyerNotice(inv *billing.Invoice, typ, title, msg string) notifications.Notice {
	return notifications.Notice{
		Audience:      notifications.AudienceBuyer,
		Type:          typ,
		UserID:        inv.UserID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		Title:         title,
		Message:       msg,
		Priority:      notifications.PriorityNormal,
	}
}

func adminNotice(inv *billing.Invoice, typ string, prio notifications.Priority, title, msg string) notifications.Notice {
	return notifications.Notice{
		Audience:      notifications.AudienceAdmin,
		Type:          typ,
		UserID:        inv.UserID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		Title:         title,
		Message:       msg,
		Priority:      prio,
	}
}

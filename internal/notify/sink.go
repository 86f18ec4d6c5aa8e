// Package notify delivers the notices produced by invoice transitions: an
// in-app record, an email and an event on the bus. Delivery is best-effort.
package notify

import (
	"context"
	"time"

	"course-payments/internal/domain/notifications"
	"course-payments/internal/infra/mail"
	"course-payments/internal/ledger"

	"go.uber.org/zap"
)

type Mailer interface {
	Send(ctx context.Context, m mail.Message) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, message any) error
}

type Config struct {
	AdminEmail string
	Timeout    time.Duration
}

type Sink struct {
	store     *ledger.Store
	mailer    Mailer
	publisher Publisher
	cfg       Config
	logger    *zap.Logger
}

// New builds a sink. publisher may be nil when no bus is configured.
func New(store *ledger.Store, mailer Mailer, publisher Publisher, cfg Config, logger *zap.Logger) *Sink {
	if mailer == nil {
		mailer = mail.Discard{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Sink{store: store, mailer: mailer, publisher: publisher, cfg: cfg, logger: logger}
}

type busEvent struct {
	notifications.Notice
	At time.Time `json:"at"`
}

// Dispatch delivers every notice independently. It outlives the caller's
// cancellation but not its own timeout, and never reports failure.
func (s *Sink) Dispatch(ctx context.Context, notices []notifications.Notice) {
	if len(notices) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	for _, n := range notices {
		s.deliver(ctx, n)
	}
}

func (s *Sink) deliver(ctx context.Context, n notifications.Notice) {
	log := s.logger.With(
		zap.String("notice", n.Type),
		zap.String("audience", string(n.Audience)),
		zap.String("invoice", n.InvoiceNumber))

	if err := s.persist(ctx, n); err != nil {
		log.Error("store notification", zap.Error(err))
	}

	if to := s.recipient(ctx, n, log); to != "" {
		if err := s.mailer.Send(ctx, mail.Message{To: to, Subject: n.Title, Text: n.Message}); err != nil {
			log.Warn("email notification", zap.Error(err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, n.InvoiceNumber, busEvent{Notice: n, At: time.Now().UTC()}); err != nil {
			log.Warn("publish notification", zap.Error(err))
		}
	}
}

func (s *Sink) persist(ctx context.Context, n notifications.Notice) error {
	var invoiceID *uint
	if n.InvoiceID != 0 {
		id := n.InvoiceID
		invoiceID = &id
	}

	if n.Audience == notifications.AudienceBuyer {
		return s.store.CreateUserNotification(ctx, &notifications.UserNotification{
			UserID:    n.UserID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			InvoiceID: invoiceID,
		})
	}

	an := &notifications.AdminNotification{
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Priority:  n.Priority,
		RelatedID: invoiceID,
	}
	if an.Priority == "" {
		an.Priority = notifications.PriorityNormal
	}
	if invoiceID != nil {
		an.RelatedType = "invoice"
	}
	return s.store.CreateAdminNotification(ctx, an)
}

func (s *Sink) recipient(ctx context.Context, n notifications.Notice, log *zap.Logger) string {
	if n.Audience == notifications.AudienceAdmin {
		return s.cfg.AdminEmail
	}
	u, err := s.store.GetUser(ctx, n.UserID)
	if err != nil {
		log.Warn("buyer contact lookup", zap.Uint("user_id", n.UserID), zap.Error(err))
		return ""
	}
	return u.Email
}

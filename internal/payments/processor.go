package payments

import (
	"context"
	"errors"
	"fmt"

	"course-payments/internal/domain/notifications"
	"course-payments/internal/errdefs"
	"course-payments/internal/ledger"

	"go.uber.org/zap"
)

// Processor applies verified gateway events to the ledger.
type Processor struct {
	store   *ledger.Store
	machine *Machine
	sink    Notifier
	logger  *zap.Logger
}

func NewProcessor(store *ledger.Store, machine *Machine, sink Notifier, logger *zap.Logger) *Processor {
	return &Processor{store: store, machine: machine, sink: sink, logger: logger}
}

// HandleGatewayEvent locks the event's invoice, applies the event and, once
// committed, dispatches the resulting notices. A nil outcome means the
// event did not correlate with any invoice; the gateway should still get a
// success answer. A returned error means nothing was written and the
// gateway should retry.
func (p *Processor) HandleGatewayEvent(ctx context.Context, ev *Event) (*Outcome, error) {
	log := p.logger.With(
		zap.String("provider", string(ev.Provider)),
		zap.String("event_type", ev.RawType),
		zap.String("event_id", ev.EventID),
		zap.Uint("invoice_id", ev.InvoiceID))

	if ev.InvoiceID == 0 {
		log.Info("webhook without invoice reference ignored")
		return nil, nil
	}

	note := ev.RawType
	if ev.Reference != "" && ev.Reference != ev.DedupKey() {
		note = fmt.Sprintf("%s %s", ev.RawType, ev.Reference)
	}

	var out *Outcome
	err := p.store.Transaction(ctx, func(tx *ledger.Store) error {
		inv, err := tx.LockInvoice(ctx, ev.InvoiceID)
		if err != nil {
			return err
		}
		out, err = p.machine.Apply(ctx, tx, inv, Transition{
			Event:     ev.Kind,
			Provider:  string(ev.Provider),
			Reference: ev.DedupKey(),
			Session:   ev.Session,
			Note:      note,
		})
		return err
	})

	switch {
	case errors.Is(err, errdefs.ErrNotFound):
		log.Warn("webhook for unknown invoice")
		p.sink.Dispatch(ctx, []notifications.Notice{{
			Audience: notifications.AudienceAdmin,
			Type:     notifications.TypeUnknownInvoice,
			Title:    "Webhook for unknown invoice",
			Message: fmt.Sprintf("%s sent %s (%s) for invoice id %d, which does not exist.",
				ev.Provider, ev.RawType, ev.DedupKey(), ev.InvoiceID),
			Priority: notifications.PriorityHigh,
		}})
		return nil, nil
	case err != nil:
		log.Error("webhook processing failed", zap.Error(err))
		return nil, fmt.Errorf("apply %s event: %w", ev.Provider, err)
	}

	p.sink.Dispatch(ctx, out.Notices)
	return out, nil
}

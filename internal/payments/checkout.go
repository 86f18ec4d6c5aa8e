package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/catalog"
	"course-payments/internal/domain/users"
	"course-payments/internal/errdefs"
	"course-payments/internal/ledger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutConfig struct {
	DefaultCurrency      string
	DueDays              int
	AppURL               string
	TransferInstructions string
}

type CheckoutInput struct {
	UserID     uint
	ProductID  uint
	Currency   string
	Method     string
	SuccessURL string
	CancelURL  string
	// BaseURL is the public address gateways call back to.
	BaseURL string
}

type CheckoutResult struct {
	Invoice      *billing.Invoice `json:"invoice"`
	CheckoutURL  string           `json:"checkout_url,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	Reused       bool             `json:"reused"`
	Instructions string           `json:"instructions,omitempty"`
}

// CheckoutService creates or reuses the open invoice of a buyer for a
// product and opens a gateway session for it.
type CheckoutService struct {
	store    *ledger.Store
	machine  *Machine
	gateways map[billing.Method]Gateway
	cfg      CheckoutConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewCheckoutService(store *ledger.Store, machine *Machine, gateways []Gateway, cfg CheckoutConfig, logger *zap.Logger) *CheckoutService {
	byMethod := make(map[billing.Method]Gateway, len(gateways))
	for _, g := range gateways {
		byMethod[g.Method()] = g
	}
	if cfg.DueDays <= 0 {
		cfg.DueDays = 7
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "EUR"
	}
	return &CheckoutService{
		store:    store,
		machine:  machine,
		gateways: byMethod,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.UserID == 0 {
		return nil, errdefs.ErrUnauthenticated
	}
	if in.ProductID == 0 {
		return nil, errdefs.Validation("product_id is required")
	}

	currency := catalog.NormalizeCurrency(in.Currency)
	if currency == "" {
		currency = catalog.NormalizeCurrency(s.cfg.DefaultCurrency)
	}
	if len(currency) != 3 {
		return nil, errdefs.Validation("currency must be a 3-letter ISO code")
	}

	method := billing.MethodStripe
	if in.Method != "" {
		m, ok := billing.ParseMethod(in.Method)
		if !ok {
			return nil, errdefs.Validation("unknown payment method %q", in.Method)
		}
		method = m
	}
	gateway := s.gateways[method]
	if method.IsGateway() && gateway == nil {
		return nil, errdefs.Validation("payment method %s is not available", method)
	}

	for _, raw := range []string{in.SuccessURL, in.CancelURL} {
		if raw != "" && !isAbsoluteHTTP(raw) {
			return nil, errdefs.Validation("redirect url %q must be an absolute http(s) url", raw)
		}
	}

	var (
		inv    *billing.Invoice
		buyer  *users.User
		reused bool
	)
	err := s.store.Transaction(ctx, func(tx *ledger.Store) error {
		var err error
		// Concurrent checkouts of one buyer queue here, so at most one open
		// invoice per product is ever created.
		buyer, err = tx.LockUser(ctx, in.UserID)
		if err != nil {
			if errors.Is(err, errdefs.ErrNotFound) {
				return errdefs.ErrUnauthenticated
			}
			return err
		}

		product, err := tx.GetProduct(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, errdefs.ErrNotFound) {
				return errdefs.Validation("unknown product %d", in.ProductID)
			}
			return err
		}
		if !product.Active {
			return errdefs.Validation("product %d is not for sale", in.ProductID)
		}

		inv, err = tx.FindOpenInvoice(ctx, buyer.ID, product.ID)
		switch {
		case err == nil:
			reused = true
			return nil
		case !errors.Is(err, errdefs.ErrNotFound):
			return err
		}

		price, err := tx.ProductPrice(ctx, product.ID, currency)
		if err != nil {
			if errors.Is(err, errdefs.ErrNotFound) {
				return errdefs.Validation("product %d is not sold in %s", product.ID, currency)
			}
			return err
		}
		if !price.Amount.IsPositive() {
			return errdefs.Validation("product %d has no valid price", product.ID)
		}

		now := s.now()
		inv = &billing.Invoice{
			UserID:      buyer.ID,
			ProductID:   product.ID,
			Number:      newInvoiceNumber(now),
			ProductName: product.Name,
			Currency:    currency,
			Amount:      price.Amount,
			Method:      method,
			Status:      billing.StatusUnpaid,
			DueDate:     now.AddDate(0, 0, s.cfg.DueDays),
		}
		inv.Track(billing.TrackingEntry{Kind: billing.EventCreated, Provider: string(method), At: now})
		return tx.CreateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("invoice", inv.Number), zap.String("method", string(method)), zap.Bool("reused", reused))
	res := &CheckoutResult{Invoice: inv, Reused: reused}

	if !method.IsGateway() {
		log.Info("manual checkout")
		res.Instructions = s.cfg.TransferInstructions
		return res, nil
	}

	session, gwErr := gateway.CreateCheckout(ctx, CheckoutRequest{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		UserID:        buyer.ID,
		Amount:        inv.Amount,
		Currency:      inv.Currency,
		Description:   fmt.Sprintf("%s (invoice %s)", inv.ProductName, inv.Number),
		BuyerEmail:    buyer.Email,
		BuyerName:     buyer.FullName(),
		SuccessURL:    s.redirectURL(in.SuccessURL, "success", inv.Number),
		CancelURL:     s.redirectURL(in.CancelURL, "cancel", inv.Number),
		CallbackURL:   strings.TrimRight(in.BaseURL, "/") + "/webhooks/" + string(method),
	})
	if gwErr != nil {
		log.Error("gateway checkout failed", zap.Error(gwErr))
		if _, err := s.track(ctx, inv.ID, Transition{
			Event:    billing.EventCheckoutFailed,
			Provider: string(method),
			Note:     truncate(gwErr.Error(), 200),
		}); err != nil {
			log.Error("record checkout failure", zap.Error(err))
		}

		var perr *errdefs.ProviderError
		if !errors.As(gwErr, &perr) {
			gwErr = &errdefs.ProviderError{Provider: string(method), Err: gwErr}
		}
		return nil, fmt.Errorf("create %s checkout for invoice %s: %w", method, inv.Number, gwErr)
	}

	updated, err := s.track(ctx, inv.ID, Transition{
		Event:     billing.EventCheckoutStarted,
		Provider:  string(method),
		Reference: session.ID,
	})
	if err != nil {
		// The session exists; the buyer can still pay.
		log.Error("record checkout session", zap.Error(err))
	} else {
		res.Invoice = updated
	}

	log.Info("checkout session created", zap.String("session_id", session.ID))
	res.CheckoutURL = session.URL
	res.SessionID = session.ID
	return res, nil
}

func (s *CheckoutService) track(ctx context.Context, invoiceID uint, t Transition) (*billing.Invoice, error) {
	var inv *billing.Invoice
	err := s.store.Transaction(ctx, func(tx *ledger.Store) error {
		locked, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		out, err := s.machine.Apply(ctx, tx, locked, t)
		if err != nil {
			return err
		}
		inv = out.Invoice
		return nil
	})
	return inv, err
}

func (s *CheckoutService) redirectURL(explicit, outcome, number string) string {
	if explicit != "" {
		return explicit
	}
	return fmt.Sprintf("%s/checkout/%s?invoice=%s", strings.TrimRight(s.cfg.AppURL, "/"), outcome, url.QueryEscape(number))
}

// newInvoiceNumber returns INV-YYYYMMDD-XXXXXXXX.
func newInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), suffix)
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

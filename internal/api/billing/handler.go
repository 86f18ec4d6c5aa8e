package billing

import (
	"net/http"
	"strings"

	"course-payments/internal/api/apierr"
	"course-payments/internal/app/http/middleware"
	"course-payments/internal/domain/billing"
	"course-payments/internal/errdefs"
	"course-payments/internal/ledger"
	"course-payments/internal/payments"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	checkout      *payments.CheckoutService
	proofs        *payments.ProofService
	store         *ledger.Store
	publicBaseURL string
	maxProofBytes int64
	logger        *zap.Logger
}

func New(checkout *payments.CheckoutService, proofs *payments.ProofService, store *ledger.Store, publicBaseURL string, maxProofBytes int64, logger *zap.Logger) *Handler {
	return &Handler{
		checkout:      checkout,
		proofs:        proofs,
		store:         store,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxProofBytes: maxProofBytes,
		logger:        logger,
	}
}

type checkoutRequest struct {
	ProductID  uint   `json:"product_id"`
	Currency   string `json:"currency"`
	Method     string `json:"method"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// Checkout handles POST /checkout. A reused open invoice answers 200,
// a new one 201.
func (h *Handler) Checkout(c *gin.Context) {
	var body checkoutRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.ProductID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid product_id"})
		return
	}

	res, err := h.checkout.Checkout(c.Request.Context(), payments.CheckoutInput{
		UserID:     middleware.Actor(c).UserID,
		ProductID:  body.ProductID,
		Currency:   body.Currency,
		Method:     body.Method,
		SuccessURL: body.SuccessURL,
		CancelURL:  body.CancelURL,
		BaseURL:    h.baseURL(c),
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) ListInvoices(c *gin.Context) {
	list, err := h.store.ListInvoicesByUser(c.Request.Context(), middleware.Actor(c).UserID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if list == nil {
		list = []billing.Invoice{}
	}
	c.JSON(http.StatusOK, list)
}

type invoiceDetail struct {
	*billing.Invoice
	Proofs []billing.PaymentProof `json:"proofs"`
}

func (h *Handler) GetInvoice(c *gin.Context) {
	id, ok := apierr.ParamID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	inv, err := h.store.GetInvoice(ctx, id)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	// someone else's invoice is reported as missing
	if inv.UserID != middleware.Actor(c).UserID {
		apierr.Respond(c, errdefs.NotFound("invoice"))
		return
	}
	proofs, err := h.store.ListProofs(ctx, inv.ID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if proofs == nil {
		proofs = []billing.PaymentProof{}
	}
	c.JSON(http.StatusOK, invoiceDetail{Invoice: inv, Proofs: proofs})
}

func (h *Handler) baseURL(c *gin.Context) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

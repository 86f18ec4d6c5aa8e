package admin

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"course-payments/internal/api/apierr"
	"course-payments/internal/app/http/middleware"
	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/notifications"
	"course-payments/internal/errdefs"
	"course-payments/internal/ledger"
	"course-payments/internal/payments"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store  *ledger.Store
	proofs *payments.ProofService
}

func New(store *ledger.Store, proofs *payments.ProofService) *Handler {
	return &Handler{store: store, proofs: proofs}
}

type InvoiceDetail struct {
	*billing.Invoice
	Proofs []billing.PaymentProof `json:"proofs"`
}

// ListInvoices handles GET /admin/invoices?status=&user_id=&limit=&offset=.
func (h *Handler) ListInvoices(c *gin.Context) {
	f := ledger.InvoiceFilter{}
	if s := c.Query("status"); s != "" {
		f.Status = billing.Status(s)
		if !f.Status.Valid() {
			apierr.Respond(c, errdefs.Validation("unknown status %q", s))
			return
		}
	}
	f.UserID = uint(queryInt(c, "user_id"))
	f.Limit = queryInt(c, "limit")
	f.Offset = queryInt(c, "offset")

	list, err := h.store.ListInvoices(c.Request.Context(), f)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if list == nil {
		list = []billing.Invoice{}
	}
	c.JSON(http.StatusOK, list)
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
	proofs, err := h.store.ListProofs(ctx, id)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if proofs == nil {
		proofs = []billing.PaymentProof{}
	}
	c.JSON(http.StatusOK, InvoiceDetail{Invoice: inv, Proofs: proofs})
}

// PendingProofs is the review queue, oldest first.
func (h *Handler) PendingProofs(c *gin.Context) {
	list, err := h.store.ListPendingProofs(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if list == nil {
		list = []billing.PaymentProof{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) ApproveProof(c *gin.Context) {
	id, ok := apierr.ParamID(c, "id")
	if !ok {
		return
	}
	res, err := h.proofs.Approve(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RejectProof(c *gin.Context) {
	id, ok := apierr.ParamID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	// The reason is optional, so an empty body is fine.
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
		return
	}
	res, err := h.proofs.Reject(c.Request.Context(), middleware.Actor(c), id, body.Reason)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListNotifications handles GET /admin/notifications?unread=1&limit=.
func (h *Handler) ListNotifications(c *gin.Context) {
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	list, err := h.store.ListAdminNotifications(c.Request.Context(), unread, queryInt(c, "limit"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if list == nil {
		list = []notifications.AdminNotification{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := apierr.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.store.MarkAdminNotificationRead(c.Request.Context(), id); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

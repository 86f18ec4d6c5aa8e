package users

import (
	"net/http"

	"course-payments/internal/api/apierr"
	"course-payments/internal/app/http/middleware"
	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/enrollments"
	"course-payments/internal/domain/notifications"
	"course-payments/internal/errdefs"
	"course-payments/internal/ledger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store *ledger.Store
}

func New(store *ledger.Store) *Handler { return &Handler{store: store} }

// GetCurrentUser returns the caller with what the payment pipeline knows
// about them: granted courses, unsettled invoices and notifications.
func (h *Handler) GetCurrentUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.store.GetUser(ctx, middleware.Actor(c).UserID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	granted, err := h.store.ListEnrollmentsByUser(ctx, user.ID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	invoices, err := h.store.ListInvoicesByUser(ctx, user.ID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	notes, err := h.store.ListUserNotifications(ctx, user.ID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	resp := MeResponse{
		User: UserDTO{
			ID:       user.ID,
			Email:    user.Email,
			Name:     user.Name,
			Lastname: user.Lastname,
			Role:     user.Role,
		},
		Enrollments: granted,
		Open:        []billing.Invoice{},
		Notices:     notes,
	}
	if resp.Enrollments == nil {
		resp.Enrollments = []enrollments.Enrollment{}
	}
	if resp.Notices == nil {
		resp.Notices = []notifications.UserNotification{}
	}
	for _, inv := range invoices {
		if inv.Status.IsOpen() {
			resp.Open = append(resp.Open, inv)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ListNotifications handles GET /notifications.
func (h *Handler) ListNotifications(c *gin.Context) {
	userID := middleware.Actor(c).UserID
	if userID == 0 {
		apierr.Respond(c, errdefs.ErrUnauthenticated)
		return
	}
	notes, err := h.store.ListUserNotifications(c.Request.Context(), userID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if notes == nil {
		notes = []notifications.UserNotification{}
	}
	c.JSON(http.StatusOK, notes)
}

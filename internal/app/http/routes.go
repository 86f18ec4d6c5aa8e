package routes

import (
	adminapi "course-payments/internal/api/admin"
	billingapi "course-payments/internal/api/billing"
	usersapi "course-payments/internal/api/users"
	"course-payments/internal/api/webhooks"
	"course-payments/internal/app/http/middleware"
	"course-payments/internal/domain/users"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	JWTSecret string
	Webhooks  *webhooks.Handler
	Billing   *billingapi.Handler
	Admin     *adminapi.Handler
	Users     *usersapi.Handler
	ProofFile gin.HandlerFunc
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// gateways sign the raw body, so no sanitizing here
	r.POST("/webhooks/:provider", d.Webhooks.Receive)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware([]byte(d.JWTSecret)))
	auth.GET("/me", d.Users.GetCurrentUser)
	auth.GET("/notifications", d.Users.ListNotifications)

	auth.POST("/checkout", middleware.SanitizeAndCleanInputMiddleware("success_url", "cancel_url"), d.Billing.Checkout)
	auth.GET("/invoices", d.Billing.ListInvoices)
	auth.GET("/invoices/:id", d.Billing.GetInvoice)
	auth.POST("/invoices/:id/proofs", d.Billing.UploadProof)
	auth.GET("/proofs/:id/file", d.ProofFile)

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware([]byte(d.JWTSecret)), middleware.RequireRole(users.RoleAdmin))
	admin.GET("/invoices", d.Admin.ListInvoices)
	admin.GET("/invoices/:id", d.Admin.GetInvoice)
	admin.GET("/proofs/pending", d.Admin.PendingProofs)
	admin.GET("/proofs/:id/file", d.ProofFile)
	admin.POST("/proofs/:id/approve", d.Admin.ApproveProof)
	admin.POST("/proofs/:id/reject", d.Admin.RejectProof)
	admin.GET("/notifications", d.Admin.ListNotifications)
	admin.POST("/notifications/:id/read", d.Admin.MarkNotificationRead)
}

package users

import (
	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/enrollments"
	"course-payments/internal/domain/notifications"
)

type MeResponse struct {
	User        UserDTO                          `json:"user"`
	Enrollments []enrollments.Enrollment         `json:"enrollments"`
	Open        []billing.Invoice                `json:"open_invoices"`
	Notices     []notifications.UserNotification `json:"notifications"`
}

/* ---------- USER ---------- */

type UserDTO struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Role     string `json:"role"`
}

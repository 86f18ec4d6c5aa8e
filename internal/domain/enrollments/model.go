package enrollments

import "time"

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Enrollment grants a user access to a course. One row per (user, course).
type Enrollment struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_enrollments_user_course,priority:1" json:"user_id"`
	CourseID  uint   `gorm:"not null;uniqueIndex:idx_enrollments_user_course,priority:2" json:"course_id"`
	InvoiceID *uint  `gorm:"index" json:"invoice_id,omitempty"`
	Status    Status `gorm:"type:varchar(20);not null;default:'active'" json:"status"`

	GrantedAt time.Time `json:"granted_at"`
	CreatedAt time.Time `json:"created_at"`
}

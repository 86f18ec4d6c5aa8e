package notifications

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type AdminNotification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Type        string    `gorm:"type:varchar(50);not null;index" json:"type"`
	Title       string    `gorm:"not null" json:"title"`
	Message     string    `gorm:"type:text" json:"message"`
	Priority    Priority  `gorm:"type:varchar(10);not null;default:'normal'" json:"priority"`
	RelatedType string    `gorm:"type:varchar(30)" json:"related_type,omitempty"`
	RelatedID   *uint     `json:"related_id,omitempty"`
	Read        bool      `gorm:"not null;default:false;index" json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserNotification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Type      string    `gorm:"type:varchar(50);not null" json:"type"`
	Title     string    `gorm:"not null" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	InvoiceID *uint     `json:"invoice_id,omitempty"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

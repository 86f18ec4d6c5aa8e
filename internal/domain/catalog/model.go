package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null;index" json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is anything that can be bought. Course-backed products carry a
// CourseID; older products only share their name with a course title.
type Product struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Name     string  `gorm:"not null" json:"name"`
	CourseID *uint   `gorm:"index" json:"course_id,omitempty"`
	Course   *Course `json:"-"`
	Active   bool    `gorm:"not null;default:true" json:"active"`

	Prices []ProductPrice `gorm:"constraint:OnDelete:CASCADE;" json:"prices,omitempty"`
}

type ProductPrice struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	ProductID uint            `gorm:"not null;uniqueIndex:idx_product_prices_currency,priority:1" json:"-"`
	Currency  string          `gorm:"type:varchar(3);not null;uniqueIndex:idx_product_prices_currency,priority:2" json:"currency"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
}

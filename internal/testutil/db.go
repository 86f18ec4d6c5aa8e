// Package testutil builds throwaway ledgers for package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"course-payments/database"
	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/catalog"
	"course-payments/internal/domain/users"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated sqlite database in the test's temp dir. A single
// connection keeps concurrent transactions serialized the way row locks
// serialize them on Postgres.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ledger.db") + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func SeedUser(t *testing.T, db *gorm.DB, email, role string) *users.User {
	t.Helper()
	u := &users.User{Name: "Test", Lastname: "User", Email: email, Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}

func SeedCourse(t *testing.T, db *gorm.DB, title string) *catalog.Course {
	t.Helper()
	c := &catalog.Course{Title: title}
	require.NoError(t, db.Create(c).Error)
	return c
}

// SeedProduct creates an active product priced in EUR. courseID may be nil
// for products that only share a name with a course.
func SeedProduct(t *testing.T, db *gorm.DB, name string, courseID *uint, eur string) *catalog.Product {
	t.Helper()
	p := &catalog.Product{
		Name:     name,
		CourseID: courseID,
		Active:   true,
		Prices:   []catalog.ProductPrice{{Currency: "EUR", Amount: decimal.RequireFromString(eur)}},
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// SeedInvoice stores an invoice in the given status. Paid invoices get a
// paid timestamp so the row passes validation.
func SeedInvoice(t *testing.T, db *gorm.DB, user *users.User, product *catalog.Product, method billing.Method, status billing.Status) *billing.Invoice {
	t.Helper()
	now := time.Now().UTC()
	inv := &billing.Invoice{
		UserID:      user.ID,
		ProductID:   product.ID,
		Number:      fmt.Sprintf("INV-TEST-%d-%d", product.ID, now.UnixNano()),
		ProductName: product.Name,
		Currency:    "EUR",
		Amount:      decimal.RequireFromString("49.00"),
		Method:      method,
		Status:      status,
		DueDate:     now.AddDate(0, 0, 7),
	}
	if status == billing.StatusPaid {
		inv.PaidAt = &now
	}
	inv.Track(billing.TrackingEntry{Kind: billing.EventCreated, Provider: string(method), At: now})
	require.NoError(t, db.WithContext(context.Background()).Create(inv).Error)
	return inv
}

func Ptr[T any](v T) *T { return &v }

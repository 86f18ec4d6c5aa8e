package database

import (
	"fmt"

	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/catalog"
	"course-payments/internal/domain/enrollments"
	"course-payments/internal/domain/notifications"
	"course-payments/internal/domain/users"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to Postgres and migrates the ledger schema.
func Open(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DB_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := setup(db, logger); err != nil {
		return nil, err
	}
	return db, nil
}

// setup prepares a fresh connection. It only needs the privileges to create
// tables, so managed roles without extension rights work too.
func setup(db *gorm.DB, logger *zap.Logger) error {
	if err := Migrate(db); err != nil {
		return err
	}
	logger.Info("connected and migrated database")
	return nil
}

// Migrate creates or updates every table the payment pipeline owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// directory and catalog
		&users.User{},
		&catalog.Course{},
		&catalog.Product{},
		&catalog.ProductPrice{},

		// ledger
		&billing.Invoice{},
		&billing.PaymentProof{},
		&enrollments.Enrollment{},

		// notifications
		&notifications.AdminNotification{},
		&notifications.UserNotification{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Package ledger is the durable store behind the payment pipeline. Every
// component reads and writes invoices, proofs, enrollments and notifications
// through a Store.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"course-payments/internal/errdefs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a Store bound to one database transaction.
// Calling it on a Store that is already inside a transaction opens a
// savepoint, so a failing fn only rolls back its own writes.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// forUpdate serializes writers on the selected rows until the surrounding
// transaction ends. Dialects without row locks ignore the clause.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errdefs.NotFound(what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrInvalidQuantity is returned when a ledger mutation asks for a
	// non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrInsufficientRemaining is returned when a reserve would push consumption
	// past the line item's original quantity, or a release would take a counter
	// below zero.
	ErrInsufficientRemaining = errors.New("insufficient remaining quantity")
	// ErrDuplicateKey is returned when a unique constraint rejects an insert.
	ErrDuplicateKey = errors.New("duplicate key")
)

// IsNotFound reports whether err is gorm's missing-row sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueViolation recognizes a Postgres 23505 through either the raw pgconn
// error or gorm's translated sentinel.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// conn picks the caller's transaction when one is open.
func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

// ErrNotOpen is returned when a status transition finds the document already closed.
var ErrNotOpen = errors.New("document is not open")

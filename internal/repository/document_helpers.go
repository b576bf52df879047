package repository

import (
	"context"
	"time"

	"fulfillment/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentFilter narrows PO, order and delivery listings.
type DocumentFilter struct {
	CustomerID *uuid.UUID
	Status     model.DocumentStatus
	Page       int
	Limit      int
}

func (f DocumentFilter) apply(q *gorm.DB) *gorm.DB {
	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// markClosed flips OPEN -> CLOSED with a guarded update so two concurrent
// closers cannot both succeed.
func markClosed(ctx context.Context, db *gorm.DB, table string, id uuid.UUID, closedBy string, at time.Time) error {
	res := db.WithContext(ctx).Table(table).
		Where("id = ? AND status = ?", id, model.StatusOpen).
		Updates(map[string]interface{}{
			"status":     model.StatusClosed,
			"closed_at":  at,
			"closed_by":  closedBy,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.WithContext(ctx).Table(table).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
		return ErrNotOpen
	}
	return nil
}

func lockForUpdate() clause.Locking { return clause.Locking{Strength: "UPDATE"} }

func lineItemsByCreation(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }

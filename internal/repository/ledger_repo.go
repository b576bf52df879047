package repository

import (
	"context"
	"fmt"

	"fulfillment/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerRepository owns every mutation of the ordered, delivered and waived
// counters. Each accepted mutation writes one journal row keyed by its
// idempotency key; a replayed key returns the current snapshot without
// touching the counter again. A key replayed for a different line, counter
// or delta fails with ErrDuplicateKey.
type LedgerRepository interface {
	Reserve(ctx context.Context, tx *gorm.DB, m model.LedgerMutation) (model.Ledger, error)
	Release(ctx context.Context, tx *gorm.DB, m model.LedgerMutation) (model.Ledger, error)
	Get(ctx context.Context, tx *gorm.DB, lineItemID uuid.UUID, kind model.LineItemType) (model.Ledger, error)
	Entries(ctx context.Context, lineItemIDs []uuid.UUID) ([]model.LedgerEntry, error)
}

type ledgerRepo struct{ db *gorm.DB }

func NewLedgerRepository(db *gorm.DB) LedgerRepository { return &ledgerRepo{db: db} }

// counterColumn maps a counter to its owning table and column.
func counterColumn(c model.LedgerCounter) (table, column string) {
	switch c {
	case model.CounterDelivered:
		return "order_line_items", "delivered_quantity"
	case model.CounterWaived:
		return "po_line_items", "waived_quantity"
	default:
		return "po_line_items", "ordered_quantity"
	}
}

func (r *ledgerRepo) Reserve(ctx context.Context, tx *gorm.DB, m model.LedgerMutation) (model.Ledger, error) {
	return r.apply(ctx, tx, m, 1)
}

func (r *ledgerRepo) Release(ctx context.Context, tx *gorm.DB, m model.LedgerMutation) (model.Ledger, error) {
	return r.apply(ctx, tx, m, -1)
}

func (r *ledgerRepo) apply(ctx context.Context, tx *gorm.DB, m model.LedgerMutation, sign int) (model.Ledger, error) {
	if m.Quantity <= 0 {
		return model.Ledger{}, ErrInvalidQuantity
	}
	if !m.Counter.Valid() {
		return model.Ledger{}, fmt.Errorf("unknown ledger counter %q", m.Counter)
	}
	kind := m.Counter.LineItemType()
	db := conn(r.db, tx).WithContext(ctx)

	var prior []model.LedgerEntry
	if err := db.Where("idempotency_key = ?", m.IdempotencyKey).Limit(1).Find(&prior).Error; err != nil {
		return model.Ledger{}, err
	}
	if len(prior) > 0 {
		if !prior[0].Matches(m, sign) {
			return model.Ledger{}, ErrDuplicateKey
		}
		return r.Get(ctx, tx, m.LineItemID, kind)
	}

	table, column := counterColumn(m.Counter)
	var guard string
	switch {
	case sign < 0:
		guard = column + " >= ?"
	case kind == model.LineItemOrder:
		guard = "quantity - delivered_quantity >= ?"
	default:
		guard = "original_quantity - ordered_quantity - waived_quantity >= ?"
	}

	res := db.Table(table).
		Where("id = ?", m.LineItemID).
		Where(guard, m.Quantity).
		Update(column, gorm.Expr(column+" + ?", sign*m.Quantity))
	if res.Error != nil {
		return model.Ledger{}, res.Error
	}
	if res.RowsAffected == 0 {
		// Either the row is gone or the guard rejected the delta.
		if _, err := r.Get(ctx, tx, m.LineItemID, kind); err != nil {
			return model.Ledger{}, err
		}
		return model.Ledger{}, ErrInsufficientRemaining
	}

	entry := model.LedgerEntry{
		ID:             uuid.New(),
		LineItemID:     m.LineItemID,
		LineItemType:   kind,
		Counter:        m.Counter,
		Delta:          sign * m.Quantity,
		IdempotencyKey: m.IdempotencyKey,
		Reason:         m.Reason,
		Actor:          m.Actor,
	}
	if err := db.Create(&entry).Error; err != nil {
		if isUniqueViolation(err) {
			return model.Ledger{}, ErrDuplicateKey
		}
		return model.Ledger{}, err
	}
	return r.Get(ctx, tx, m.LineItemID, kind)
}

func (r *ledgerRepo) Get(ctx context.Context, tx *gorm.DB, lineItemID uuid.UUID, kind model.LineItemType) (model.Ledger, error) {
	db := conn(r.db, tx).WithContext(ctx)
	if kind == model.LineItemOrder {
		var li model.OrderLineItem
		if err := db.First(&li, "id = ?", lineItemID).Error; err != nil {
			return model.Ledger{}, err
		}
		return li.Ledger(), nil
	}
	var li model.POLineItem
	if err := db.First(&li, "id = ?", lineItemID).Error; err != nil {
		return model.Ledger{}, err
	}
	return li.Ledger(), nil
}

func (r *ledgerRepo) Entries(ctx context.Context, lineItemIDs []uuid.UUID) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	if len(lineItemIDs) == 0 {
		return entries, nil
	}
	err := r.db.WithContext(ctx).
		Where("line_item_id IN ?", lineItemIDs).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}


package model

import (
	"time"

	"github.com/google/uuid"
)

// LedgerCounter names one of the per-line-item consumption counters.
type LedgerCounter string

const (
	CounterOrdered   LedgerCounter = "ordered"
	CounterDelivered LedgerCounter = "delivered"
	CounterWaived    LedgerCounter = "waived"
)

// LineItemType identifies which line item table owns a ledger.
type LineItemType string

const (
	LineItemPO    LineItemType = "po_line_item"
	LineItemOrder LineItemType = "order_line_item"
)

// LineItemType returns the owner of the counter: ordered and waived live on
// PO line items, delivered lives on Order line items.
func (c LedgerCounter) LineItemType() LineItemType {
	if c == CounterDelivered {
		return LineItemOrder
	}
	return LineItemPO
}

func (c LedgerCounter) Valid() bool {
	switch c {
	case CounterOrdered, CounterDelivered, CounterWaived:
		return true
	}
	return false
}

// QuantityLedger is the capability shared by line items that carry aggregate
// quantity counters. Delivery line items are unit serials and do not implement it.
type QuantityLedger interface {
	LedgerLineID() uuid.UUID
	LedgerItemID() uuid.UUID
	Original() int
	Consumed() int
	Remaining() int
}

// Ledger is a point-in-time snapshot of one line item's counters.
type Ledger struct {
	LineItemID   uuid.UUID
	LineItemType LineItemType
	ItemID       uuid.UUID
	Original     int
	Ordered      int
	Delivered    int
	Waived       int
}

// RemainingQuantity is original minus every form of consumption recorded
// against the line item.
func (l Ledger) RemainingQuantity() int {
	if l.LineItemType == LineItemOrder {
		return l.Original - l.Delivered
	}
	return l.Original - l.Ordered - l.Waived
}

// LedgerEntry is one row of the append-only journal behind the counters.
// Reserve writes a positive delta, Release a negative one.
type LedgerEntry struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LineItemID     uuid.UUID     `gorm:"type:uuid;not null;index"`
	LineItemType   LineItemType  `gorm:"type:varchar(20);not null"`
	Counter        LedgerCounter `gorm:"type:varchar(10);not null"`
	Delta          int           `gorm:"not null"`
	IdempotencyKey string        `gorm:"uniqueIndex;not null"`
	Reason         *string
	Actor          string `gorm:"not null;default:''"`
	CreatedAt      time.Time
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// Matches reports whether the entry records m applied with the given sign.
func (e LedgerEntry) Matches(m LedgerMutation, sign int) bool {
	return e.LineItemID == m.LineItemID && e.Counter == m.Counter && e.Delta == sign*m.Quantity
}

// LedgerMutation is the input to Reserve and Release.
type LedgerMutation struct {
	LineItemID     uuid.UUID
	Counter        LedgerCounter
	Quantity       int
	IdempotencyKey string
	Reason         *string
	Actor          string
}

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a customer order. Its line items either draw from a PO line item
// (allocated) or carry an explicit caller price (ad-hoc).
type Order struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CustomerID uuid.UUID      `gorm:"type:uuid;not null;index"`
	Status     DocumentStatus `gorm:"type:varchar(10);not null;default:'OPEN';index"`
	// IdempotencyKey deduplicates retried create requests.
	IdempotencyKey *string `gorm:"uniqueIndex"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
	ClosedBy       *string

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID"`
}

// OrderLineItem owns the delivered counter.
// Invariant: DeliveredQuantity <= Quantity.
type OrderLineItem struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID  uuid.UUID `gorm:"type:uuid;not null;index"`
	ItemID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity int       `gorm:"not null"`
	// PricePerUnit is frozen from the PO line item at allocation time.
	PricePerUnit      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	POLineItemID      *uuid.UUID      `gorm:"column:po_line_item_id;type:uuid;index"`
	DeliveredQuantity int             `gorm:"not null;default:0"`
	// RequestKey marks lines appended by a keyed request so a retry is
	// recognised before any row is inserted twice.
	RequestKey *string `gorm:"index"`
	CreatedAt  time.Time

	Item       *Item       `gorm:"foreignKey:ItemID"`
	POLineItem *POLineItem `gorm:"foreignKey:POLineItemID"`
	Order      *Order      `gorm:"foreignKey:OrderID"`
}

func (OrderLineItem) TableName() string { return "order_line_items" }

// IsAllocated reports whether the line draws from a PO line item.
func (li OrderLineItem) IsAllocated() bool { return li.POLineItemID != nil }

func (li OrderLineItem) LedgerLineID() uuid.UUID { return li.ID }
func (li OrderLineItem) LedgerItemID() uuid.UUID { return li.ItemID }
func (li OrderLineItem) Original() int           { return li.Quantity }
func (li OrderLineItem) Consumed() int           { return li.DeliveredQuantity }
func (li OrderLineItem) Remaining() int          { return li.Quantity - li.DeliveredQuantity }

func (li OrderLineItem) Ledger() Ledger {
	return Ledger{
		LineItemID:   li.ID,
		LineItemType: LineItemOrder,
		ItemID:       li.ItemID,
		Original:     li.Quantity,
		Delivered:    li.DeliveredQuantity,
	}
}

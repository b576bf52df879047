package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrder is a customer's standing commitment that orders draw from.
type PurchaseOrder struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CustomerID uuid.UUID      `gorm:"type:uuid;not null;index"`
	Status     DocumentStatus `gorm:"type:varchar(10);not null;default:'OPEN';index"`
	// StartDate drives oldest-first allocation; POs without one sort last.
	StartDate *time.Time `gorm:"type:date"`
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
	ClosedBy  *string

	LineItems []POLineItem `gorm:"foreignKey:PurchaseOrderID"`
}

// POLineItem owns the ordered and waived counters.
// Invariant: OrderedQuantity + WaivedQuantity <= OriginalQuantity.
type POLineItem struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PurchaseOrderID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	OriginalQuantity int             `gorm:"not null"`
	PricePerUnit     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OrderedQuantity  int             `gorm:"not null;default:0"`
	WaivedQuantity   int             `gorm:"not null;default:0"`
	CreatedAt        time.Time

	Item          *Item          `gorm:"foreignKey:ItemID"`
	PurchaseOrder *PurchaseOrder `gorm:"foreignKey:PurchaseOrderID"`
}

func (POLineItem) TableName() string { return "po_line_items" }

func (li POLineItem) LedgerLineID() uuid.UUID { return li.ID }
func (li POLineItem) LedgerItemID() uuid.UUID { return li.ItemID }
func (li POLineItem) Original() int           { return li.OriginalQuantity }
func (li POLineItem) Consumed() int           { return li.OrderedQuantity + li.WaivedQuantity }
func (li POLineItem) Remaining() int {
	return li.OriginalQuantity - li.OrderedQuantity - li.WaivedQuantity
}

// Ledger returns the counter snapshot carried by the row.
func (li POLineItem) Ledger() Ledger {
	return Ledger{
		LineItemID:   li.ID,
		LineItemType: LineItemPO,
		ItemID:       li.ItemID,
		Original:     li.OriginalQuantity,
		Ordered:      li.OrderedQuantity,
		Waived:       li.WaivedQuantity,
	}
}

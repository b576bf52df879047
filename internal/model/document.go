package model

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the lifecycle state shared by purchase orders, orders and
// deliveries. The only legal transition is OPEN -> CLOSED; CLOSED is terminal.
type DocumentStatus string

const (
	StatusOpen   DocumentStatus = "OPEN"
	StatusClosed DocumentStatus = "CLOSED"
)

// CanTransitionTo reports whether the state machine allows s -> next.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	return s == StatusOpen && next == StatusClosed
}

func (s DocumentStatus) IsOpen() bool { return s == StatusOpen }

// DocumentType names the three document kinds that share the state machine.
type DocumentType string

const (
	DocumentPurchaseOrder DocumentType = "purchase_order"
	DocumentOrder         DocumentType = "order"
	DocumentDelivery      DocumentType = "delivery"
)

// DocumentClosure is the audit record written on every OPEN -> CLOSED
// transition. Rows are never updated or deleted.
type DocumentClosure struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentType   DocumentType `gorm:"type:varchar(20);not null;index:idx_closure_document"`
	DocumentID     uuid.UUID    `gorm:"type:uuid;not null;index:idx_closure_document"`
	ClosedBy       string       `gorm:"not null"`
	AdminOverride  bool         `gorm:"not null;default:false"`
	OverrideReason *string
	// Unfulfilled is a JSON snapshot of the line items that still had
	// remaining quantity when an override close was accepted.
	Unfulfilled string `gorm:"type:text;not null;default:'[]'"`
	ClosedAt    time.Time
}

func (DocumentClosure) TableName() string { return "document_closures" }

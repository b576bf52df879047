package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Delivery ships serialized units to a customer.
type Delivery struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CustomerID     uuid.UUID      `gorm:"type:uuid;not null;index"`
	Status         DocumentStatus `gorm:"type:varchar(10);not null;default:'OPEN';index"`
	ShipDate       time.Time      `gorm:"type:date;not null"`
	IdempotencyKey *string        `gorm:"uniqueIndex"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
	ClosedBy       *string

	LineItems []DeliveryLineItem `gorm:"foreignKey:DeliveryID"`
}

// DeliveryLineItem is one physical unit. SerialNumber is unique across every
// delivery ever created, not just within its own delivery.
type DeliveryLineItem struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DeliveryID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemID          uuid.UUID       `gorm:"type:uuid;not null"`
	SerialNumber    string          `gorm:"uniqueIndex;not null"`
	PricePerUnit    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OrderLineItemID *uuid.UUID      `gorm:"type:uuid;index"`
	CreatedAt       time.Time

	Item          *Item          `gorm:"foreignKey:ItemID"`
	OrderLineItem *OrderLineItem `gorm:"foreignKey:OrderLineItemID"`
	Delivery      *Delivery      `gorm:"foreignKey:DeliveryID"`
}

func (DeliveryLineItem) TableName() string { return "delivery_line_items" }

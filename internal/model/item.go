package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a catalog entry. Once a line item references it the price bounds are
// advisory only; line items carry their own price_per_unit.
type Item struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string          `gorm:"index;not null"`
	Version   string          `gorm:"not null;default:''"`
	MSRP      decimal.Decimal `gorm:"column:msrp;type:decimal(12,2);not null"`
	MinPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BelowMinPrice reports whether price undercuts the advisory minimum.
func (i Item) BelowMinPrice(price decimal.Decimal) bool {
	return !i.MinPrice.IsZero() && price.LessThan(i.MinPrice)
}

package dto

import "github.com/shopspring/decimal"

// ─── Requests ────────────────────────────────────────────────────────────────

// DeliveryLineItemRequest is one serialized unit. PricePerUnit is required only
// when the unit does not fulfill an order line item.
type DeliveryLineItemRequest struct {
	ItemID        string           `json:"item_id"         validate:"required,uuid"`
	SerialNumber  string           `json:"serial_number"   validate:"required,max=128"`
	PricePerUnit  *decimal.Decimal `json:"price_per_unit"  validate:"omitempty,gte=0"`
	OrderLineItem *string          `json:"order_line_item" validate:"omitempty,uuid"`
}

type CreateDeliveryRequest struct {
	CustomerID string                    `json:"customer_id" validate:"required,uuid"`
	ShipDate   string                    `json:"ship_date"   validate:"required,datetime=2006-01-02"`
	LineItems  []DeliveryLineItemRequest `json:"line_items"  validate:"required,min=1,dive"`
}

// ─── Responses ───────────────────────────────────────────────────────────────

type DeliveryLineItemResponse struct {
	ID            string          `json:"id"`
	ItemID        string          `json:"item_id"`
	ItemName      string          `json:"item_name,omitempty"`
	SerialNumber  string          `json:"serial_number"`
	PricePerUnit  decimal.Decimal `json:"price_per_unit"`
	OrderLineItem *string         `json:"order_line_item"`
}

type DeliveryResponse struct {
	ID         string                     `json:"id"`
	CustomerID string                     `json:"customer_id"`
	Status     string                     `json:"status"`
	ShipDate   string                     `json:"ship_date"`
	CreatedAt  string                     `json:"created_at"`
	ClosedAt   *string                    `json:"closed_at"`
	ClosedBy   *string                    `json:"closed_by"`
	LineItems  []DeliveryLineItemResponse `json:"line_items"`
	Closure    *ClosureResponse           `json:"closure,omitempty"`
}

type DeliveryListResponse struct {
	Data  []DeliveryResponse `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

package dto

import "github.com/shopspring/decimal"

// ─── Requests ────────────────────────────────────────────────────────────────

// OrderLineItemRequest describes one requested line. POLineItem pins the
// allocation to a specific PO line item; otherwise allocate_from_po decides
// between engine allocation and an ad-hoc line priced by PricePerUnit.
type OrderLineItemRequest struct {
	ItemID       string           `json:"item_id"        validate:"required,uuid"`
	Quantity     int              `json:"quantity"       validate:"required,min=1"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit" validate:"omitempty,gte=0"`
	POLineItem   *string          `json:"po_line_item"   validate:"omitempty,uuid"`
}

type CreateOrderRequest struct {
	CustomerID     string                 `json:"customer_id"      validate:"required,uuid"`
	AllocateFromPO bool                   `json:"allocate_from_po"`
	LineItems      []OrderLineItemRequest `json:"line_items"       validate:"required,min=1,dive"`
}

type AddOrderLineItemsRequest struct {
	AllocateFromPO bool                   `json:"allocate_from_po"`
	LineItems      []OrderLineItemRequest `json:"line_items"       validate:"required,min=1,dive"`
}

// ─── Responses ───────────────────────────────────────────────────────────────

type OrderLineItemResponse struct {
	ID                string          `json:"id"`
	ItemID            string          `json:"item_id"`
	ItemName          string          `json:"item_name,omitempty"`
	Quantity          int             `json:"quantity"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit"`
	POLineItem        *string         `json:"po_line_item"`
	DeliveredQuantity int             `json:"delivered_quantity"`
	RemainingQuantity int             `json:"remaining_quantity"`
}

type OrderResponse struct {
	ID                string                  `json:"id"`
	CustomerID        string                  `json:"customer_id"`
	Status            string                  `json:"status"`
	CreatedAt         string                  `json:"created_at"`
	ClosedAt          *string                 `json:"closed_at"`
	ClosedBy          *string                 `json:"closed_by"`
	LineItems         []OrderLineItemResponse `json:"line_items"`
	FulfillmentStatus *OrderFulfillmentStatus `json:"fulfillment_status,omitempty"`
	Closure           *ClosureResponse        `json:"closure,omitempty"`
}

type OrderListResponse struct {
	Data  []OrderResponse `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

package dto

import "github.com/shopspring/decimal"

// ─── Requests ────────────────────────────────────────────────────────────────

type POLineItemRequest struct {
	ItemID           string          `json:"item_id"           validate:"required,uuid"`
	OriginalQuantity int             `json:"original_quantity" validate:"required,min=1"`
	PricePerUnit     decimal.Decimal `json:"price_per_unit"    validate:"gte=0"`
}

type CreatePurchaseOrderRequest struct {
	CustomerID string              `json:"customer_id" validate:"required,uuid"`
	StartDate  *string             `json:"start_date"  validate:"omitempty,datetime=2006-01-02"`
	LineItems  []POLineItemRequest `json:"line_items"  validate:"required,min=1,dive"`
}

// WaiveRequest has no bound on quantity_to_waive here; a non-positive value is
// rejected by the service as invalid_quantity.
type WaiveRequest struct {
	LineItemID      string  `json:"line_item_id"      validate:"required,uuid"`
	QuantityToWaive int     `json:"quantity_to_waive"`
	Reason          *string `json:"reason"            validate:"omitempty,max=1000"`
}

// ─── Responses ───────────────────────────────────────────────────────────────

type POLineItemResponse struct {
	ID                string          `json:"id"`
	ItemID            string          `json:"item_id"`
	ItemName          string          `json:"item_name,omitempty"`
	OriginalQuantity  int             `json:"original_quantity"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit"`
	OrderedQuantity   int             `json:"ordered_quantity"`
	WaivedQuantity    int             `json:"waived_quantity"`
	RemainingQuantity int             `json:"remaining_quantity"`
}

type PurchaseOrderResponse struct {
	ID                string               `json:"id"`
	CustomerID        string               `json:"customer_id"`
	Status            string               `json:"status"`
	StartDate         *string              `json:"start_date"`
	CreatedAt         string               `json:"created_at"`
	ClosedAt          *string              `json:"closed_at"`
	ClosedBy          *string              `json:"closed_by"`
	LineItems         []POLineItemResponse `json:"line_items"`
	FulfillmentStatus *POFulfillmentStatus `json:"fulfillment_status,omitempty"`
	Closure           *ClosureResponse     `json:"closure,omitempty"`
}

type PurchaseOrderListResponse struct {
	Data  []PurchaseOrderResponse `json:"data"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
}

// WaiveResponse echoes the line item's counters after the waive.
type WaiveResponse struct {
	Message           string `json:"message"`
	LineItemID        string `json:"line_item_id"`
	WaivedQuantity    int    `json:"waived_quantity"`
	RemainingQuantity int    `json:"remaining_quantity"`
}

// LedgerEntryResponse is one journal row of GET /purchase-orders/:id/ledger/.
type LedgerEntryResponse struct {
	ID             string  `json:"id"`
	LineItemID     string  `json:"line_item_id"`
	LineItemType   string  `json:"line_item_type"`
	Counter        string  `json:"counter"`
	Delta          int     `json:"delta"`
	IdempotencyKey string  `json:"idempotency_key"`
	Reason         *string `json:"reason"`
	Actor          string  `json:"actor"`
	CreatedAt      string  `json:"created_at"`
}

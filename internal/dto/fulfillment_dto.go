package dto

// Fulfillment views are projections of the ledger counters. Every quantity is
// an exact integer; Progress is derived from those integers only.

// ─── PO side ─────────────────────────────────────────────────────────────────

// OrderReference is an order line drawing from a PO line item.
type OrderReference struct {
	OrderID         string `json:"order_id"`
	OrderLineItemID string `json:"order_line_item_id"`
	OrderStatus     string `json:"order_status"`
	Quantity        int    `json:"quantity"`
}

type POLineFulfillment struct {
	LineItemID        string           `json:"line_item_id"`
	ItemID            string           `json:"item_id"`
	OriginalQuantity  int              `json:"original_quantity"`
	OrderedQuantity   int              `json:"ordered_quantity"`
	WaivedQuantity    int              `json:"waived_quantity"`
	RemainingQuantity int              `json:"remaining_quantity"`
	Progress          string           `json:"progress"`
	Orders            []OrderReference `json:"orders"`
}

type POFulfillmentStatus struct {
	PurchaseOrderID        string              `json:"purchase_order_id"`
	Status                 string              `json:"status"`
	TotalOriginalQuantity  int                 `json:"total_original_quantity"`
	TotalOrderedQuantity   int                 `json:"total_ordered_quantity"`
	TotalWaivedQuantity    int                 `json:"total_waived_quantity"`
	TotalRemainingQuantity int                 `json:"total_remaining_quantity"`
	Progress               string              `json:"progress"`
	LineItems              []POLineFulfillment `json:"line_items"`
}

// ─── Order side ──────────────────────────────────────────────────────────────

type SourcePOReference struct {
	PurchaseOrderID string `json:"purchase_order_id"`
	POLineItemID    string `json:"po_line_item_id"`
}

type DeliveryReference struct {
	DeliveryID         string `json:"delivery_id"`
	DeliveryLineItemID string `json:"delivery_line_item_id"`
	SerialNumber       string `json:"serial_number"`
	ShipDate           string `json:"ship_date"`
	DeliveryStatus     string `json:"delivery_status"`
}

type OrderLineFulfillment struct {
	LineItemID        string              `json:"line_item_id"`
	ItemID            string              `json:"item_id"`
	OriginalQuantity  int                 `json:"original_quantity"`
	DeliveredQuantity int                 `json:"delivered_quantity"`
	RemainingQuantity int                 `json:"remaining_quantity"`
	Progress          string              `json:"progress"`
	SourcePO          *SourcePOReference  `json:"source_po"`
	Deliveries        []DeliveryReference `json:"deliveries"`
}

type OrderFulfillmentStatus struct {
	OrderID                string                 `json:"order_id"`
	Status                 string                 `json:"status"`
	TotalOriginalQuantity  int                    `json:"total_original_quantity"`
	TotalDeliveredQuantity int                    `json:"total_delivered_quantity"`
	TotalRemainingQuantity int                    `json:"total_remaining_quantity"`
	Progress               string                 `json:"progress"`
	LineItems              []OrderLineFulfillment `json:"line_items"`
}

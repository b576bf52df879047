package dto

// ─── Filters ─────────────────────────────────────────────────────────────────

// DocumentFilter is bound from the query string of the PO, order and delivery
// list endpoints.
type DocumentFilter struct {
	CustomerID string `form:"customer_id"      validate:"omitempty,uuid"`
	Status     string `form:"status"           validate:"omitempty,oneof=OPEN CLOSED"`
	Page       int    `form:"page,default=1"   validate:"min=1"`
	Limit      int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// ─── Shared request / response shapes ───────────────────────────────────────

// CloseRequest is the body of every POST /<document>/:id/close/ endpoint.
type CloseRequest struct {
	AdminOverride  bool    `json:"admin_override"`
	OverrideReason *string `json:"override_reason" validate:"omitempty,max=1000"`
}

// ClosureResponse is the audit record attached to a CLOSED document.
type ClosureResponse struct {
	ClosedBy       string                `json:"closed_by"`
	ClosedAt       string                `json:"closed_at"`
	AdminOverride  bool                  `json:"admin_override"`
	OverrideReason *string               `json:"override_reason,omitempty"`
	Unfulfilled    []UnfulfilledLineItem `json:"unfulfilled_line_items,omitempty"`
}

// UnfulfilledLineItem names a line item still holding remaining quantity.
type UnfulfilledLineItem struct {
	LineItemID        string `json:"line_item_id"`
	ItemID            string `json:"item_id"`
	OriginalQuantity  int    `json:"original_quantity"`
	RemainingQuantity int    `json:"remaining_quantity"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Package apierror defines the JSON error envelope every failed request
// returns: a machine-readable "error" code plus a human "detail". Validation
// failures add per-field messages under "fields". A close refused for
// unfulfilled line items adds "can_override" and the offending "line_items"
// so the client can offer an admin override.
package apierror

import "fulfillment/internal/dto"

// Machine-readable error codes carried in APIError.Error.
const (
	CodeValidation             = "validation_error"
	CodeInvalidQuantity        = "invalid_quantity"
	CodeInsufficientRemaining  = "insufficient_remaining"
	CodeNoCapacity             = "no_capacity"
	CodeUnfulfilledLineItems   = "unfulfilled_line_items"
	CodeOverrideReasonRequired = "override_reason_required"
	CodeDuplicateSerial        = "duplicate_serial_number"
	CodeNotFound               = "not_found"
	CodeInvalidReference       = "invalid_reference"
	CodeDocumentClosed         = "document_closed"
	CodeHasDependents          = "has_dependents"
	CodeDuplicateRequest       = "duplicate_request"
	CodeUnauthorized           = "unauthorized"
	CodeForbidden              = "forbidden"
	CodeRateLimited            = "rate_limited"
	CodeInternal               = "internal_error"
)

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
// Only the close endpoints fill CanOverride and LineItems.
type APIError struct {
	Error       string                    `json:"error"`
	Detail      string                    `json:"detail"`
	CanOverride *bool                     `json:"can_override,omitempty"`
	LineItems   []dto.UnfulfilledLineItem `json:"line_items,omitempty"`
	Fields      map[string]string         `json:"fields,omitempty"`
}

func New(code, msg string) *APIError {
	return &APIError{Error: code, Detail: msg}
}

// NewValidation wraps field errors keyed by json path, e.g.
// line_items[0].price_per_unit.
func NewValidation(fields map[string]string) *APIError {
	return &APIError{Error: CodeValidation, Detail: "validation failed", Fields: fields}
}

// NewUnfulfilled is the 409 body of a blocked close.
func NewUnfulfilled(msg string, lines []dto.UnfulfilledLineItem) *APIError {
	canOverride := true
	return &APIError{
		Error:       CodeUnfulfilledLineItems,
		Detail:      msg,
		CanOverride: &canOverride,
		LineItems:   lines,
	}
}

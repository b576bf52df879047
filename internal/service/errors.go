package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"
	"fulfillment/internal/repository"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidQuantity        = repository.ErrInvalidQuantity
	ErrInsufficientRemaining  = repository.ErrInsufficientRemaining
	ErrNoCapacity             = errors.New("no open purchase order line item can satisfy the requested quantity")
	ErrOverrideReasonRequired = errors.New("override_reason is required when admin_override is set")
	ErrForbiddenOverride      = errors.New("only administrators may close with an override")
	ErrInvalidReference       = errors.New("invalid reference")
	ErrDocumentClosed         = errors.New("document is closed")
	ErrHasDependents          = errors.New("document has dependent records")
	ErrDuplicateRequest       = errors.New("request was already applied concurrently")
)

// UnfulfilledLineItemsError is returned by Close when line items still hold
// remaining quantity and no override was supplied.
type UnfulfilledLineItemsError struct {
	DocumentType model.DocumentType
	DocumentID   string
	LineItems    []dto.UnfulfilledLineItem
}

func (e *UnfulfilledLineItemsError) Error() string {
	return fmt.Sprintf("%s %s has %d line item(s) with remaining quantity", e.DocumentType, e.DocumentID, len(e.LineItems))
}

// CanOverride is always true: an administrator may close anyway with a reason.
func (e *UnfulfilledLineItemsError) CanOverride() bool { return true }

// DuplicateSerialError lists serial numbers that repeat inside one request or
// already exist in storage. Fields is keyed by line_items[<i>].serial_number.
type DuplicateSerialError struct {
	Serials []string
	Fields  map[string]string
}

func (e *DuplicateSerialError) Error() string {
	return "duplicate serial_number: " + strings.Join(e.Serials, ", ")
}

// FieldErrors carries request-level validation failures detected by services,
// keyed the same way as binding errors.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func lineItemField(i int, field string) string {
	return fmt.Sprintf("line_items[%d].%s", i, field)
}

// notFound normalizes gorm's missing-row error into ErrNotFound.
func notFound(err error, what string) error {
	if repository.IsNotFound(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// ledgerErr maps repository write errors onto the service taxonomy.
func ledgerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case repository.IsNotFound(err):
		return fmt.Errorf("line item: %w", ErrNotFound)
	case errors.Is(err, repository.ErrDuplicateKey):
		return ErrDuplicateRequest
	}
	return err
}

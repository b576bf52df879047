package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// OverrideNotifier is told about every close accepted with an admin override.
// It runs after commit; a notifier failure never undoes the close.
type OverrideNotifier interface {
	NotifyOverride(ctx context.Context, closure model.DocumentClosure) error
}

// closeTarget is the document-specific half of a close.
type closeTarget struct {
	docType model.DocumentType
	docID   uuid.UUID
	status  model.DocumentStatus
	// lines is empty for deliveries, whose close checks status only.
	lines []model.QuantityLedger
}

// evaluateClosure applies the closing rules and returns the audit record to
// persist. It has no side effects.
func evaluateClosure(t closeTarget, actor Actor, req dto.CloseRequest, now time.Time) (*model.DocumentClosure, error) {
	if !t.status.CanTransitionTo(model.StatusClosed) {
		return nil, ErrDocumentClosed
	}

	var unfulfilled []dto.UnfulfilledLineItem
	for _, li := range t.lines {
		if li.Remaining() > 0 {
			unfulfilled = append(unfulfilled, dto.UnfulfilledLineItem{
				LineItemID:        li.LedgerLineID().String(),
				ItemID:            li.LedgerItemID().String(),
				OriginalQuantity:  li.Original(),
				RemainingQuantity: li.Remaining(),
			})
		}
	}

	closure := &model.DocumentClosure{
		ID:           uuid.New(),
		DocumentType: t.docType,
		DocumentID:   t.docID,
		ClosedBy:     actor.label(),
		Unfulfilled:  "[]",
		ClosedAt:     now,
	}
	if len(unfulfilled) == 0 {
		return closure, nil
	}

	if !req.AdminOverride {
		return nil, &UnfulfilledLineItemsError{
			DocumentType: t.docType,
			DocumentID:   t.docID.String(),
			LineItems:    unfulfilled,
		}
	}
	if req.OverrideReason == nil || strings.TrimSpace(*req.OverrideReason) == "" {
		return nil, ErrOverrideReasonRequired
	}
	if !actor.IsAdmin {
		return nil, ErrForbiddenOverride
	}

	snapshot, err := json.Marshal(unfulfilled)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(*req.OverrideReason)
	closure.AdminOverride = true
	closure.OverrideReason = &reason
	closure.Unfulfilled = string(snapshot)
	return closure, nil
}

// closer persists accepted closes and fans out override notices.
type closer struct {
	closures repository.ClosureRepository
	notifier OverrideNotifier
}

type markClosedFunc func(ctx context.Context, tx *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error

func (c closer) persist(ctx context.Context, tx *gorm.DB, closure *model.DocumentClosure, mark markClosedFunc) error {
	if err := mark(ctx, tx, closure.DocumentID, closure.ClosedBy, closure.ClosedAt); err != nil {
		if errors.Is(err, repository.ErrNotOpen) {
			return ErrDocumentClosed
		}
		return err
	}
	return c.closures.Create(ctx, tx, closure)
}

func (c closer) notify(ctx context.Context, closure *model.DocumentClosure) {
	log.Info().
		Str("document_type", string(closure.DocumentType)).
		Str("document_id", closure.DocumentID.String()).
		Str("closed_by", closure.ClosedBy).
		Bool("admin_override", closure.AdminOverride).
		Msg("document closed")

	if !closure.AdminOverride || c.notifier == nil {
		return
	}
	if err := c.notifier.NotifyOverride(ctx, *closure); err != nil {
		log.Error().Err(err).
			Str("document_id", closure.DocumentID.String()).
			Msg("failed to enqueue override notice")
	}
}

// find loads the latest audit record for a document, or nil.
func (c closer) find(ctx context.Context, docType model.DocumentType, id uuid.UUID) *dto.ClosureResponse {
	rec, err := c.closures.FindByDocument(ctx, docType, id)
	if err != nil {
		return nil
	}
	return closureToResponse(rec)
}

func closureToResponse(c *model.DocumentClosure) *dto.ClosureResponse {
	resp := &dto.ClosureResponse{
		ClosedBy:       c.ClosedBy,
		ClosedAt:       formatTime(c.ClosedAt),
		AdminOverride:  c.AdminOverride,
		OverrideReason: c.OverrideReason,
	}
	if c.Unfulfilled != "" {
		_ = json.Unmarshal([]byte(c.Unfulfilled), &resp.Unfulfilled)
	}
	return resp
}

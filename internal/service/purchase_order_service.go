package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type PurchaseOrderService interface {
	Create(ctx context.Context, actor Actor, req dto.CreatePurchaseOrderRequest) (*dto.PurchaseOrderResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.PurchaseOrderResponse, error)
	List(ctx context.Context, filter dto.DocumentFilter) (*dto.PurchaseOrderListResponse, error)
	AddLineItem(ctx context.Context, actor Actor, poID uuid.UUID, req dto.POLineItemRequest) (*dto.PurchaseOrderResponse, error)
	RemoveLineItem(ctx context.Context, actor Actor, poID, lineItemID uuid.UUID) (*dto.PurchaseOrderResponse, error)
	Waive(ctx context.Context, actor Actor, poID uuid.UUID, req dto.WaiveRequest, keys *RequestKeys) (*dto.WaiveResponse, error)
	Close(ctx context.Context, actor Actor, poID uuid.UUID, req dto.CloseRequest) (*dto.PurchaseOrderResponse, error)
	Delete(ctx context.Context, actor Actor, poID uuid.UUID) error
	Ledger(ctx context.Context, poID uuid.UUID) ([]dto.LedgerEntryResponse, error)
}

type purchaseOrderService struct {
	repo        repository.PurchaseOrderRepository
	orderRepo   repository.OrderRepository
	ledger      repository.LedgerRepository
	catalog     CatalogService
	fulfillment FulfillmentService
	closer      closer
	now         func() time.Time
}

func NewPurchaseOrderService(
	repo repository.PurchaseOrderRepository,
	orderRepo repository.OrderRepository,
	ledger repository.LedgerRepository,
	closures repository.ClosureRepository,
	catalog CatalogService,
	fulfillment FulfillmentService,
	notifier OverrideNotifier,
) PurchaseOrderService {
	return &purchaseOrderService{
		repo:        repo,
		orderRepo:   orderRepo,
		ledger:      ledger,
		catalog:     catalog,
		fulfillment: fulfillment,
		closer:      closer{closures: closures, notifier: notifier},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ── Create ───────────────────────────────────────────────────────────────────

func (s *purchaseOrderService) Create(ctx context.Context, actor Actor, req dto.CreatePurchaseOrderRequest) (*dto.PurchaseOrderResponse, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, FieldErrors{"customer_id": "must be a valid uuid"}
	}
	fields := FieldErrors{}

	var startDate *time.Time
	if req.StartDate != nil && *req.StartDate != "" {
		d, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			fields["start_date"] = "must be a date (YYYY-MM-DD)"
		} else {
			startDate = &d
		}
	}

	lines, lineFields := s.buildLineItems(ctx, req.LineItems, 0)
	for k, v := range lineFields {
		fields[k] = v
	}
	if len(fields) > 0 {
		return nil, fields
	}

	po := model.PurchaseOrder{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     model.StatusOpen,
		StartDate:  startDate,
		LineItems:  lines,
	}
	for i := range po.LineItems {
		po.LineItems[i].PurchaseOrderID = po.ID
	}
	if err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		return s.repo.Create(ctx, tx, &po)
	}); err != nil {
		return nil, err
	}

	log.Info().Str("po_id", po.ID.String()).Str("actor", actor.label()).Int("line_items", len(lines)).Msg("purchase order created")
	return s.Get(ctx, po.ID)
}

// buildLineItems validates requested lines against the catalog. offset shifts
// field keys when lines are appended to an existing document.
func (s *purchaseOrderService) buildLineItems(ctx context.Context, reqs []dto.POLineItemRequest, offset int) ([]model.POLineItem, FieldErrors) {
	fields := FieldErrors{}
	ids := make([]uuid.UUID, len(reqs))
	for i, r := range reqs {
		id, err := uuid.Parse(r.ItemID)
		if err != nil {
			fields[lineItemField(i+offset, "item_id")] = "must be a valid uuid"
			continue
		}
		ids[i] = id
		if r.OriginalQuantity <= 0 {
			fields[lineItemField(i+offset, "original_quantity")] = "must be greater than zero"
		}
		if r.PricePerUnit.IsNegative() {
			fields[lineItemField(i+offset, "price_per_unit")] = "must not be negative"
		}
	}
	items, err := s.catalog.Resolve(ctx, ids)
	if err != nil {
		fields["line_items"] = "catalog lookup failed"
		return nil, fields
	}
	lines := make([]model.POLineItem, 0, len(reqs))
	for i, r := range reqs {
		if ids[i] == uuid.Nil {
			continue
		}
		if _, ok := items[ids[i]]; !ok {
			fields[lineItemField(i+offset, "item_id")] = "unknown item"
			continue
		}
		lines = append(lines, model.POLineItem{
			ID:               uuid.New(),
			ItemID:           ids[i],
			OriginalQuantity: r.OriginalQuantity,
			PricePerUnit:     r.PricePerUnit,
		})
	}
	return lines, fields
}

// ── Read ─────────────────────────────────────────────────────────────────────

func (s *purchaseOrderService) Get(ctx context.Context, id uuid.UUID) (*dto.PurchaseOrderResponse, error) {
	po, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "purchase order")
	}
	resp := purchaseOrderToResponse(po)
	status, err := s.fulfillment.BuildPOStatus(ctx, po)
	if err != nil {
		return nil, err
	}
	resp.FulfillmentStatus = status
	if po.Status == model.StatusClosed {
		resp.Closure = s.closer.find(ctx, model.DocumentPurchaseOrder, po.ID)
	}
	return resp, nil
}

func (s *purchaseOrderService) List(ctx context.Context, filter dto.DocumentFilter) (*dto.PurchaseOrderListResponse, error) {
	f, err := documentFilter(filter)
	if err != nil {
		return nil, err
	}
	pos, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := &dto.PurchaseOrderListResponse{
		Data:  make([]dto.PurchaseOrderResponse, 0, len(pos)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range pos {
		out.Data = append(out.Data, *purchaseOrderToResponse(&pos[i]))
	}
	return out, nil
}

func (s *purchaseOrderService) Ledger(ctx context.Context, poID uuid.UUID) ([]dto.LedgerEntryResponse, error) {
	po, err := s.repo.FindByID(ctx, poID)
	if err != nil {
		return nil, notFound(err, "purchase order")
	}
	ids := make([]uuid.UUID, 0, len(po.LineItems))
	for _, li := range po.LineItems {
		ids = append(ids, li.ID)
	}
	entries, err := s.ledger.Entries(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]dto.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryToResponse(e))
	}
	return out, nil
}

// ── Line items ───────────────────────────────────────────────────────────────

func (s *purchaseOrderService) AddLineItem(ctx context.Context, actor Actor, poID uuid.UUID, req dto.POLineItemRequest) (*dto.PurchaseOrderResponse, error) {
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		po, err := s.repo.FindByIDForUpdate(ctx, tx, poID)
		if err != nil {
			return notFound(err, "purchase order")
		}
		if !po.Status.IsOpen() {
			return ErrDocumentClosed
		}
		lines, fields := s.buildLineItems(ctx, []dto.POLineItemRequest{req}, 0)
		if len(fields) > 0 {
			return fields
		}
		li := lines[0]
		li.PurchaseOrderID = po.ID
		return s.repo.AddLineItem(ctx, tx, &li)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("po_id", poID.String()).Str("actor", actor.label()).Msg("purchase order line item added")
	return s.Get(ctx, poID)
}

func (s *purchaseOrderService) RemoveLineItem(ctx context.Context, actor Actor, poID, lineItemID uuid.UUID) (*dto.PurchaseOrderResponse, error) {
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		po, err := s.repo.FindByIDForUpdate(ctx, tx, poID)
		if err != nil {
			return notFound(err, "purchase order")
		}
		if !po.Status.IsOpen() {
			return ErrDocumentClosed
		}
		li := findPOLine(po, lineItemID)
		if li == nil {
			return fmt.Errorf("line item %s on purchase order %s: %w", lineItemID, poID, ErrNotFound)
		}
		if li.Consumed() > 0 {
			return fmt.Errorf("line item %s has ordered or waived quantity: %w", lineItemID, ErrHasDependents)
		}
		refs, err := s.orderRepo.FindLineItemsByPOLineItemIDs(ctx, []uuid.UUID{li.ID})
		if err != nil {
			return err
		}
		if len(refs) > 0 {
			return fmt.Errorf("line item %s is referenced by orders: %w", lineItemID, ErrHasDependents)
		}
		return s.repo.DeleteLineItem(ctx, tx, li.ID)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("po_id", poID.String()).Str("line_item_id", lineItemID.String()).Str("actor", actor.label()).Msg("purchase order line item removed")
	return s.Get(ctx, poID)
}

func findPOLine(po *model.PurchaseOrder, id uuid.UUID) *model.POLineItem {
	for i := range po.LineItems {
		if po.LineItems[i].ID == id {
			return &po.LineItems[i]
		}
	}
	return nil
}

// ── Waive ────────────────────────────────────────────────────────────────────
// Consumes remaining PO quantity without an order. The counter is separate
// from ordered so write-offs stay auditable; the reason lands in the journal.

func (s *purchaseOrderService) Waive(ctx context.Context, actor Actor, poID uuid.UUID, req dto.WaiveRequest, keys *RequestKeys) (*dto.WaiveResponse, error) {
	if req.QuantityToWaive <= 0 {
		return nil, ErrInvalidQuantity
	}
	lineItemID, err := uuid.Parse(req.LineItemID)
	if err != nil {
		return nil, FieldErrors{"line_item_id": "must be a valid uuid"}
	}

	var after model.Ledger
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		po, err := s.repo.FindByIDForUpdate(ctx, tx, poID)
		if err != nil {
			return notFound(err, "purchase order")
		}
		if !po.Status.IsOpen() {
			return fmt.Errorf("waive on %s purchase order %s: %w", po.Status, poID, ErrInvalidReference)
		}
		if findPOLine(po, lineItemID) == nil {
			return fmt.Errorf("line item %s does not belong to purchase order %s: %w", lineItemID, poID, ErrInvalidReference)
		}
		after, err = s.ledger.Reserve(ctx, tx, model.LedgerMutation{
			LineItemID:     lineItemID,
			Counter:        model.CounterWaived,
			Quantity:       req.QuantityToWaive,
			IdempotencyKey: keys.Next(lineItemID, "waived"),
			Reason:         req.Reason,
			Actor:          actor.label(),
		})
		return ledgerErr(err)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("po_id", poID.String()).
		Str("line_item_id", lineItemID.String()).
		Int("quantity", req.QuantityToWaive).
		Str("actor", actor.label()).
		Msg("purchase order quantity waived")

	return &dto.WaiveResponse{
		Message:           fmt.Sprintf("Waived %d unit(s)", req.QuantityToWaive),
		LineItemID:        lineItemID.String(),
		WaivedQuantity:    after.Waived,
		RemainingQuantity: after.RemainingQuantity(),
	}, nil
}

// ── Close ────────────────────────────────────────────────────────────────────

func (s *purchaseOrderService) Close(ctx context.Context, actor Actor, poID uuid.UUID, req dto.CloseRequest) (*dto.PurchaseOrderResponse, error) {
	var closure *model.DocumentClosure
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		po, err := s.repo.FindByIDForUpdate(ctx, tx, poID)
		if err != nil {
			return notFound(err, "purchase order")
		}
		lines := make([]model.QuantityLedger, 0, len(po.LineItems))
		for _, li := range po.LineItems {
			lines = append(lines, li)
		}
		closure, err = evaluateClosure(closeTarget{
			docType: model.DocumentPurchaseOrder,
			docID:   po.ID,
			status:  po.Status,
			lines:   lines,
		}, actor, req, s.now())
		if err != nil {
			return err
		}
		return s.closer.persist(ctx, tx, closure, s.repo.MarkClosed)
	})
	if err != nil {
		return nil, err
	}
	s.closer.notify(ctx, closure)
	return s.Get(ctx, poID)
}

// ── Delete ───────────────────────────────────────────────────────────────────

func (s *purchaseOrderService) Delete(ctx context.Context, actor Actor, poID uuid.UUID) error {
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		po, err := s.repo.FindByIDForUpdate(ctx, tx, poID)
		if err != nil {
			return notFound(err, "purchase order")
		}
		if !po.Status.IsOpen() {
			return ErrDocumentClosed
		}
		ids := make([]uuid.UUID, 0, len(po.LineItems))
		for _, li := range po.LineItems {
			if li.Consumed() > 0 {
				return fmt.Errorf("line item %s has ordered or waived quantity: %w", li.ID, ErrHasDependents)
			}
			ids = append(ids, li.ID)
		}
		refs, err := s.orderRepo.FindLineItemsByPOLineItemIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(refs) > 0 {
			return fmt.Errorf("purchase order %s is referenced by %d order line item(s): %w", poID, len(refs), ErrHasDependents)
		}
		return s.repo.Delete(ctx, tx, poID)
	})
	if err != nil {
		return err
	}
	log.Info().Str("po_id", poID.String()).Str("actor", actor.label()).Msg("purchase order deleted")
	return nil
}

// documentFilter converts the bound query string into a repository filter.
func documentFilter(f dto.DocumentFilter) (repository.DocumentFilter, error) {
	out := repository.DocumentFilter{
		Status: model.DocumentStatus(f.Status),
		Page:   f.Page,
		Limit:  f.Limit,
	}
	if f.CustomerID != "" {
		id, err := uuid.Parse(f.CustomerID)
		if err != nil {
			return out, FieldErrors{"customer_id": "must be a valid uuid"}
		}
		out.CustomerID = &id
	}
	return out, nil
}

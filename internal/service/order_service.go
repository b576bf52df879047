package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderService interface {
	Create(ctx context.Context, actor Actor, req dto.CreateOrderRequest, keys *RequestKeys) (*dto.OrderResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.OrderResponse, error)
	List(ctx context.Context, filter dto.DocumentFilter) (*dto.OrderListResponse, error)
	AddLineItems(ctx context.Context, actor Actor, orderID uuid.UUID, req dto.AddOrderLineItemsRequest, keys *RequestKeys) (*dto.OrderResponse, error)
	RemoveLineItem(ctx context.Context, actor Actor, orderID, lineItemID uuid.UUID, keys *RequestKeys) (*dto.OrderResponse, error)
	Close(ctx context.Context, actor Actor, orderID uuid.UUID, req dto.CloseRequest) (*dto.OrderResponse, error)
	Delete(ctx context.Context, actor Actor, orderID uuid.UUID, keys *RequestKeys) error
}

type orderService struct {
	repo         repository.OrderRepository
	deliveryRepo repository.DeliveryRepository
	allocation   AllocationService
	catalog      CatalogService
	fulfillment  FulfillmentService
	closer       closer
	now          func() time.Time
}

func NewOrderService(
	repo repository.OrderRepository,
	deliveryRepo repository.DeliveryRepository,
	closures repository.ClosureRepository,
	allocation AllocationService,
	catalog CatalogService,
	fulfillment FulfillmentService,
	notifier OverrideNotifier,
) OrderService {
	return &orderService{
		repo:         repo,
		deliveryRepo: deliveryRepo,
		allocation:   allocation,
		catalog:      catalog,
		fulfillment:  fulfillment,
		closer:       closer{closures: closures, notifier: notifier},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// resolvedLine is a request line after pre-flight validation.
type resolvedLine struct {
	index      int
	item       model.Item
	quantity   int
	poLineItem *uuid.UUID
	price      *decimal.Decimal
}

// ── Create ───────────────────────────────────────────────────────────────────
//   1. Replay: an Idempotency-Key seen before returns the stored order.
//   2. Pre-flight: parse ids, resolve items, require price on ad-hoc lines.
//   3. Lock the customer's items, then in one TX allocate every line and
//      persist the order. Any failure returns every reservation made.

func (s *orderService) Create(ctx context.Context, actor Actor, req dto.CreateOrderRequest, keys *RequestKeys) (*dto.OrderResponse, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, FieldErrors{"customer_id": "must be a valid uuid"}
	}

	if key := keys.documentKey(); key != nil {
		if existing, err := s.repo.FindByIdempotencyKey(ctx, *key); err == nil {
			return s.Get(ctx, existing.ID)
		}
	}

	resolved, err := s.preflight(ctx, req.LineItems, req.AllocateFromPO)
	if err != nil {
		return nil, err
	}

	unlock := s.allocation.Serialize(ctx, customerID, allocatingItems(resolved, req.AllocateFromPO))
	defer unlock()

	order := model.Order{
		ID:             uuid.New(),
		CustomerID:     customerID,
		Status:         model.StatusOpen,
		IdempotencyKey: keys.documentKey(),
	}
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		lines, plans, err := s.materialize(ctx, tx, actor, customerID, order.ID, resolved, req.AllocateFromPO, keys)
		if err == nil {
			order.LineItems = lines
			err = s.repo.Create(ctx, tx, &order)
		}
		if err != nil && tx == nil {
			// Without a transaction nothing rolls back on its own.
			s.compensate(ctx, plans, keys, actor)
		}
		return err
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		if key := keys.documentKey(); key != nil {
			if existing, ferr := s.repo.FindByIdempotencyKey(ctx, *key); ferr == nil {
				return s.Get(ctx, existing.ID)
			}
		}
		return nil, ErrDuplicateRequest
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("customer_id", customerID.String()).
		Int("line_items", len(order.LineItems)).
		Bool("allocate_from_po", req.AllocateFromPO).
		Str("actor", actor.label()).
		Msg("order created")
	return s.Get(ctx, order.ID)
}

// preflight validates every line before any ledger mutation.
func (s *orderService) preflight(ctx context.Context, reqs []dto.OrderLineItemRequest, allocate bool) ([]resolvedLine, error) {
	fields := FieldErrors{}
	ids := make([]uuid.UUID, len(reqs))
	resolved := make([]resolvedLine, 0, len(reqs))

	for i, r := range reqs {
		itemID, err := uuid.Parse(r.ItemID)
		if err != nil {
			fields[lineItemField(i, "item_id")] = "must be a valid uuid"
			continue
		}
		ids[i] = itemID
		if r.Quantity <= 0 {
			fields[lineItemField(i, "quantity")] = "must be greater than zero"
		}
		line := resolvedLine{index: i, quantity: r.Quantity, price: r.PricePerUnit}
		if r.POLineItem != nil && *r.POLineItem != "" {
			pl, err := uuid.Parse(*r.POLineItem)
			if err != nil {
				fields[lineItemField(i, "po_line_item")] = "must be a valid uuid"
			} else {
				line.poLineItem = &pl
			}
		} else if !allocate && r.PricePerUnit == nil {
			fields[lineItemField(i, "price_per_unit")] = "required when allocate_from_po is false"
		}
		if r.PricePerUnit != nil && r.PricePerUnit.IsNegative() {
			fields[lineItemField(i, "price_per_unit")] = "must not be negative"
		}
		resolved = append(resolved, line)
	}

	items, err := s.catalog.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	for j := range resolved {
		it, ok := items[ids[resolved[j].index]]
		if !ok {
			fields[lineItemField(resolved[j].index, "item_id")] = "unknown item"
			continue
		}
		resolved[j].item = it
	}
	if len(fields) > 0 {
		return nil, fields
	}
	return resolved, nil
}

func allocatingItems(lines []resolvedLine, allocate bool) []uuid.UUID {
	var ids []uuid.UUID
	for _, l := range lines {
		if l.poLineItem != nil || allocate {
			ids = append(ids, l.item.ID)
		}
	}
	return ids
}

// materialize turns resolved lines into order line items, reserving PO
// quantity for allocated ones. The plans made so far are returned even on
// error so the caller can compensate.
func (s *orderService) materialize(
	ctx context.Context,
	tx *gorm.DB,
	actor Actor,
	customerID, orderID uuid.UUID,
	lines []resolvedLine,
	allocate bool,
	keys *RequestKeys,
) ([]model.OrderLineItem, []AllocationPlan, error) {
	var out []model.OrderLineItem
	var plans []AllocationPlan

	for _, l := range lines {
		areq := AllocationRequest{
			CustomerID: customerID,
			ItemID:     l.item.ID,
			Quantity:   l.quantity,
			Keys:       keys,
			Actor:      actor.label(),
		}
		switch {
		case l.poLineItem != nil:
			plan, err := s.allocation.AllocateFrom(ctx, tx, *l.poLineItem, areq)
			if err != nil {
				return nil, plans, fmt.Errorf("line_items[%d]: %w", l.index, err)
			}
			plans = append(plans, plan)
			out = append(out, planToLine(orderID, plan))

		case allocate:
			got, err := s.allocation.Allocate(ctx, tx, areq)
			if err != nil {
				return nil, plans, fmt.Errorf("line_items[%d]: %w", l.index, err)
			}
			plans = append(plans, got...)
			for _, p := range got {
				out = append(out, planToLine(orderID, p))
			}

		default:
			price := *l.price
			if l.item.BelowMinPrice(price) {
				log.Warn().
					Str("item_id", l.item.ID.String()).
					Str("price_per_unit", price.String()).
					Str("min_price", l.item.MinPrice.String()).
					Msg("ad-hoc order line priced below item min_price")
			}
			out = append(out, model.OrderLineItem{
				ID:           uuid.New(),
				OrderID:      orderID,
				ItemID:       l.item.ID,
				Quantity:     l.quantity,
				PricePerUnit: price,
			})
		}
	}
	return out, plans, nil
}

func planToLine(orderID uuid.UUID, p AllocationPlan) model.OrderLineItem {
	poLine := p.POLineItemID
	return model.OrderLineItem{
		ID:           uuid.New(),
		OrderID:      orderID,
		ItemID:       p.ItemID,
		Quantity:     p.Quantity,
		PricePerUnit: p.PricePerUnit,
		POLineItemID: &poLine,
	}
}

func (s *orderService) compensate(ctx context.Context, plans []AllocationPlan, keys *RequestKeys, actor Actor) {
	if len(plans) == 0 {
		return
	}
	if err := s.allocation.Release(ctx, nil, plans, keys, actor.label()); err != nil {
		log.Error().Err(err).Msg("order: failed to return reservations")
	}
}

// ── Read ─────────────────────────────────────────────────────────────────────

func (s *orderService) Get(ctx context.Context, id uuid.UUID) (*dto.OrderResponse, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	resp := orderToResponse(o)
	status, err := s.fulfillment.BuildOrderStatus(ctx, o)
	if err != nil {
		return nil, err
	}
	resp.FulfillmentStatus = status
	if o.Status == model.StatusClosed {
		resp.Closure = s.closer.find(ctx, model.DocumentOrder, o.ID)
	}
	return resp, nil
}

func (s *orderService) List(ctx context.Context, filter dto.DocumentFilter) (*dto.OrderListResponse, error) {
	f, err := documentFilter(filter)
	if err != nil {
		return nil, err
	}
	orders, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := &dto.OrderListResponse{
		Data:  make([]dto.OrderResponse, 0, len(orders)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range orders {
		out.Data = append(out.Data, *orderToResponse(&orders[i]))
	}
	return out, nil
}

// ── Line items ───────────────────────────────────────────────────────────────

func (s *orderService) AddLineItems(ctx context.Context, actor Actor, orderID uuid.UUID, req dto.AddOrderLineItemsRequest, keys *RequestKeys) (*dto.OrderResponse, error) {
	current, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	keys = keys.Scoped("add-lines", orderID)
	if appliedBy(current, keys.documentKey()) {
		return s.Get(ctx, orderID)
	}
	if !current.Status.IsOpen() {
		return nil, ErrDocumentClosed
	}
	resolved, err := s.preflight(ctx, req.LineItems, req.AllocateFromPO)
	if err != nil {
		return nil, err
	}

	unlock := s.allocation.Serialize(ctx, current.CustomerID, allocatingItems(resolved, req.AllocateFromPO))
	defer unlock()

	replayed := false
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		o, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return notFound(err, "order")
		}
		// A concurrent retry may have landed while this one waited on the lock.
		if replayed = appliedBy(o, keys.documentKey()); replayed {
			return nil
		}
		if !o.Status.IsOpen() {
			return ErrDocumentClosed
		}
		lines, plans, err := s.materialize(ctx, tx, actor, o.CustomerID, o.ID, resolved, req.AllocateFromPO, keys)
		for i := 0; err == nil && i < len(lines); i++ {
			lines[i].RequestKey = keys.documentKey()
			err = s.repo.AddLineItem(ctx, tx, &lines[i])
		}
		if err != nil && tx == nil {
			s.compensate(ctx, plans, keys, actor)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return s.Get(ctx, orderID)
	}
	log.Info().Str("order_id", orderID.String()).Int("line_items", len(req.LineItems)).Str("actor", actor.label()).Msg("order line items added")
	return s.Get(ctx, orderID)
}

// appliedBy reports whether a keyed AddLineItems request already added lines
// to o.
func appliedBy(o *model.Order, key *string) bool {
	if key == nil {
		return false
	}
	for _, li := range o.LineItems {
		if li.RequestKey != nil && *li.RequestKey == *key {
			return true
		}
	}
	return false
}

func (s *orderService) RemoveLineItem(ctx context.Context, actor Actor, orderID, lineItemID uuid.UUID, keys *RequestKeys) (*dto.OrderResponse, error) {
	keys = keys.Scoped("remove-line", lineItemID)
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		o, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return notFound(err, "order")
		}
		if !o.Status.IsOpen() {
			return ErrDocumentClosed
		}
		var li *model.OrderLineItem
		for i := range o.LineItems {
			if o.LineItems[i].ID == lineItemID {
				li = &o.LineItems[i]
			}
		}
		if li == nil {
			return fmt.Errorf("line item %s on order %s: %w", lineItemID, orderID, ErrNotFound)
		}
		if err := s.detach(ctx, tx, []model.OrderLineItem{*li}, keys, actor); err != nil {
			return err
		}
		return s.repo.DeleteLineItem(ctx, tx, li.ID)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("order_id", orderID.String()).Str("line_item_id", lineItemID.String()).Str("actor", actor.label()).Msg("order line item removed")
	return s.Get(ctx, orderID)
}

// detach refuses lines that already have deliveries and returns allocated
// quantity to the PO line items the rest drew from.
func (s *orderService) detach(ctx context.Context, tx *gorm.DB, lines []model.OrderLineItem, keys *RequestKeys, actor Actor) error {
	ids := make([]uuid.UUID, 0, len(lines))
	var plans []AllocationPlan
	for _, li := range lines {
		if li.DeliveredQuantity > 0 {
			return fmt.Errorf("line item %s has delivered units: %w", li.ID, ErrHasDependents)
		}
		ids = append(ids, li.ID)
		if li.IsAllocated() {
			plans = append(plans, AllocationPlan{
				POLineItemID: *li.POLineItemID,
				ItemID:       li.ItemID,
				Quantity:     li.Quantity,
			})
		}
	}
	units, err := s.deliveryRepo.FindLineItemsByOrderLineItemIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(units) > 0 {
		return fmt.Errorf("%d delivery line item(s) reference this order: %w", len(units), ErrHasDependents)
	}
	return ledgerErr(s.allocation.Release(ctx, tx, plans, keys, actor.label()))
}

// ── Close ────────────────────────────────────────────────────────────────────

func (s *orderService) Close(ctx context.Context, actor Actor, orderID uuid.UUID, req dto.CloseRequest) (*dto.OrderResponse, error) {
	var closure *model.DocumentClosure
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		o, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return notFound(err, "order")
		}
		lines := make([]model.QuantityLedger, 0, len(o.LineItems))
		for _, li := range o.LineItems {
			lines = append(lines, li)
		}
		closure, err = evaluateClosure(closeTarget{
			docType: model.DocumentOrder,
			docID:   o.ID,
			status:  o.Status,
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
	return s.Get(ctx, orderID)
}

// ── Delete ───────────────────────────────────────────────────────────────────

func (s *orderService) Delete(ctx context.Context, actor Actor, orderID uuid.UUID, keys *RequestKeys) error {
	keys = keys.Scoped("delete-order", orderID)
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		o, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return notFound(err, "order")
		}
		if !o.Status.IsOpen() {
			return ErrDocumentClosed
		}
		if err := s.detach(ctx, tx, o.LineItems, keys, actor); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, orderID)
	})
	if err != nil {
		return err
	}
	log.Info().Str("order_id", orderID.String()).Str("actor", actor.label()).Msg("order deleted")
	return nil
}

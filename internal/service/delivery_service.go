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

type DeliveryService interface {
	Create(ctx context.Context, actor Actor, req dto.CreateDeliveryRequest, keys *RequestKeys) (*dto.DeliveryResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.DeliveryResponse, error)
	List(ctx context.Context, filter dto.DocumentFilter) (*dto.DeliveryListResponse, error)
	Close(ctx context.Context, actor Actor, deliveryID uuid.UUID, req dto.CloseRequest) (*dto.DeliveryResponse, error)
	Delete(ctx context.Context, actor Actor, deliveryID uuid.UUID, keys *RequestKeys) error
}

type deliveryService struct {
	repo      repository.DeliveryRepository
	orderRepo repository.OrderRepository
	ledger    repository.LedgerRepository
	catalog   CatalogService
	closer    closer
	now       func() time.Time
}

func NewDeliveryService(
	repo repository.DeliveryRepository,
	orderRepo repository.OrderRepository,
	ledger repository.LedgerRepository,
	closures repository.ClosureRepository,
	catalog CatalogService,
	notifier OverrideNotifier,
) DeliveryService {
	return &deliveryService{
		repo:      repo,
		orderRepo: orderRepo,
		ledger:    ledger,
		catalog:   catalog,
		closer:    closer{closures: closures, notifier: notifier},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type resolvedUnit struct {
	index     int
	itemID    uuid.UUID
	serial    string
	price     *decimal.Decimal
	orderLine *uuid.UUID
}

// ── Create ───────────────────────────────────────────────────────────────────
// All-or-nothing per delivery: serials are checked against the request and
// against storage before the first delivered-counter increment.

func (s *deliveryService) Create(ctx context.Context, actor Actor, req dto.CreateDeliveryRequest, keys *RequestKeys) (*dto.DeliveryResponse, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, FieldErrors{"customer_id": "must be a valid uuid"}
	}
	shipDate, err := time.Parse(dateLayout, req.ShipDate)
	if err != nil {
		return nil, FieldErrors{"ship_date": "must be a date (YYYY-MM-DD)"}
	}

	if key := keys.documentKey(); key != nil {
		if existing, err := s.repo.FindByIdempotencyKey(ctx, *key); err == nil {
			return s.Get(ctx, existing.ID)
		}
	}

	units, err := s.preflight(ctx, req.LineItems)
	if err != nil {
		return nil, err
	}

	delivery := model.Delivery{
		ID:             uuid.New(),
		CustomerID:     customerID,
		Status:         model.StatusOpen,
		ShipDate:       shipDate,
		IdempotencyKey: keys.documentKey(),
	}
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.checkStoredSerials(ctx, tx, units); err != nil {
			return err
		}
		lines, reserved, err := s.materialize(ctx, tx, actor, customerID, delivery.ID, units, keys)
		if err == nil {
			delivery.LineItems = lines
			err = s.repo.Create(ctx, tx, &delivery)
		}
		if err != nil && tx == nil {
			// Without a transaction nothing rolls back on its own.
			s.release(ctx, nil, reserved, keys, actor)
		}
		return err
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		if key := keys.documentKey(); key != nil {
			if existing, ferr := s.repo.FindByIdempotencyKey(ctx, *key); ferr == nil {
				return s.Get(ctx, existing.ID)
			}
		}
		// A concurrent request stored one of our serials first.
		if serr := s.checkStoredSerials(ctx, nil, units); serr != nil {
			return nil, serr
		}
		return nil, ErrDuplicateRequest
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("delivery_id", delivery.ID.String()).
		Str("customer_id", customerID.String()).
		Int("units", len(units)).
		Str("actor", actor.label()).
		Msg("delivery created")
	return s.Get(ctx, delivery.ID)
}

func (s *deliveryService) preflight(ctx context.Context, reqs []dto.DeliveryLineItemRequest) ([]resolvedUnit, error) {
	fields := FieldErrors{}
	units := make([]resolvedUnit, 0, len(reqs))
	ids := make([]uuid.UUID, 0, len(reqs))

	firstSeen := map[string]int{}
	dup := &DuplicateSerialError{Fields: map[string]string{}}

	for i, r := range reqs {
		u := resolvedUnit{index: i, serial: r.SerialNumber, price: r.PricePerUnit}
		itemID, err := uuid.Parse(r.ItemID)
		if err != nil {
			fields[lineItemField(i, "item_id")] = "must be a valid uuid"
		} else {
			u.itemID = itemID
			ids = append(ids, itemID)
		}
		if r.SerialNumber == "" {
			fields[lineItemField(i, "serial_number")] = "required"
		} else if first, ok := firstSeen[r.SerialNumber]; ok {
			if _, listed := dup.Fields[lineItemField(first, "serial_number")]; !listed {
				dup.Serials = append(dup.Serials, r.SerialNumber)
				dup.Fields[lineItemField(first, "serial_number")] = "duplicate serial_number in request"
			}
			dup.Fields[lineItemField(i, "serial_number")] = "duplicate serial_number in request"
		} else {
			firstSeen[r.SerialNumber] = i
		}
		if r.OrderLineItem != nil && *r.OrderLineItem != "" {
			ol, err := uuid.Parse(*r.OrderLineItem)
			if err != nil {
				fields[lineItemField(i, "order_line_item")] = "must be a valid uuid"
			} else {
				u.orderLine = &ol
			}
		} else if r.PricePerUnit == nil {
			fields[lineItemField(i, "price_per_unit")] = "required when order_line_item is not set"
		}
		units = append(units, u)
	}
	if len(dup.Serials) > 0 {
		return nil, dup
	}

	items, err := s.catalog.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		if u.itemID == uuid.Nil {
			continue
		}
		if _, ok := items[u.itemID]; !ok {
			fields[lineItemField(u.index, "item_id")] = "unknown item"
		}
	}
	if len(fields) > 0 {
		return nil, fields
	}
	return units, nil
}

func (s *deliveryService) checkStoredSerials(ctx context.Context, tx *gorm.DB, units []resolvedUnit) error {
	serials := make([]string, 0, len(units))
	index := make(map[string]int, len(units))
	for _, u := range units {
		serials = append(serials, u.serial)
		index[u.serial] = u.index
	}
	existing, err := s.repo.ExistingSerials(ctx, tx, serials)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	dup := &DuplicateSerialError{Serials: existing, Fields: map[string]string{}}
	for _, sn := range existing {
		dup.Fields[lineItemField(index[sn], "serial_number")] = "serial_number already delivered"
	}
	return dup
}

// materialize builds delivery line items and bumps each referenced order
// line's delivered counter by one. Reserved order line ids are returned even
// on error.
func (s *deliveryService) materialize(
	ctx context.Context,
	tx *gorm.DB,
	actor Actor,
	customerID, deliveryID uuid.UUID,
	units []resolvedUnit,
	keys *RequestKeys,
) ([]model.DeliveryLineItem, []uuid.UUID, error) {
	lines := make([]model.DeliveryLineItem, 0, len(units))
	var reserved []uuid.UUID

	for _, u := range units {
		line := model.DeliveryLineItem{
			ID:           uuid.New(),
			DeliveryID:   deliveryID,
			ItemID:       u.itemID,
			SerialNumber: u.serial,
		}
		if u.orderLine == nil {
			line.PricePerUnit = *u.price
			lines = append(lines, line)
			continue
		}

		ol, err := s.orderRepo.FindLineItem(ctx, tx, *u.orderLine)
		if err != nil {
			return nil, reserved, fmt.Errorf("line_items[%d]: %w", u.index, notFound(err, "order_line_item"))
		}
		switch {
		case ol.Order == nil || ol.Order.CustomerID != customerID:
			return nil, reserved, fmt.Errorf("line_items[%d]: order_line_item belongs to another customer: %w", u.index, ErrInvalidReference)
		case !ol.Order.Status.IsOpen():
			return nil, reserved, fmt.Errorf("line_items[%d]: order %s is closed: %w", u.index, ol.OrderID, ErrInvalidReference)
		case ol.ItemID != u.itemID:
			return nil, reserved, fmt.Errorf("line_items[%d]: order_line_item is for a different item: %w", u.index, ErrInvalidReference)
		}

		if _, err := s.ledger.Reserve(ctx, tx, model.LedgerMutation{
			LineItemID:     ol.ID,
			Counter:        model.CounterDelivered,
			Quantity:       1,
			IdempotencyKey: keys.Next(ol.ID, "delivered"),
			Actor:          actor.label(),
		}); err != nil {
			return nil, reserved, fmt.Errorf("line_items[%d]: %w", u.index, ledgerErr(err))
		}
		reserved = append(reserved, ol.ID)

		orderLine := ol.ID
		line.OrderLineItemID = &orderLine
		line.PricePerUnit = ol.PricePerUnit
		lines = append(lines, line)
	}
	return lines, reserved, nil
}

// release returns one delivered unit per entry.
func (s *deliveryService) release(ctx context.Context, tx *gorm.DB, orderLines []uuid.UUID, keys *RequestKeys, actor Actor) error {
	var firstErr error
	for _, id := range orderLines {
		_, err := s.ledger.Release(ctx, tx, model.LedgerMutation{
			LineItemID:     id,
			Counter:        model.CounterDelivered,
			Quantity:       1,
			IdempotencyKey: keys.Next(id, "release-delivered"),
			Actor:          actor.label(),
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		log.Error().Err(firstErr).Msg("delivery: failed to release delivered units")
	}
	return firstErr
}

// ── Read ─────────────────────────────────────────────────────────────────────

func (s *deliveryService) Get(ctx context.Context, id uuid.UUID) (*dto.DeliveryResponse, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "delivery")
	}
	resp := deliveryToResponse(d)
	if d.Status == model.StatusClosed {
		resp.Closure = s.closer.find(ctx, model.DocumentDelivery, d.ID)
	}
	return resp, nil
}

func (s *deliveryService) List(ctx context.Context, filter dto.DocumentFilter) (*dto.DeliveryListResponse, error) {
	f, err := documentFilter(filter)
	if err != nil {
		return nil, err
	}
	deliveries, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := &dto.DeliveryListResponse{
		Data:  make([]dto.DeliveryResponse, 0, len(deliveries)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range deliveries {
		out.Data = append(out.Data, *deliveryToResponse(&deliveries[i]))
	}
	return out, nil
}

// ── Close ────────────────────────────────────────────────────────────────────
// Delivery line items are unit serials with no remaining quantity, so close
// only checks the status.

func (s *deliveryService) Close(ctx context.Context, actor Actor, deliveryID uuid.UUID, req dto.CloseRequest) (*dto.DeliveryResponse, error) {
	var closure *model.DocumentClosure
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		d, err := s.repo.FindByIDForUpdate(ctx, tx, deliveryID)
		if err != nil {
			return notFound(err, "delivery")
		}
		closure, err = evaluateClosure(closeTarget{
			docType: model.DocumentDelivery,
			docID:   d.ID,
			status:  d.Status,
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
	return s.Get(ctx, deliveryID)
}

// ── Delete ───────────────────────────────────────────────────────────────────
// Deleting an OPEN delivery returns its units to the order lines they fulfilled.

func (s *deliveryService) Delete(ctx context.Context, actor Actor, deliveryID uuid.UUID, keys *RequestKeys) error {
	keys = keys.Scoped("delete-delivery", deliveryID)
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		d, err := s.repo.FindByIDForUpdate(ctx, tx, deliveryID)
		if err != nil {
			return notFound(err, "delivery")
		}
		if !d.Status.IsOpen() {
			return ErrDocumentClosed
		}
		var orderLines []uuid.UUID
		for _, li := range d.LineItems {
			if li.OrderLineItemID != nil {
				orderLines = append(orderLines, *li.OrderLineItemID)
			}
		}
		if err := s.release(ctx, tx, orderLines, keys, actor); err != nil {
			return ledgerErr(err)
		}
		return s.repo.Delete(ctx, tx, deliveryID)
	})
	if err != nil {
		return err
	}
	log.Info().Str("delivery_id", deliveryID.String()).Str("actor", actor.label()).Msg("delivery deleted")
	return nil
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("fulfillment/service")

// Locker serializes allocators competing for the same customer and item.
// Implementations are best-effort: the ledger guard is what prevents
// over-allocation, the lock only keeps losers from churning.
type Locker interface {
	Obtain(ctx context.Context, key string) (release func(), err error)
}

// AllocationRequest asks for Quantity units of ItemID from the customer's
// OPEN purchase orders.
type AllocationRequest struct {
	CustomerID uuid.UUID
	ItemID     uuid.UUID
	Quantity   int
	Keys       *RequestKeys
	Actor      string
}

// AllocationPlan is one reservation against a PO line item. Each plan becomes
// one order line item priced at the PO line's price.
type AllocationPlan struct {
	PurchaseOrderID uuid.UUID
	POLineItemID    uuid.UUID
	ItemID          uuid.UUID
	Quantity        int
	PricePerUnit    decimal.Decimal
}

type AllocationService interface {
	// Allocate reserves oldest-first across the customer's OPEN PO line
	// items. It either reserves the full quantity or nothing.
	Allocate(ctx context.Context, tx *gorm.DB, req AllocationRequest) ([]AllocationPlan, error)
	// AllocateFrom reserves the full quantity on one named PO line item.
	AllocateFrom(ctx context.Context, tx *gorm.DB, poLineItemID uuid.UUID, req AllocationRequest) (AllocationPlan, error)
	// Release returns reserved units to their PO line items.
	Release(ctx context.Context, tx *gorm.DB, plans []AllocationPlan, keys *RequestKeys, actor string) error
	// Serialize takes the allocation locks for the customer's items in a
	// stable order. The returned func releases them.
	Serialize(ctx context.Context, customerID uuid.UUID, itemIDs []uuid.UUID) func()
}

type allocationService struct {
	poRepo repository.PurchaseOrderRepository
	ledger repository.LedgerRepository
	locker Locker
}

func NewAllocationService(poRepo repository.PurchaseOrderRepository, ledger repository.LedgerRepository, locker Locker) AllocationService {
	return &allocationService{poRepo: poRepo, ledger: ledger, locker: locker}
}

// ── Allocate ─────────────────────────────────────────────────────────────────

func (s *allocationService) Allocate(ctx context.Context, tx *gorm.DB, req AllocationRequest) ([]AllocationPlan, error) {
	ctx, span := tracer.Start(ctx, "allocation.Allocate")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer_id", req.CustomerID.String()),
		attribute.String("item_id", req.ItemID.String()),
		attribute.Int("quantity", req.Quantity),
	)

	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	candidates, err := s.poRepo.FindOpenCandidates(ctx, tx, req.CustomerID, req.ItemID)
	if err != nil {
		return nil, err
	}
	sortCandidates(candidates)

	need := req.Quantity
	var plans []AllocationPlan
	for _, c := range candidates {
		if need == 0 {
			break
		}
		remaining := c.Remaining()
		for need > 0 && remaining > 0 {
			take := min(remaining, need)
			_, err := s.ledger.Reserve(ctx, tx, model.LedgerMutation{
				LineItemID:     c.ID,
				Counter:        model.CounterOrdered,
				Quantity:       take,
				IdempotencyKey: req.Keys.Next(c.ID, "ordered"),
				Actor:          req.Actor,
			})
			if errors.Is(err, repository.ErrInsufficientRemaining) {
				// Lost a race: re-read and retry with what is actually left.
				fresh, gerr := s.ledger.Get(ctx, tx, c.ID, model.LineItemPO)
				if gerr != nil {
					s.rollback(ctx, tx, plans, req)
					return nil, ledgerErr(gerr)
				}
				remaining = fresh.RemainingQuantity()
				continue
			}
			if err != nil {
				s.rollback(ctx, tx, plans, req)
				return nil, ledgerErr(err)
			}
			plans = append(plans, AllocationPlan{
				PurchaseOrderID: c.PurchaseOrderID,
				POLineItemID:    c.ID,
				ItemID:          c.ItemID,
				Quantity:        take,
				PricePerUnit:    c.PricePerUnit,
			})
			need -= take
			remaining -= take
		}
	}

	if need > 0 {
		s.rollback(ctx, tx, plans, req)
		log.Info().
			Str("customer_id", req.CustomerID.String()).
			Str("item_id", req.ItemID.String()).
			Int("requested", req.Quantity).
			Int("available", req.Quantity-need).
			Msg("allocation: no capacity")
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrNoCapacity, req.Quantity, req.Quantity-need)
	}

	log.Debug().
		Str("customer_id", req.CustomerID.String()).
		Str("item_id", req.ItemID.String()).
		Int("quantity", req.Quantity).
		Int("po_line_items", len(plans)).
		Msg("allocation: reserved")
	return plans, nil
}

func (s *allocationService) rollback(ctx context.Context, tx *gorm.DB, plans []AllocationPlan, req AllocationRequest) {
	if err := s.Release(ctx, tx, plans, req.Keys, req.Actor); err != nil {
		log.Error().Err(err).Str("item_id", req.ItemID.String()).Msg("allocation: failed to release partial plan")
	}
}

// sortCandidates orders by PO start_date (undated last), then PO id, then
// line item id. Ids compare bytewise, the same order Postgres uses for uuid.
func sortCandidates(lines []model.POLineItem) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		as, bs := startDateOf(a), startDateOf(b)
		switch {
		case as == nil && bs != nil:
			return false
		case as != nil && bs == nil:
			return true
		case as != nil && !as.Equal(*bs):
			return as.Before(*bs)
		}
		if c := bytes.Compare(a.PurchaseOrderID[:], b.PurchaseOrderID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

func startDateOf(li model.POLineItem) *time.Time {
	if li.PurchaseOrder == nil {
		return nil
	}
	return li.PurchaseOrder.StartDate
}

// ── AllocateFrom ─────────────────────────────────────────────────────────────

func (s *allocationService) AllocateFrom(ctx context.Context, tx *gorm.DB, poLineItemID uuid.UUID, req AllocationRequest) (AllocationPlan, error) {
	ctx, span := tracer.Start(ctx, "allocation.AllocateFrom")
	defer span.End()
	span.SetAttributes(attribute.String("po_line_item_id", poLineItemID.String()), attribute.Int("quantity", req.Quantity))

	if req.Quantity <= 0 {
		return AllocationPlan{}, ErrInvalidQuantity
	}
	li, err := s.poRepo.FindLineItem(ctx, tx, poLineItemID)
	if err != nil {
		return AllocationPlan{}, notFound(err, "po_line_item "+poLineItemID.String())
	}
	po := li.PurchaseOrder
	switch {
	case po == nil:
		return AllocationPlan{}, fmt.Errorf("po_line_item %s: %w", poLineItemID, ErrNotFound)
	case po.CustomerID != req.CustomerID:
		return AllocationPlan{}, fmt.Errorf("po_line_item %s belongs to another customer: %w", poLineItemID, ErrInvalidReference)
	case li.ItemID != req.ItemID:
		return AllocationPlan{}, fmt.Errorf("po_line_item %s is for a different item: %w", poLineItemID, ErrInvalidReference)
	case !po.Status.IsOpen():
		return AllocationPlan{}, fmt.Errorf("purchase order %s is closed: %w", po.ID, ErrInvalidReference)
	}

	if _, err := s.ledger.Reserve(ctx, tx, model.LedgerMutation{
		LineItemID:     li.ID,
		Counter:        model.CounterOrdered,
		Quantity:       req.Quantity,
		IdempotencyKey: req.Keys.Next(li.ID, "ordered"),
		Actor:          req.Actor,
	}); err != nil {
		return AllocationPlan{}, ledgerErr(err)
	}
	return AllocationPlan{
		PurchaseOrderID: po.ID,
		POLineItemID:    li.ID,
		ItemID:          li.ItemID,
		Quantity:        req.Quantity,
		PricePerUnit:    li.PricePerUnit,
	}, nil
}

// ── Release ──────────────────────────────────────────────────────────────────

func (s *allocationService) Release(ctx context.Context, tx *gorm.DB, plans []AllocationPlan, keys *RequestKeys, actor string) error {
	var firstErr error
	for _, p := range plans {
		_, err := s.ledger.Release(ctx, tx, model.LedgerMutation{
			LineItemID:     p.POLineItemID,
			Counter:        model.CounterOrdered,
			Quantity:       p.Quantity,
			IdempotencyKey: keys.Next(p.POLineItemID, "release-ordered"),
			Actor:          actor,
		})
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("release %d from po_line_item %s: %w", p.Quantity, p.POLineItemID, err)
		}
	}
	return firstErr
}

// ── Serialize ────────────────────────────────────────────────────────────────

func (s *allocationService) Serialize(ctx context.Context, customerID uuid.UUID, itemIDs []uuid.UUID) func() {
	if s.locker == nil || len(itemIDs) == 0 {
		return func() {}
	}
	keys := make([]string, 0, len(itemIDs))
	seen := map[uuid.UUID]bool{}
	for _, id := range itemIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, "alloc:"+customerID.String()+":"+id.String())
	}
	sort.Strings(keys)

	var releases []func()
	for _, key := range keys {
		release, err := s.locker.Obtain(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("lock", key).Msg("allocation: proceeding without lock")
			continue
		}
		releases = append(releases, release)
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

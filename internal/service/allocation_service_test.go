package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fulfillment/internal/dto"
	"fulfillment/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate_OldestStartDateFirst(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")

	// Created out of date order so insertion order cannot explain the result.
	feb := h.createPO(t, customer, "2025-02-01", poLine{x, 5, 12})
	jan := h.createPO(t, customer, "2025-01-01", poLine{x, 5, 10})

	order := h.allocateOrder(t, customer, x, 7)

	require.Len(t, order.LineItems, 2)
	assert.Equal(t, jan.LineItems[0].ID, *order.LineItems[0].POLineItem)
	assert.Equal(t, 5, order.LineItems[0].Quantity)
	assert.Equal(t, "10", order.LineItems[0].PricePerUnit.String())
	assert.Equal(t, feb.LineItems[0].ID, *order.LineItems[1].POLineItem)
	assert.Equal(t, 2, order.LineItems[1].Quantity)
	assert.Equal(t, "12", order.LineItems[1].PricePerUnit.String())

	assert.Equal(t, 0, h.poLineStatus(t, jan.ID, 0).RemainingQuantity)
	assert.Equal(t, 3, h.poLineStatus(t, feb.ID, 0).RemainingQuantity)
}

func TestAllocate_UndatedPOsSortLast(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")

	undated := h.createPO(t, customer, "", poLine{x, 5, 9})
	dated := h.createPO(t, customer, "2030-06-01", poLine{x, 5, 10})

	order := h.allocateOrder(t, customer, x, 3)

	require.Len(t, order.LineItems, 1)
	assert.Equal(t, dated.LineItems[0].ID, *order.LineItems[0].POLineItem)
	assert.Equal(t, 0, h.poLineStatus(t, undated.ID, 0).OrderedQuantity)
}

func TestAllocate_IgnoresOtherCustomersAndClosedPOs(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")

	h.createPO(t, uuid.New(), "2024-01-01", poLine{x, 50, 1})
	closed := h.createPO(t, customer, "2024-06-01", poLine{x, 50, 1})
	_, err := h.pos.Close(context.Background(), admin, uuid.MustParse(closed.ID), dto.CloseRequest{
		AdminOverride:  true,
		OverrideReason: strPtr("superseded"),
	})
	require.NoError(t, err)
	open := h.createPO(t, customer, "2025-01-01", poLine{x, 4, 10})

	order := h.allocateOrder(t, customer, x, 4)

	require.Len(t, order.LineItems, 1)
	assert.Equal(t, open.LineItems[0].ID, *order.LineItems[0].POLineItem)
}

func TestAllocate_NoCapacityLeavesCountersUntouched(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	a := h.createPO(t, customer, "2025-01-01", poLine{x, 5, 10})
	b := h.createPO(t, customer, "2025-02-01", poLine{x, 5, 10})

	_, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID:     customer.String(),
		AllocateFromPO: true,
		LineItems:      []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 11}},
	}, service.NewRequestKeys(""))

	require.ErrorIs(t, err, service.ErrNoCapacity)
	assert.ErrorContains(t, err, "requested 11, available 10")
	assert.Equal(t, 0, h.poLineStatus(t, a.ID, 0).OrderedQuantity)
	assert.Equal(t, 0, h.poLineStatus(t, b.ID, 0).OrderedQuantity)

	list, err := h.orders.List(context.Background(), dto.DocumentFilter{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestAllocate_SecondLineFailureReturnsFirstLine(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	y := h.seedItem("Widget Y")
	px := h.createPO(t, customer, "2025-01-01", poLine{x, 5, 10}, poLine{y, 1, 10})

	_, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID:     customer.String(),
		AllocateFromPO: true,
		LineItems: []dto.OrderLineItemRequest{
			{ItemID: x.ID.String(), Quantity: 3},
			{ItemID: y.ID.String(), Quantity: 2},
		},
	}, service.NewRequestKeys(""))

	require.ErrorIs(t, err, service.ErrNoCapacity)
	assert.ErrorContains(t, err, "line_items[1]")
	assert.Equal(t, 0, h.poLineStatus(t, px.ID, 0).OrderedQuantity)
	assert.Equal(t, 0, h.poLineStatus(t, px.ID, 1).OrderedQuantity)
}

func TestAllocate_RejectsNonPositiveQuantity(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")

	_, err := h.allocation.Allocate(context.Background(), nil, service.AllocationRequest{
		CustomerID: uuid.New(),
		ItemID:     x.ID,
		Quantity:   0,
		Keys:       service.NewRequestKeys(""),
	})
	assert.ErrorIs(t, err, service.ErrInvalidQuantity)
}

func TestAllocate_ConcurrentCallersNeverExceedRemaining(t *testing.T) {
	// No locker: the ledger guard alone must hold the line at five units.
	h := newHarnessWithLocker(t, nil)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 5, 10})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, noCapacity := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.allocation.Allocate(context.Background(), nil, service.AllocationRequest{
				CustomerID: customer,
				ItemID:     x.ID,
				Quantity:   1,
				Keys:       service.NewRequestKeys(""),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, service.ErrNoCapacity):
				noCapacity++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, noCapacity)
	line := h.poLineStatus(t, po.ID, 0)
	assert.Equal(t, 5, line.OrderedQuantity)
	assert.Equal(t, 0, line.RemainingQuantity)
}

func TestAllocate_ConcurrentOrdersSerializedByLock(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	a := h.createPO(t, customer, "2025-01-01", poLine{x, 5, 10})
	b := h.createPO(t, customer, "2025-02-01", poLine{x, 5, 10})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
				CustomerID:     customer.String(),
				AllocateFromPO: true,
				LineItems:      []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 6}},
			}, service.NewRequestKeys(""))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, service.ErrNoCapacity)
		}
	}
	assert.Equal(t, 1, ok)

	la, lb := h.poLineStatus(t, a.ID, 0), h.poLineStatus(t, b.ID, 0)
	assert.Equal(t, 6, la.OrderedQuantity+lb.OrderedQuantity)
	assert.LessOrEqual(t, la.OrderedQuantity+la.WaivedQuantity, la.OriginalQuantity)
	assert.LessOrEqual(t, lb.OrderedQuantity+lb.WaivedQuantity, lb.OriginalQuantity)
}

func TestAllocateFrom_PinnedLineSkipsFIFO(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 5, 10})
	later := h.createPO(t, customer, "2025-03-01", poLine{x, 5, 14})

	o, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID: customer.String(),
		LineItems: []dto.OrderLineItemRequest{{
			ItemID:     x.ID.String(),
			Quantity:   2,
			POLineItem: strPtr(later.LineItems[0].ID),
		}},
	}, service.NewRequestKeys(""))

	require.NoError(t, err)
	require.Len(t, o.LineItems, 1)
	assert.Equal(t, later.LineItems[0].ID, *o.LineItems[0].POLineItem)
	assert.Equal(t, "14", o.LineItems[0].PricePerUnit.String())
	assert.Equal(t, 2, h.poLineStatus(t, later.ID, 0).OrderedQuantity)
}

func TestAllocateFrom_OtherCustomersLineIsInvalidReference(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")
	foreign := h.createPO(t, uuid.New(), "2025-01-01", poLine{x, 5, 10})

	_, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID: uuid.New().String(),
		LineItems: []dto.OrderLineItemRequest{{
			ItemID:     x.ID.String(),
			Quantity:   1,
			POLineItem: strPtr(foreign.LineItems[0].ID),
		}},
	}, service.NewRequestKeys(""))

	assert.ErrorIs(t, err, service.ErrInvalidReference)
	assert.Equal(t, 0, h.poLineStatus(t, foreign.ID, 0).OrderedQuantity)
}

func TestAllocateFrom_OverRemainingFailsWithoutPartialReserve(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 3, 10})

	_, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID: customer.String(),
		LineItems: []dto.OrderLineItemRequest{{
			ItemID:     x.ID.String(),
			Quantity:   4,
			POLineItem: strPtr(po.LineItems[0].ID),
		}},
	}, service.NewRequestKeys(""))

	assert.ErrorIs(t, err, service.ErrInsufficientRemaining)
	assert.Equal(t, 3, h.poLineStatus(t, po.ID, 0).RemainingQuantity)
}

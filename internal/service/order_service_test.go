package service_test

import (
	"context"
	"errors"
	"testing"

	"fulfillment/internal/dto"
	"fulfillment/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_AdHocLineKeepsCallerPrice(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")

	o, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID: uuid.NewString(),
		LineItems: []dto.OrderLineItemRequest{
			{ItemID: x.ID.String(), Quantity: 4, PricePerUnit: decPtr(3)},
		},
	}, service.NewRequestKeys(""))

	require.NoError(t, err)
	require.Len(t, o.LineItems, 1)
	assert.Nil(t, o.LineItems[0].POLineItem)
	assert.Equal(t, "3", o.LineItems[0].PricePerUnit.String())
	assert.Equal(t, 4, o.LineItems[0].RemainingQuantity)
	assert.Empty(t, h.store.LedgerEntries())
}

func TestCreateOrder_AdHocWithoutPriceIsFieldError(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")

	_, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID: uuid.NewString(),
		LineItems: []dto.OrderLineItemRequest{
			{ItemID: x.ID.String(), Quantity: 1, PricePerUnit: decPtr(1)},
			{ItemID: x.ID.String(), Quantity: 1},
		},
	}, service.NewRequestKeys(""))

	var fields service.FieldErrors
	require.True(t, errors.As(err, &fields))
	assert.Contains(t, fields, "line_items[1].price_per_unit")
	assert.NotContains(t, fields, "line_items[0].price_per_unit")
}

func TestCreateOrder_NoAutomaticAdHocFallback(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")

	// A price is supplied, but allocate_from_po still means PO-backed only.
	_, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID:     uuid.NewString(),
		AllocateFromPO: true,
		LineItems: []dto.OrderLineItemRequest{
			{ItemID: x.ID.String(), Quantity: 1, PricePerUnit: decPtr(9)},
		},
	}, service.NewRequestKeys(""))

	assert.ErrorIs(t, err, service.ErrNoCapacity)
}

func TestCreateOrder_ReplayedIdempotencyKeyReturnsSameOrder(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	req := dto.CreateOrderRequest{
		CustomerID:     customer.String(),
		AllocateFromPO: true,
		LineItems:      []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 5}},
	}

	first, err := h.orders.Create(context.Background(), staff, req, service.NewRequestKeys("order-req-1"))
	require.NoError(t, err)
	second, err := h.orders.Create(context.Background(), staff, req, service.NewRequestKeys("order-req-1"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, h.poLineStatus(t, po.ID, 0).OrderedQuantity)
}

func TestAddOrderLineItems_AllocatesAgainstPO(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 2)

	got, err := h.orders.AddLineItems(context.Background(), staff, uuid.MustParse(o.ID), dto.AddOrderLineItemsRequest{
		AllocateFromPO: true,
		LineItems:      []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 3}},
	}, service.NewRequestKeys(""))

	require.NoError(t, err)
	assert.Len(t, got.LineItems, 2)
	assert.Equal(t, 5, h.assertConserved(t, po.ID, 0).OrderedQuantity)
}

func TestAddOrderLineItems_ReplayedKeyAddsOnce(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 2)
	orderID := uuid.MustParse(o.ID)
	req := dto.AddOrderLineItemsRequest{
		AllocateFromPO: true,
		LineItems:      []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 2}},
	}

	first, err := h.orders.AddLineItems(context.Background(), staff, orderID, req, service.NewRequestKeys("retry-1"))
	require.NoError(t, err)
	second, err := h.orders.AddLineItems(context.Background(), staff, orderID, req, service.NewRequestKeys("retry-1"))
	require.NoError(t, err)

	assert.Len(t, first.LineItems, 2)
	assert.Len(t, second.LineItems, 2)
	line := h.assertConserved(t, po.ID, 0)
	assert.Equal(t, 4, line.OrderedQuantity)

	// Every reservation is backed by a row, so deleting frees all of it.
	require.NoError(t, h.orders.Delete(context.Background(), staff, orderID, service.NewRequestKeys("")))
	line = h.assertConserved(t, po.ID, 0)
	assert.Equal(t, 0, line.OrderedQuantity)
	assert.Equal(t, 10, line.RemainingQuantity)
}

func TestAddOrderLineItems_SameKeyOnTwoOrders(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	a := h.allocateOrder(t, customer, x, 1)
	b := h.allocateOrder(t, customer, x, 1)
	req := dto.AddOrderLineItemsRequest{
		AllocateFromPO: true,
		LineItems:      []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 3}},
	}

	for _, o := range []*dto.OrderResponse{a, b} {
		got, err := h.orders.AddLineItems(context.Background(), staff, uuid.MustParse(o.ID), req, service.NewRequestKeys("shared"))
		require.NoError(t, err)
		assert.Len(t, got.LineItems, 2)
	}

	assert.Equal(t, 8, h.assertConserved(t, po.ID, 0).OrderedQuantity)
}

func TestAddOrderLineItems_ReplayedAdHocLinesAddOnce(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")
	o, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID: uuid.NewString(),
		LineItems:  []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 1, PricePerUnit: decPtr(5)}},
	}, service.NewRequestKeys(""))
	require.NoError(t, err)
	req := dto.AddOrderLineItemsRequest{
		LineItems: []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 2, PricePerUnit: decPtr(5)}},
	}

	for i := 0; i < 2; i++ {
		_, err := h.orders.AddLineItems(context.Background(), staff, uuid.MustParse(o.ID), req, service.NewRequestKeys("adhoc-1"))
		require.NoError(t, err)
	}

	got, err := h.orders.Get(context.Background(), uuid.MustParse(o.ID))
	require.NoError(t, err)
	assert.Len(t, got.LineItems, 2)
}

func TestAddOrderLineItems_FailureKeepsExistingCounters(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 4, 10})
	o := h.allocateOrder(t, customer, x, 2)

	_, err := h.orders.AddLineItems(context.Background(), staff, uuid.MustParse(o.ID), dto.AddOrderLineItemsRequest{
		AllocateFromPO: true,
		LineItems: []dto.OrderLineItemRequest{
			{ItemID: x.ID.String(), Quantity: 1},
			{ItemID: x.ID.String(), Quantity: 5},
		},
	}, service.NewRequestKeys(""))

	require.ErrorIs(t, err, service.ErrNoCapacity)
	assert.Equal(t, 2, h.assertConserved(t, po.ID, 0).OrderedQuantity)
	got, err := h.orders.Get(context.Background(), uuid.MustParse(o.ID))
	require.NoError(t, err)
	assert.Len(t, got.LineItems, 1)
}

func TestRemoveOrderLineItem_ReturnsQuantityToPO(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 3)

	got, err := h.orders.RemoveLineItem(context.Background(), staff, uuid.MustParse(o.ID), uuid.MustParse(o.LineItems[0].ID), service.NewRequestKeys(""))

	require.NoError(t, err)
	assert.Empty(t, got.LineItems)
	line := h.assertConserved(t, po.ID, 0)
	assert.Equal(t, 0, line.OrderedQuantity)
	assert.Equal(t, 10, line.RemainingQuantity)
	assert.Empty(t, line.Orders)
}

func TestRemoveOrderLineItem_SameKeyOnTwoLines(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	a := h.allocateOrder(t, customer, x, 3)
	b := h.allocateOrder(t, customer, x, 3)

	for _, o := range []*dto.OrderResponse{a, b} {
		_, err := h.orders.RemoveLineItem(context.Background(), staff, uuid.MustParse(o.ID), uuid.MustParse(o.LineItems[0].ID), service.NewRequestKeys("rm"))
		require.NoError(t, err)
	}

	line := h.assertConserved(t, po.ID, 0)
	assert.Equal(t, 0, line.OrderedQuantity)
	assert.Equal(t, 10, line.RemainingQuantity)
}

func TestRemoveOrderLineItem_RetryAfterSuccessIsNotFound(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	keep := h.allocateOrder(t, customer, x, 3)
	o := h.allocateOrder(t, customer, x, 3)
	orderID, lineID := uuid.MustParse(o.ID), uuid.MustParse(o.LineItems[0].ID)

	_, err := h.orders.RemoveLineItem(context.Background(), staff, orderID, lineID, service.NewRequestKeys("rm-1"))
	require.NoError(t, err)
	_, err = h.orders.RemoveLineItem(context.Background(), staff, orderID, lineID, service.NewRequestKeys("rm-1"))
	assert.ErrorIs(t, err, service.ErrNotFound)

	line := h.assertConserved(t, po.ID, 0)
	assert.Equal(t, 3, line.OrderedQuantity)
	require.Len(t, line.Orders, 1)
	assert.Equal(t, keep.ID, line.Orders[0].OrderID)
}

func TestDeleteOrder_RefusedWithDeliveries(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 2)
	h.deliver(t, customer, x, o.LineItems[0].ID, "SN-100")

	err := h.orders.Delete(context.Background(), staff, uuid.MustParse(o.ID), service.NewRequestKeys(""))

	assert.ErrorIs(t, err, service.ErrHasDependents)
}

func TestDeleteOrder_SameKeyOnTwoOrders(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	a := h.allocateOrder(t, customer, x, 4)
	b := h.allocateOrder(t, customer, x, 4)

	require.NoError(t, h.orders.Delete(context.Background(), staff, uuid.MustParse(a.ID), service.NewRequestKeys("k")))
	require.NoError(t, h.orders.Delete(context.Background(), staff, uuid.MustParse(b.ID), service.NewRequestKeys("k")))

	line := h.assertConserved(t, po.ID, 0)
	assert.Equal(t, 0, line.OrderedQuantity)
	assert.Equal(t, 10, line.RemainingQuantity)
	assert.Empty(t, line.Orders)
}

func TestDeleteOrder_RetryAfterSuccessIsNotFound(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	po := h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	h.allocateOrder(t, customer, x, 2)
	o := h.allocateOrder(t, customer, x, 2)

	require.NoError(t, h.orders.Delete(context.Background(), staff, uuid.MustParse(o.ID), service.NewRequestKeys("del-1")))
	err := h.orders.Delete(context.Background(), staff, uuid.MustParse(o.ID), service.NewRequestKeys("del-1"))

	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Equal(t, 2, h.assertConserved(t, po.ID, 0).OrderedQuantity)
}

func TestCloseOrder_BlocksUntilDelivered(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 1)

	_, err := h.orders.Close(context.Background(), staff, uuid.MustParse(o.ID), dto.CloseRequest{})
	var unfulfilled *service.UnfulfilledLineItemsError
	require.True(t, errors.As(err, &unfulfilled))
	assert.Equal(t, 1, unfulfilled.LineItems[0].RemainingQuantity)

	h.deliver(t, customer, x, o.LineItems[0].ID, "SN-200")

	closed, err := h.orders.Close(context.Background(), staff, uuid.MustParse(o.ID), dto.CloseRequest{})
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", closed.Status)
	assert.Equal(t, "Fully Delivered", closed.FulfillmentStatus.Progress)
}

func TestCloseOrder_AdminOverrideNotifies(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")
	o, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID: uuid.NewString(),
		LineItems:  []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 2, PricePerUnit: decPtr(5)}},
	}, service.NewRequestKeys(""))
	require.NoError(t, err)

	closed, err := h.orders.Close(context.Background(), admin, uuid.MustParse(o.ID), dto.CloseRequest{
		AdminOverride:  true,
		OverrideReason: strPtr("customer cancelled remainder"),
	})

	require.NoError(t, err)
	assert.Equal(t, "CLOSED", closed.Status)
	assert.Equal(t, 1, h.notifier.count())
}

func TestAddOrderLineItems_ClosedOrderIsRejected(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")
	o, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID: uuid.NewString(),
		LineItems:  []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 1, PricePerUnit: decPtr(5)}},
	}, service.NewRequestKeys(""))
	require.NoError(t, err)
	_, err = h.orders.Close(context.Background(), admin, uuid.MustParse(o.ID), dto.CloseRequest{
		AdminOverride:  true,
		OverrideReason: strPtr("stop"),
	})
	require.NoError(t, err)

	_, err = h.orders.AddLineItems(context.Background(), staff, uuid.MustParse(o.ID), dto.AddOrderLineItemsRequest{
		LineItems: []dto.OrderLineItemRequest{{ItemID: x.ID.String(), Quantity: 1, PricePerUnit: decPtr(5)}},
	}, service.NewRequestKeys(""))
	assert.ErrorIs(t, err, service.ErrDocumentClosed)
}

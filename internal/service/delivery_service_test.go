package service_test

import (
	"context"
	"errors"
	"testing"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"
	"fulfillment/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deliver ships one serial against an order line item.
func (h *harness) deliver(t *testing.T, customerID uuid.UUID, item model.Item, orderLineID string, serial string) *dto.DeliveryResponse {
	t.Helper()
	d, err := h.deliveries.Create(context.Background(), staff, dto.CreateDeliveryRequest{
		CustomerID: customerID.String(),
		ShipDate:   "2025-03-01",
		LineItems: []dto.DeliveryLineItemRequest{{
			ItemID:        item.ID.String(),
			SerialNumber:  serial,
			OrderLineItem: strPtr(orderLineID),
		}},
	}, service.NewRequestKeys(""))
	require.NoError(t, err)
	return d
}

func orderLine(t *testing.T, h *harness, orderID string) dto.OrderLineFulfillment {
	t.Helper()
	st, err := h.fulfillment.OrderStatus(context.Background(), uuid.MustParse(orderID))
	require.NoError(t, err)
	require.NotEmpty(t, st.LineItems)
	return st.LineItems[0]
}

func TestCreateDelivery_IncrementsDeliveredAndInheritsPrice(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 17})
	o := h.allocateOrder(t, customer, x, 3)

	d, err := h.deliveries.Create(context.Background(), staff, dto.CreateDeliveryRequest{
		CustomerID: customer.String(),
		ShipDate:   "2025-03-01",
		LineItems: []dto.DeliveryLineItemRequest{
			{ItemID: x.ID.String(), SerialNumber: "SN-1", OrderLineItem: strPtr(o.LineItems[0].ID)},
			// Caller price is ignored when the unit fulfills an order line.
			{ItemID: x.ID.String(), SerialNumber: "SN-2", OrderLineItem: strPtr(o.LineItems[0].ID), PricePerUnit: decPtr(1)},
		},
	}, service.NewRequestKeys(""))

	require.NoError(t, err)
	require.Len(t, d.LineItems, 2)
	for _, li := range d.LineItems {
		assert.Equal(t, "17", li.PricePerUnit.String())
	}
	line := orderLine(t, h, o.ID)
	assert.Equal(t, 2, line.DeliveredQuantity)
	assert.Equal(t, 1, line.RemainingQuantity)
	assert.Equal(t, "66% Delivered", line.Progress)
}

func TestCreateDelivery_DuplicateSerialInRequest(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 3)
	before := len(h.store.LedgerEntries())

	_, err := h.deliveries.Create(context.Background(), staff, dto.CreateDeliveryRequest{
		CustomerID: customer.String(),
		ShipDate:   "2025-03-01",
		LineItems: []dto.DeliveryLineItemRequest{
			{ItemID: x.ID.String(), SerialNumber: "SN-1", OrderLineItem: strPtr(o.LineItems[0].ID)},
			{ItemID: x.ID.String(), SerialNumber: "SN-1", OrderLineItem: strPtr(o.LineItems[0].ID)},
		},
	}, service.NewRequestKeys(""))

	var dup *service.DuplicateSerialError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"SN-1"}, dup.Serials)
	assert.Contains(t, dup.Fields, "line_items[0].serial_number")
	assert.Contains(t, dup.Fields, "line_items[1].serial_number")
	assert.Len(t, h.store.LedgerEntries(), before)
	assert.Equal(t, 0, orderLine(t, h, o.ID).DeliveredQuantity)
}

func TestCreateDelivery_SerialAlreadyStored(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 3)
	h.deliver(t, customer, x, o.LineItems[0].ID, "SN-1")
	before := len(h.store.LedgerEntries())

	_, err := h.deliveries.Create(context.Background(), staff, dto.CreateDeliveryRequest{
		CustomerID: customer.String(),
		ShipDate:   "2025-03-02",
		LineItems: []dto.DeliveryLineItemRequest{
			{ItemID: x.ID.String(), SerialNumber: "SN-9", OrderLineItem: strPtr(o.LineItems[0].ID)},
			{ItemID: x.ID.String(), SerialNumber: "SN-1", OrderLineItem: strPtr(o.LineItems[0].ID)},
		},
	}, service.NewRequestKeys(""))

	var dup *service.DuplicateSerialError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "serial_number already delivered", dup.Fields["line_items[1].serial_number"])
	assert.Len(t, h.store.LedgerEntries(), before)
	assert.Equal(t, 1, orderLine(t, h, o.ID).DeliveredQuantity)
}

func TestCreateDelivery_OverDeliveryRollsBack(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 2)

	_, err := h.deliveries.Create(context.Background(), staff, dto.CreateDeliveryRequest{
		CustomerID: customer.String(),
		ShipDate:   "2025-03-01",
		LineItems: []dto.DeliveryLineItemRequest{
			{ItemID: x.ID.String(), SerialNumber: "SN-1", OrderLineItem: strPtr(o.LineItems[0].ID)},
			{ItemID: x.ID.String(), SerialNumber: "SN-2", OrderLineItem: strPtr(o.LineItems[0].ID)},
			{ItemID: x.ID.String(), SerialNumber: "SN-3", OrderLineItem: strPtr(o.LineItems[0].ID)},
		},
	}, service.NewRequestKeys(""))

	assert.ErrorIs(t, err, service.ErrInsufficientRemaining)
	assert.Equal(t, 0, orderLine(t, h, o.ID).DeliveredQuantity)
	list, err := h.deliveries.List(context.Background(), dto.DocumentFilter{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestCreateDelivery_UnlinkedUnitNeedsPrice(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")

	_, err := h.deliveries.Create(context.Background(), staff, dto.CreateDeliveryRequest{
		CustomerID: uuid.NewString(),
		ShipDate:   "2025-03-01",
		LineItems:  []dto.DeliveryLineItemRequest{{ItemID: x.ID.String(), SerialNumber: "SN-1"}},
	}, service.NewRequestKeys(""))

	var fields service.FieldErrors
	require.True(t, errors.As(err, &fields))
	assert.Contains(t, fields, "line_items[0].price_per_unit")
}

func TestCreateDelivery_ClosedOrderIsInvalidReference(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 2)
	_, err := h.orders.Close(context.Background(), admin, uuid.MustParse(o.ID), dto.CloseRequest{
		AdminOverride:  true,
		OverrideReason: strPtr("stop shipping"),
	})
	require.NoError(t, err)

	_, err = h.deliveries.Create(context.Background(), staff, dto.CreateDeliveryRequest{
		CustomerID: customer.String(),
		ShipDate:   "2025-03-01",
		LineItems: []dto.DeliveryLineItemRequest{
			{ItemID: x.ID.String(), SerialNumber: "SN-1", OrderLineItem: strPtr(o.LineItems[0].ID)},
		},
	}, service.NewRequestKeys(""))

	assert.ErrorIs(t, err, service.ErrInvalidReference)
}

func TestDeleteDelivery_ReturnsUnitsToOrder(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 2)
	d := h.deliver(t, customer, x, o.LineItems[0].ID, "SN-1")

	require.NoError(t, h.deliveries.Delete(context.Background(), staff, uuid.MustParse(d.ID), service.NewRequestKeys("")))

	assert.Equal(t, 0, orderLine(t, h, o.ID).DeliveredQuantity)
	// The serial is free again once its delivery is gone.
	h.deliver(t, customer, x, o.LineItems[0].ID, "SN-1")
}

func TestDeleteDelivery_SameKeyOnTwoDeliveries(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 3)
	first := h.deliver(t, customer, x, o.LineItems[0].ID, "SN-1")
	second := h.deliver(t, customer, x, o.LineItems[0].ID, "SN-2")
	require.Equal(t, 2, orderLine(t, h, o.ID).DeliveredQuantity)

	for _, d := range []*dto.DeliveryResponse{first, second} {
		require.NoError(t, h.deliveries.Delete(context.Background(), staff, uuid.MustParse(d.ID), service.NewRequestKeys("k")))
	}

	assert.Equal(t, 0, orderLine(t, h, o.ID).DeliveredQuantity)
}

func TestDeleteDelivery_RetryAfterSuccessIsNotFound(t *testing.T) {
	h := newHarness(t)
	customer := uuid.New()
	x := h.seedItem("Widget X")
	h.createPO(t, customer, "2025-01-01", poLine{x, 10, 10})
	o := h.allocateOrder(t, customer, x, 3)
	h.deliver(t, customer, x, o.LineItems[0].ID, "SN-1")
	d := h.deliver(t, customer, x, o.LineItems[0].ID, "SN-2")

	require.NoError(t, h.deliveries.Delete(context.Background(), staff, uuid.MustParse(d.ID), service.NewRequestKeys("del-1")))
	err := h.deliveries.Delete(context.Background(), staff, uuid.MustParse(d.ID), service.NewRequestKeys("del-1"))

	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Equal(t, 1, orderLine(t, h, o.ID).DeliveredQuantity)
}

func TestCloseDelivery_StatusOnly(t *testing.T) {
	h := newHarness(t)
	x := h.seedItem("Widget X")
	d, err := h.deliveries.Create(context.Background(), staff, dto.CreateDeliveryRequest{
		CustomerID: uuid.NewString(),
		ShipDate:   "2025-03-01",
		LineItems:  []dto.DeliveryLineItemRequest{{ItemID: x.ID.String(), SerialNumber: "SN-1", PricePerUnit: decPtr(4)}},
	}, service.NewRequestKeys(""))
	require.NoError(t, err)

	closed, err := h.deliveries.Close(context.Background(), staff, uuid.MustParse(d.ID), dto.CloseRequest{})
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", closed.Status)
	require.NotNil(t, closed.Closure)
	assert.False(t, closed.Closure.AdminOverride)

	_, err = h.deliveries.Close(context.Background(), staff, uuid.MustParse(d.ID), dto.CloseRequest{})
	assert.ErrorIs(t, err, service.ErrDocumentClosed)

	err = h.deliveries.Delete(context.Background(), staff, uuid.MustParse(d.ID), service.NewRequestKeys(""))
	assert.ErrorIs(t, err, service.ErrDocumentClosed)
}

package service_test

import (
	"context"
	"sync"
	"testing"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"
	"fulfillment/internal/repository/memrepo"
	"fulfillment/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

// recordingNotifier captures override closes instead of queueing them.
type recordingNotifier struct {
	mu       sync.Mutex
	closures []model.DocumentClosure
}

func (n *recordingNotifier) NotifyOverride(_ context.Context, c model.DocumentClosure) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closures = append(n.closures, c)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.closures)
}

var _ service.OverrideNotifier = (*recordingNotifier)(nil)

// mutexLocker is an in-process Locker with one mutex per key.
type mutexLocker struct {
	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func newMutexLocker() *mutexLocker {
	return &mutexLocker{keys: map[string]*sync.Mutex{}}
}

func (l *mutexLocker) Obtain(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.keys[key]
	if !ok {
		m = &sync.Mutex{}
		l.keys[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

var _ service.Locker = (*mutexLocker)(nil)

// ── Harness ───────────────────────────────────────────────────────────────────

type harness struct {
	store       *memrepo.Store
	notifier    *recordingNotifier
	catalog     service.CatalogService
	fulfillment service.FulfillmentService
	allocation  service.AllocationService
	pos         service.PurchaseOrderService
	orders      service.OrderService
	deliveries  service.DeliveryService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithLocker(t, newMutexLocker())
}

func newHarnessWithLocker(t *testing.T, locker service.Locker) *harness {
	t.Helper()
	store := memrepo.NewStore()
	notifier := &recordingNotifier{}

	catalog := service.NewCatalogService(store.Items(), nil)
	fulfillment := service.NewFulfillmentService(store.PurchaseOrders(), store.Orders(), store.Deliveries())
	allocation := service.NewAllocationService(store.PurchaseOrders(), store.Ledger(), locker)

	return &harness{
		store:       store,
		notifier:    notifier,
		catalog:     catalog,
		fulfillment: fulfillment,
		allocation:  allocation,
		pos: service.NewPurchaseOrderService(
			store.PurchaseOrders(), store.Orders(), store.Ledger(), store.Closures(),
			catalog, fulfillment, notifier),
		orders: service.NewOrderService(
			store.Orders(), store.Deliveries(), store.Closures(),
			allocation, catalog, fulfillment, notifier),
		deliveries: service.NewDeliveryService(
			store.Deliveries(), store.Orders(), store.Ledger(), store.Closures(),
			catalog, notifier),
	}
}

var (
	staff = service.Actor{ID: "u-staff", Name: "staff", IsAdmin: false}
	admin = service.Actor{ID: "u-admin", Name: "admin", IsAdmin: true}
)

func (h *harness) seedItem(name string) model.Item {
	it := model.Item{
		ID:       uuid.New(),
		Name:     name,
		Version:  "1",
		MSRP:     decimal.NewFromInt(20),
		MinPrice: decimal.NewFromInt(5),
	}
	h.store.PutItem(it)
	return it
}

// poLine describes one line of a seeded purchase order.
type poLine struct {
	item  model.Item
	qty   int
	price int64
}

func (h *harness) createPO(t *testing.T, customerID uuid.UUID, startDate string, lines ...poLine) *dto.PurchaseOrderResponse {
	t.Helper()
	req := dto.CreatePurchaseOrderRequest{CustomerID: customerID.String()}
	if startDate != "" {
		req.StartDate = &startDate
	}
	for _, l := range lines {
		req.LineItems = append(req.LineItems, dto.POLineItemRequest{
			ItemID:           l.item.ID.String(),
			OriginalQuantity: l.qty,
			PricePerUnit:     decimal.NewFromInt(l.price),
		})
	}
	po, err := h.pos.Create(context.Background(), staff, req)
	require.NoError(t, err)
	return po
}

// allocateOrder creates an order drawing qty of item from the customer's POs.
func (h *harness) allocateOrder(t *testing.T, customerID uuid.UUID, item model.Item, qty int) *dto.OrderResponse {
	t.Helper()
	o, err := h.orders.Create(context.Background(), staff, dto.CreateOrderRequest{
		CustomerID:     customerID.String(),
		AllocateFromPO: true,
		LineItems:      []dto.OrderLineItemRequest{{ItemID: item.ID.String(), Quantity: qty}},
	}, service.NewRequestKeys(""))
	require.NoError(t, err)
	return o
}

func (h *harness) poLineStatus(t *testing.T, poID string, idx int) dto.POLineFulfillment {
	t.Helper()
	st, err := h.fulfillment.POStatus(context.Background(), uuid.MustParse(poID))
	require.NoError(t, err)
	require.Greater(t, len(st.LineItems), idx)
	return st.LineItems[idx]
}

// assertConserved checks that the order lines drawing from a PO line account
// for exactly its ordered counter, and that the counters add up to the
// original quantity.
func (h *harness) assertConserved(t *testing.T, poID string, idx int) dto.POLineFulfillment {
	t.Helper()
	line := h.poLineStatus(t, poID, idx)
	linked := 0
	for _, ref := range line.Orders {
		linked += ref.Quantity
	}
	assert.Equal(t, line.OrderedQuantity, linked, "linked order quantity")
	assert.Equal(t, line.OriginalQuantity, line.OrderedQuantity+line.WaivedQuantity+line.RemainingQuantity)
	return line
}

func strPtr(s string) *string { return &s }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

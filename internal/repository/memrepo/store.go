// Package memrepo holds map-backed implementations of the repository
// interfaces. Services run against them in unit tests; every method is
// serialized on a single mutex, and values are copied in and out so callers
// never alias stored state.
package memrepo

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the shared in-memory database behind every repository view.
type Store struct {
	mu sync.Mutex

	items         map[uuid.UUID]model.Item
	pos           map[uuid.UUID]model.PurchaseOrder
	poLines       map[uuid.UUID]model.POLineItem
	orders        map[uuid.UUID]model.Order
	orderLines    map[uuid.UUID]model.OrderLineItem
	deliveries    map[uuid.UUID]model.Delivery
	deliveryLines map[uuid.UUID]model.DeliveryLineItem
	entries       []model.LedgerEntry
	closures      []model.DocumentClosure

	// seq records insertion order; it stands in for created_at tiebreaks.
	seq     map[uuid.UUID]int64
	nextSeq int64
}

func NewStore() *Store {
	return &Store{
		items:         map[uuid.UUID]model.Item{},
		pos:           map[uuid.UUID]model.PurchaseOrder{},
		poLines:       map[uuid.UUID]model.POLineItem{},
		orders:        map[uuid.UUID]model.Order{},
		orderLines:    map[uuid.UUID]model.OrderLineItem{},
		deliveries:    map[uuid.UUID]model.Delivery{},
		deliveryLines: map[uuid.UUID]model.DeliveryLineItem{},
		seq:           map[uuid.UUID]int64{},
	}
}

func (s *Store) Items() repository.ItemRepository                   { return itemRepo{s} }
func (s *Store) PurchaseOrders() repository.PurchaseOrderRepository { return poRepo{s} }
func (s *Store) Orders() repository.OrderRepository                 { return orderRepo{s} }
func (s *Store) Deliveries() repository.DeliveryRepository          { return deliveryRepo{s} }
func (s *Store) Ledger() repository.LedgerRepository                { return ledgerRepo{s} }
func (s *Store) Closures() repository.ClosureRepository             { return closureRepo{s} }

// PutItem seeds the catalog.
func (s *Store) PutItem(it model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	s.items[it.ID] = it
}

// LedgerEntries returns a copy of the journal, oldest first.
func (s *Store) LedgerEntries() []model.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LedgerEntry(nil), s.entries...)
}

func (s *Store) track(id uuid.UUID) time.Time {
	s.nextSeq++
	s.seq[id] = s.nextSeq
	return time.Now().UTC()
}

func (s *Store) bySeq(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return s.seq[ids[i]] < s.seq[ids[j]] })
}

func (s *Store) itemPtr(id uuid.UUID) *model.Item {
	if it, ok := s.items[id]; ok {
		return &it
	}
	return nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func notFound() error { return gorm.ErrRecordNotFound }

func uuidLess(a, b uuid.UUID) bool { return bytes.Compare(a[:], b[:]) < 0 }

func paginate(n int, page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	start := (page - 1) * limit
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return start, end
}

func matches(f repository.DocumentFilter, customerID uuid.UUID, status model.DocumentStatus) bool {
	if f.CustomerID != nil && *f.CustomerID != customerID {
		return false
	}
	return f.Status == "" || f.Status == status
}

func closeHeader(status *model.DocumentStatus, closedAt **time.Time, closedBy **string, by string, at time.Time) error {
	if !status.CanTransitionTo(model.StatusClosed) {
		return repository.ErrNotOpen
	}
	*status = model.StatusClosed
	*closedAt = &at
	*closedBy = &by
	return nil
}

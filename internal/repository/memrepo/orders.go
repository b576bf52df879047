package memrepo

import (
	"context"
	"sort"
	"time"

	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type orderRepo struct{ s *Store }

var _ repository.OrderRepository = orderRepo{}

func (r orderRepo) DB() *gorm.DB { return nil }

func (r orderRepo) Create(_ context.Context, _ *gorm.DB, o *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o.IdempotencyKey != nil {
		for _, existing := range r.s.orders {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *o.IdempotencyKey {
				return repository.ErrDuplicateKey
			}
		}
	}
	ensureID(&o.ID)
	if o.Status == "" {
		o.Status = model.StatusOpen
	}
	o.CreatedAt = r.s.track(o.ID)
	o.UpdatedAt = o.CreatedAt
	for i := range o.LineItems {
		li := &o.LineItems[i]
		ensureID(&li.ID)
		li.OrderID = o.ID
		li.CreatedAt = r.s.track(li.ID)
		r.s.orderLines[li.ID] = stripOrderLine(*li)
	}
	header := *o
	header.LineItems = nil
	r.s.orders[o.ID] = header
	return nil
}

func (r orderRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.load(id, true)
}

func (r orderRepo) FindByIdempotencyKey(_ context.Context, key string) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, o := range r.s.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return r.load(id, false)
		}
	}
	return &model.Order{}, notFound()
}

func (r orderRepo) FindByIDForUpdate(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.load(id, false)
}

func (r orderRepo) load(id uuid.UUID, withAssoc bool) (*model.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return &model.Order{}, notFound()
	}
	var ids []uuid.UUID
	for lid, li := range r.s.orderLines {
		if li.OrderID == id {
			ids = append(ids, lid)
		}
	}
	r.s.bySeq(ids)
	o.LineItems = make([]model.OrderLineItem, 0, len(ids))
	for _, lid := range ids {
		li := r.s.orderLines[lid]
		if withAssoc {
			li.Item = r.s.itemPtr(li.ItemID)
			if li.POLineItemID != nil {
				if pl, ok := r.s.poLines[*li.POLineItemID]; ok {
					li.POLineItem = &pl
				}
			}
		}
		o.LineItems = append(o.LineItems, li)
	}
	return &o, nil
}

func (r orderRepo) List(_ context.Context, filter repository.DocumentFilter) ([]model.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, o := range r.s.orders {
		if matches(filter, o.CustomerID, o.Status) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return r.s.seq[ids[i]] > r.s.seq[ids[j]] })
	start, end := paginate(len(ids), filter.Page, filter.Limit)
	out := make([]model.Order, 0, end-start)
	for _, id := range ids[start:end] {
		o, _ := r.load(id, false)
		out = append(out, *o)
	}
	return out, int64(len(ids)), nil
}

func (r orderRepo) FindLineItem(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.OrderLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	li, ok := r.s.orderLines[id]
	if !ok {
		return &model.OrderLineItem{}, notFound()
	}
	o := r.s.orders[li.OrderID]
	li.Order = &o
	return &li, nil
}

func (r orderRepo) FindLineItemsByPOLineItemIDs(_ context.Context, ids []uuid.UUID) ([]model.OrderLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var lineIDs []uuid.UUID
	for id, li := range r.s.orderLines {
		if li.POLineItemID != nil && want[*li.POLineItemID] {
			lineIDs = append(lineIDs, id)
		}
	}
	r.s.bySeq(lineIDs)
	out := make([]model.OrderLineItem, 0, len(lineIDs))
	for _, id := range lineIDs {
		li := r.s.orderLines[id]
		o := r.s.orders[li.OrderID]
		li.Order = &o
		out = append(out, li)
	}
	return out, nil
}

func (r orderRepo) AddLineItem(_ context.Context, _ *gorm.DB, li *model.OrderLineItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[li.OrderID]; !ok {
		return notFound()
	}
	ensureID(&li.ID)
	li.CreatedAt = r.s.track(li.ID)
	r.s.orderLines[li.ID] = stripOrderLine(*li)
	return nil
}

func (r orderRepo) DeleteLineItem(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orderLines[id]; !ok {
		return notFound()
	}
	delete(r.s.orderLines, id)
	return nil
}

func (r orderRepo) MarkClosed(_ context.Context, _ *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return notFound()
	}
	if err := closeHeader(&o.Status, &o.ClosedAt, &o.ClosedBy, closedBy, at); err != nil {
		return err
	}
	o.UpdatedAt = at
	r.s.orders[id] = o
	return nil
}

func (r orderRepo) Delete(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[id]; !ok {
		return notFound()
	}
	for lid, li := range r.s.orderLines {
		if li.OrderID == id {
			delete(r.s.orderLines, lid)
		}
	}
	delete(r.s.orders, id)
	return nil
}

func stripOrderLine(li model.OrderLineItem) model.OrderLineItem {
	li.Item = nil
	li.POLineItem = nil
	li.Order = nil
	return li
}

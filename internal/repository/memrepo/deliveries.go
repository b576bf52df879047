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

type deliveryRepo struct{ s *Store }

var _ repository.DeliveryRepository = deliveryRepo{}

func (r deliveryRepo) DB() *gorm.DB { return nil }

func (r deliveryRepo) Create(_ context.Context, _ *gorm.DB, d *model.Delivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.IdempotencyKey != nil {
		for _, existing := range r.s.deliveries {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *d.IdempotencyKey {
				return repository.ErrDuplicateKey
			}
		}
	}
	seen := map[string]bool{}
	for _, li := range r.s.deliveryLines {
		seen[li.SerialNumber] = true
	}
	for _, li := range d.LineItems {
		if seen[li.SerialNumber] {
			return repository.ErrDuplicateKey
		}
		seen[li.SerialNumber] = true
	}

	ensureID(&d.ID)
	if d.Status == "" {
		d.Status = model.StatusOpen
	}
	d.CreatedAt = r.s.track(d.ID)
	d.UpdatedAt = d.CreatedAt
	for i := range d.LineItems {
		li := &d.LineItems[i]
		ensureID(&li.ID)
		li.DeliveryID = d.ID
		li.CreatedAt = r.s.track(li.ID)
		stored := *li
		stored.Item, stored.OrderLineItem, stored.Delivery = nil, nil, nil
		r.s.deliveryLines[li.ID] = stored
	}
	header := *d
	header.LineItems = nil
	r.s.deliveries[d.ID] = header
	return nil
}

func (r deliveryRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.load(id, true)
}

func (r deliveryRepo) FindByIdempotencyKey(_ context.Context, key string) (*model.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, d := range r.s.deliveries {
		if d.IdempotencyKey != nil && *d.IdempotencyKey == key {
			return r.load(id, false)
		}
	}
	return &model.Delivery{}, notFound()
}

func (r deliveryRepo) FindByIDForUpdate(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.load(id, false)
}

func (r deliveryRepo) load(id uuid.UUID, withItems bool) (*model.Delivery, error) {
	d, ok := r.s.deliveries[id]
	if !ok {
		return &model.Delivery{}, notFound()
	}
	var ids []uuid.UUID
	for lid, li := range r.s.deliveryLines {
		if li.DeliveryID == id {
			ids = append(ids, lid)
		}
	}
	r.s.bySeq(ids)
	d.LineItems = make([]model.DeliveryLineItem, 0, len(ids))
	for _, lid := range ids {
		li := r.s.deliveryLines[lid]
		if withItems {
			li.Item = r.s.itemPtr(li.ItemID)
		}
		d.LineItems = append(d.LineItems, li)
	}
	return &d, nil
}

func (r deliveryRepo) List(_ context.Context, filter repository.DocumentFilter) ([]model.Delivery, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, d := range r.s.deliveries {
		if matches(filter, d.CustomerID, d.Status) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.s.deliveries[ids[i]], r.s.deliveries[ids[j]]
		if !a.ShipDate.Equal(b.ShipDate) {
			return a.ShipDate.After(b.ShipDate)
		}
		return r.s.seq[ids[i]] > r.s.seq[ids[j]]
	})
	start, end := paginate(len(ids), filter.Page, filter.Limit)
	out := make([]model.Delivery, 0, end-start)
	for _, id := range ids[start:end] {
		d, _ := r.load(id, false)
		out = append(out, *d)
	}
	return out, int64(len(ids)), nil
}

func (r deliveryRepo) ExistingSerials(_ context.Context, _ *gorm.DB, serials []string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[string]bool, len(serials))
	for _, s := range serials {
		want[s] = true
	}
	found := []string{}
	for _, li := range r.s.deliveryLines {
		if want[li.SerialNumber] {
			found = append(found, li.SerialNumber)
		}
	}
	sort.Strings(found)
	return found, nil
}

func (r deliveryRepo) FindLineItemsByOrderLineItemIDs(_ context.Context, ids []uuid.UUID) ([]model.DeliveryLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var lineIDs []uuid.UUID
	for id, li := range r.s.deliveryLines {
		if li.OrderLineItemID != nil && want[*li.OrderLineItemID] {
			lineIDs = append(lineIDs, id)
		}
	}
	r.s.bySeq(lineIDs)
	out := make([]model.DeliveryLineItem, 0, len(lineIDs))
	for _, id := range lineIDs {
		li := r.s.deliveryLines[id]
		d := r.s.deliveries[li.DeliveryID]
		li.Delivery = &d
		out = append(out, li)
	}
	return out, nil
}

func (r deliveryRepo) MarkClosed(_ context.Context, _ *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deliveries[id]
	if !ok {
		return notFound()
	}
	if err := closeHeader(&d.Status, &d.ClosedAt, &d.ClosedBy, closedBy, at); err != nil {
		return err
	}
	d.UpdatedAt = at
	r.s.deliveries[id] = d
	return nil
}

func (r deliveryRepo) Delete(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.deliveries[id]; !ok {
		return notFound()
	}
	for lid, li := range r.s.deliveryLines {
		if li.DeliveryID == id {
			delete(r.s.deliveryLines, lid)
		}
	}
	delete(r.s.deliveries, id)
	return nil
}

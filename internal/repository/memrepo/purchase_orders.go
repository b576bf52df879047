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

type poRepo struct{ s *Store }

var _ repository.PurchaseOrderRepository = poRepo{}

func (r poRepo) DB() *gorm.DB { return nil }

func (r poRepo) Create(_ context.Context, _ *gorm.DB, po *model.PurchaseOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&po.ID)
	if po.Status == "" {
		po.Status = model.StatusOpen
	}
	po.CreatedAt = r.s.track(po.ID)
	po.UpdatedAt = po.CreatedAt
	for i := range po.LineItems {
		li := &po.LineItems[i]
		ensureID(&li.ID)
		li.PurchaseOrderID = po.ID
		li.CreatedAt = r.s.track(li.ID)
		r.s.poLines[li.ID] = stripPOLine(*li)
	}
	header := *po
	header.LineItems = nil
	r.s.pos[po.ID] = header
	return nil
}

func (r poRepo) FindByID(_ context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.load(id, true)
}

func (r poRepo) FindByIDForUpdate(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.PurchaseOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.load(id, false)
}

func (r poRepo) load(id uuid.UUID, withItems bool) (*model.PurchaseOrder, error) {
	po, ok := r.s.pos[id]
	if !ok {
		return &model.PurchaseOrder{}, notFound()
	}
	var ids []uuid.UUID
	for lid, li := range r.s.poLines {
		if li.PurchaseOrderID == id {
			ids = append(ids, lid)
		}
	}
	r.s.bySeq(ids)
	po.LineItems = make([]model.POLineItem, 0, len(ids))
	for _, lid := range ids {
		li := r.s.poLines[lid]
		if withItems {
			li.Item = r.s.itemPtr(li.ItemID)
		}
		po.LineItems = append(po.LineItems, li)
	}
	return &po, nil
}

func (r poRepo) List(_ context.Context, filter repository.DocumentFilter) ([]model.PurchaseOrder, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, po := range r.s.pos {
		if matches(filter, po.CustomerID, po.Status) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return r.s.seq[ids[i]] > r.s.seq[ids[j]] })
	start, end := paginate(len(ids), filter.Page, filter.Limit)
	out := make([]model.PurchaseOrder, 0, end-start)
	for _, id := range ids[start:end] {
		po, _ := r.load(id, false)
		out = append(out, *po)
	}
	return out, int64(len(ids)), nil
}

func (r poRepo) FindLineItem(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.POLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	li, ok := r.s.poLines[id]
	if !ok {
		return &model.POLineItem{}, notFound()
	}
	po := r.s.pos[li.PurchaseOrderID]
	li.PurchaseOrder = &po
	return &li, nil
}

func (r poRepo) AddLineItem(_ context.Context, _ *gorm.DB, li *model.POLineItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.pos[li.PurchaseOrderID]; !ok {
		return notFound()
	}
	ensureID(&li.ID)
	li.CreatedAt = r.s.track(li.ID)
	r.s.poLines[li.ID] = stripPOLine(*li)
	return nil
}

func (r poRepo) DeleteLineItem(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.poLines[id]; !ok {
		return notFound()
	}
	delete(r.s.poLines, id)
	return nil
}

func (r poRepo) FindOpenCandidates(_ context.Context, _ *gorm.DB, customerID, itemID uuid.UUID) ([]model.POLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var lines []model.POLineItem
	for _, li := range r.s.poLines {
		po := r.s.pos[li.PurchaseOrderID]
		if po.CustomerID != customerID || po.Status != model.StatusOpen || li.ItemID != itemID || li.Remaining() <= 0 {
			continue
		}
		header := po
		li.PurchaseOrder = &header
		lines = append(lines, li)
	}
	sort.Slice(lines, func(i, j int) bool {
		a, b := lines[i].PurchaseOrder, lines[j].PurchaseOrder
		switch {
		case a.StartDate == nil && b.StartDate != nil:
			return false
		case a.StartDate != nil && b.StartDate == nil:
			return true
		case a.StartDate != nil && !a.StartDate.Equal(*b.StartDate):
			return a.StartDate.Before(*b.StartDate)
		case a.ID != b.ID:
			return uuidLess(a.ID, b.ID)
		}
		return uuidLess(lines[i].ID, lines[j].ID)
	})
	return lines, nil
}

func (r poRepo) MarkClosed(_ context.Context, _ *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	po, ok := r.s.pos[id]
	if !ok {
		return notFound()
	}
	if err := closeHeader(&po.Status, &po.ClosedAt, &po.ClosedBy, closedBy, at); err != nil {
		return err
	}
	po.UpdatedAt = at
	r.s.pos[id] = po
	return nil
}

func (r poRepo) Delete(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.pos[id]; !ok {
		return notFound()
	}
	for lid, li := range r.s.poLines {
		if li.PurchaseOrderID == id {
			delete(r.s.poLines, lid)
		}
	}
	delete(r.s.pos, id)
	return nil
}

func stripPOLine(li model.POLineItem) model.POLineItem {
	li.Item = nil
	li.PurchaseOrder = nil
	return li
}

package memrepo

import (
	"context"
	"sort"
	"strings"

	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type itemRepo struct{ s *Store }

var _ repository.ItemRepository = itemRepo{}

func (r itemRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return &model.Item{}, notFound()
	}
	return &it, nil
}

func (r itemRepo) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[uuid.UUID]model.Item, len(ids))
	for _, id := range ids {
		if it, ok := r.s.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (r itemRepo) List(_ context.Context, filter repository.ItemFilter) ([]model.Item, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []model.Item
	for _, it := range r.s.items {
		if filter.Name != "" && !strings.Contains(strings.ToLower(it.Name), strings.ToLower(filter.Name)) {
			continue
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].Version < items[j].Version
	})
	start, end := paginate(len(items), filter.Page, filter.Limit)
	return items[start:end], int64(len(items)), nil
}

func (r itemRepo) Upsert(_ context.Context, items []model.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range items {
		ensureID(&it.ID)
		r.s.items[it.ID] = it
	}
	return nil
}

type closureRepo struct{ s *Store }

var _ repository.ClosureRepository = closureRepo{}

func (r closureRepo) Create(_ context.Context, _ *gorm.DB, c *model.DocumentClosure) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&c.ID)
	r.s.closures = append(r.s.closures, *c)
	return nil
}

func (r closureRepo) FindByDocument(_ context.Context, docType model.DocumentType, docID uuid.UUID) (*model.DocumentClosure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.closures) - 1; i >= 0; i-- {
		c := r.s.closures[i]
		if c.DocumentType == docType && c.DocumentID == docID {
			return &c, nil
		}
	}
	return &model.DocumentClosure{}, notFound()
}

package repository

import (
	"context"

	"fulfillment/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemFilter narrows catalog listings.
type ItemFilter struct {
	Name  string
	Page  int
	Limit int
}

// ItemRepository is the read side of the catalog plus the upsert used by the
// seeding command.
type ItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Item, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Item, error)
	List(ctx context.Context, filter ItemFilter) ([]model.Item, int64, error)
	Upsert(ctx context.Context, items []model.Item) error
}

type itemRepo struct{ db *gorm.DB }

func NewItemRepository(db *gorm.DB) ItemRepository { return &itemRepo{db: db} }

func (r *itemRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	var it model.Item
	err := r.db.WithContext(ctx).First(&it, "id = ?", id).Error
	return &it, err
}

func (r *itemRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Item, error) {
	out := make(map[uuid.UUID]model.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []model.Item
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (r *itemRepo) List(ctx context.Context, filter ItemFilter) ([]model.Item, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Item{})
	if filter.Name != "" {
		q = q.Where("name ILIKE ?", "%"+filter.Name+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var items []model.Item
	err := q.Order("name ASC, version ASC").Offset((page - 1) * limit).Limit(limit).Find(&items).Error
	return items, total, err
}

func (r *itemRepo) Upsert(ctx context.Context, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "version", "msrp", "min_price", "updated_at"}),
	}).Create(&items).Error
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return page, limit
}

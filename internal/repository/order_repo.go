package repository

import (
	"context"
	"time"

	"fulfillment/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, o *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Order, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Order, error)
	List(ctx context.Context, filter DocumentFilter) ([]model.Order, int64, error)

	FindLineItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.OrderLineItem, error)
	// FindLineItemsByPOLineItemIDs returns every order line drawing from the
	// given PO line items, with the parent order preloaded.
	FindLineItemsByPOLineItemIDs(ctx context.Context, ids []uuid.UUID) ([]model.OrderLineItem, error)
	AddLineItem(ctx context.Context, tx *gorm.DB, li *model.OrderLineItem) error
	DeleteLineItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	MarkClosed(ctx context.Context, tx *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	DB() *gorm.DB
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository { return &orderRepo{db: db} }

func (r *orderRepo) DB() *gorm.DB { return r.db }

func (r *orderRepo) Create(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	err := conn(r.db, tx).WithContext(ctx).Create(o).Error
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", lineItemsByCreation).
		Preload("LineItems.Item").
		Preload("LineItems.POLineItem").
		First(&o, "id = ?", id).Error
	return &o, err
}

func (r *orderRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&o).Error
	return &o, err
}

func (r *orderRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := conn(r.db, tx).WithContext(ctx).Clauses(lockForUpdate()).First(&o, "id = ?", id).Error
	if err != nil {
		return &o, err
	}
	err = conn(r.db, tx).WithContext(ctx).
		Scopes(lineItemsByCreation).
		Where("order_id = ?", id).
		Find(&o.LineItems).Error
	return &o, err
}

func (r *orderRepo) List(ctx context.Context, filter DocumentFilter) ([]model.Order, int64, error) {
	q := filter.apply(r.db.WithContext(ctx).Model(&model.Order{}))

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var orders []model.Order
	err := q.Preload("LineItems", lineItemsByCreation).
		Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&orders).Error
	return orders, total, err
}

func (r *orderRepo) FindLineItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.OrderLineItem, error) {
	var li model.OrderLineItem
	err := conn(r.db, tx).WithContext(ctx).Preload("Order").First(&li, "id = ?", id).Error
	return &li, err
}

func (r *orderRepo) FindLineItemsByPOLineItemIDs(ctx context.Context, ids []uuid.UUID) ([]model.OrderLineItem, error) {
	var lines []model.OrderLineItem
	if len(ids) == 0 {
		return lines, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Order").
		Where("po_line_item_id IN ?", ids).
		Scopes(lineItemsByCreation).
		Find(&lines).Error
	return lines, err
}

func (r *orderRepo) AddLineItem(ctx context.Context, tx *gorm.DB, li *model.OrderLineItem) error {
	return conn(r.db, tx).WithContext(ctx).Omit("Item", "POLineItem", "Order").Create(li).Error
}

func (r *orderRepo) DeleteLineItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	res := conn(r.db, tx).WithContext(ctx).Where("id = ?", id).Delete(&model.OrderLineItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *orderRepo) MarkClosed(ctx context.Context, tx *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error {
	return markClosed(ctx, conn(r.db, tx), "orders", id, closedBy, at)
}

func (r *orderRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	db := conn(r.db, tx).WithContext(ctx)
	if err := db.Where("order_id = ?", id).Delete(&model.OrderLineItem{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&model.Order{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

package repository

import (
	"context"
	"time"

	"fulfillment/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeliveryRepository interface {
	Create(ctx context.Context, tx *gorm.DB, d *model.Delivery) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Delivery, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Delivery, error)
	List(ctx context.Context, filter DocumentFilter) ([]model.Delivery, int64, error)

	// ExistingSerials returns the subset of serials already stored on any delivery.
	ExistingSerials(ctx context.Context, tx *gorm.DB, serials []string) ([]string, error)
	FindLineItemsByOrderLineItemIDs(ctx context.Context, ids []uuid.UUID) ([]model.DeliveryLineItem, error)

	MarkClosed(ctx context.Context, tx *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	DB() *gorm.DB
}

type deliveryRepo struct{ db *gorm.DB }

func NewDeliveryRepository(db *gorm.DB) DeliveryRepository { return &deliveryRepo{db: db} }

func (r *deliveryRepo) DB() *gorm.DB { return r.db }

func (r *deliveryRepo) Create(ctx context.Context, tx *gorm.DB, d *model.Delivery) error {
	err := conn(r.db, tx).WithContext(ctx).Create(d).Error
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

func (r *deliveryRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	var d model.Delivery
	err := r.db.WithContext(ctx).
		Preload("LineItems", lineItemsByCreation).
		Preload("LineItems.Item").
		First(&d, "id = ?", id).Error
	return &d, err
}

func (r *deliveryRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Delivery, error) {
	var d model.Delivery
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&d).Error
	return &d, err
}

func (r *deliveryRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Delivery, error) {
	var d model.Delivery
	err := conn(r.db, tx).WithContext(ctx).Clauses(lockForUpdate()).First(&d, "id = ?", id).Error
	if err != nil {
		return &d, err
	}
	err = conn(r.db, tx).WithContext(ctx).
		Scopes(lineItemsByCreation).
		Where("delivery_id = ?", id).
		Find(&d.LineItems).Error
	return &d, err
}

func (r *deliveryRepo) List(ctx context.Context, filter DocumentFilter) ([]model.Delivery, int64, error) {
	q := filter.apply(r.db.WithContext(ctx).Model(&model.Delivery{}))

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var deliveries []model.Delivery
	err := q.Preload("LineItems", lineItemsByCreation).
		Order("ship_date DESC, created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&deliveries).Error
	return deliveries, total, err
}

func (r *deliveryRepo) ExistingSerials(ctx context.Context, tx *gorm.DB, serials []string) ([]string, error) {
	var found []string
	if len(serials) == 0 {
		return found, nil
	}
	err := conn(r.db, tx).WithContext(ctx).
		Model(&model.DeliveryLineItem{}).
		Where("serial_number IN ?", serials).
		Order("serial_number ASC").
		Pluck("serial_number", &found).Error
	return found, err
}

func (r *deliveryRepo) FindLineItemsByOrderLineItemIDs(ctx context.Context, ids []uuid.UUID) ([]model.DeliveryLineItem, error) {
	var lines []model.DeliveryLineItem
	if len(ids) == 0 {
		return lines, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Delivery").
		Where("order_line_item_id IN ?", ids).
		Scopes(lineItemsByCreation).
		Find(&lines).Error
	return lines, err
}

func (r *deliveryRepo) MarkClosed(ctx context.Context, tx *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error {
	return markClosed(ctx, conn(r.db, tx), "deliveries", id, closedBy, at)
}

func (r *deliveryRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	db := conn(r.db, tx).WithContext(ctx)
	if err := db.Where("delivery_id = ?", id).Delete(&model.DeliveryLineItem{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&model.Delivery{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

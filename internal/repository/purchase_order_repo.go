package repository

import (
	"context"
	"time"

	"fulfillment/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PurchaseOrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, po *model.PurchaseOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	// FindByIDForUpdate row-locks the PO header for the rest of tx.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.PurchaseOrder, error)
	List(ctx context.Context, filter DocumentFilter) ([]model.PurchaseOrder, int64, error)

	FindLineItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.POLineItem, error)
	AddLineItem(ctx context.Context, tx *gorm.DB, li *model.POLineItem) error
	DeleteLineItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	// FindOpenCandidates returns the customer's PO line items for itemID that
	// still have remaining quantity on OPEN POs, oldest start_date first.
	FindOpenCandidates(ctx context.Context, tx *gorm.DB, customerID, itemID uuid.UUID) ([]model.POLineItem, error)

	MarkClosed(ctx context.Context, tx *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	DB() *gorm.DB
}

type purchaseOrderRepo struct{ db *gorm.DB }

func NewPurchaseOrderRepository(db *gorm.DB) PurchaseOrderRepository {
	return &purchaseOrderRepo{db: db}
}

func (r *purchaseOrderRepo) DB() *gorm.DB { return r.db }

func (r *purchaseOrderRepo) Create(ctx context.Context, tx *gorm.DB, po *model.PurchaseOrder) error {
	return conn(r.db, tx).WithContext(ctx).Create(po).Error
}

func (r *purchaseOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("LineItems", lineItemsByCreation).
		Preload("LineItems.Item").
		First(&po, "id = ?", id).Error
	return &po, err
}

func (r *purchaseOrderRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	err := conn(r.db, tx).WithContext(ctx).
		Clauses(lockForUpdate()).
		First(&po, "id = ?", id).Error
	if err != nil {
		return &po, err
	}
	err = conn(r.db, tx).WithContext(ctx).
		Scopes(lineItemsByCreation).
		Where("purchase_order_id = ?", id).
		Find(&po.LineItems).Error
	return &po, err
}

func (r *purchaseOrderRepo) List(ctx context.Context, filter DocumentFilter) ([]model.PurchaseOrder, int64, error) {
	q := filter.apply(r.db.WithContext(ctx).Model(&model.PurchaseOrder{}))

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var pos []model.PurchaseOrder
	err := q.Preload("LineItems", lineItemsByCreation).
		Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&pos).Error
	return pos, total, err
}

func (r *purchaseOrderRepo) FindLineItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.POLineItem, error) {
	var li model.POLineItem
	err := conn(r.db, tx).WithContext(ctx).Preload("PurchaseOrder").First(&li, "id = ?", id).Error
	return &li, err
}

func (r *purchaseOrderRepo) AddLineItem(ctx context.Context, tx *gorm.DB, li *model.POLineItem) error {
	return conn(r.db, tx).WithContext(ctx).Omit("Item", "PurchaseOrder").Create(li).Error
}

func (r *purchaseOrderRepo) DeleteLineItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	res := conn(r.db, tx).WithContext(ctx).Where("id = ?", id).Delete(&model.POLineItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *purchaseOrderRepo) FindOpenCandidates(ctx context.Context, tx *gorm.DB, customerID, itemID uuid.UUID) ([]model.POLineItem, error) {
	var lines []model.POLineItem
	err := conn(r.db, tx).WithContext(ctx).
		Joins("JOIN purchase_orders po ON po.id = po_line_items.purchase_order_id").
		Where("po.customer_id = ? AND po.status = ? AND po_line_items.item_id = ?", customerID, model.StatusOpen, itemID).
		Where("po_line_items.original_quantity - po_line_items.ordered_quantity - po_line_items.waived_quantity > 0").
		Order("po.start_date ASC NULLS LAST").
		Order("po.id ASC").
		Order("po_line_items.id ASC").
		Preload("PurchaseOrder").
		Find(&lines).Error
	return lines, err
}

func (r *purchaseOrderRepo) MarkClosed(ctx context.Context, tx *gorm.DB, id uuid.UUID, closedBy string, at time.Time) error {
	return markClosed(ctx, conn(r.db, tx), "purchase_orders", id, closedBy, at)
}

func (r *purchaseOrderRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	db := conn(r.db, tx).WithContext(ctx)
	if err := db.Where("purchase_order_id = ?", id).Delete(&model.POLineItem{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&model.PurchaseOrder{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

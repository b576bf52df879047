package repository

import (
	"context"

	"fulfillment/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClosureRepository stores the audit trail of document closes.
type ClosureRepository interface {
	Create(ctx context.Context, tx *gorm.DB, c *model.DocumentClosure) error
	FindByDocument(ctx context.Context, docType model.DocumentType, docID uuid.UUID) (*model.DocumentClosure, error)
}

type closureRepo struct{ db *gorm.DB }

func NewClosureRepository(db *gorm.DB) ClosureRepository { return &closureRepo{db: db} }

func (r *closureRepo) Create(ctx context.Context, tx *gorm.DB, c *model.DocumentClosure) error {
	return conn(r.db, tx).WithContext(ctx).Create(c).Error
}

func (r *closureRepo) FindByDocument(ctx context.Context, docType model.DocumentType, docID uuid.UUID) (*model.DocumentClosure, error) {
	var c model.DocumentClosure
	err := r.db.WithContext(ctx).
		Where("document_type = ? AND document_id = ?", docType, docID).
		Order("closed_at DESC").
		First(&c).Error
	return &c, err
}

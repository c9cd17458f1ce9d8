package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"finetune-orchestrator/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// Find returns documents matching q ordered by id.
func (r *DocumentRepository) Find(ctx context.Context, q model.DocumentQuery) ([]model.Document, error) {
	tx := r.db.WithContext(ctx).Model(&model.Document{})
	if len(q.IDs) > 0 {
		tx = tx.Where("id IN ?", q.IDs)
	}
	if q.OwnerID != 0 {
		tx = tx.Where("uploaded_by = ?", q.OwnerID)
	}
	if len(q.Statuses) > 0 {
		tx = tx.Where("status IN ?", q.Statuses)
	}
	if q.FineTuningJobID != "" {
		tx = tx.Where("fine_tuning_job_id = ?", q.FineTuningJobID)
	}

	var list []model.Document
	if err := tx.Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("find documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("uploaded_by = ?", ownerID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) GetByIDAndOwner(ctx context.Context, id, ownerID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND uploaded_by = ?", id, ownerID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// Latest returns the most recently updated document in one of statuses, or nil.
func (r *DocumentRepository) Latest(ctx context.Context, statuses ...model.DocumentStatus) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("updated_at DESC").First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest document failed: %w", err)
	}
	return &doc, nil
}

// Save writes every column of doc.
func (r *DocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Save(doc).Error; err != nil {
		return fmt.Errorf("save document %d failed: %w", doc.ID, err)
	}
	return nil
}

// UpdateMany applies patch to every id in a single statement.
func (r *DocumentRepository) UpdateMany(ctx context.Context, ids []uint, patch model.DocumentPatch) error {
	cols := patch.Columns()
	if len(ids) == 0 || len(cols) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id IN ?", ids).Updates(cols).Error; err != nil {
		return fmt.Errorf("update documents failed: %w", err)
	}
	return nil
}

// SaveAll saves docs in one transaction; either all rows change or none do.
func (r *DocumentRepository) SaveAll(ctx context.Context, docs []model.Document) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range docs {
			if err := tx.Save(&docs[i]).Error; err != nil {
				return fmt.Errorf("save document %d failed: %w", docs[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save documents failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByIDAndOwner(ctx context.Context, id, ownerID uint) error {
	if err := r.db.WithContext(ctx).Where("id = ? AND uploaded_by = ?", id, ownerID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

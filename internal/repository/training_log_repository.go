package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"finetune-orchestrator/internal/model"
)

type TrainingLogRepository struct {
	db *gorm.DB
}

func NewTrainingLogRepository(db *gorm.DB) *TrainingLogRepository {
	return &TrainingLogRepository{db: db}
}

func (r *TrainingLogRepository) Create(ctx context.Context, entry *model.TrainingLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create training log failed: %w", err)
	}
	return nil
}

func (r *TrainingLogRepository) ListByBatchID(ctx context.Context, batchID string, limit int) ([]model.TrainingLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	var logs []model.TrainingLog
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("id ASC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list training logs failed: %w", err)
	}
	return logs, nil
}

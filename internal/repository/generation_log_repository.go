package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"finetune-orchestrator/internal/model"
)

type GenerationLogRepository struct {
	db *gorm.DB
}

func NewGenerationLogRepository(db *gorm.DB) *GenerationLogRepository {
	return &GenerationLogRepository{db: db}
}

func (r *GenerationLogRepository) Create(ctx context.Context, entry *model.GenerationLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create generation log failed: %w", err)
	}
	return nil
}

// ListByUser returns the newest logs first.
func (r *GenerationLogRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.GenerationLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var logs []model.GenerationLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list generation logs failed: %w", err)
	}
	return logs, nil
}

func (r *GenerationLogRepository) GetByIDAndUser(ctx context.Context, id, userID uint) (*model.GenerationLog, error) {
	var entry model.GenerationLog
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get generation log failed: %w", err)
	}
	return &entry, nil
}

func (r *GenerationLogRepository) StatsByUser(ctx context.Context, userID uint) (*model.GenerationLogStats, error) {
	var stats model.GenerationLogStats
	err := r.db.WithContext(ctx).
		Model(&model.GenerationLog{}).
		Select(
			"COUNT(*) AS total_requests, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS success_count, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS error_count, "+
				"COALESCE(AVG(response_time_ms), 0) AS avg_response_time_ms",
			model.GenerationStatusSuccess, model.GenerationStatusError,
		).
		Where("user_id = ?", userID).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("generation log stats failed: %w", err)
	}
	return &stats, nil
}

package app

import (
	"context"
	"math"

	"finetune-orchestrator/internal/model"
)

type GenerationLogReader interface {
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.GenerationLog, error)
	GetByIDAndUser(ctx context.Context, id, userID uint) (*model.GenerationLog, error)
	StatsByUser(ctx context.Context, userID uint) (*model.GenerationLogStats, error)
}

// GenerationLogService exposes a user's own generation history.
type GenerationLogService struct {
	logs GenerationLogReader
}

func NewGenerationLogService(logs GenerationLogReader) *GenerationLogService {
	return &GenerationLogService{logs: logs}
}

type ListLogsInput struct {
	UserID uint
	Limit  int
	Offset int
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

type LogPage struct {
	Logs       []model.GenerationLog `json:"logs"`
	Pagination Pagination            `json:"pagination"`
}

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

func (s *GenerationLogService) List(ctx context.Context, input ListLogsInput) (*LogPage, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	limit = min(limit, maxLogLimit)
	offset := max(input.Offset, 0)

	logs, err := s.logs.ListByUser(ctx, input.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []model.GenerationLog{}
	}
	return &LogPage{
		Logs:       logs,
		Pagination: Pagination{Limit: limit, Offset: offset, Count: len(logs)},
	}, nil
}

func (s *GenerationLogService) Get(ctx context.Context, userID, id uint) (*model.GenerationLog, error) {
	if userID == 0 || id == 0 {
		return nil, ErrInvalidInput
	}
	entry, err := s.logs.GetByIDAndUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrGenerationLogNotFound
	}
	return entry, nil
}

// Stats rounds the average response time to whole milliseconds.
func (s *GenerationLogService) Stats(ctx context.Context, userID uint) (*model.GenerationLogStats, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	stats, err := s.logs.StatsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats.AvgResponseTimeMs = math.Round(stats.AvgResponseTimeMs)
	return stats, nil
}

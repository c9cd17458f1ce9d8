package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RequestTypeCompetency    = "competency"
	RequestTypeDatasetPrompt = "dataset_prompt"

	GenerationStatusSuccess = "success"
	GenerationStatusError   = "error"
)

type GenerationLog struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	RequestType    string         `gorm:"size:32;not null;index" json:"request_type"`
	Input          string         `gorm:"type:text;not null" json:"input"`
	Output         datatypes.JSON `json:"output,omitempty"`
	Model          string         `gorm:"size:128" json:"model"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	UserID         uint           `gorm:"index" json:"user_id"`
	Status         string         `gorm:"size:16;not null;default:success" json:"status"`
	ErrorMessage   string         `gorm:"type:text" json:"error_message,omitempty"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// GenerationLogStats summarizes one user's generation history.
type GenerationLogStats struct {
	TotalRequests     int64   `json:"total_requests"`
	SuccessCount      int64   `json:"success_count"`
	ErrorCount        int64   `json:"error_count"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

package model

import "time"

const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// TrainingLog is one chunk of output emitted by a remote training process.
type TrainingLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BatchID   string    `gorm:"size:64;not null;index" json:"batch_id"`
	Stream    string    `gorm:"size:16;not null" json:"stream"`
	Line      string    `gorm:"type:text;not null" json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

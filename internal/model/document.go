package model

import (
	"time"

	"gorm.io/datatypes"
)

type DatasetFormat string

const (
	FormatCSV  DatasetFormat = "csv"
	FormatJSON DatasetFormat = "json"

	PurposeFineTuning = "fine-tuning"
)

const (
	FineTuningPending   = "pending"
	FineTuningRunning   = "running"
	FineTuningSucceeded = "succeeded"
	FineTuningFailed    = "failed"
	FineTuningCancelled = "cancelled"
)

func (f DatasetFormat) Supported() bool {
	return f == FormatCSV || f == FormatJSON
}

// DatasetAnalysis is the validator's judgment of one dataset file.
type DatasetAnalysis struct {
	RowCount      int            `gorm:"not null;default:0" json:"row_count"`
	SampleRecords int            `gorm:"not null;default:0" json:"sample_records"`
	Valid         bool           `gorm:"not null;default:false" json:"valid"`
	Error         string         `gorm:"type:text" json:"error"`
	Prompt        string         `gorm:"type:text" json:"prompt"`
	SamplePreview datatypes.JSON `json:"sample_preview,omitempty"`
}

type Document struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	Filename              string          `gorm:"size:255;not null" json:"filename"`
	FilePath              string          `gorm:"size:1024;not null" json:"file_path"`
	FileSize              int64           `gorm:"not null" json:"file_size"`
	FileType              DatasetFormat   `gorm:"size:16;not null;index" json:"file_type"`
	Purpose               string          `gorm:"size:32;not null;default:fine-tuning" json:"purpose"`
	Status                DocumentStatus  `gorm:"size:32;not null;index;default:uploaded" json:"status"`
	Analysis              DatasetAnalysis `gorm:"embedded;embeddedPrefix:analysis_" json:"dataset_analysis"`
	FineTuningJobID       string          `gorm:"size:64;index" json:"fine_tuning_job_id,omitempty"`
	FineTuningStatus      string          `gorm:"size:16" json:"fine_tuning_status,omitempty"`
	ModelPath             string          `gorm:"size:1024" json:"model_path,omitempty"`
	TrainingOutput        string          `gorm:"type:text" json:"training_output,omitempty"`
	ErrorMessage          string          `gorm:"type:text" json:"error_message,omitempty"`
	UploadedBy            uint            `gorm:"not null;index" json:"uploaded_by"`
	UploadedByName        string          `gorm:"size:128" json:"uploaded_by_name"`
	FineTuningCompletedAt *time.Time      `json:"fine_tuning_completed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// TransitionTo moves the document along the lifecycle edge table.
// Post-validation states additionally require a valid analysis.
func (d *Document) TransitionTo(to DocumentStatus) error {
	if !d.Status.CanTransitionTo(to) {
		return NewErrInvalidStateChange(d.Status, to)
	}
	if to.PostValidation() && !d.Analysis.Valid {
		return ErrInconsistentAnalysis
	}
	d.Status = to
	return nil
}

// DocumentPatch is a partial update applied to one or many documents.
// Nil fields are left untouched.
type DocumentPatch struct {
	Status                *DocumentStatus
	FineTuningJobID       *string
	FineTuningStatus      *string
	ModelPath             *string
	TrainingOutput        *string
	ErrorMessage          *string
	FineTuningCompletedAt *time.Time
}

// Columns returns the patch as a gorm column map.
func (p DocumentPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.FineTuningJobID != nil {
		cols["fine_tuning_job_id"] = *p.FineTuningJobID
	}
	if p.FineTuningStatus != nil {
		cols["fine_tuning_status"] = *p.FineTuningStatus
	}
	if p.ModelPath != nil {
		cols["model_path"] = *p.ModelPath
	}
	if p.TrainingOutput != nil {
		cols["training_output"] = *p.TrainingOutput
	}
	if p.ErrorMessage != nil {
		cols["error_message"] = *p.ErrorMessage
	}
	if p.FineTuningCompletedAt != nil {
		cols["fine_tuning_completed_at"] = *p.FineTuningCompletedAt
	}
	return cols
}

// Apply copies the patch onto d.
func (p DocumentPatch) Apply(d *Document) {
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.FineTuningJobID != nil {
		d.FineTuningJobID = *p.FineTuningJobID
	}
	if p.FineTuningStatus != nil {
		d.FineTuningStatus = *p.FineTuningStatus
	}
	if p.ModelPath != nil {
		d.ModelPath = *p.ModelPath
	}
	if p.TrainingOutput != nil {
		d.TrainingOutput = *p.TrainingOutput
	}
	if p.ErrorMessage != nil {
		d.ErrorMessage = *p.ErrorMessage
	}
	if p.FineTuningCompletedAt != nil {
		t := *p.FineTuningCompletedAt
		d.FineTuningCompletedAt = &t
	}
}

// DocumentQuery selects documents. Zero fields do not filter.
type DocumentQuery struct {
	IDs             []uint
	OwnerID         uint
	Statuses        []DocumentStatus
	FineTuningJobID string
}

package model

import (
	"errors"
	"fmt"
)

type DocumentStatus string

const (
	// The dataset file is stored and waits to be submitted in a batch.
	StatusUploaded DocumentStatus = "uploaded"

	// The dataset is being parsed and sampled.
	StatusValidating DocumentStatus = "validating"

	// The dataset could not be parsed or has no records.
	StatusValidationFailed DocumentStatus = "validation_failed"

	// The dataset passed validation and its analysis is recorded.
	StatusFineTuningReady DocumentStatus = "fine_tuning_ready"

	// The batch holding this dataset is being trained.
	StatusFineTuningInProgress DocumentStatus = "fine_tuning_in_progress"

	// Training finished successfully.
	StatusFineTuningCompleted DocumentStatus = "fine_tuning_completed"

	// The batch holding this dataset failed.
	StatusFineTuningFailed DocumentStatus = "fine_tuning_failed"
)

var (
	ErrInvalidStateChange   = errors.New("cannot change document state")
	ErrInconsistentAnalysis = errors.New("document analysis is not valid")
)

func NewErrInvalidStateChange(from, to DocumentStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateChange, from, to)
}

var transitions = map[DocumentStatus][]DocumentStatus{
	StatusUploaded:             {StatusValidating, StatusFineTuningFailed},
	StatusValidating:           {StatusValidationFailed, StatusFineTuningReady, StatusFineTuningFailed},
	StatusFineTuningReady:      {StatusFineTuningInProgress, StatusFineTuningFailed},
	StatusFineTuningInProgress: {StatusFineTuningCompleted, StatusFineTuningFailed},
}

func (s DocumentStatus) String() string {
	return string(s)
}

func AsDocumentStatus(status string) (DocumentStatus, error) {
	switch DocumentStatus(status) {
	case StatusUploaded, StatusValidating, StatusValidationFailed,
		StatusFineTuningReady, StatusFineTuningInProgress,
		StatusFineTuningCompleted, StatusFineTuningFailed:
		return DocumentStatus(status), nil
	default:
		return "", fmt.Errorf("'%s' is not DocumentStatus", status)
	}
}

// Terminal reports whether no further automatic transition leaves s.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusValidationFailed, StatusFineTuningCompleted, StatusFineTuningFailed:
		return true
	default:
		return false
	}
}

// PostValidation reports whether s requires a valid analysis.
func (s DocumentStatus) PostValidation() bool {
	switch s {
	case StatusFineTuningReady, StatusFineTuningInProgress, StatusFineTuningCompleted:
		return true
	default:
		return false
	}
}

// Training reports whether a batch holding the document is in flight.
func (s DocumentStatus) Training() bool {
	return s == StatusFineTuningInProgress
}

func (s DocumentStatus) CanTransitionTo(to DocumentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

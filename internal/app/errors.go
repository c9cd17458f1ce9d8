package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrDocumentsBusy         = errors.New("documents are already part of a running batch")
	ErrDocumentsNotEligible  = errors.New("only your uploaded documents can start fine-tuning")
	ErrDatasetInvalid        = errors.New("dataset is invalid")
	ErrDocumentInTraining    = errors.New("document is being fine-tuned")
	ErrUnsupportedUpload     = errors.New("only csv or json fine-tuning datasets are accepted")
	ErrUploadTooLarge        = errors.New("dataset file is too large")
	ErrGenerationLogNotFound = errors.New("generation log not found")
)

// ValidationError names the document that aborted a batch.
type ValidationError struct {
	DocumentID uint
	Filename   string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid: %s: %s", e.Filename, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrDatasetInvalid
}

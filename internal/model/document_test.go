package model

import (
	"errors"
	"testing"
	"time"
)

func TestDocumentTransitionTo(t *testing.T) {
	for name, testcase := range map[string]struct {
		from  DocumentStatus
		to    DocumentStatus
		valid bool
		want  error
	}{
		"uploaded -> validating": {
			from: StatusUploaded, to: StatusValidating,
		},
		"validating -> validation_failed": {
			from: StatusValidating, to: StatusValidationFailed,
		},
		"validating -> ready with valid analysis": {
			from: StatusValidating, to: StatusFineTuningReady, valid: true,
		},
		"validating -> ready without valid analysis": {
			from: StatusValidating, to: StatusFineTuningReady, want: ErrInconsistentAnalysis,
		},
		"ready -> in progress": {
			from: StatusFineTuningReady, to: StatusFineTuningInProgress, valid: true,
		},
		"in progress -> completed": {
			from: StatusFineTuningInProgress, to: StatusFineTuningCompleted, valid: true,
		},
		"in progress -> failed": {
			from: StatusFineTuningInProgress, to: StatusFineTuningFailed, valid: true,
		},
		"uploaded -> failed when the batch breaks": {
			from: StatusUploaded, to: StatusFineTuningFailed,
		},
		"uploaded -> completed is skipped": {
			from: StatusUploaded, to: StatusFineTuningCompleted, valid: true, want: ErrInvalidStateChange,
		},
		"completed is terminal": {
			from: StatusFineTuningCompleted, to: StatusValidating, valid: true, want: ErrInvalidStateChange,
		},
		"validation_failed is terminal": {
			from: StatusValidationFailed, to: StatusFineTuningReady, valid: true, want: ErrInvalidStateChange,
		},
	} {
		t.Run(name, func(t *testing.T) {
			doc := &Document{Status: testcase.from, Analysis: DatasetAnalysis{Valid: testcase.valid}}
			err := doc.TransitionTo(testcase.to)
			if testcase.want != nil {
				if !errors.Is(err, testcase.want) {
					t.Fatalf("unexpected error: got %v want %v", err, testcase.want)
				}
				if doc.Status != testcase.from {
					t.Fatalf("status changed on rejected transition: %s", doc.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("TransitionTo: %v", err)
			}
			if doc.Status != testcase.to {
				t.Fatalf("status mismatch: got %s want %s", doc.Status, testcase.to)
			}
		})
	}
}

func TestAsDocumentStatus(t *testing.T) {
	got, err := AsDocumentStatus("fine_tuning_ready")
	if err != nil {
		t.Fatalf("AsDocumentStatus: %v", err)
	}
	if got != StatusFineTuningReady {
		t.Fatalf("got %s", got)
	}
	if _, err := AsDocumentStatus("processing"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestDocumentStatusTerminal(t *testing.T) {
	terminal := []DocumentStatus{StatusValidationFailed, StatusFineTuningCompleted, StatusFineTuningFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []DocumentStatus{StatusUploaded, StatusValidating, StatusFineTuningReady, StatusFineTuningInProgress} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestDocumentPatch(t *testing.T) {
	status := StatusFineTuningFailed
	msg := "boom"
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	patch := DocumentPatch{Status: &status, ErrorMessage: &msg, FineTuningCompletedAt: &at}

	cols := patch.Columns()
	if len(cols) != 3 {
		t.Fatalf("unexpected columns: %v", cols)
	}
	if cols["status"] != StatusFineTuningFailed || cols["error_message"] != "boom" {
		t.Fatalf("unexpected columns: %v", cols)
	}

	doc := &Document{Status: StatusFineTuningInProgress, ModelPath: "keep"}
	patch.Apply(doc)
	if doc.Status != StatusFineTuningFailed || doc.ErrorMessage != "boom" || doc.ModelPath != "keep" {
		t.Fatalf("unexpected document after apply: %+v", doc)
	}
	if doc.FineTuningCompletedAt == nil || !doc.FineTuningCompletedAt.Equal(at) {
		t.Fatalf("completed at not applied: %v", doc.FineTuningCompletedAt)
	}
}

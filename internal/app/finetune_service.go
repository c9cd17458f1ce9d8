package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"finetune-orchestrator/internal/dispatch"
	"finetune-orchestrator/internal/model"
)

const (
	ModeSimulated = "simulated"
	ModeRemote    = "remote"

	defaultObjectsPerSecond    = 100
	defaultMinTrainingDuration = 5 * time.Second
	defaultArtifactDir         = "/workspace"

	noValidDataMessage = "No valid data"
)

type DocumentStore interface {
	Find(ctx context.Context, q model.DocumentQuery) ([]model.Document, error)
	Save(ctx context.Context, doc *model.Document) error
	SaveAll(ctx context.Context, docs []model.Document) error
	UpdateMany(ctx context.Context, ids []uint, patch model.DocumentPatch) error
}

type DatasetValidator interface {
	Validate(ctx context.Context, path string, format model.DatasetFormat) model.DatasetAnalysis
}

type TrainingDispatcher interface {
	Dispatch(ctx context.Context, batchID string, docs []model.Document) (*dispatch.Result, error)
}

type BatchLocker interface {
	Acquire(ctx context.Context, ids []uint) (release func(context.Context) error, ok bool, err error)
}

type FineTuneConfig struct {
	ObjectsPerSecond    float64
	MinTrainingDuration time.Duration
	// ArtifactDir holds simulated model artifacts, one per document.
	ArtifactDir string
}

type FineTuneService struct {
	docs       DocumentStore
	validator  DatasetValidator
	dispatcher TrainingDispatcher
	locker     BatchLocker
	cfg        FineTuneConfig

	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	newBatchID func() string
}

// NewFineTuneService wires the orchestrator. A nil dispatcher selects simulated
// training; a nil locker disables cross-batch locking.
func NewFineTuneService(
	docs DocumentStore,
	validator DatasetValidator,
	dispatcher TrainingDispatcher,
	locker BatchLocker,
	cfg FineTuneConfig,
) *FineTuneService {
	if cfg.ObjectsPerSecond <= 0 {
		cfg.ObjectsPerSecond = defaultObjectsPerSecond
	}
	if cfg.MinTrainingDuration <= 0 {
		cfg.MinTrainingDuration = defaultMinTrainingDuration
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = defaultArtifactDir
	}
	return &FineTuneService{
		docs:       docs,
		validator:  validator,
		dispatcher: dispatcher,
		locker:     locker,
		cfg:        cfg,
		sleep:      sleepContext,
		now:        time.Now,
		newBatchID: uuid.NewString,
	}
}

type RunBatchInput struct {
	UserID      uint
	DocumentIDs []uint
}

type BatchResult struct {
	BatchID           string           `json:"batch_id"`
	Mode              string           `json:"mode"`
	DocumentCount     int              `json:"document_count"`
	TotalObjects      int              `json:"total_objects"`
	EstimatedDuration time.Duration    `json:"estimated_duration"`
	ProcessingTime    time.Duration    `json:"processing_time"`
	AvgTimePerObject  time.Duration    `json:"avg_time_per_object"`
	ModelPaths        []string         `json:"model_paths"`
	PromptsGenerated  int              `json:"prompts_generated"`
	RemoteOutput      string           `json:"remote_output,omitempty"`
	Documents         []model.Document `json:"documents"`
}

// EstimateDuration converts a record count into simulated training time.
func (s *FineTuneService) EstimateDuration(totalObjects int) time.Duration {
	estimate := time.Duration(float64(totalObjects) / s.cfg.ObjectsPerSecond * float64(time.Second))
	if estimate < s.cfg.MinTrainingDuration {
		return s.cfg.MinTrainingDuration
	}
	return estimate
}

// RunBatch validates, trains and completes the documents as one unit. Every
// failure after the eligibility check leaves all submitted documents in
// fine_tuning_failed, except a validation failure which stops at the bad document.
func (s *FineTuneService) RunBatch(ctx context.Context, input RunBatchInput) (*BatchResult, error) {
	if err := checkBatchInput(input); err != nil {
		return nil, err
	}
	logger := slog.With("userId", input.UserID, "documentIds", input.DocumentIDs)

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, input.DocumentIDs)
		if err != nil {
			return nil, fmt.Errorf("lock documents failed: %w", err)
		}
		if !ok {
			return nil, ErrDocumentsBusy
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release document locks failed", "error", err)
			}
		}()
	}

	docs, err := s.loadEligible(ctx, input)
	if err != nil {
		return nil, err
	}

	start := s.now()
	logger.Info("validating datasets", "count", len(docs))
	if err := s.validateAll(ctx, docs, logger); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return nil, err
		}
		return nil, s.failBatch(ctx, input.DocumentIDs, err, logger)
	}

	totalObjects, prompts := 0, 0
	for _, doc := range docs {
		totalObjects += doc.Analysis.RowCount
		if doc.Analysis.Prompt != "" {
			prompts++
		}
	}
	estimate := s.EstimateDuration(totalObjects)

	batchID := s.newBatchID()
	logger = logger.With("batchId", batchID)
	for i := range docs {
		if err := docs[i].TransitionTo(model.StatusFineTuningInProgress); err != nil {
			return nil, s.failBatch(ctx, input.DocumentIDs, err, logger)
		}
		docs[i].FineTuningJobID = batchID
		docs[i].FineTuningStatus = model.FineTuningRunning
	}
	if err := s.docs.SaveAll(ctx, docs); err != nil {
		return nil, s.failBatch(ctx, input.DocumentIDs, err, logger)
	}

	result := &BatchResult{
		BatchID:           batchID,
		DocumentCount:     len(docs),
		TotalObjects:      totalObjects,
		EstimatedDuration: estimate,
		PromptsGenerated:  prompts,
	}

	var remote *dispatch.Result
	if s.dispatcher == nil {
		result.Mode = ModeSimulated
		logger.Info("simulated training", "objects", totalObjects, "estimate", estimate)
		if err := s.sleep(ctx, estimate); err != nil {
			return nil, s.failBatch(ctx, input.DocumentIDs, err, logger)
		}
	} else {
		result.Mode = ModeRemote
		logger.Info("dispatching remote training", "objects", totalObjects, "estimate", estimate)
		remote, err = s.dispatcher.Dispatch(ctx, batchID, append([]model.Document(nil), docs...))
		if err != nil {
			return nil, s.failBatch(ctx, input.DocumentIDs, err, logger)
		}
		result.RemoteOutput = remote.Output
	}

	completedAt := s.now()
	elapsed := completedAt.Sub(start)
	for i := range docs {
		doc := &docs[i]
		if err := doc.TransitionTo(model.StatusFineTuningCompleted); err != nil {
			return nil, s.failBatch(ctx, input.DocumentIDs, err, logger)
		}
		doc.FineTuningStatus = model.FineTuningSucceeded
		doc.ModelPath = s.artifactPath(doc, remote)
		doc.TrainingOutput = trainingSummary(doc, elapsed, remote)
		doc.ErrorMessage = ""
		doc.FineTuningCompletedAt = &completedAt
		result.ModelPaths = append(result.ModelPaths, doc.ModelPath)
	}
	if err := s.docs.SaveAll(ctx, docs); err != nil {
		return nil, s.failBatch(ctx, input.DocumentIDs, err, logger)
	}

	result.ProcessingTime = elapsed
	result.AvgTimePerObject = elapsed / time.Duration(max(totalObjects, 1))
	result.Documents = docs
	logger.Info("fine-tuning batch completed", "mode", result.Mode, "objects", totalObjects, "elapsed", elapsed)
	return result, nil
}

func checkBatchInput(input RunBatchInput) error {
	if input.UserID == 0 || len(input.DocumentIDs) == 0 {
		return ErrInvalidInput
	}
	seen := make(map[uint]struct{}, len(input.DocumentIDs))
	for _, id := range input.DocumentIDs {
		if id == 0 {
			return fmt.Errorf("%w: document id must be positive", ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate document id %d", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// loadEligible reloads the documents and returns them in submission order.
func (s *FineTuneService) loadEligible(ctx context.Context, input RunBatchInput) ([]model.Document, error) {
	found, err := s.docs.Find(ctx, model.DocumentQuery{
		IDs:      input.DocumentIDs,
		OwnerID:  input.UserID,
		Statuses: []model.DocumentStatus{model.StatusUploaded},
	})
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.Document, len(found))
	for _, doc := range found {
		byID[doc.ID] = doc
	}

	docs := make([]model.Document, 0, len(input.DocumentIDs))
	for _, id := range input.DocumentIDs {
		doc, ok := byID[id]
		if !ok {
			return nil, ErrDocumentsNotEligible
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *FineTuneService) validateAll(ctx context.Context, docs []model.Document, logger *slog.Logger) error {
	for i := range docs {
		doc := &docs[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := doc.TransitionTo(model.StatusValidating); err != nil {
			return err
		}
		if err := s.docs.Save(ctx, doc); err != nil {
			return err
		}

		doc.Analysis = s.validator.Validate(ctx, doc.FilePath, doc.FileType)
		if err := ctx.Err(); err != nil {
			return err
		}
		if !doc.Analysis.Valid || doc.Analysis.SampleRecords == 0 {
			reason := doc.Analysis.Error
			if reason == "" {
				reason = noValidDataMessage
			}
			doc.Analysis.Valid = false
			if err := doc.TransitionTo(model.StatusValidationFailed); err != nil {
				return err
			}
			doc.ErrorMessage = reason
			if err := s.docs.Save(ctx, doc); err != nil {
				return err
			}
			logger.Warn("dataset validation failed", "documentId", doc.ID, "filename", doc.Filename, "reason", reason)
			return &ValidationError{DocumentID: doc.ID, Filename: doc.Filename, Reason: reason}
		}

		if err := doc.TransitionTo(model.StatusFineTuningReady); err != nil {
			return err
		}
		if err := s.docs.Save(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// failBatch marks every submitted document failed. The write is detached from
// ctx so that cancellation still records the outcome.
func (s *FineTuneService) failBatch(ctx context.Context, ids []uint, cause error, logger *slog.Logger) error {
	logger.Error("fine-tuning batch failed", "error", cause)

	status := model.StatusFineTuningFailed
	ftStatus := model.FineTuningFailed
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		ftStatus = model.FineTuningCancelled
	}
	msg := cause.Error()
	patch := model.DocumentPatch{
		Status:           &status,
		FineTuningStatus: &ftStatus,
		ErrorMessage:     &msg,
	}
	var cmdErr *dispatch.CommandError
	if errors.As(cause, &cmdErr) {
		patch.TrainingOutput = &cmdErr.Output
	}

	if err := s.docs.UpdateMany(context.WithoutCancel(ctx), ids, patch); err != nil {
		logger.Error("mark batch failed failed", "error", err)
		return errors.Join(cause, err)
	}
	return cause
}

func (s *FineTuneService) artifactPath(doc *model.Document, remote *dispatch.Result) string {
	if remote != nil && remote.ArtifactPath != "" {
		return remote.ArtifactPath
	}
	return path.Join(s.cfg.ArtifactDir, fmt.Sprintf("finetuned-%d", doc.ID))
}

func trainingSummary(doc *model.Document, elapsed time.Duration, remote *dispatch.Result) string {
	prompt := "no"
	if doc.Analysis.Prompt != "" {
		prompt = "yes"
	}
	summary := fmt.Sprintf("Fine-tuning completed in %.1fs\nProcessed %d records\nGeneration prompt created: %s",
		elapsed.Seconds(), doc.Analysis.RowCount, prompt)
	if remote != nil && remote.Output != "" {
		summary += "\n\n" + remote.Output
	}
	return summary
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

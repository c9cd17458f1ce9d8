package app

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"finetune-orchestrator/internal/model"
)

const defaultMaxUploadSize = 10 << 20

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	Find(ctx context.Context, q model.DocumentQuery) ([]model.Document, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]model.Document, error)
	GetByIDAndOwner(ctx context.Context, id, ownerID uint) (*model.Document, error)
	DeleteByIDAndOwner(ctx context.Context, id, ownerID uint) error
}

type DatasetFiles interface {
	Save(ctx context.Context, name string, content []byte) (string, error)
	Remove(ctx context.Context, location string) error
}

type TrainingLogReader interface {
	ListByBatchID(ctx context.Context, batchID string, limit int) ([]model.TrainingLog, error)
}

type DocumentService struct {
	docs          DocumentRepository
	files         DatasetFiles
	logs          TrainingLogReader
	maxUploadSize int64
	now           func() time.Time
}

func NewDocumentService(docs DocumentRepository, files DatasetFiles, logs TrainingLogReader, maxUploadSize int64) *DocumentService {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &DocumentService{
		docs:          docs,
		files:         files,
		logs:          logs,
		maxUploadSize: maxUploadSize,
		now:           time.Now,
	}
}

type UploadInput struct {
	UserID   uint
	UserName string
	Filename string
	Purpose  string
	Content  []byte
}

func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	filename := path.Base(strings.TrimSpace(input.Filename))
	if input.UserID == 0 || filename == "" || filename == "." || filename == "/" {
		return nil, ErrInvalidInput
	}
	format := model.DatasetFormat(strings.ToLower(strings.TrimPrefix(path.Ext(filename), ".")))
	if input.Purpose != model.PurposeFineTuning || !format.Supported() {
		return nil, ErrUnsupportedUpload
	}
	if int64(len(input.Content)) > s.maxUploadSize {
		return nil, ErrUploadTooLarge
	}

	stored := fmt.Sprintf("%d_%s", s.now().UnixMilli(), filename)
	location, err := s.files.Save(ctx, stored, input.Content)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		Filename:       filename,
		FilePath:       location,
		FileSize:       int64(len(input.Content)),
		FileType:       format,
		Purpose:        model.PurposeFineTuning,
		Status:         model.StatusUploaded,
		UploadedBy:     input.UserID,
		UploadedByName: input.UserName,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if rmErr := s.files.Remove(context.WithoutCancel(ctx), location); rmErr != nil {
			slog.Warn("remove orphaned upload failed", "location", location, "error", rmErr)
		}
		return nil, err
	}
	slog.Info("dataset uploaded", "documentId", doc.ID, "userId", input.UserID, "format", format, "bytes", doc.FileSize)
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByOwner(ctx, userID)
}

func (s *DocumentService) Get(ctx context.Context, userID, id uint) (*model.Document, error) {
	if userID == 0 || id == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndOwner(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete refuses documents whose batch is still training. Removing the stored
// file is best effort.
func (s *DocumentService) Delete(ctx context.Context, userID, id uint) error {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if doc.Status.Training() {
		return ErrDocumentInTraining
	}
	if err := s.docs.DeleteByIDAndOwner(ctx, doc.ID, userID); err != nil {
		return err
	}
	if err := s.files.Remove(ctx, doc.FilePath); err != nil {
		slog.Warn("remove dataset file failed", "documentId", doc.ID, "location", doc.FilePath, "error", err)
	}
	return nil
}

// Job returns the caller's documents that belong to batchID.
func (s *DocumentService) Job(ctx context.Context, userID uint, batchID string) ([]model.Document, error) {
	batchID = strings.TrimSpace(batchID)
	if userID == 0 || batchID == "" {
		return nil, ErrInvalidInput
	}
	docs, err := s.docs.Find(ctx, model.DocumentQuery{OwnerID: userID, FineTuningJobID: batchID})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrDocumentNotFound
	}
	return docs, nil
}

func (s *DocumentService) TrainingLogs(ctx context.Context, userID uint, batchID string, limit int) ([]model.TrainingLog, error) {
	if _, err := s.Job(ctx, userID, batchID); err != nil {
		return nil, err
	}
	return s.logs.ListByBatchID(ctx, strings.TrimSpace(batchID), limit)
}

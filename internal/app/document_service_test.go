package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"finetune-orchestrator/internal/model"
)

type fakeDocumentRepo struct {
	docs    []model.Document
	nextID  uint
	created []model.Document
	deleted []uint
	err     error
}

func (r *fakeDocumentRepo) Create(_ context.Context, doc *model.Document) error {
	if r.err != nil {
		return r.err
	}
	r.nextID++
	doc.ID = r.nextID
	r.docs = append(r.docs, *doc)
	r.created = append(r.created, *doc)
	return nil
}

func (r *fakeDocumentRepo) Find(_ context.Context, q model.DocumentQuery) ([]model.Document, error) {
	var out []model.Document
	for _, doc := range r.docs {
		if q.OwnerID != 0 && doc.UploadedBy != q.OwnerID {
			continue
		}
		if q.FineTuningJobID != "" && doc.FineTuningJobID != q.FineTuningJobID {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *fakeDocumentRepo) ListByOwner(ctx context.Context, ownerID uint) ([]model.Document, error) {
	return r.Find(ctx, model.DocumentQuery{OwnerID: ownerID})
}

func (r *fakeDocumentRepo) GetByIDAndOwner(_ context.Context, id, ownerID uint) (*model.Document, error) {
	for _, doc := range r.docs {
		if doc.ID == id && doc.UploadedBy == ownerID {
			d := doc
			return &d, nil
		}
	}
	return nil, nil
}

func (r *fakeDocumentRepo) DeleteByIDAndOwner(_ context.Context, id, _ uint) error {
	r.deleted = append(r.deleted, id)
	return nil
}

type fakeDatasetFiles struct {
	saved   map[string][]byte
	removed []string
	saveErr error
}

func (f *fakeDatasetFiles) Save(_ context.Context, name string, content []byte) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	location := "/data/uploads/" + name
	f.saved[location] = content
	return location, nil
}

func (f *fakeDatasetFiles) Remove(_ context.Context, location string) error {
	f.removed = append(f.removed, location)
	return nil
}

type fakeLogReader struct {
	batchIDs []string
}

func (r *fakeLogReader) ListByBatchID(_ context.Context, batchID string, _ int) ([]model.TrainingLog, error) {
	r.batchIDs = append(r.batchIDs, batchID)
	return []model.TrainingLog{{BatchID: batchID, Line: "epoch 1"}}, nil
}

func newTestDocumentService(repo *fakeDocumentRepo, files *fakeDatasetFiles, logs *fakeLogReader) *DocumentService {
	svc := NewDocumentService(repo, files, logs, 16)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc
}

func TestUploadStoresDataset(t *testing.T) {
	repo := &fakeDocumentRepo{}
	files := &fakeDatasetFiles{}
	svc := newTestDocumentService(repo, files, nil)

	doc, err := svc.Upload(context.Background(), UploadInput{
		UserID:   7,
		UserName: "ada",
		Filename: "../Train.JSON",
		Purpose:  model.PurposeFineTuning,
		Content:  []byte(`[{"a":1}]`),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.FilePath != "/data/uploads/1700000000000_Train.JSON" {
		t.Fatalf("unexpected location: %s", doc.FilePath)
	}
	if doc.Status != model.StatusUploaded || doc.FileType != model.FormatJSON || doc.UploadedBy != 7 || doc.FileSize != 9 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(repo.created) != 1 {
		t.Fatalf("document should be created once")
	}
}

func TestUploadRejects(t *testing.T) {
	for name, testcase := range map[string]struct {
		input UploadInput
		want  error
	}{
		"no user":       {input: UploadInput{Filename: "a.csv", Purpose: model.PurposeFineTuning}, want: ErrInvalidInput},
		"wrong purpose": {input: UploadInput{UserID: 1, Filename: "a.csv", Purpose: "rag"}, want: ErrUnsupportedUpload},
		"wrong type":    {input: UploadInput{UserID: 1, Filename: "a.pdf", Purpose: model.PurposeFineTuning}, want: ErrUnsupportedUpload},
		"too large": {
			input: UploadInput{UserID: 1, Filename: "a.csv", Purpose: model.PurposeFineTuning, Content: []byte(strings.Repeat("x", 17))},
			want:  ErrUploadTooLarge,
		},
	} {
		t.Run(name, func(t *testing.T) {
			files := &fakeDatasetFiles{}
			_, err := newTestDocumentService(&fakeDocumentRepo{}, files, nil).Upload(context.Background(), testcase.input)
			if !errors.Is(err, testcase.want) {
				t.Fatalf("unexpected error: got %v want %v", err, testcase.want)
			}
			if len(files.saved) != 0 {
				t.Fatalf("rejected uploads must not be stored")
			}
		})
	}
}

func TestUploadRemovesFileWhenRecordFails(t *testing.T) {
	files := &fakeDatasetFiles{}
	repo := &fakeDocumentRepo{err: errors.New("duplicate entry")}
	_, err := newTestDocumentService(repo, files, nil).Upload(context.Background(), UploadInput{
		UserID: 1, Filename: "a.csv", Purpose: model.PurposeFineTuning, Content: []byte("q\n1"),
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(files.removed) != 1 || files.removed[0] != "/data/uploads/1700000000000_a.csv" {
		t.Fatalf("orphaned file not removed: %v", files.removed)
	}
}

func TestDeleteDocument(t *testing.T) {
	repo := &fakeDocumentRepo{docs: []model.Document{
		{ID: 1, UploadedBy: 1, FilePath: "/data/uploads/a.csv", Status: model.StatusFineTuningCompleted},
		{ID: 2, UploadedBy: 1, FilePath: "/data/uploads/b.csv", Status: model.StatusFineTuningInProgress},
	}}
	files := &fakeDatasetFiles{}
	svc := newTestDocumentService(repo, files, nil)

	if err := svc.Delete(context.Background(), 1, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(repo.deleted) != 1 || files.removed[0] != "/data/uploads/a.csv" {
		t.Fatalf("document not deleted: %v %v", repo.deleted, files.removed)
	}
	if err := svc.Delete(context.Background(), 1, 2); !errors.Is(err, ErrDocumentInTraining) {
		t.Fatalf("expected ErrDocumentInTraining, got %v", err)
	}
	if err := svc.Delete(context.Background(), 2, 1); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound for a foreign document, got %v", err)
	}
}

func TestJobAndTrainingLogs(t *testing.T) {
	repo := &fakeDocumentRepo{docs: []model.Document{
		{ID: 1, UploadedBy: 1, FineTuningJobID: "b-1"},
		{ID: 2, UploadedBy: 2, FineTuningJobID: "b-2"},
	}}
	logs := &fakeLogReader{}
	svc := newTestDocumentService(repo, &fakeDatasetFiles{}, logs)

	docs, err := svc.Job(context.Background(), 1, "b-1")
	if err != nil || len(docs) != 1 || docs[0].ID != 1 {
		t.Fatalf("unexpected job lookup: %v %v", docs, err)
	}
	if _, err := svc.TrainingLogs(context.Background(), 1, "b-2", 0); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("foreign batch logs must be hidden, got %v", err)
	}
	entries, err := svc.TrainingLogs(context.Background(), 1, " b-1 ", 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("unexpected logs: %v %v", entries, err)
	}
	if len(logs.batchIDs) != 1 || logs.batchIDs[0] != "b-1" {
		t.Fatalf("logs read for unexpected batches: %v", logs.batchIDs)
	}
}

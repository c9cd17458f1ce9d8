package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"finetune-orchestrator/internal/app"
	"finetune-orchestrator/internal/model"
	"finetune-orchestrator/internal/transport/http/middleware"
	"finetune-orchestrator/internal/transport/http/response"
)

type DocumentService interface {
	Upload(ctx context.Context, input app.UploadInput) (*model.Document, error)
	List(ctx context.Context, userID uint) ([]model.Document, error)
	Get(ctx context.Context, userID, id uint) (*model.Document, error)
	Delete(ctx context.Context, userID, id uint) error
	Job(ctx context.Context, userID uint, batchID string) ([]model.Document, error)
	TrainingLogs(ctx context.Context, userID uint, batchID string, limit int) ([]model.TrainingLog, error)
}

type BatchRunner interface {
	RunBatch(ctx context.Context, input app.RunBatchInput) (*app.BatchResult, error)
}

type DocumentHandler struct {
	docs          DocumentService
	batches       BatchRunner
	batchTimeout  time.Duration
	maxUploadSize int64
}

type FineTuneRequest struct {
	DocumentIDs []uint `json:"document_ids" binding:"required,min=1"`
}

// NewDocumentHandler builds the handler. maxUploadSize <= 0 leaves the size check to the service.
func NewDocumentHandler(docs DocumentService, batches BatchRunner, batchTimeout time.Duration, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{docs: docs, batches: batches, batchTimeout: batchTimeout, maxUploadSize: maxUploadSize}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no file")
		return
	}
	if h.maxUploadSize > 0 && header.Size > h.maxUploadSize {
		writeServiceError(c, app.ErrUploadTooLarge, "upload failed")
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}
	defer file.Close()
	var body io.Reader = file
	if h.maxUploadSize > 0 {
		// one extra byte lets the service see an oversized body
		body = io.LimitReader(file, h.maxUploadSize+1)
	}
	content, err := io.ReadAll(body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}

	doc, err := h.docs.Upload(c.Request.Context(), app.UploadInput{
		UserID:   userID,
		UserName: c.GetString(middleware.ContextUsernameKey),
		Filename: header.Filename,
		Purpose:  c.PostForm("purpose"),
		Content:  content,
	})
	if err != nil {
		writeServiceError(c, err, "upload failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docs, err := h.docs.List(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	doc, err := h.docs.Get(c.Request.Context(), userID, id)
	if err != nil {
		writeServiceError(c, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.docs.Delete(c.Request.Context(), userID, id); err != nil {
		writeServiceError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted": id})
}

// FineTune blocks until the batch reaches a terminal state or the batch timeout expires.
func (h *DocumentHandler) FineTune(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req FineTuneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "document_ids required")
		return
	}

	ctx := c.Request.Context()
	if h.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.batchTimeout)
		defer cancel()
	}
	result, err := h.batches.RunBatch(ctx, app.RunBatchInput{UserID: userID, DocumentIDs: req.DocumentIDs})
	if err != nil {
		writeServiceError(c, err, "fine-tuning failed")
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) Job(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docs, err := h.docs.Job(c.Request.Context(), userID, c.Param("batchID"))
	if err != nil {
		writeServiceError(c, err, "get job failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) TrainingLogs(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.docs.TrainingLogs(c.Request.Context(), userID, c.Param("batchID"), limit)
	if err != nil {
		writeServiceError(c, err, "list training logs failed")
		return
	}
	response.OK(c, logs)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return 0, false
	}
	return uint(id), true
}

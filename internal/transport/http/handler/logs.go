package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"finetune-orchestrator/internal/app"
	"finetune-orchestrator/internal/model"
	"finetune-orchestrator/internal/transport/http/response"
)

type GenerationLogService interface {
	List(ctx context.Context, input app.ListLogsInput) (*app.LogPage, error)
	Get(ctx context.Context, userID, id uint) (*model.GenerationLog, error)
	Stats(ctx context.Context, userID uint) (*model.GenerationLogStats, error)
}

type LogHandler struct {
	logs GenerationLogService
}

func NewLogHandler(logs GenerationLogService) *LogHandler {
	return &LogHandler{logs: logs}
}

func (h *LogHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	page, err := h.logs.List(c.Request.Context(), app.ListLogsInput{UserID: userID, Limit: limit, Offset: offset})
	if err != nil {
		writeServiceError(c, err, "list generation logs failed")
		return
	}
	response.OK(c, page)
}

func (h *LogHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid log id")
		return
	}
	entry, err := h.logs.Get(c.Request.Context(), userID, uint(id))
	if err != nil {
		writeServiceError(c, err, "get generation log failed")
		return
	}
	response.OK(c, entry)
}

func (h *LogHandler) Stats(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	stats, err := h.logs.Stats(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err, "generation log stats failed")
		return
	}
	response.OK(c, stats)
}

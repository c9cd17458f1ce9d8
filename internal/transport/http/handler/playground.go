package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"finetune-orchestrator/internal/app"
	"finetune-orchestrator/internal/transport/http/response"
)

type GenerationService interface {
	GenerateCompetencies(ctx context.Context, input app.GenerateInput) (*app.GenerateResult, error)
	NormalizeGeneratedRecords(raw string) app.NormalizeResult
}

type PlaygroundHandler struct {
	generation GenerationService
}

type CompetencyRequest struct {
	InputText string `json:"input_text" binding:"required"`
}

type NormalizeRequest struct {
	Raw string `json:"raw" binding:"required"`
}

func NewPlaygroundHandler(generation GenerationService) *PlaygroundHandler {
	return &PlaygroundHandler{generation: generation}
}

func (h *PlaygroundHandler) Competency(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req CompetencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "input text is required")
		return
	}
	result, err := h.generation.GenerateCompetencies(c.Request.Context(), app.GenerateInput{
		UserID:    userID,
		InputText: req.InputText,
	})
	if err != nil {
		writeServiceError(c, err, "failed to generate competencies")
		return
	}
	response.OK(c, result)
}

// Normalize always answers 200; an unrecoverable payload is reported in the body.
func (h *PlaygroundHandler) Normalize(c *gin.Context) {
	var req NormalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "raw text is required")
		return
	}
	response.OK(c, h.generation.NormalizeGeneratedRecords(req.Raw))
}

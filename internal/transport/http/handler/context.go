package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"finetune-orchestrator/internal/app"
	"finetune-orchestrator/internal/dispatch"
	"finetune-orchestrator/internal/normalize"
	"finetune-orchestrator/internal/transport/http/middleware"
	"finetune-orchestrator/internal/transport/http/response"
)

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok && userID != 0
}

// writeServiceError maps service errors onto the response envelope.
func writeServiceError(c *gin.Context, err error, fallback string) {
	var validationErr *app.ValidationError
	var cmdErr *dispatch.CommandError
	var parseErr *normalize.ParseError

	switch {
	case errors.As(err, &validationErr):
		response.Error(c, http.StatusBadRequest, response.CodeDatasetInvalid, validationErr.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnsupportedUpload):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedUpload, err.Error())
	case errors.Is(err, app.ErrUploadTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeUploadTooLarge, err.Error())
	case errors.Is(err, app.ErrDocumentsNotEligible):
		response.Error(c, http.StatusBadRequest, response.CodeDocumentsNotEligible, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound), errors.Is(err, app.ErrGenerationLogNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
	case errors.Is(err, app.ErrDocumentsBusy), errors.Is(err, app.ErrDocumentInTraining):
		response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
	case errors.As(err, &cmdErr):
		response.ErrorWithData(c, http.StatusBadGateway, response.CodeRemoteTraining, err.Error(), gin.H{
			"exit_code": cmdErr.ExitCode,
			"output":    cmdErr.Output,
		})
	case errors.Is(err, dispatch.ErrTransport):
		response.Error(c, http.StatusBadGateway, response.CodeRemoteTraining, err.Error())
	case errors.As(err, &parseErr):
		response.ErrorWithData(c, http.StatusBadGateway, response.CodeGenerationFailed, err.Error(), gin.H{
			"raw_sample": parseErr.RawSample,
		})
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback+": "+err.Error())
	}
}

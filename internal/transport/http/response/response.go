package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                   = 0
	CodeBadRequest           = 40000
	CodeUnsupportedUpload    = 40001
	CodeDatasetInvalid       = 40002
	CodeDocumentsNotEligible = 40003
	CodeUnauthorized         = 40100
	CodeNotFound             = 40400
	CodeConflict             = 40900
	CodeUploadTooLarge       = 41300
	CodeInternalServer       = 50000
	CodeRemoteTraining       = 50200
	CodeGenerationFailed     = 50201
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData is Error plus a diagnostic payload.
func ErrorWithData(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

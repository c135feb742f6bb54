package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"juris-rag/internal/app"
)

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeDocumentNotFound   = 40401
	CodeUnprocessable      = 42200
	CodeInternalServer     = 50000
	CodeEmbeddingDown      = 50301
	CodeGenerationDown     = 50302
	CodeStorageUnavailable = 50303
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
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

// Failure writes an error envelope whose status follows the error kind.
// data is optional and carries a partial result such as a failed chat turn.
func Failure(c *gin.Context, kind app.Kind, message string, data interface{}) {
	status, code := Status(kind)
	c.JSON(status, APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func FromError(c *gin.Context, err error) {
	Failure(c, app.KindOf(err), err.Error(), nil)
}

func Status(kind app.Kind) (int, int) {
	switch kind {
	case app.KindValidation:
		return http.StatusBadRequest, CodeBadRequest
	case app.KindExtraction:
		return http.StatusUnprocessableEntity, CodeUnprocessable
	case app.KindEmbeddingUnavailable:
		return http.StatusServiceUnavailable, CodeEmbeddingDown
	case app.KindGenerationUnavailable:
		return http.StatusServiceUnavailable, CodeGenerationDown
	case app.KindStorage:
		return http.StatusServiceUnavailable, CodeStorageUnavailable
	case app.KindNotFound:
		return http.StatusNotFound, CodeDocumentNotFound
	default:
		return http.StatusInternalServerError, CodeInternalServer
	}
}

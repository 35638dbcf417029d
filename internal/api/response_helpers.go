// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/services"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

// ResponseHelper writes the APIResponse envelope.
type ResponseHelper struct{}

func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusOK, data, message)
}

func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusCreated, data, message)
}

// Accepted answers a request whose work continues in the background.
func (rh *ResponseHelper) Accepted(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusAccepted, data, message)
}

func (rh *ResponseHelper) write(c *gin.Context, status int, data interface{}, message []string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// secretPattern matches key material that upstream errors sometimes echo back.
var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|key|token|secret|password)=[^&\s"]+|AIza[0-9A-Za-z_\-]{20,}`)

// sanitizeErrorMessage removes credentials from messages sent to clients.
func sanitizeErrorMessage(message string) string {
	return secretPattern.ReplaceAllString(message, "[masqué]")
}

func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 && details[0] != "" {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

func (rh *ResponseHelper) NotFound(c *gin.Context, code, message string) {
	rh.Error(c, http.StatusNotFound, code, message)
}

func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusConflict, ErrorConflict, message, details...)
}

// FromError maps an AppError type to its HTTP status and error code.
// notFoundCode refines the code of not-found errors for the resource at hand.
func (rh *ResponseHelper) FromError(c *gin.Context, err error, notFoundCode ...string) {
	status, code := statusForError(err)
	if status == http.StatusNotFound && len(notFoundCode) > 0 {
		code = notFoundCode[0]
	}

	message := apperrors.MessageOf(err)
	if message == "" {
		message = "Erreur interne du serveur"
	}

	var details string
	var appError *apperrors.AppError
	if errors.As(err, &appError) && appError.Err != nil && status >= http.StatusInternalServerError {
		details = appError.Err.Error()
	}

	if status >= http.StatusInternalServerError {
		utils.GetLogger().Error("Request failed", map[string]interface{}{
			"path":       c.FullPath(),
			"status":     status,
			"error":      err,
			"request_id": rh.getRequestID(c),
		})
	}
	rh.Error(c, status, code, message, details)
}

func statusForError(err error) (int, string) {
	if errors.Is(err, services.ErrLLMNotReady) {
		return http.StatusServiceUnavailable, ErrorAPIKeyMissing
	}
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest, ErrorBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound, ErrorNotFound
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized, ErrorUnauthorized
	case apperrors.ErrorTypeForbidden:
		return http.StatusForbidden, ErrorForbidden
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict, ErrorConflict
	case apperrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout, ErrorTimeout
	case apperrors.ErrorTypeRateLimited:
		return http.StatusTooManyRequests, ErrorRateLimited
	case apperrors.ErrorTypeBlocked:
		return http.StatusUnprocessableEntity, ErrorContentBlocked
	case apperrors.ErrorTypeUpstream:
		return http.StatusBadGateway, ErrorUpstreamFailure
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}

// DownloadResponse sends an export as an attachment.
func (rh *ResponseHelper) DownloadResponse(c *gin.Context, result *models.ExportResult) {
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Header("Content-Length", strconv.Itoa(result.Size()))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

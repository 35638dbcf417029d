// internal/api/error_codes.go
package api

// API error codes
const (
	// generic
	ErrorBadRequest      = "BAD_REQUEST"
	ErrorNotFound        = "NOT_FOUND"
	ErrorInternalError   = "INTERNAL_ERROR"
	ErrorConflict        = "CONFLICT"
	ErrorForbidden       = "FORBIDDEN"
	ErrorUnauthorized    = "UNAUTHORIZED"
	ErrorTimeout         = "TIMEOUT"
	ErrorRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrorServiceNotReady = "SERVICE_NOT_READY"

	// generation tasks
	ErrorTaskNotFound    = "TASK_NOT_FOUND"
	ErrorResultNotFound  = "RESULT_NOT_FOUND"
	ErrorNoImages        = "NO_IMAGES"
	ErrorInvalidSource   = "INVALID_SOURCE"
	ErrorContentBlocked  = "CONTENT_BLOCKED"
	ErrorUpstreamFailure = "UPSTREAM_FAILURE"

	// LLM
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
	ErrorAPIKeyMissing         = "API_KEY_MISSING"
	ErrorAnalyzerConfigInvalid = "ANALYZER_CONFIG_INVALID"

	// uploads
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileTooLarge     = "FILE_TOO_LARGE"

	// projects and exports
	ErrorProjectNotFound     = "PROJECT_NOT_FOUND"
	ErrorExportFailed        = "EXPORT_FAILED"
	ErrorExportFormatInvalid = "EXPORT_FORMAT_INVALID"
	ErrorExportDataEmpty     = "EXPORT_DATA_EMPTY"
)

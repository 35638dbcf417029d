// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an AppError.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeError        ErrorType = "processing_error"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeTimeout      ErrorType = "timeout"

	// Gemini / Drive failures
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeBlocked     ErrorType = "blocked"
	ErrorTypeUpstream    ErrorType = "upstream_error"
)

// AppError is the error type shared by services and handlers.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // stable code exposed to API clients
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError of the given type.
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

func NewUnauthorizedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, originalError)
}

func NewForbiddenError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeForbidden, message, originalError)
}

func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

func NewTimeoutError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, message, originalError)
}

// NewRateLimitedError marks a quota or 429 answer from an upstream API.
func NewRateLimitedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeRateLimited, message, originalError)
}

// NewBlockedError marks content refused by the model safety filter.
func NewBlockedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeBlocked, message, originalError)
}

func NewUpstreamError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUpstream, message, originalError)
}

// TypeOf returns the type of the outermost AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

func IsValidationError(err error) bool   { return TypeOf(err) == ErrorTypeValidation }
func IsNotFoundError(err error) bool     { return TypeOf(err) == ErrorTypeNotFound }
func IsUnauthorizedError(err error) bool { return TypeOf(err) == ErrorTypeUnauthorized }
func IsForbiddenError(err error) bool    { return TypeOf(err) == ErrorTypeForbidden }
func IsConflictError(err error) bool     { return TypeOf(err) == ErrorTypeConflict }
func IsTimeoutError(err error) bool      { return TypeOf(err) == ErrorTypeTimeout }
func IsRateLimitedError(err error) bool  { return TypeOf(err) == ErrorTypeRateLimited }
func IsBlockedError(err error) bool      { return TypeOf(err) == ErrorTypeBlocked }
func IsUpstreamError(err error) bool     { return TypeOf(err) == ErrorTypeUpstream }

func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeForbidden:
		return "FORBIDDEN"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeRateLimited:
		return "RATE_LIMITED"
	case ErrorTypeBlocked:
		return "CONTENT_BLOCKED"
	case ErrorTypeUpstream:
		return "UPSTREAM_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError adds context to err. An AppError keeps its type and code.
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}

// MessageOf returns the user-facing message of err: the Message of the
// outermost AppError, or err.Error() for other errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Message
	}
	return err.Error()
}

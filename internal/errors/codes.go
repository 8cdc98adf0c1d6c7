package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific error type surfaced to operators.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the requested action, record or campaign does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAdPlatformUnavailable indicates the Marketing API call failed.
	ErrCodeAdPlatformUnavailable ErrorCode = "AD_PLATFORM_UNAVAILABLE"
	// ErrCodeLLMUnavailable indicates the LLM service is not available.
	ErrCodeLLMUnavailable ErrorCode = "LLM_UNAVAILABLE"
	// ErrCodePersistenceFailed indicates a document could not be written.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	// ErrCodeSafetyViolation indicates an action exceeded the configured bounds.
	ErrCodeSafetyViolation ErrorCode = "SAFETY_VIOLATION"
	// ErrCodeBusy indicates another monitoring pass holds the lock.
	ErrCodeBusy ErrorCode = "BUSY"
	// ErrCodeNotConfigured indicates an optional component is disabled.
	ErrCodeNotConfigured ErrorCode = "NOT_CONFIGURED"
)

// AppError represents a structured error with a stable code.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the code onto a response status for the operator API.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeInvalidArgument, ErrCodeSafetyViolation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeBusy:
		return http.StatusConflict
	case ErrCodeAdPlatformUnavailable, ErrCodeLLMUnavailable:
		return http.StatusBadGateway
	case ErrCodeNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors for common error types.

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: msg}
}

// RateLimitExceeded creates a rate limit error.
func RateLimitExceeded(msg string) *AppError {
	return &AppError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AppError {
	return &AppError{Code: ErrCodeInvalidArgument, Message: msg}
}

// NotFound creates a not found error for the given kind and id.
func NotFound(kind, id string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
	}
}

// AdPlatformUnavailable wraps a failed Marketing API call.
func AdPlatformUnavailable(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeAdPlatformUnavailable, Message: msg, Cause: cause}
}

// LLMUnavailable creates an LLM unavailable error.
func LLMUnavailable(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeLLMUnavailable, Message: msg, Cause: cause}
}

// PersistenceFailed wraps a failed document write.
func PersistenceFailed(key string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodePersistenceFailed,
		Message: fmt.Sprintf("failed to persist %s", key),
		Cause:   cause,
	}
}

// SafetyViolation creates a safety violation error.
func SafetyViolation(reason string) *AppError {
	return &AppError{Code: ErrCodeSafetyViolation, Message: reason}
}

// Busy creates an error for a rejected overlapping run.
func Busy(msg string) *AppError {
	return &AppError{Code: ErrCodeBusy, Message: msg}
}

// NotConfigured creates an error for a disabled component.
func NotConfigured(component string) *AppError {
	return &AppError{Code: ErrCodeNotConfigured, Message: component + " is not configured"}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error, or anything it wraps, carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AppError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return defaultCode
}

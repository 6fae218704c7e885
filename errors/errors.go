// Package errors provides the structured error type used across audioscribe.
// Each AppError carries a machine-readable code from the job/segment/session
// taxonomy, a human-readable message safe to show to clients, an HTTP status
// for the single-shot endpoint and an optional underlying cause.
package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another AppError by code, so errors.Is(err, errors.Fetch("")) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Job errors ---

// InvalidSource creates an error for a rejected URL or filename.
func InvalidSource(source, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidSource, Message: fmt.Sprintf("Unsupported source: %s", reason),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"source": source},
	}
}

// Ingest creates an error for a failure while saving client input.
func Ingest(cause error) *AppError {
	return &AppError{
		Code: ErrCodeIngest, Message: "Failed to save the uploaded audio.",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}

// Transcode creates an error for a failed or empty conversion.
// The reason is shown to the client and should be human readable.
func Transcode(reason string, cause error) *AppError {
	if reason == "" {
		reason = "Conversion failed"
	}
	return &AppError{
		Code: ErrCodeTranscode, Message: reason,
		HTTPStatus: http.StatusUnprocessableEntity, Cause: cause,
	}
}

// Fetch creates an error for a failed remote retrieval.
func Fetch(reason string, cause error) *AppError {
	if reason == "" {
		reason = "Failed to download the remote media"
	}
	return &AppError{
		Code: ErrCodeFetch, Message: reason,
		HTTPStatus: http.StatusBadGateway, Cause: cause,
	}
}

// SegmentRecognition creates an error for one segment's failed recognition.
func SegmentRecognition(segment int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSegmentRecognition, Message: fmt.Sprintf("Recognition failed for segment %d", segment),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"segment": segment}, Cause: cause,
	}
}

// --- Session errors ---

// Protocol creates an error for a malformed or out-of-sequence client message.
func Protocol(reason string) *AppError {
	return &AppError{
		Code: ErrCodeProtocol, Message: fmt.Sprintf("Protocol error: %s", reason),
		HTTPStatus: http.StatusBadRequest,
	}
}

// Resource creates an error for a failed cleanup of a temporary path.
func Resource(path string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeResource, Message: "Failed to release temporary resource",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"path": path}, Cause: cause,
	}
}

// --- Common errors ---

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeValidation, Message: message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// ServiceUnavailable creates a new AppError for a dependency that is temporarily unavailable.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable. Please try again.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// Timeout creates a new AppError for an operation that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The request took too long. Please try again.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// RateLimited creates a new AppError for too many requests.
func RateLimited() *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many requests. Please wait a moment and try again.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred. Please try again or contact support.",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}

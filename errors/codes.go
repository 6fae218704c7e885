package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Job errors. These abort the current job and surface as a single error event.
const (
	// ErrCodeInvalidSource indicates a malformed or unsupported URL or filename.
	ErrCodeInvalidSource ErrorCode = "INVALID_SOURCE"
	// ErrCodeIngest indicates an I/O failure while persisting client input.
	ErrCodeIngest ErrorCode = "INGEST_ERROR"
	// ErrCodeTranscode indicates the external conversion failed or produced no output.
	ErrCodeTranscode ErrorCode = "TRANSCODE_ERROR"
	// ErrCodeFetch indicates remote retrieval failed, including duration limits.
	ErrCodeFetch ErrorCode = "FETCH_ERROR"
)

// Segment errors. Isolated to one segment; the job continues.
const (
	// ErrCodeSegmentRecognition indicates one segment's recognizer call failed.
	ErrCodeSegmentRecognition ErrorCode = "SEGMENT_RECOGNITION_ERROR"
)

// Session errors
const (
	// ErrCodeProtocol indicates a malformed or out-of-sequence client message.
	ErrCodeProtocol ErrorCode = "PROTOCOL_ERROR"
	// ErrCodeResource indicates a cleanup failure. Logged, never sent to clients.
	ErrCodeResource ErrorCode = "RESOURCE_ERROR"
)

// Validation errors
const (
	// ErrCodeValidation indicates a struct failed validation.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
)

// Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates a dependency is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the client is rate limited.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
	ErrCodeSegmentRecognition: true,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// AbortsJob reports whether an error with this code ends the current job.
// Segment recognition failures are reported per segment and do not.
func AbortsJob(code ErrorCode) bool {
	switch code {
	case ErrCodeSegmentRecognition, ErrCodeResource:
		return false
	}
	return true
}

// EndsSession reports whether an error with this code terminates the whole
// client session rather than just the current job.
func EndsSession(code ErrorCode) bool {
	return code == ErrCodeProtocol
}

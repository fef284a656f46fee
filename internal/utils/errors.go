package utils

import "fmt"

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired = 10
	ExitAuthExpired  = 11
	// Transfer errors (20-29)
	ExitNotFound         = 20
	ExitPermissionDenied = 21
	ExitQuotaExceeded    = 22
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitTimeout      = 31
	ExitRateLimited  = 32
	// Store errors (40-49)
	ExitStoreUnavailable = 40
	// Validation errors (50-59)
	ExitInvalidArgument = 50
	ExitInvalidPath     = 51
	// Sync pass errors
	ExitPartialFailure = 60
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeAuthExpired      = "AUTH_EXPIRED"
	ErrCodeNotSignedIn      = "NOT_SIGNED_IN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeQuotaExceeded    = "QUOTA_EXCEEDED"
	ErrCodeNetworkError     = "NETWORK_ERROR"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeInvalidArgument  = "INVALID_ARGUMENT"
	ErrCodeInvalidPath      = "INVALID_PATH"
	ErrCodePartialFailure   = "PARTIAL_FAILURE"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeUnknown          = "UNKNOWN"
)

// SyncError carries a stable error code plus optional transport detail
type SyncError struct {
	Code       string
	Message    string
	HTTPStatus int
	Retryable  bool
	Context    map[string]interface{}
}

// SyncErrorBuilder helps construct SyncError instances
type SyncErrorBuilder struct {
	err SyncError
}

// NewSyncError creates a new error builder
func NewSyncError(code, message string) *SyncErrorBuilder {
	return &SyncErrorBuilder{
		err: SyncError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *SyncErrorBuilder) WithHTTPStatus(status int) *SyncErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *SyncErrorBuilder) WithRetryable(retryable bool) *SyncErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *SyncErrorBuilder) WithContext(key string, value interface{}) *SyncErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *SyncErrorBuilder) Build() SyncError {
	return b.err
}

// AppError is a custom error type that carries sync error info
type AppError struct {
	SyncError SyncError
	Cause     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.SyncError.Code, e.SyncError.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates an AppError from a SyncError
func NewAppError(syncErr SyncError) *AppError {
	return &AppError{SyncError: syncErr}
}

// NewAppErrorWithCause creates an AppError wrapping an underlying error
func NewAppErrorWithCause(syncErr SyncError, cause error) *AppError {
	return &AppError{SyncError: syncErr, Cause: cause}
}

// CodeOf returns the stable error code for an error, or ErrCodeUnknown
func CodeOf(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.SyncError.Code
	}
	return ErrCodeUnknown
}

// IsRetryable reports whether an error is marked retryable
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.SyncError.Retryable
	}
	return false
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:     ExitAuthRequired,
		ErrCodeAuthExpired:      ExitAuthExpired,
		ErrCodeNotSignedIn:      ExitAuthRequired,
		ErrCodeNotFound:         ExitNotFound,
		ErrCodePermissionDenied: ExitPermissionDenied,
		ErrCodeQuotaExceeded:    ExitQuotaExceeded,
		ErrCodeNetworkError:     ExitNetworkError,
		ErrCodeTimeout:          ExitTimeout,
		ErrCodeRateLimited:      ExitRateLimited,
		ErrCodeStoreUnavailable: ExitStoreUnavailable,
		ErrCodeInvalidArgument:  ExitInvalidArgument,
		ErrCodeInvalidPath:      ExitInvalidPath,
		ErrCodePartialFailure:   ExitPartialFailure,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

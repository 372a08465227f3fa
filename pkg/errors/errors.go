package errors

import "net/http"

// Kind classifies messaging failures so callers can react without string matching.
type Kind string

const (
	// KindAuthRejected is fatal to the session; the client must re-login.
	KindAuthRejected Kind = "AUTH_REJECTED"
	// KindTransientNetwork is recoverable; surfaced as an offline indicator.
	KindTransientNetwork Kind = "TRANSIENT_NETWORK"
	// KindSendFailed is scoped to a single message; retried only by explicit user action.
	KindSendFailed Kind = "SEND_FAILED"
	// KindBlocked means the peer relationship forbids sending. Expected, not a fault.
	KindBlocked Kind = "BLOCKED"
	// KindValidationRejected covers oversized/invalid payloads; nothing was mutated.
	KindValidationRejected Kind = "VALIDATION_REJECTED"
)

// AppError is a custom error type that includes an HTTP status code
type AppError struct {
	Code    int    `json:"code"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// NewAppError creates a new AppError
func NewAppError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Common errors
var (
	ErrInvalidRequest = NewAppError(http.StatusBadRequest, "Invalid request parameters")
	ErrUnauthorized   = NewAppError(http.StatusUnauthorized, "Unauthorized access")
	ErrForbidden      = NewAppError(http.StatusForbidden, "Access denied")
	ErrNotFound       = NewAppError(http.StatusNotFound, "Resource not found")
	ErrInternalServer = NewAppError(http.StatusInternalServerError, "Internal server error")
	ErrRateLimit      = NewAppError(http.StatusTooManyRequests, "Rate limit exceeded")
)

// Helper functions to create specific errors
func BadRequest(msg string) *AppError {
	return NewAppError(http.StatusBadRequest, msg)
}

func NotFound(msg string) *AppError {
	return NewAppError(http.StatusNotFound, msg)
}

func Unauthorized(msg string) *AppError {
	return NewAppError(http.StatusUnauthorized, msg)
}

func Forbidden(msg string) *AppError {
	return NewAppError(http.StatusForbidden, msg)
}

func Internal(msg string) *AppError {
	return NewAppError(http.StatusInternalServerError, msg)
}

// Taxonomy constructors used by the messaging pipeline.

func AuthRejected(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Kind: KindAuthRejected, Message: msg}
}

func TransientNetwork(msg string) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Kind: KindTransientNetwork, Message: msg}
}

func SendFailed(msg string) *AppError {
	return &AppError{Code: http.StatusBadGateway, Kind: KindSendFailed, Message: msg}
}

func Blocked(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Kind: KindBlocked, Message: msg}
}

func ValidationRejected(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Kind: KindValidationRejected, Message: msg}
}

// KindOf extracts the Kind from an error if it is an AppError.
func KindOf(err error) Kind {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

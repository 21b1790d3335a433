package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes reported by the unread synchronizer. They never cross component
// boundaries as panics; adapters hand them to status subscribers.
const (
	CodeTransientNetwork       = "TRANSIENT_NETWORK_ERROR"
	CodeChannelDisconnected    = "CHANNEL_DISCONNECTED"
	CodeReconciliationConflict = "RECONCILIATION_CONFLICT"
	CodeCompensationFailure    = "COMPENSATION_FAILURE"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    "TOO_MANY_REQUESTS",
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// TransientNetwork wraps a failed pull or mark-read after its retry budget.
func TransientNetwork(message string, err error) *AppError {
	return &AppError{
		Code:    CodeTransientNetwork,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func ChannelDisconnected(err error) *AppError {
	return &AppError{
		Code:    CodeChannelDisconnected,
		Message: "realtime channel disconnected",
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func ReconciliationConflict(message string) *AppError {
	return &AppError{
		Code:    CodeReconciliationConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

func CompensationFailure(message string, err error) *AppError {
	return &AppError{
		Code:    CodeCompensationFailure,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"

	// User errors
	ErrCodeUserNotFound ErrorCode = "USER_NOT_FOUND"

	// Switching errors
	ErrCodeSwitchFailed    ErrorCode = "SWITCH_FAILED"
	ErrCodeSwitchOffFailed ErrorCode = "SWITCH_OFF_FAILED"
	ErrCodeInvalidOldUser  ErrorCode = "INVALID_OLD_USER"

	// Permission errors
	ErrCodeInsufficientPermissions ErrorCode = "INSUFFICIENT_PERMISSIONS"
	ErrCodeInvalidActionToken      ErrorCode = "INVALID_ACTION_TOKEN"
)

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// HTTPStatus returns the status for any error, structured or not.
func HTTPStatus(err error) int {
	return MapErrorCodeToHTTPStatus(GetCode(err))
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes.
// Switch failures are fatal to the request and map to 500, matching the
// "could not switch" page shown to the user.
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest

	case ErrCodeUnauthorized, ErrCodeInvalidCredentials, ErrCodeNotAuthenticated:
		return http.StatusUnauthorized

	case ErrCodeForbidden, ErrCodeInsufficientPermissions, ErrCodeInvalidActionToken:
		return http.StatusForbidden

	case ErrCodeNotFound, ErrCodeUserNotFound:
		return http.StatusNotFound

	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	case ErrCodeSwitchFailed, ErrCodeSwitchOffFailed, ErrCodeInvalidOldUser, ErrCodeInternal:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

// Forbidden creates a "forbidden" error
func Forbidden(message string) *Error {
	return New(ErrCodeForbidden, message)
}

// Unauthorized creates an "unauthorized" error
func Unauthorized(message string) *Error {
	return New(ErrCodeUnauthorized, message)
}

// SwitchFailed wraps the cause of a failed switch-to or switch-back.
func SwitchFailed(err error) *Error {
	return &Error{Code: ErrCodeSwitchFailed, Message: "Could not switch users.", Err: err}
}

// InvalidOldUser reports a switch back without a valid stack entry.
func InvalidOldUser(err error) *Error {
	return Wrap(err, ErrCodeInvalidOldUser, "Could not switch users.")
}

// SwitchOffFailed wraps the cause of a failed switch-off.
func SwitchOffFailed(err error) *Error {
	return &Error{Code: ErrCodeSwitchOffFailed, Message: "Could not switch off.", Err: err}
}

// RateLimitExceeded creates a "rate limit exceeded" error
func RateLimitExceeded(retryAfter string) *Error {
	err := New(ErrCodeRateLimitExceeded, "rate limit exceeded")
	if retryAfter != "" {
		err.WithDetail("retry_after", retryAfter)
	}
	return err
}

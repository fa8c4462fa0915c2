// Package errors provides the application error type shared by the registry
// and the agent runtimes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeInvalidRole   = "INVALID_ROLE"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeGatewayError  = "GATEWAY_ERROR"
	ErrCodeToolError     = "TOOL_ERROR"
	ErrCodeUnsupported   = "UNSUPPORTED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// AlreadyExists creates a new conflict error for a duplicate resource.
func AlreadyExists(resource string, key string) *AppError {
	return &AppError{
		Code:       ErrCodeAlreadyExists,
		Message:    fmt.Sprintf("%s '%s' already registered", resource, key),
		HTTPStatus: http.StatusConflict,
	}
}

// InvalidRole creates an error for an operation addressed to a node of the
// wrong kind (public vs user).
func InvalidRole(id string, want string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidRole,
		Message:    fmt.Sprintf("node '%s' is not a %s node", id, want),
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidInput creates a new validation error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// GatewayError creates an error for a failed reasoning-model exchange.
func GatewayError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeGatewayError,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// ToolError creates an error for a failed peer-invocation tool call.
func ToolError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeToolError,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// Unsupported creates an error for an operation the receiver does not implement.
func Unsupported(operation string) *AppError {
	return &AppError{
		Code:       ErrCodeUnsupported,
		Message:    fmt.Sprintf("operation '%s' is not supported", operation),
		HTTPStatus: http.StatusNotImplemented,
	}
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// Code returns the error code for an error, or INTERNAL_ERROR if it is not an
// AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

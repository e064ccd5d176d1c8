// Package errors defines the panel's error taxonomy and its HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure in API responses.
type ErrorCode string

const (
	// General errors
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeConflict       ErrorCode = "CONFLICT"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorCodeTimeout        ErrorCode = "TIMEOUT"

	// Provisioning errors
	ErrorCodeProvisioningFailed    ErrorCode = "PROVISIONING_FAILED"
	ErrorCodeConnectionUnavailable ErrorCode = "CONNECTION_UNAVAILABLE"

	// Workspace database errors
	ErrorCodeSchemaSetupFailed   ErrorCode = "SCHEMA_SETUP_FAILED"
	ErrorCodeIntrospectionFailed ErrorCode = "INTROSPECTION_FAILED"

	// Lookup errors
	ErrorCodeWorkspaceNotFound ErrorCode = "WORKSPACE_NOT_FOUND"
	ErrorCodeAdminNotFound     ErrorCode = "ADMIN_NOT_FOUND"
	ErrorCodeUserNotFound      ErrorCode = "USER_NOT_FOUND"
)

// PanelError is a structured error carrying a code and the underlying cause.
type PanelError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface.
func (e *PanelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PanelError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a detail to the error.
func (e *PanelError) WithDetail(key string, value interface{}) *PanelError {
	e.Details[key] = value
	return e
}

// HTTPStatus maps the error code to an HTTP status.
func (e *PanelError) HTTPStatus() int {
	switch e.Code {
	case ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrorCodeWorkspaceNotFound, ErrorCodeAdminNotFound, ErrorCodeUserNotFound:
		return http.StatusNotFound
	case ErrorCodeConflict:
		return http.StatusConflict
	case ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrorCodeProvisioningFailed:
		return http.StatusBadGateway
	case ErrorCodeConnectionUnavailable:
		return http.StatusServiceUnavailable
	case ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewPanelError creates a new PanelError.
func NewPanelError(code ErrorCode, message string, cause error) *PanelError {
	return &PanelError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

func ProvisioningFailed(message string, cause error) *PanelError {
	return NewPanelError(ErrorCodeProvisioningFailed, message, cause)
}

func ConnectionUnavailable(projectID string, cause error) *PanelError {
	return NewPanelError(ErrorCodeConnectionUnavailable, "unable to get database connection string", cause).
		WithDetail("project_id", projectID)
}

func DatabaseUnreachable(workspaceID string, cause error) *PanelError {
	return NewPanelError(ErrorCodeConnectionUnavailable, "workspace database is unreachable", cause).
		WithDetail("workspace_id", workspaceID)
}

func SchemaSetupFailed(cause error) *PanelError {
	return NewPanelError(ErrorCodeSchemaSetupFailed, "workspace database setup failed", cause)
}

func IntrospectionFailed(cause error) *PanelError {
	return NewPanelError(ErrorCodeIntrospectionFailed, "failed to list workspace tables", cause)
}

func WorkspaceNotFound(workspaceID string) *PanelError {
	return NewPanelError(ErrorCodeWorkspaceNotFound, "workspace not found", nil).
		WithDetail("workspace_id", workspaceID)
}

func AdminNotFound(adminID string) *PanelError {
	return NewPanelError(ErrorCodeAdminNotFound, "admin not found", nil).
		WithDetail("admin_id", adminID)
}

func UserNotFound(userID string) *PanelError {
	return NewPanelError(ErrorCodeUserNotFound, "user not found", nil).
		WithDetail("user_id", userID)
}

func InvalidRequest(message string) *PanelError {
	return NewPanelError(ErrorCodeInvalidRequest, message, nil)
}

func Conflict(message string, cause error) *PanelError {
	return NewPanelError(ErrorCodeConflict, message, cause)
}

func Internal(message string, cause error) *PanelError {
	return NewPanelError(ErrorCodeInternalError, message, cause)
}

// AsPanelError extracts a PanelError from an error chain.
func AsPanelError(err error) (*PanelError, bool) {
	var pe *PanelError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// GetCode extracts the error code from an error, defaulting to INTERNAL_ERROR.
func GetCode(err error) ErrorCode {
	if pe, ok := AsPanelError(err); ok {
		return pe.Code
	}
	return ErrorCodeInternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

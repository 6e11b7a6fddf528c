package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"

	// Pipeline errors
	ErrorTypeStageExecution        ErrorType = "STAGE_EXECUTION"
	ErrorTypeRequiredStageFailure  ErrorType = "REQUIRED_STAGE_FAILURE"
	ErrorTypeOptionalStageFailure  ErrorType = "OPTIONAL_STAGE_FAILURE"
	ErrorTypeTimeout               ErrorType = "TIMEOUT"
	ErrorTypeCancelled             ErrorType = "CANCELLED"

	// Infrastructure errors
	ErrorTypeInternal                ErrorType = "INTERNAL"
	ErrorTypeDatabase                ErrorType = "DATABASE"
	ErrorTypeCollaboratorUnavailable ErrorType = "COLLABORATOR_UNAVAILABLE"
	ErrorTypeExternal                ErrorType = "EXTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

// Constructor functions for common error types

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StackTrace: captureStackTrace(),
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// NewStageExecutionError creates an error for an unhandled failure inside a stage
func NewStageExecutionError(stage string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeStageExecution,
		Message:    fmt.Sprintf("stage '%s' execution failed", stage),
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// NewRequiredStageFailure creates an error that escalates to pipeline failure
func NewRequiredStageFailure(stage string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeRequiredStageFailure,
		Message:    fmt.Sprintf("required stage '%s' failed", stage),
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// NewOptionalStageFailure creates an error that degrades a pipeline to partial
func NewOptionalStageFailure(stage string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeOptionalStageFailure,
		Message:    fmt.Sprintf("optional stage '%s' failed", stage),
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation '%s' timed out", operation),
		StackTrace: captureStackTrace(),
	}
}

// NewCancelledError creates a cancellation error
func NewCancelledError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeCancelled,
		Message:    fmt.Sprintf("operation '%s' was cancelled", operation),
		StackTrace: captureStackTrace(),
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDatabase,
		Message:    fmt.Sprintf("database operation '%s' failed", operation),
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// NewCollaboratorUnavailableError creates an error for a failed collaborator call.
// Callers degrade to a documented fallback (zero-vector embedding, empty
// fragment list, skip-and-retry) rather than aborting.
func NewCollaboratorUnavailableError(collaborator string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeCollaboratorUnavailable,
		Message:    fmt.Sprintf("collaborator '%s' is unavailable", collaborator),
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// NewExternalError creates an external service error
func NewExternalError(service string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Message:    fmt.Sprintf("external service '%s' error", service),
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return IsType(err, ErrorTypeTimeout)
}

// IsCollaboratorUnavailable checks if an error marks a failed collaborator call
func IsCollaboratorUnavailable(err error) bool {
	return IsType(err, ErrorTypeCollaboratorUnavailable)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, add context to message
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	// Otherwise create a new internal error
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

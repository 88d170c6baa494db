package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Connection errors (registry operations)
	ErrCodeDuplicateName     ErrorCode = "DUPLICATE_NAME"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeDialFailure       ErrorCode = "DIAL_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"

	// Query execution errors (scoped to one connection's outcome)
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeDriverError ErrorCode = "DRIVER_ERROR"
	ErrCodeCancelled   ErrorCode = "CANCELLED"

	// Merge errors (join strategy only)
	ErrCodeMissingKeyColumn     ErrorCode = "MISSING_KEY_COLUMN"
	ErrCodeIncompatibleKeyTypes ErrorCode = "INCOMPATIBLE_KEY_TYPES"

	// General errors
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeRateLimited   ErrorCode = "RATE_LIMITED"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorClass groups codes by the component that raises them.
type ErrorClass string

const (
	ClassConnection ErrorClass = "connection"
	ClassQuery      ErrorClass = "query_execution"
	ClassMerge      ErrorClass = "merge"
	ClassGeneral    ErrorClass = "general"
)

// Class returns the class a code belongs to.
func (c ErrorCode) Class() ErrorClass {
	switch c {
	case ErrCodeDuplicateName, ErrCodeNotFound, ErrCodeDialFailure, ErrCodeValidationFailure:
		return ClassConnection
	case ErrCodeTimeout, ErrCodeDriverError, ErrCodeCancelled:
		return ClassQuery
	case ErrCodeMissingKeyColumn, ErrCodeIncompatibleKeyTypes:
		return ClassMerge
	default:
		return ClassGeneral
	}
}

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	Err        error
	Status     int    // HTTP status code
	Connection string // connection the error is scoped to, if any
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Status:  getHTTPStatus(code),
	}
}

// WrapError wraps an existing error with an error code and message
func WrapError(code ErrorCode, message string, err error) *AppError {
	return NewAppError(code, message, err)
}

// ForConnection creates an application error scoped to one connection
func ForConnection(code ErrorCode, connection, message string, err error) *AppError {
	appErr := NewAppError(code, message, err)
	appErr.Connection = connection
	return appErr
}

// getHTTPStatus maps error codes to HTTP status codes
func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateName:
		return http.StatusConflict
	case ErrCodeInvalidInput, ErrCodeMissingKeyColumn, ErrCodeIncompatibleKeyTypes:
		return http.StatusBadRequest
	case ErrCodeDialFailure, ErrCodeValidationFailure, ErrCodeDriverError:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeCancelled:
		return http.StatusRequestTimeout
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an AppError from an error chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in the chain, or
// ErrCodeInternalError when there is none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// HasCode reports whether err carries the given code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsValidationError checks if the error is an input validation error
func IsValidationError(err error) bool {
	return HasCode(err, ErrCodeInvalidInput)
}

// Join combines errors, dropping nils. It returns nil when no error remains.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

package dto

import "github.com/hyperterse/fanout/core/shared/errors"

// HealthResponse represents a health check response
type HealthResponse struct {
	Success bool `json:"success"`
}

// ErrorBody is the machine-readable part of an error response
type ErrorBody struct {
	Kind       errors.ErrorCode `json:"kind"`
	Message    string           `json:"message"`
	Connection string           `json:"connection,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag"`
}

// ValidationErrorResponse represents a validation error response
type ValidationErrorResponse struct {
	Success bool          `json:"success"`
	Error   ErrorBody     `json:"error"`
	Details []ErrorDetail `json:"details,omitempty"`
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hyperterse/fanout/core/infrastructure/logging"
	"github.com/hyperterse/fanout/core/infrastructure/transport/http/dto"
	"github.com/hyperterse/fanout/core/shared/errors"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	logger logging.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(tag string) *BaseHandler {
	return &BaseHandler{
		logger: logging.New(tag),
	}
}

// WriteJSON writes a JSON response. The body is encoded before the status is
// sent, so an unencodable value becomes a 500 instead of an empty 200.
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Errorf("Failed to encode JSON response: %v", err)
		statusCode = http.StatusInternalServerError
		body, _ = json.Marshal(dto.ErrorResponse{
			Error: dto.ErrorBody{Kind: errors.ErrCodeInternalError, Message: "failed to encode response"},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(append(body, '\n'))
}

// WriteError writes an error response with the status mapped from its code
func (h *BaseHandler) WriteError(w http.ResponseWriter, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.NewAppError(errors.ErrCodeInternalError, err.Error(), err)
	}
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Errorf("Request failed: %v", err)
	} else {
		h.logger.Debugf("Request rejected: %v", err)
	}

	h.WriteJSON(w, appErr.Status, dto.ErrorResponse{
		Success: false,
		Error: dto.ErrorBody{
			Kind:       appErr.Code,
			Message:    appErr.Message,
			Connection: appErr.Connection,
		},
	})
}

// WriteValidationError writes a validation error response
func (h *BaseHandler) WriteValidationError(w http.ResponseWriter, validationErrors map[string]string) {
	details := make([]dto.ErrorDetail, 0, len(validationErrors))
	for field, tag := range validationErrors {
		details = append(details, dto.ErrorDetail{
			Field:   field,
			Tag:     tag,
			Message: "Validation failed",
		})
	}

	h.WriteJSON(w, http.StatusBadRequest, dto.ValidationErrorResponse{
		Success: false,
		Error:   dto.ErrorBody{Kind: errors.ErrCodeInvalidInput, Message: "Validation failed"},
		Details: details,
	})
}

// WriteSuccess writes a success response
func (h *BaseHandler) WriteSuccess(w http.ResponseWriter, data any) {
	h.WriteJSON(w, http.StatusOK, data)
}

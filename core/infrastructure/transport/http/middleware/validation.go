package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/hyperterse/fanout/core/infrastructure/transport/http/dto"
	apperrors "github.com/hyperterse/fanout/core/shared/errors"
)

var validate = validator.New()

type bodyKey struct{}

// maxBodyBytes caps request bodies; queries and profiles are small.
const maxBodyBytes = 1 << 20

// ValidateBody decodes the JSON request body into a fresh T, validates it
// and stores it in the request context for Body to retrieve. An empty body
// decodes to the zero value.
func ValidateBody[T any]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := new(T)
			dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
			dec.DisallowUnknownFields()
			if err := dec.Decode(body); err != nil && !errors.Is(err, io.EOF) {
				writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
					Error: dto.ErrorBody{Kind: apperrors.ErrCodeInvalidInput, Message: "Invalid JSON: " + err.Error()},
				})
				return
			}

			if err := validate.Struct(body); err != nil {
				details := []dto.ErrorDetail{}
				if validationErrs, ok := err.(validator.ValidationErrors); ok {
					for _, fe := range validationErrs {
						details = append(details, dto.ErrorDetail{
							Field:   fe.Field(),
							Tag:     fe.Tag(),
							Message: "Validation failed",
						})
					}
				}
				writeJSON(w, http.StatusBadRequest, dto.ValidationErrorResponse{
					Error:   dto.ErrorBody{Kind: apperrors.ErrCodeInvalidInput, Message: "Validation failed"},
					Details: details,
				})
				return
			}

			ctx := context.WithValue(r.Context(), bodyKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Body returns the value stored by ValidateBody. It returns a zero T when
// the middleware did not run.
func Body[T any](r *http.Request) *T {
	if body, ok := r.Context().Value(bodyKey{}).(*T); ok {
		return body
	}
	return new(T)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

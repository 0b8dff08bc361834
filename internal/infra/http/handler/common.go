// Package handler contains the HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/forgescan/api/pkg/apierror"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/validator"
)

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// decodeJSON decodes the request body into dst. Unknown fields are
// rejected so typos surface as errors instead of silently dropped input.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// queryList reads a comma-separated query parameter as a slice.
func queryList(r *http.Request, key string) []string {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// handleValidationError converts validation errors to API errors and
// writes the response.
func handleValidationError(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make([]apierror.ValidationError, len(validationErrors))
		for i, ve := range validationErrors {
			apiErrors[i] = apierror.ValidationError{
				Field:   ve.Field,
				Message: ve.Message,
			}
		}
		apierror.ValidationFailed("Validation failed", apiErrors).WriteJSON(w)
		return
	}
	apierror.BadRequest("Validation failed").WriteJSON(w)
}

// handleServiceError maps domain errors to API errors. The DomainError
// message, when present, is safe to surface: services never put internals
// in it.
func handleServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var domainErr *shared.DomainError
	message := ""
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	switch {
	case errors.Is(err, shared.ErrValidation):
		if message == "" {
			message = "Invalid request"
		}
		apierror.BadRequest(message).WriteJSON(w)
	case errors.Is(err, shared.ErrNotFound):
		if message != "" {
			apierror.New(http.StatusNotFound, apierror.CodeNotFound, message).WriteJSON(w)
		} else {
			apierror.NotFound("").WriteJSON(w)
		}
	case errors.Is(err, shared.ErrConflict):
		if message == "" {
			message = "Conflicting state"
		}
		apierror.Conflict(message).WriteJSON(w)
	case errors.Is(err, shared.ErrQuotaExceeded):
		apierror.QuotaExceeded(message).WriteJSON(w)
	case errors.Is(err, shared.ErrForbidden):
		apierror.Forbidden(message).WriteJSON(w)
	default:
		log.Error("unexpected error", "error", err)
		apierror.InternalError(err).WriteJSON(w)
	}
}

package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError so the API has one
// success shape and one error shape.
//
// CONSISTENT ERROR FORMAT:
//   {"error": "not_found", "message": "book not found with id abc123"}
//   {"error": "validation_error", "message": "rating must be at most 5", "field": "rating"}
//
// The frontend switches on "error" and shows "message"; "field" points at
// the offending input when there is one.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/bookclub/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input, validation errors only
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be written before the body: once Encode writes,
// later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, so logging is all we can do.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorKinds maps sentinel errors to HTTP. First match wins.
var errorKinds = []struct {
	sentinel error
	status   int
	kind     string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{apperror.ErrCodeExpired, http.StatusBadRequest, "code_expired"},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{apperror.ErrUpstream, http.StatusInternalServerError, "upstream_error"},
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// The service layer returns apperror values and never sees HTTP; this is the
// one place they become status codes. errors.As finds the *AppError for the
// message even when services wrapped it with fmt.Errorf("...: %w", err).
//
// Anything else, including apperror.ErrIntegrity, is a 500 with a generic
// message. Internal details are logged, never sent to the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, k := range errorKinds {
			if errors.Is(err, k.sentinel) {
				if k.status == http.StatusInternalServerError {
					slog.Error("upstream failure", slog.String("error", err.Error()))
				}
				if k.status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", `Bearer realm="bookclub"`)
				}
				writeJSON(w, k.status, ErrorResponse{
					Error:   k.kind,
					Message: appErr.Message,
					Field:   appErr.Field,
				})
				return
			}
		}
	}

	slog.Error("internal error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/auth"
	"github.com/sakif/bookclub/internal/service"
)

// maxBodyBytes caps request bodies. Profiles with long preference lists
// are the largest legitimate payload.
const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into dst. Malformed or oversized
// bodies become validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", "request body is too large")
		default:
			return apperror.ValidationFailed("body", "invalid JSON body")
		}
	}
	return nil
}

// parsePagination reads ?page and ?limit. Absent values take the defaults;
// range checks are the service's job.
func parsePagination(r *http.Request) (service.Pagination, error) {
	p := service.DefaultPagination()
	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, apperror.ValidationFailed("page", "page must be an integer")
		}
		p.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, apperror.ValidationFailed("limit", "limit must be an integer")
		}
		p.Limit = n
	}
	return p, nil
}

// callerID returns the member id set by auth.RequireAuth.
func callerID(r *http.Request) (string, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok || id.UserID == "" {
		return "", apperror.Unauthorized("authentication required")
	}
	return id.UserID, nil
}

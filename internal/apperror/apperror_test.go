package apperror

import (
	"errors"
	"testing"
)

// TABLE-DRIVEN TESTS:
// Every constructor must wrap exactly one sentinel so the HTTP layer can map
// it with errors.Is. One row per constructor, plus a few negative matches.

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("book", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("title", "title is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("favorite", "book already in favorites"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("missing token"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "RateLimited wraps ErrRateLimited",
			err:       RateLimited("wait a minute"),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "InvalidCode wraps ErrInvalidCode",
			err:       InvalidCode(),
			target:    ErrInvalidCode,
			wantMatch: true,
		},
		{
			name:      "CodeExpired wraps ErrCodeExpired",
			err:       CodeExpired(),
			target:    ErrCodeExpired,
			wantMatch: true,
		},
		{
			name:      "Upstream wraps ErrUpstream",
			err:       Upstream("delivery failed", errors.New("dial tcp: refused")),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "Upstream without cause wraps ErrUpstream",
			err:       Upstream("delivery failed", nil),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "Integrity wraps ErrIntegrity",
			err:       Integrity("identifier mismatch"),
			target:    ErrIntegrity,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("book", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "InvalidCode does NOT match ErrCodeExpired",
			err:       InvalidCode(),
			target:    ErrCodeExpired,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("book", "abc123"),
			wantMessage: "book not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("rating", "rating must be between 1 and 5"),
			wantMessage: "rating must be between 1 and 5",
		},
		{
			name:        "Conflict message includes resource",
			err:         Conflict("user", "email already registered"),
			wantMessage: "user conflict: email already registered",
		},
		{
			name:        "Upstream hides the cause",
			err:         Upstream("failed to send code", errors.New("status 502")),
			wantMessage: "failed to send code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("book", "abc123")
	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("failed to send code", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(Upstream(..., cause), cause) = false, want true")
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("phone", "invalid phone number format")

	if err.Field != "phone" {
		t.Errorf("Field = %q, want %q", err.Field, "phone")
	}
}

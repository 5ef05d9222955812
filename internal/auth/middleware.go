package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so no other package can
// read or shadow the Identity stored under it.
type contextKey string

const identityKey contextKey = "identity"

// AdminTokenHeader carries the static operator credential.
const AdminTokenHeader = "X-Admin-Token"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Role   model.Role
	// Static is set when the caller authenticated with the operator admin
	// token rather than a member's bearer token. Such callers have no
	// member record.
	Static bool
}

// IsAdmin reports whether the identity may use admin endpoints.
func (id Identity) IsAdmin() bool {
	return id.Static || id.Role == model.RoleAdmin
}

// UserLookup is the slice of the user store the middleware needs. The role
// is read from the store on every request so a demotion takes effect
// before the token expires.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Middleware authenticates requests.
type Middleware struct {
	tokens     *TokenService
	users      UserLookup
	adminToken string
}

// NewMiddleware returns the auth middleware. adminToken may be empty, in
// which case the X-Admin-Token header is ignored entirely.
func NewMiddleware(tokens *TokenService, users UserLookup, adminToken string) *Middleware {
	return &Middleware{tokens: tokens, users: users, adminToken: adminToken}
}

// RequireAuth rejects the request with 401 unless it carries a valid bearer
// token for an existing member. On success the Identity is stored in the
// request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.authenticate(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAdmin admits either the operator admin token or a member whose
// current role is admin. Missing or invalid credentials get 401, a valid
// member without the role gets 403.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.adminToken != "" {
			if got := r.Header.Get(AdminTokenHeader); got != "" {
				if subtle.ConstantTimeCompare([]byte(got), []byte(m.adminToken)) != 1 {
					writeAuthError(w, apperror.Unauthorized("invalid admin token"))
					return
				}
				ctx := WithIdentity(r.Context(), Identity{Role: model.RoleAdmin, Static: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		id, err := m.authenticate(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		if !id.IsAdmin() {
			writeAuthError(w, apperror.Forbidden("admin role required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// authenticate resolves the bearer token to an Identity.
func (m *Middleware) authenticate(r *http.Request) (Identity, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return Identity{}, err
	}

	claims, err := m.tokens.Verify(raw)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return Identity{}, apperror.Unauthorized("token expired")
		}
		return Identity{}, apperror.Unauthorized("invalid token")
	}

	user, err := m.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return Identity{}, apperror.Unauthorized("user not found")
		}
		return Identity{}, err
	}

	return Identity{UserID: user.ID, Role: user.Role.Normalize()}, nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperror.Unauthorized("authorization token not provided")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", apperror.Unauthorized("invalid authorization header")
	}
	return strings.TrimSpace(token), nil
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller set by RequireAuth or RequireAdmin.
// ok is false on routes without auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// writeAuthError writes the same JSON error shape as the handler package.
// It lives here because handler imports auth, not the other way round.
func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]string{"error": "internal_error", "message": "An internal error occurred"}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			body = map[string]string{"error": "unauthorized", "message": appErr.Message}
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			body = map[string]string{"error": "forbidden", "message": appErr.Message}
		}
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="bookclub"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Package auth provides the building blocks of member authentication:
// access tokens (JWT), one-time login codes and the per-identifier send
// limiter, plus the HTTP middleware that turns a bearer token into an
// Identity on the request context.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. POST /auth/send-code: a 6-digit code is generated, delivered by e-mail
//     or SMS, and stored as a keyed digest.
//  2. POST /auth/verify-code: the code is consumed, the member is found or
//     created, and an access token is issued.
//  3. Every protected request carries "Authorization: Bearer <token>".
//     RequireAuth verifies the signature and expiry without touching the
//     token table; issued tokens are recorded for audit only.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/bookclub/internal/model"
)

const issuer = "bookclub"

// DefaultTokenLifetime is used when no lifetime is configured.
const DefaultTokenLifetime = 24 * time.Hour

var (
	// ErrTokenExpired means the token was well-formed and correctly signed
	// but its exp claim is in the past.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers everything else: bad signature, wrong
	// algorithm, wrong issuer, missing claims, garbage input.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenService issues and verifies HS256 access tokens.
//
// Tokens carry no random component, so for a fixed secret, clock and
// subject the output is reproducible. That is what makes the tests below
// deterministic.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// Claims is the JWT payload. user_id duplicates sub because existing
// clients read user_id.
type Claims struct {
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// NewTokenService creates a TokenService with the given secret and token
// lifetime. The secret should be at least 32 bytes of random data in
// production:
//
//	JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, lifetime time.Duration) (*TokenService, error) {
	return NewTokenServiceWithClock(secret, lifetime, time.Now)
}

// NewTokenServiceWithClock is NewTokenService with an injectable clock, used
// by tests to issue and verify tokens at fixed instants.
func NewTokenServiceWithClock(secret string, lifetime time.Duration, now func() time.Time) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return &TokenService{secret: []byte(secret), lifetime: lifetime, now: now}, nil
}

// Lifetime is how long issued tokens stay valid.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token for userID with the given role and returns it along
// with its expiry instant.
func (s *TokenService) Issue(userID string, role model.Role) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("auth: cannot issue token without subject")
	}

	now := s.now().Truncate(time.Second)
	expires := now.Add(s.lifetime)

	c := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, expires, nil
}

// Verify parses and checks a token. It returns ErrTokenExpired or
// ErrTokenInvalid (possibly wrapped) on failure.
//
// The algorithm is pinned to HS256 so a token claiming "none" or an
// asymmetric algorithm is rejected before the key is ever used.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}
	if c.UserID == "" {
		c.UserID = c.Subject
	}
	c.Role = c.Role.Normalize()

	return c, nil
}

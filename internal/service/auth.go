// Package service holds the business rules of the club API. Handlers parse
// HTTP and call into it; it talks to storage only through the repository
// interfaces.
//
//	Handler (HTTP) → Service (validation, rules) → Repository (SQL)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/auth"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/notify"
	"github.com/sakif/bookclub/internal/repository"
)

const (
	// CodeTTL is how long a login code can be exchanged for a token.
	CodeTTL = 10 * time.Minute
	// CodeRetention is how long code rows are kept at all, used or not.
	CodeRetention = time.Hour
	// SendInterval is the minimum gap between two codes for one identifier.
	SendInterval = time.Minute
)

// AuthStore is the slice of storage the login flow needs.
type AuthStore interface {
	repository.UserRepository
	repository.AuthCodeRepository
	repository.AuthTokenRepository
}

// AuthConfig holds the login flow settings that come from configuration.
type AuthConfig struct {
	// DevMode skips delivery and returns the code in the response.
	DevMode bool
	// AdminEmails are promoted to admin whenever they sign in.
	AdminEmails []string
}

// AuthService runs the one-time-code login:
//
//	RequestCode: NoCode → CodeSent
//	VerifyCode:  CodeSent → Verified (code consumed, token issued)
//	             CodeSent → Expired  (after CodeTTL)
type AuthService struct {
	store   AuthStore
	tokens  *auth.TokenService
	hasher  *auth.Hasher
	limiter auth.SendLimiter
	sender  notify.Sender
	logger  *slog.Logger

	devMode     bool
	adminEmails map[string]bool

	now     func() time.Time
	genCode func() (string, error)
}

func NewAuthService(
	store AuthStore,
	tokens *auth.TokenService,
	hasher *auth.Hasher,
	limiter auth.SendLimiter,
	sender notify.Sender,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	admins := make(map[string]bool, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = true
		}
	}
	return &AuthService{
		store:       store,
		tokens:      tokens,
		hasher:      hasher,
		limiter:     limiter,
		sender:      sender,
		logger:      logger,
		devMode:     cfg.DevMode,
		adminEmails: admins,
		now:         time.Now,
		genCode:     auth.GenerateCode,
	}
}

// SendCodeRequest names the identifier a code should go to. Email wins when
// both are set.
type SendCodeRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,phone"`
}

// SendCodeResult is the reply to a code request. Code is only filled in
// development mode.
type SendCodeResult struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// VerifyCodeRequest exchanges a code for an access token.
type VerifyCodeRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,phone"`
	Code  string `json:"code"  validate:"required"`
}

// LoginResult is the reply to a successful verification.
type LoginResult struct {
	Message     string `json:"message"`
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RequestCode issues a login code for the identifier in req.
func (s *AuthService) RequestCode(ctx context.Context, req SendCodeRequest) (*SendCodeResult, error) {
	req.Email = normalizeEmail(req.Email)
	req.Phone = normalizePhone(req.Phone)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	identifier, channel, err := pickIdentifier(req.Email, req.Phone)
	if err != nil {
		return nil, err
	}

	now := s.now()

	if _, err := s.store.DeleteAuthCodesBefore(ctx, now.Add(-CodeRetention)); err != nil {
		return nil, fmt.Errorf("sweeping auth codes: %w", err)
	}

	allowed, err := s.limiter.Allow(ctx, identifier, now)
	if err != nil {
		return nil, fmt.Errorf("checking send limit: %w", err)
	}
	if !allowed {
		return nil, apperror.RateLimited("a code can be requested once per minute")
	}

	code, err := s.genCode()
	if err != nil {
		return nil, err
	}

	if !s.devMode {
		if err := s.sender.SendCode(ctx, channel, identifier, code); err != nil {
			s.logger.Warn("code delivery failed",
				slog.String("channel", string(channel)),
				slog.String("error", err.Error()),
			)
			return nil, apperror.Upstream("failed to send code", err)
		}
	}

	authCode := &model.AuthCode{
		Identifier: identifier,
		CodeHash:   s.hasher.HashCode(identifier, code),
		CreatedAt:  now,
	}
	if err := s.store.CreateAuthCode(ctx, authCode); err != nil {
		return nil, fmt.Errorf("saving auth code: %w", err)
	}

	if err := s.limiter.Record(ctx, identifier, now); err != nil {
		// The code is already out; a lost record only weakens the limit.
		s.logger.Warn("failed to record code send", slog.String("error", err.Error()))
	}

	if s.devMode {
		s.logger.Info("development mode: code not delivered",
			slog.String("identifier", identifier),
			slog.String("code", code),
		)
		return &SendCodeResult{Message: "code generated (development mode)", Code: code}, nil
	}

	s.logger.Info("code sent", slog.String("channel", string(channel)))
	return &SendCodeResult{Message: "code sent"}, nil
}

// VerifyCode consumes a code and signs the member in, creating the account
// on first login.
func (s *AuthService) VerifyCode(ctx context.Context, req VerifyCodeRequest) (*LoginResult, error) {
	req.Email = normalizeEmail(req.Email)
	req.Phone = normalizePhone(req.Phone)
	req.Code = strings.TrimSpace(req.Code)

	identifier, _, err := pickIdentifier(req.Email, req.Phone)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := s.now()

	authCode, err := s.store.FindUnusedAuthCode(ctx, identifier, s.hasher.HashCode(identifier, req.Code))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCode()
		}
		return nil, fmt.Errorf("finding auth code: %w", err)
	}
	if now.Sub(authCode.CreatedAt) > CodeTTL {
		return nil, apperror.CodeExpired()
	}

	consumed, err := s.store.MarkAuthCodeUsed(ctx, authCode.ID)
	if err != nil {
		return nil, fmt.Errorf("consuming auth code: %w", err)
	}
	if !consumed {
		return nil, apperror.InvalidCode()
	}

	user, err := s.resolveUser(ctx, req.Email, req.Phone)
	if err != nil {
		return nil, err
	}

	if (req.Email != "" && user.Email != req.Email) || (req.Email == "" && user.Phone != req.Phone) {
		s.logger.Error("resolved user does not match identifier",
			slog.String("user_id", user.ID),
			slog.String("identifier", identifier),
		)
		return nil, apperror.Integrity("resolved account does not match the identifier")
	}

	if err := s.reconcileRole(ctx, user); err != nil {
		return nil, err
	}

	token, expires, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}
	record := &model.AuthToken{
		UserID:    user.ID,
		TokenHash: s.hasher.HashToken(token),
		IssuedAt:  now,
		ExpiresAt: expires,
		Active:    true,
	}
	if err := s.store.CreateAuthToken(ctx, record); err != nil {
		return nil, fmt.Errorf("recording token: %w", err)
	}

	s.logger.Info("member signed in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return &LoginResult{
		Message:     "signed in",
		UserID:      user.ID,
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.Lifetime() / time.Second),
	}, nil
}

// SweepExpiredCodes deletes code rows older than CodeRetention.
func (s *AuthService) SweepExpiredCodes(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAuthCodesBefore(ctx, s.now().Add(-CodeRetention))
	if err != nil {
		return 0, fmt.Errorf("sweeping auth codes: %w", err)
	}
	return n, nil
}

// resolveUser finds the member by exact email, or by phone when no email
// was given, and creates a blank account if there is none.
func (s *AuthService) resolveUser(ctx context.Context, email, phone string) (*model.User, error) {
	user, err := s.lookupUser(ctx, email, phone)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	user = &model.User{Email: email, Role: model.RoleUser}
	if email == "" {
		user.Phone = phone
	}
	if s.isAdminEmail(email) {
		user.Role = model.RoleAdmin
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		// A concurrent first login for the same email won the insert.
		if errors.Is(err, apperror.ErrConflict) {
			return s.lookupUser(ctx, email, phone)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created on first login",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

func (s *AuthService) lookupUser(ctx context.Context, email, phone string) (*model.User, error) {
	if email != "" {
		return s.store.GetUserByEmail(ctx, email)
	}
	return s.store.GetUserByPhone(ctx, phone)
}

// reconcileRole coerces unknown roles to user and promotes allow-listed
// addresses to admin, persisting any change.
func (s *AuthService) reconcileRole(ctx context.Context, user *model.User) error {
	role := user.Role.Normalize()
	if s.isAdminEmail(user.Email) {
		role = model.RoleAdmin
	}
	if role == user.Role {
		return nil
	}

	if err := s.store.UpdateUserRole(ctx, user.ID, role); err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	s.logger.Info("user role reconciled",
		slog.String("user_id", user.ID),
		slog.String("from", string(user.Role)),
		slog.String("to", string(role)),
	)
	user.Role = role
	return nil
}

func (s *AuthService) isAdminEmail(email string) bool {
	return email != "" && s.adminEmails[normalizeEmail(email)]
}

func pickIdentifier(email, phone string) (string, notify.Channel, error) {
	switch {
	case email != "":
		return email, notify.ChannelEmail, nil
	case phone != "":
		return phone, notify.ChannelSMS, nil
	}
	return "", "", apperror.ValidationFailed("email", "email or phone is required")
}

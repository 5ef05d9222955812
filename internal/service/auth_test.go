package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/auth"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/notify"
)

// =========================================================================
// REQUEST CODE TESTS
// =========================================================================

func TestRequestCode_DeliversByChannel(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	res, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "  Reader@Example.com "})
	require.NoError(t, err)
	assert.Empty(t, res.Code, "code must not be returned outside dev mode")

	sent := f.sender.last(t)
	assert.Equal(t, notify.ChannelEmail, sent.channel)
	assert.Equal(t, "reader@example.com", sent.recipient)
	assert.Len(t, sent.code, 6)

	_, err = f.svc.RequestCode(ctx, SendCodeRequest{Phone: "+7 (999) 123-45-67"})
	require.NoError(t, err)
	sent = f.sender.last(t)
	assert.Equal(t, notify.ChannelSMS, sent.channel)
	assert.Equal(t, "+79991234567", sent.recipient)
}

func TestRequestCode_Validation(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})

	tests := []struct {
		name  string
		req   SendCodeRequest
		field string
	}{
		{"no identifier", SendCodeRequest{}, "email"},
		{"bad email", SendCodeRequest{Email: "not-an-email"}, "email"},
		{"bad phone", SendCodeRequest{Phone: "12345"}, "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RequestCode(context.Background(), tt.req)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
	assert.Empty(t, f.sender.sent)
}

func TestRequestCode_RateLimitedWithinAMinute(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()
	req := SendCodeRequest{Email: "reader@example.com"}

	_, err := f.svc.RequestCode(ctx, req)
	require.NoError(t, err)

	f.clock.Advance(59 * time.Second)
	_, err = f.svc.RequestCode(ctx, req)
	assert.ErrorIs(t, err, apperror.ErrRateLimited)
	assert.Len(t, f.sender.sent, 1)

	// Another identifier is not affected.
	_, err = f.svc.RequestCode(ctx, SendCodeRequest{Email: "other@example.com"})
	assert.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.svc.RequestCode(ctx, req)
	assert.NoError(t, err)
}

func TestRequestCode_DeliveryFailure(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	f.sender.err = notify.ErrGatewayTimeout
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "reader@example.com"})
	require.ErrorIs(t, err, apperror.ErrUpstream)
	assert.ErrorIs(t, err, notify.ErrGatewayTimeout)

	// A failed delivery neither stores a code nor starts the rate-limit window.
	f.sender.err = nil
	_, err = f.svc.RequestCode(ctx, SendCodeRequest{Email: "reader@example.com"})
	assert.NoError(t, err)
}

func TestRequestCode_SweepsOldCodes(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{DevMode: true})
	ctx := context.Background()

	old, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "old@example.com"})
	require.NoError(t, err)

	f.clock.Advance(CodeRetention + time.Minute)
	_, err = f.svc.RequestCode(ctx, SendCodeRequest{Email: "new@example.com"})
	require.NoError(t, err)

	// The swept code no longer exists, so it is invalid rather than expired.
	_, err = f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "old@example.com", Code: old.Code})
	assert.ErrorIs(t, err, apperror.ErrInvalidCode)
}

// =========================================================================
// VERIFY CODE TESTS
// =========================================================================

func TestVerifyCode_SingleUse(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "reader@example.com"})
	require.NoError(t, err)
	code := f.sender.last(t).code

	res, err := f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "reader@example.com", Code: code})
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)
	assert.NotEmpty(t, res.AccessToken)

	_, err = f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "reader@example.com", Code: code})
	assert.ErrorIs(t, err, apperror.ErrInvalidCode)
}

func TestVerifyCode_WrongCodeOrIdentifier(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "reader@example.com"})
	require.NoError(t, err)
	code := f.sender.last(t).code

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "reader@example.com", Code: wrong})
	assert.ErrorIs(t, err, apperror.ErrInvalidCode)

	_, err = f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "someone@example.com", Code: code})
	assert.ErrorIs(t, err, apperror.ErrInvalidCode)

	// The right code still works after failed attempts.
	_, err = f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "reader@example.com", Code: code})
	assert.NoError(t, err)
}

func TestVerifyCode_ExpiresAfterTenMinutes(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "a@example.com"})
	require.NoError(t, err)
	codeA := f.sender.last(t).code
	_, err = f.svc.RequestCode(ctx, SendCodeRequest{Email: "b@example.com"})
	require.NoError(t, err)
	codeB := f.sender.last(t).code

	f.clock.Advance(CodeTTL)
	_, err = f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "a@example.com", Code: codeA})
	assert.NoError(t, err, "a code exactly CodeTTL old is still valid")

	f.clock.Advance(time.Second)
	_, err = f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "b@example.com", Code: codeB})
	assert.ErrorIs(t, err, apperror.ErrCodeExpired)
}

func TestVerifyCode_Validation(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})

	_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Code: "123456"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "a@example.com"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestVerifyCode_DevModeScenario(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{DevMode: true})
	ctx := context.Background()

	sendRes, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "new@example.com"})
	require.NoError(t, err)
	require.Len(t, sendRes.Code, 6)
	assert.Empty(t, f.sender.sent, "dev mode must not deliver")

	res, err := f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "new@example.com", Code: sendRes.Code})
	require.NoError(t, err)
	assert.Equal(t, int64(86400), res.ExpiresIn)
	assert.Equal(t, "bearer", res.TokenType)

	claims, err := f.tokens.Verify(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, claims.UserID)
	assert.Equal(t, model.RoleUser, claims.Role)

	user, err := f.store.GetUserByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, model.RoleUser, user.Role)

	tokens, err := f.store.ListAuthTokens(ctx, res.UserID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.NotEqual(t, res.AccessToken, tokens[0].TokenHash, "raw token must not be stored")
	assert.True(t, tokens[0].Active)
}

func TestVerifyCode_ExistingUserIsReused(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{DevMode: true})
	ctx := context.Background()
	existing := createUser(t, f.store, "member@example.com")

	sendRes, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "MEMBER@example.com"})
	require.NoError(t, err)
	res, err := f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "member@example.com", Code: sendRes.Code})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.UserID)

	users, total, err := f.store.ListUsers(ctx, DefaultPagination().options())
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
}

func TestVerifyCode_PhoneLoginCreatesPhoneUser(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{DevMode: true})
	ctx := context.Background()

	sendRes, err := f.svc.RequestCode(ctx, SendCodeRequest{Phone: "89991234567"})
	require.NoError(t, err)
	res, err := f.svc.VerifyCode(ctx, VerifyCodeRequest{Phone: "89991234567", Code: sendRes.Code})
	require.NoError(t, err)

	user, err := f.store.GetUserByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "+79991234567", user.Phone)
	assert.Empty(t, user.Email)
}

func TestPhoneSpellingsShareOneIdentifier(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{DevMode: true})
	ctx := context.Background()

	first, err := f.svc.RequestCode(ctx, SendCodeRequest{Phone: "+79991234567"})
	require.NoError(t, err)

	_, err = f.svc.RequestCode(ctx, SendCodeRequest{Phone: "+7 999 123-45-67"})
	assert.ErrorIs(t, err, apperror.ErrRateLimited, "same number, same send window")
	_, err = f.svc.RequestCode(ctx, SendCodeRequest{Phone: "8 (999) 123-45-67"})
	assert.ErrorIs(t, err, apperror.ErrRateLimited)

	res1, err := f.svc.VerifyCode(ctx, VerifyCodeRequest{Phone: "+7 (999) 123 45 67", Code: first.Code})
	require.NoError(t, err)

	f.clock.Advance(SendInterval)
	second, err := f.svc.RequestCode(ctx, SendCodeRequest{Phone: "89991234567"})
	require.NoError(t, err)
	res2, err := f.svc.VerifyCode(ctx, VerifyCodeRequest{Phone: "+79991234567", Code: second.Code})
	require.NoError(t, err)

	assert.Equal(t, res1.UserID, res2.UserID, "one number must map to one account")
	_, total, err := f.store.ListUsers(ctx, DefaultPagination().options())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

// misroutedStore answers every e-mail lookup with the same account,
// whatever address was asked for.
type misroutedStore struct {
	AuthStore
	user *model.User
}

func (m misroutedStore) GetUserByEmail(context.Context, string) (*model.User, error) {
	u := *m.user
	return &u, nil
}

func TestVerifyCode_RejectsAccountForAnotherIdentifier(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{DevMode: true})
	ctx := context.Background()
	other := createUser(t, f.store, "other@example.com")

	svc := NewAuthService(misroutedStore{AuthStore: f.store, user: other}, f.tokens,
		auth.NewHasher(testSecret), auth.NewMemoryLimiter(SendInterval), f.sender,
		AuthConfig{DevMode: true}, testLogger())
	svc.now = f.clock.Now

	sendRes, err := svc.RequestCode(ctx, SendCodeRequest{Email: "me@example.com"})
	require.NoError(t, err)

	res, err := svc.VerifyCode(ctx, VerifyCodeRequest{Email: "me@example.com", Code: sendRes.Code})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperror.ErrIntegrity)

	tokens, err := f.store.ListAuthTokens(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens, "no token may be recorded for the mismatched account")
}

func TestVerifyCode_AdminAllowList(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{DevMode: true, AdminEmails: []string{"Chair@Example.com"}})
	ctx := context.Background()

	login := func(email string) *LoginResult {
		t.Helper()
		sendRes, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: email})
		require.NoError(t, err)
		res, err := f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: email, Code: sendRes.Code})
		require.NoError(t, err)
		return res
	}

	chair := login("chair@example.com")
	claims, err := f.tokens.Verify(chair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)

	member := login("member@example.com")
	user, err := f.store.GetUserByID(ctx, member.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, user.Role)

	// An allow-listed member demoted by hand is promoted again on login.
	require.NoError(t, f.store.UpdateUserRole(ctx, chair.UserID, model.RoleUser))
	f.clock.Advance(SendInterval)
	login("chair@example.com")
	user, err = f.store.GetUserByID(ctx, chair.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, user.Role)
}

func TestVerifyCode_UnknownRoleCoercedToUser(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{DevMode: true})
	ctx := context.Background()
	user := createUser(t, f.store, "odd@example.com")
	require.NoError(t, f.store.UpdateUserRole(ctx, user.ID, model.Role("superuser")))

	sendRes, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "odd@example.com"})
	require.NoError(t, err)
	res, err := f.svc.VerifyCode(ctx, VerifyCodeRequest{Email: "odd@example.com", Code: sendRes.Code})
	require.NoError(t, err)

	claims, err := f.tokens.Verify(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, claims.Role)

	stored, err := f.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, stored.Role, "coerced role must be persisted")
}

// =========================================================================
// SWEEP / JANITOR TESTS
// =========================================================================

func TestSweepExpiredCodes(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{DevMode: true})
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, SendCodeRequest{Email: "a@example.com"})
	require.NoError(t, err)

	n, err := f.svc.SweepExpiredCodes(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(CodeRetention + time.Second)
	n, err = f.svc.SweepExpiredCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type countingSweeper struct {
	calls chan struct{}
}

func (c *countingSweeper) SweepExpiredCodes(context.Context) (int64, error) {
	select {
	case c.calls <- struct{}{}:
	default:
	}
	return 0, nil
}

func TestCodeJanitor_SweepsUntilStopped(t *testing.T) {
	sweeper := &countingSweeper{calls: make(chan struct{}, 1)}
	j := NewCodeJanitor(sweeper, 10*time.Millisecond, testLogger())

	j.Start()
	j.Start()

	select {
	case <-sweeper.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not sweep")
	}

	j.Stop()
	j.Stop()
}

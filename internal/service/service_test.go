package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/bookclub/internal/auth"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/notify"
	sqliteRepo "github.com/sakif/bookclub/internal/repository/sqlite"
)

const testSecret = "service-test-secret-0123456789"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *sqliteRepo.DB {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// testClock is a settable clock shared by the service and token issuer.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeSender records deliveries instead of calling the gateway.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

type sentCode struct {
	channel   notify.Channel
	recipient string
	code      string
}

func (f *fakeSender) SendCode(_ context.Context, channel notify.Channel, recipient, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCode{channel, recipient, code})
	return nil
}

func (f *fakeSender) last(t *testing.T) sentCode {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no code was sent")
	return f.sent[len(f.sent)-1]
}

type authFixture struct {
	svc    *AuthService
	store  *sqliteRepo.DB
	sender *fakeSender
	clock  *testClock
	tokens *auth.TokenService
}

func newAuthFixture(t *testing.T, cfg AuthConfig) *authFixture {
	t.Helper()
	store := newTestStore(t)
	clock := newTestClock()
	tokens, err := auth.NewTokenServiceWithClock(testSecret, 24*time.Hour, clock.Now)
	require.NoError(t, err)
	sender := &fakeSender{}

	svc := NewAuthService(store, tokens, auth.NewHasher(testSecret),
		auth.NewMemoryLimiter(SendInterval), sender, cfg, testLogger())
	svc.now = clock.Now

	return &authFixture{svc: svc, store: store, sender: sender, clock: clock, tokens: tokens}
}

func createBook(t *testing.T, svc *BookService, title string) *model.Book {
	t.Helper()
	book, err := svc.Create(context.Background(), BookInput{
		Title: title, Author: "Leo Tolstoy", Date: "15 June, 19:00", Location: "Reading room",
	})
	require.NoError(t, err)
	return book
}

func createUser(t *testing.T, store *sqliteRepo.DB, email string) *model.User {
	t.Helper()
	user := &model.User{FirstName: "Ivan", LastName: "Petrov", Email: email}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

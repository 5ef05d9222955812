package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bookclub/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		Port:               8080,
		DBPath:             ":memory:",
		AppEnv:             config.EnvDevelopment,
		JWTSecret:          "server-test-secret-0123456789",
		JWTExpirationHours: 24,
		AdminToken:         "operator",
		GatewayURL:         "http://127.0.0.1:1",
		GatewayTimeout:     time.Second,
		AuthRateLimitRPS:   100,
		AuthRateLimitBurst: 100,
		CodeSweepInterval:  time.Minute,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(s.close)
	return s
}

func serve(s *Server, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

// =========================================================================
// ROUTING TESTS
// =========================================================================

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name       string
		method     string
		path       string
		header     map[string]string
		wantStatus int
	}{
		{"welcome", http.MethodGet, "/", nil, http.StatusOK},
		{"health", http.MethodGet, "/health", nil, http.StatusOK},
		{"books are public", http.MethodGet, "/books", nil, http.StatusOK},
		{"no current book yet", http.MethodGet, "/books/current", nil, http.StatusNotFound},
		{"me needs a token", http.MethodGet, "/me", nil, http.StatusUnauthorized},
		{"favorites need a token", http.MethodGet, "/favorites", nil, http.StatusUnauthorized},
		{"users need admin", http.MethodGet, "/users", nil, http.StatusUnauthorized},
		{"users with operator token", http.MethodGet, "/users", map[string]string{"X-Admin-Token": "operator"}, http.StatusOK},
		{"create book needs admin", http.MethodPost, "/books", nil, http.StatusUnauthorized},
		{"participants need admin", http.MethodGet, "/meetings/abc/participants", nil, http.StatusUnauthorized},
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(s, tt.method, tt.path, nil, tt.header)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestServer_LoginFlow(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := serve(s, http.MethodPost, "/auth/send-code", map[string]string{"email": "Reader@Example.com"}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var sent struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&sent))
	require.Len(t, sent.Code, 6)

	rr = serve(s, http.MethodPost, "/auth/verify-code", map[string]string{"email": "reader@example.com", "code": sent.Code}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var login struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&login))
	assert.Equal(t, "bearer", login.TokenType)

	rr = serve(s, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + login.AccessToken})
	require.Equal(t, http.StatusOK, rr.Code)
	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, "reader@example.com", me.Email)
	assert.Equal(t, "user", me.Role)
}

func TestServer_AuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimitRPS = 0.01
	cfg.AuthRateLimitBurst = 1
	s := newTestServer(t, cfg)

	rr := serve(s, http.MethodPost, "/auth/send-code", map[string]string{"email": "a@example.com"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(s, http.MethodPost, "/auth/send-code", map[string]string{"email": "b@example.com"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// The limit only guards /auth.
	rr = serve(s, http.MethodGet, "/books", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_CORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"http://localhost:3000"}
	s := newTestServer(t, cfg)

	rr := serve(s, http.MethodOptions, "/books", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = serve(s, http.MethodGet, "/books", nil, map[string]string{"Origin": "http://evil.example"})
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_BadRedis(t *testing.T) {
	cfg := testConfig()
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

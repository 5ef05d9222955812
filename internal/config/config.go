// Package config loads server configuration from the environment.
//
// A .env file in the working directory is read first if present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// placeholderKeys are gateway keys shipped in sample configs. A key equal to
// one of these counts as unset.
var placeholderKeys = map[string]bool{
	"ТВОЙ_API_КЛЮЧ": true,
	"your-api-key":  true,
	"YOUR_API_KEY":  true,
	"changeme":      true,
	"my_secret_key": true,
}

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port     int
	DBPath   string
	AppEnv   string
	LogLevel slog.Level

	JWTSecret          string
	JWTExpirationHours int

	AdminToken  string
	AdminEmails []string

	GatewayURL     string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPSender   string

	RedisAddr     string
	RedisPassword string

	CORSOrigins []string

	// TrustProxyHeaders makes X-Forwarded-For and X-Real-IP the client
	// address for logs and the per-IP limiter. Only enable it behind a
	// proxy that overwrites those headers.
	TrustProxyHeaders bool

	AuthRateLimitRPS   float64
	AuthRateLimitBurst int

	CodeSweepInterval time.Duration
}

// Load reads the configuration. Malformed numeric or duration values are
// reported together; semantic checks live in Validate.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	var errs []error
	cfg := &Config{
		DBPath:        getenv("DB_PATH", "data/bookclub.db"),
		AppEnv:        strings.ToLower(getenv("APP_ENV", EnvDevelopment)),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		AdminEmails:   splitList(os.Getenv("ADMIN_EMAILS")),
		GatewayURL:    strings.TrimRight(getenv("MSG_GATEWAY_URL", "https://msg.ovrx.ru"), "/"),
		GatewayAPIKey: os.Getenv("MSG_GATEWAY_API_KEY"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPSender:    os.Getenv("SMTP_SENDER"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CORSOrigins:   splitList(os.Getenv("CORS_ORIGINS")),
	}

	cfg.Port = getInt("PORT", 8080, &errs)
	cfg.JWTExpirationHours = getInt("JWT_EXPIRATION_HOURS", 24, &errs)
	cfg.SMTPPort = getInt("SMTP_PORT", 587, &errs)
	cfg.AuthRateLimitBurst = getInt("AUTH_RATE_LIMIT_BURST", 5, &errs)
	cfg.GatewayTimeout = getDuration("GATEWAY_TIMEOUT", 10*time.Second, &errs)
	cfg.CodeSweepInterval = getDuration("CODE_SWEEP_INTERVAL", 10*time.Minute, &errs)

	rps, err := strconv.ParseFloat(getenv("AUTH_RATE_LIMIT_RPS", "2"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("AUTH_RATE_LIMIT_RPS: %w", err))
	}
	cfg.AuthRateLimitRPS = rps

	trust, err := strconv.ParseBool(getenv("TRUST_PROXY_HEADERS", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TRUST_PROXY_HEADERS: %w", err))
	}
	cfg.TrustProxyHeaders = trust

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Validate reports configuration that would make the server misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be set and at least 16 characters"))
	}
	if c.JWTExpirationHours <= 0 {
		errs = append(errs, fmt.Errorf("JWT_EXPIRATION_HOURS must be positive, got %d", c.JWTExpirationHours))
	}
	if c.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	if c.CodeSweepInterval <= 0 {
		errs = append(errs, errors.New("CODE_SWEEP_INTERVAL must be positive"))
	}
	if c.AuthRateLimitRPS <= 0 || c.AuthRateLimitBurst <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_RPS and AUTH_RATE_LIMIT_BURST must be positive"))
	}
	if c.IsProduction() && !c.gatewayKeySet() {
		errs = append(errs, errors.New("MSG_GATEWAY_API_KEY is required in production"))
	}
	if c.SMTPHost != "" && c.SMTPSender == "" {
		errs = append(errs, errors.New("SMTP_SENDER is required when SMTP_HOST is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// DevMode reports whether one-time codes are returned in the response
// instead of being delivered. It never holds in production.
func (c *Config) DevMode() bool {
	return !c.IsProduction() && !c.gatewayKeySet()
}

// TokenLifetime is the access token lifetime.
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.JWTExpirationHours) * time.Hour
}

// SMTPEnabled reports whether e-mail codes go out over SMTP.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func (c *Config) gatewayKeySet() bool {
	key := strings.TrimSpace(c.GatewayAPIKey)
	return key != "" && !placeholderKeys[key]
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

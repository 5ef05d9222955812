package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// GatewayConfig configures the HTTP message gateway.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// GatewayClient posts login codes to the message gateway:
//
//	POST {base}/auth-code/email  {"email": "...", "code": "..."}
//	POST {base}/auth-code/sms    {"phone": "...", "code": "..."}
//
// The API key travels as a bearer token. oauth2's static token source
// attaches it to every request through the client's transport.
type GatewayClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGatewayClient builds a client whose requests are bounded by
// cfg.Timeout (10s if unset).
func NewGatewayClient(cfg GatewayConfig, logger *slog.Logger) *GatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = timeout

	return &GatewayClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// SendCode delivers code to recipient. Errors wrap ErrGatewayTimeout,
// ErrGatewayUnreachable or are a *StatusError.
func (g *GatewayClient) SendCode(ctx context.Context, channel Channel, recipient, code string) error {
	var (
		path    string
		payload map[string]string
	)
	switch channel {
	case ChannelEmail:
		path = "/auth-code/email"
		payload = map[string]string{"email": recipient, "code": code}
	case ChannelSMS:
		path = "/auth-code/sms"
		payload = map[string]string{"phone": recipient, "code": code}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building request: %w", err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	g.logger.Debug("code delivered via gateway",
		slog.String("channel", string(channel)),
		slog.String("requestID", requestID),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrGatewayTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrGatewayUnreachable, err)
}

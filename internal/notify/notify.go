// Package notify delivers login codes to members, either through the HTTP
// message gateway (e-mail and SMS) or directly over SMTP (e-mail only).
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Channel is the delivery medium of a login code.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

var (
	// ErrGatewayTimeout means the delivery call did not finish in time.
	ErrGatewayTimeout = errors.New("notify: delivery timed out")
	// ErrGatewayUnreachable means no response was received at all.
	ErrGatewayUnreachable = errors.New("notify: delivery endpoint unreachable")
	// ErrUnsupportedChannel is returned by senders that cannot serve a channel.
	ErrUnsupportedChannel = errors.New("notify: unsupported channel")
)

// StatusError is returned when the gateway answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notify: gateway responded %d: %s", e.StatusCode, e.Body)
}

// Sender delivers a login code to a recipient over a channel.
type Sender interface {
	SendCode(ctx context.Context, channel Channel, recipient, code string) error
}

// Router picks a Sender per channel. A channel without a sender fails with
// ErrUnsupportedChannel.
type Router struct {
	Email Sender
	SMS   Sender
}

func (r *Router) SendCode(ctx context.Context, channel Channel, recipient, code string) error {
	var s Sender
	switch channel {
	case ChannelEmail:
		s = r.Email
	case ChannelSMS:
		s = r.SMS
	}
	if s == nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}
	return s.SendCode(ctx, channel, recipient, code)
}

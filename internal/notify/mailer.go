package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-mail/mail/v2"
)

// SMTPConfig configures direct e-mail delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
	Timeout  time.Duration
}

// dialer is the part of *mail.Dialer the mailer uses; tests substitute it.
type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer sends login codes by SMTP. It only serves ChannelEmail.
type Mailer struct {
	dialer dialer
	sender string
}

func NewMailer(cfg SMTPConfig) *Mailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = cfg.Timeout
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	return &Mailer{dialer: d, sender: cfg.Sender}
}

func (m *Mailer) SendCode(ctx context.Context, channel Channel, recipient, code string) error {
	if channel != ChannelEmail {
		return fmt.Errorf("%w: %s over smtp", ErrUnsupportedChannel, channel)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrGatewayTimeout, err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.sender)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", "Your book club login code")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Your login code is %s.\n\nIt is valid for 10 minutes. If you did not ask for it, ignore this message.\n", code))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrGatewayUnreachable, err)
	}
	return nil
}

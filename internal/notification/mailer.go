package notification

import (
	"context"
	"fmt"

	"github.com/cassiomorais/payouts/internal/infrastructure/config"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Mailer sends one alert to the configured operators.
type Mailer interface {
	Send(ctx context.Context, a Alert) error
}

// SMTPMailer sends alerts through an SMTP relay.
type SMTPMailer struct {
	client     *mail.Client
	from       string
	recipients []string
}

func NewSMTPMailer(cfg config.AlertsConfig) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTP.Port),
		mail.WithTimeout(cfg.SMTP.Timeout),
	}
	if cfg.SMTP.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if cfg.SMTP.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTP.Username),
			mail.WithPassword(cfg.SMTP.Password),
		)
	}

	client, err := mail.NewClient(cfg.SMTP.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From, recipients: cfg.Recipients}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, a Alert) error {
	msg, err := NewMessage(m.from, m.recipients, a)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send alert for payout %s: %w", a.PayoutID, err)
	}
	return nil
}

// NewMessage builds the plain-text alert email.
func NewMessage(from string, recipients []string, a Alert) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("alert sender: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("alert recipients: %w", err)
	}
	msg.Subject(a.Subject())
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, a.Body())
	return msg, nil
}

// LogMailer stands in when alerts are disabled.
type LogMailer struct {
	Logger zerolog.Logger
}

func (m LogMailer) Send(_ context.Context, a Alert) error {
	m.Logger.Info().
		Str("payout_id", a.PayoutID).
		Str("reason", a.Reason).
		Msg("Alerts disabled, alert logged only")
	return nil
}

package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	mail "github.com/go-mail/mail"

	"keystone/internal/platform/config"
	"keystone/pkg/platform/privacy"
)

type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPSender sends mail through an SMTP relay. STARTTLS is negotiated when
// the server offers it; port 465 uses implicit TLS.
type SMTPSender struct {
	from   string
	dialer dialer
	logger *slog.Logger
}

type SMTPOption func(*SMTPSender)

func WithSMTPLogger(logger *slog.Logger) SMTPOption {
	return func(s *SMTPSender) {
		s.logger = logger
	}
}

func withDialer(d dialer) SMTPOption {
	return func(s *SMTPSender) {
		s.dialer = d
	}
}

func NewSMTPSender(cfg config.SMTPConfig, opts ...SMTPOption) *SMTPSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	d.SSL = cfg.Port == 465
	if cfg.UseTLS {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}

	s := &SMTPSender{from: cfg.From, dialer: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.ErrorContext(ctx, "smtp send failed",
			"error", err,
			"to", privacy.MaskEmail(msg.To),
		)
		return fmt.Errorf("smtp send: %w", err)
	}
	s.logger.InfoContext(ctx, "email sent",
		"to", privacy.MaskEmail(msg.To),
		"subject", msg.Subject,
	)
	return nil
}

package email

import (
	"context"
	"log/slog"

	"keystone/pkg/platform/privacy"
)

// LogSender stands in for SMTP when no relay is configured. Bodies are
// logged only when includeBody is set, which callers restrict to dev.
type LogSender struct {
	logger      *slog.Logger
	includeBody bool
}

func NewLogSender(logger *slog.Logger, includeBody bool) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, includeBody: includeBody}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	attrs := []any{
		"to", privacy.MaskEmail(msg.To),
		"subject", msg.Subject,
	}
	if s.includeBody {
		attrs = append(attrs, "body", msg.Text)
	}
	s.logger.InfoContext(ctx, "email not sent: no smtp relay configured", attrs...)
	return nil
}

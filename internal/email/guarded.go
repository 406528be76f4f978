package email

import (
	"context"
	"errors"
	"log/slog"

	"keystone/pkg/platform/circuit"
)

// ErrRelayUnavailable is returned without dialing while the relay's circuit
// is open.
var ErrRelayUnavailable = errors.New("mail relay unavailable")

type sender interface {
	Send(ctx context.Context, msg Message) error
}

// GuardedSender fails fast after repeated relay failures, so invites and
// recovery requests do not each wait out an SMTP dial timeout.
type GuardedSender struct {
	next    sender
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuardedSender(next sender, breaker *circuit.Breaker, logger *slog.Logger) *GuardedSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedSender{next: next, breaker: breaker, logger: logger}
}

func (g *GuardedSender) Send(ctx context.Context, msg Message) error {
	if !g.breaker.Allow() {
		return ErrRelayUnavailable
	}
	err := g.next.Send(ctx, msg)
	change := g.breaker.Record(err)
	switch {
	case change.Opened:
		g.logger.WarnContext(ctx, "mail relay circuit opened", "breaker", g.breaker.Name(), "error", err)
	case change.Closed:
		g.logger.InfoContext(ctx, "mail relay circuit closed", "breaker", g.breaker.Name())
	}
	return err
}

package activities

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// Mailer is the narrow send capability the gateway delegates to. Decorators
// such as RetryingMailer and SanitizingMailer wrap it.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) (ports.EmailResult, error)
}

// Gateway implements ports.ActivityGateway on top of a Mailer and real timers.
type Gateway struct {
	mailer Mailer
	logger ports.Logger
}

// NewGateway returns a gateway that sends through mailer and logs wait activity.
func NewGateway(mailer Mailer, logger ports.Logger) *Gateway {
	if logger == nil {
		logger = noopLogger()
	}
	return &Gateway{mailer: mailer, logger: logger.With("component", "activities")}
}

// SendEmail delegates to the configured mailer.
func (g *Gateway) SendEmail(ctx context.Context, to, subject, body string) (ports.EmailResult, error) {
	return g.mailer.SendEmail(ctx, to, subject, body)
}

// SleepFor blocks for d or until ctx ends.
func (g *Gateway) SleepFor(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

// RecordWait logs the wait activity. The timer itself already ran in SleepFor.
func (g *Gateway) RecordWait(ctx context.Context, seconds int) {
	g.logger.Info(ctx, "waiting step finished", "seconds", seconds)
}

// Sleep waits for d, returning ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ ports.ActivityGateway = (*Gateway)(nil)

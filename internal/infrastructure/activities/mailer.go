package activities

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// DefaultSendLatency is how long the mock mailer pretends delivery takes.
const DefaultSendLatency = 500 * time.Millisecond

// MockMailer stands in for a real delivery provider: it logs the message and
// reports success after a short simulated latency.
type MockMailer struct {
	logger  ports.Logger
	latency time.Duration
	now     func() time.Time
}

// NewMockMailer creates a mock mailer. A negative latency selects DefaultSendLatency.
func NewMockMailer(logger ports.Logger, latency time.Duration) *MockMailer {
	if logger == nil {
		logger = noopLogger()
	}
	if latency < 0 {
		latency = DefaultSendLatency
	}
	return &MockMailer{
		logger:  logger.With("component", "mailer"),
		latency: latency,
		now:     time.Now,
	}
}

// SendEmail logs the message and returns a synthetic message id.
func (m *MockMailer) SendEmail(ctx context.Context, to, subject, body string) (ports.EmailResult, error) {
	m.logger.Info(ctx, "mock sending email", "to", to, "subject", subject, "body", body)
	if err := Sleep(ctx, m.latency); err != nil {
		return ports.EmailResult{}, err
	}
	return ports.EmailResult{
		Success:   true,
		MessageID: uuid.NewString(),
		Timestamp: m.now(),
	}, nil
}

var _ Mailer = (*MockMailer)(nil)

package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// Defaults mirror the activity policy: up to two minutes per send, exponential
// backoff between attempts.
const (
	DefaultSendTimeout    = 2 * time.Minute
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// permanentError marks a send failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so RetryingMailer gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryPolicy configures RetryingMailer.
type RetryPolicy struct {
	Timeout        time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultSendTimeout
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// RetryingMailer retries transient send failures with exponential backoff
// under an overall timeout. Exhausting the budget is a fatal error.
type RetryingMailer struct {
	next   Mailer
	policy RetryPolicy
	logger ports.Logger
}

// NewRetryingMailer decorates next with the given policy.
func NewRetryingMailer(next Mailer, policy RetryPolicy, logger ports.Logger) *RetryingMailer {
	if logger == nil {
		logger = noopLogger()
	}
	return &RetryingMailer{
		next:   next,
		policy: policy.withDefaults(),
		logger: logger.With("component", "retry"),
	}
}

// SendEmail implements Mailer.
func (r *RetryingMailer) SendEmail(ctx context.Context, to, subject, body string) (ports.EmailResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.policy.InitialBackoff
	policy.MaxInterval = r.policy.MaxBackoff
	policy.MaxElapsedTime = r.policy.Timeout

	var b backoff.BackOff = policy
	if r.policy.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1))
	}

	attempts := 0
	operation := func() (ports.EmailResult, error) {
		attempts++
		result, err := r.next.SendEmail(ctx, to, subject, body)
		if err == nil {
			return result, nil
		}
		var permanent *permanentError
		if errors.As(err, &permanent) || ctx.Err() != nil {
			return ports.EmailResult{}, backoff.Permanent(err)
		}
		return ports.EmailResult{}, err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn(ctx, "email send failed, retrying", "to", to, "attempt", attempts, "retry_in", wait, "error", err)
	}

	result, err := backoff.RetryNotifyWithData(operation, backoff.WithContext(b, ctx), notify)
	if err != nil {
		return ports.EmailResult{}, fmt.Errorf("send email to %s failed after %d attempt(s): %w", to, attempts, err)
	}
	return result, nil
}

var _ Mailer = (*RetryingMailer)(nil)

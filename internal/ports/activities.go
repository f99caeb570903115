package ports

import (
	"context"
	"time"
)

// EmailResult is what the mail capability reports for an accepted message.
type EmailResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityGateway is the boundary to the external effects a cadence performs.
// Calls may be slow. Retrying transient SendEmail failures is the gateway's
// job; an error returned to the engine is treated as fatal for the enrollment.
type ActivityGateway interface {
	// SendEmail delivers one message and blocks until it is accepted or fails for good.
	SendEmail(ctx context.Context, to, subject, body string) (EmailResult, error)

	// SleepFor suspends the caller for d. It returns ctx.Err() if ctx ends first.
	SleepFor(ctx context.Context, d time.Duration) error

	// RecordWait is the wait activity. It only logs and has no other effect.
	RecordWait(ctx context.Context, seconds int)
}

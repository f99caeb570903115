package activities

import (
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// SanitizingMailer strips unsafe markup from HTML bodies before delegating.
// Bodies without markup pass through untouched.
type SanitizingMailer struct {
	next   Mailer
	policy *bluemonday.Policy
}

// NewSanitizingMailer decorates next with bluemonday's UGC policy.
func NewSanitizingMailer(next Mailer) *SanitizingMailer {
	return &SanitizingMailer{next: next, policy: bluemonday.UGCPolicy()}
}

// SendEmail implements Mailer.
func (s *SanitizingMailer) SendEmail(ctx context.Context, to, subject, body string) (ports.EmailResult, error) {
	if strings.ContainsAny(body, "<>") {
		body = s.policy.Sanitize(body)
	}
	return s.next.SendEmail(ctx, to, subject, body)
}

var _ Mailer = (*SanitizingMailer)(nil)

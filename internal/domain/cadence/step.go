package cadence

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxWaitSeconds is the longest wait a time.Duration can represent.
const MaxWaitSeconds = int(math.MaxInt64 / int64(time.Second))

// StepType enumerates supported cadence step variants.
type StepType string

const (
	StepTypeWait      StepType = "WAIT"
	StepTypeSendEmail StepType = "SEND_EMAIL"
)

var validStepTypes = []StepType{
	StepTypeWait,
	StepTypeSendEmail,
}

// Step is a single unit of cadence work: either a timed wait or an email send.
// Seconds is only meaningful for WAIT; Subject and Body only for SEND_EMAIL.
type Step struct {
	ID      string   `json:"id"`
	Type    StepType `json:"type"`
	Seconds int      `json:"seconds,omitempty"`
	Subject string   `json:"subject,omitempty"`
	Body    string   `json:"body,omitempty"`
}

// Wait builds a WAIT step.
func Wait(id string, seconds int) Step {
	return Step{ID: id, Type: StepTypeWait, Seconds: seconds}
}

// SendEmail builds a SEND_EMAIL step.
func SendEmail(id, subject, body string) Step {
	return Step{ID: id, Type: StepTypeSendEmail, Subject: subject, Body: body}
}

// Validate ensures the step carries a known variant tag and the fields that
// variant requires. Empty subjects and bodies are permitted.
func (s Step) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return newMissingFieldError("id")
	}
	if s.Type == "" {
		return newMissingFieldError("type").WithContext(map[string]interface{}{"step_id": s.ID})
	}

	switch s.Type {
	case StepTypeWait:
		if s.Seconds <= 0 {
			return newValidationError("wait step requires a positive seconds value", map[string]interface{}{
				"step_id": s.ID,
				"seconds": s.Seconds,
			})
		}
		if s.Seconds > MaxWaitSeconds {
			return newValidationError(fmt.Sprintf("wait step seconds must not exceed %d", MaxWaitSeconds), map[string]interface{}{
				"step_id": s.ID,
				"seconds": s.Seconds,
			})
		}
	case StepTypeSendEmail:
	default:
		return newTypeError(fmt.Sprintf("one of %v", validStepTypes), string(s.Type)).
			WithContext(map[string]interface{}{"step_id": s.ID})
	}

	return nil
}

// Warnings lists content issues worth surfacing to an editor. They never block
// acceptance of the step.
func (s Step) Warnings() []string {
	if s.Type != StepTypeSendEmail {
		return nil
	}
	var warnings []string
	if strings.TrimSpace(s.Subject) == "" {
		warnings = append(warnings, fmt.Sprintf("step %s has an empty subject", s.ID))
	}
	if strings.TrimSpace(s.Body) == "" {
		warnings = append(warnings, fmt.Sprintf("step %s has an empty body", s.ID))
	}
	return warnings
}

// ValidateSteps validates every step of an ordered list and rejects ids that
// repeat within it.
func ValidateSteps(steps []Step) error {
	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if err := step.Validate(); err != nil {
			if domainErr, ok := err.(*DomainError); ok {
				return domainErr.WithContext(map[string]interface{}{"step_index": i})
			}
			return err
		}
		if _, ok := seen[step.ID]; ok {
			return newDuplicateError(step.ID).WithContext(map[string]interface{}{"step_index": i})
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}

// CloneSteps returns a copy of the list so callers cannot mutate shared backing arrays.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

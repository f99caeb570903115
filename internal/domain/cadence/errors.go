package cadence

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the well-known error categories surfaced by the cadence
// domain, the execution engine, and the engine host.
type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeMissing    ErrorCode = "MISSING_REQUIRED"
	ErrCodeType       ErrorCode = "INVALID_TYPE"
	ErrCodeDuplicate  ErrorCode = "DUPLICATE_ID"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeState      ErrorCode = "INVALID_STATE"
	ErrCodeExecution  ErrorCode = "EXECUTION_ERROR"
	ErrCodeTimeout    ErrorCode = "TIMEOUT"
	ErrCodeCancelled  ErrorCode = "CANCELLED"
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a typed error enriched with contextual data while
// remaining free from infrastructure dependencies.
type DomainError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As usage.
func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is allows errors.Is comparisons against other DomainError values.
func (e *DomainError) Is(target error) bool {
	var domainErr *DomainError
	if !errors.As(target, &domainErr) {
		return false
	}
	return e.Code == domainErr.Code && e.Message == domainErr.Message
}

// WithContext clones the error with additional contextual metadata.
func (e *DomainError) WithContext(ctx map[string]interface{}) *DomainError {
	if e == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Context: merged,
	}
}

// CodeOf returns the code of the first DomainError in err's chain, or an
// empty code when err carries none.
func CodeOf(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFound reports whether err denotes an unknown enrollment or record.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsValidation reports whether err was produced by step or cadence validation.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeValidation, ErrCodeMissing, ErrCodeType, ErrCodeDuplicate:
		return true
	}
	return false
}

// NewError constructs a DomainError with the supplied code and message.
func NewError(code ErrorCode, message string, cause error, context map[string]interface{}) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// NewNotFoundError reports a lookup miss for the given enrollment id.
func NewNotFoundError(enrollmentID string) *DomainError {
	return NewError(ErrCodeNotFound, "enrollment not found", nil, map[string]interface{}{
		"enrollment_id": enrollmentID,
	})
}

// NewStateError reports an operation that is not allowed in the current state.
func NewStateError(message string, context map[string]interface{}) *DomainError {
	return NewError(ErrCodeState, message, nil, context)
}

// NewExecutionError wraps a fatal activity failure for a step.
func NewExecutionError(stepIndex int, cause error) *DomainError {
	return NewError(ErrCodeExecution, "step execution failed", cause, map[string]interface{}{
		"step_index": stepIndex,
	})
}

// NewCancelledError reports that execution was interrupted before the step finished.
func NewCancelledError(stepIndex int, cause error) *DomainError {
	return NewError(ErrCodeCancelled, "execution interrupted", cause, map[string]interface{}{
		"step_index": stepIndex,
	})
}

func newValidationError(message string, context map[string]interface{}) *DomainError {
	return NewError(ErrCodeValidation, message, nil, context)
}

func newDuplicateError(identifier string) *DomainError {
	return NewError(ErrCodeDuplicate, "duplicate identifier", nil, map[string]interface{}{
		"id": identifier,
	})
}

func newTypeError(expected string, actual string) *DomainError {
	return NewError(ErrCodeType, "invalid type", nil, map[string]interface{}{
		"expected": expected,
		"actual":   actual,
	})
}

func newMissingFieldError(field string) *DomainError {
	return NewError(ErrCodeMissing, "missing required field", nil, map[string]interface{}{
		"field": field,
	})
}

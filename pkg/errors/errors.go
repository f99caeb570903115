// Package errors holds the error types reported while reading cadence and
// runtime configuration files.
package errors

import (
	stderrors "errors"
	"fmt"
	"os"
)

// ParseError is a file that could not be read or decoded as YAML. Line is
// zero when the decoder did not report one.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Missing reports whether the file itself does not exist.
func (e *ParseError) Missing() bool {
	return e != nil && stderrors.Is(e.Err, os.ErrNotExist)
}

// ValidationError is a decoded document that breaks a schema rule. Field is
// the YAML path of the offending value, e.g. "steps[1].seconds".
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsParseError returns the first ParseError in err's chain.
func AsParseError(err error) (*ParseError, bool) {
	var parseErr *ParseError
	if stderrors.As(err, &parseErr) {
		return parseErr, true
	}
	return nil, false
}

// AsValidationError returns the first ValidationError in err's chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var validationErr *ValidationError
	if stderrors.As(err, &validationErr) {
		return validationErr, true
	}
	return nil, false
}

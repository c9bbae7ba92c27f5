package errors

import (
	"errors"
	"fmt"
)

// AppError is the structured error type used across the module. It carries a
// stable string Code (so callers can branch on error kind without string
// matching the Message) plus an optional wrapped cause.
type AppError struct {
	// Code is a stable, machine-checkable identifier (e.g. "CIRCUIT_OPEN").
	Code string
	// Message is a human-readable description.
	Message string
	// Err is the underlying cause, if any.
	Err error
	// Fields carries structured metadata for the error kind (e.g.
	// retry_after_ms, reset_at_ms). Populated via WithField.
	Fields map[string]any
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithField attaches a metadata field and returns e for chaining.
func (e *AppError) WithField(key string, value any) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]any, 1)
	}
	e.Fields[key] = value
	return e
}

// Field returns a metadata field previously set via WithField.
func (e *AppError) Field(key string) (any, bool) {
	v, ok := e.Fields[key]
	return v, ok
}

// New creates an AppError with the given code, message and optional cause.
func New(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Wrap attaches a message to err, preserving its code if err is already an
// *AppError, otherwise tagging it with the generic "INTERNAL" code.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{Code: ae.Code, Message: message, Err: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// Code returns the code of err if it is (or wraps) an *AppError, else "".
func Code(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Is reports whether err is an *AppError carrying the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}

// Generic codes not tied to a specific component.
const (
	CodeInternal        = "INTERNAL"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
)

// Package taskmodel defines the data shapes shared by every task driver:
// the Task record, its state machine, and the error taxonomy that the
// HTTP layer maps to status codes.
package taskmodel

import (
	"errors"
	"fmt"
)

// NotFoundError maps to HTTP 404: a missing task, stream, output, or a
// failed HLS resolution.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// NewNotFound builds a NotFoundError for the given entity kind and key.
func NewNotFound(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// ValidationError maps to HTTP 400: bad parameters, a time window
// already in the past, non-numeric coordinates, malformed ROI JSON.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NewValidation builds a ValidationError with the given reason.
func NewValidation(reason string) error {
	return &ValidationError{Reason: reason}
}

// ExternalError maps to HTTP 500 with the original reason preserved:
// external catalog failures, subprocess spawn failures, encoder/decoder
// failures.
type ExternalError struct {
	Reason string
	Cause  error
}

func (e *ExternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *ExternalError) Unwrap() error { return e.Cause }

// NewExternal builds an ExternalError wrapping cause, if any.
func NewExternal(reason string, cause error) error {
	return &ExternalError{Reason: reason, Cause: cause}
}

// CancelError is raised internally by a driver when it observes the
// cancel flag at a suspension point. It never escapes to the HTTP
// layer; the worker boundary turns it into the CANCELED state.
type CancelError struct {
	Reason string
}

func (e *CancelError) Error() string { return e.Reason }

// NewCancel builds a CancelError with the given reason.
func NewCancel(reason string) error {
	return &CancelError{Reason: reason}
}

// IsNotFound reports whether err (or any error it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// IsCancel reports whether err is a CancelError.
func IsCancel(err error) bool {
	_, ok := err.(*CancelError)
	return ok
}

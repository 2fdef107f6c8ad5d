package application

import (
	"errors"
	"strings"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists indicates a uniqueness conflict on a field such as name or email.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrSessionFull is returned when a session has reached its attendee limit.
	ErrSessionFull = errors.New("application: session is full")
	// ErrSessionCancelled is returned for actions a cancelled session no longer accepts.
	ErrSessionCancelled = errors.New("application: session is cancelled")
	// ErrSessionPast is returned for actions a finished session no longer accepts.
	ErrSessionPast = errors.New("application: session is over")
	// ErrTokenExpired covers recovery tokens that expired, were consumed, or never existed.
	ErrTokenExpired = errors.New("application: token expired")
	// ErrStore wraps failures of the backing stores that callers cannot correct.
	ErrStore = errors.New("application: store failure")
	// ErrErasureFailed is returned when an account could not be erased completely.
	ErrErasureFailed = errors.New("application: account erasure failed")
)

// FieldError names the input field a problem belongs to.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type fieldErrors []FieldError

func (f fieldErrors) message(prefix string) string {
	if len(f) == 0 {
		return prefix
	}
	parts := make([]string, 0, len(f))
	for _, fe := range f {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return prefix + ": " + strings.Join(parts, "; ")
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors []FieldError
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return fieldErrors(v.FieldErrors).message("validation failed")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Field returns the message recorded for field, if any.
func (v *ValidationError) Field(field string) (string, bool) {
	if v == nil {
		return "", false
	}
	for _, fe := range v.FieldErrors {
		if fe.Field == field {
			return fe.Message, true
		}
	}
	return "", false
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if _, ok := v.Field(field); ok {
		return
	}
	v.FieldErrors = append(v.FieldErrors, FieldError{Field: field, Message: message})
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil {
		return
	}
	for _, fe := range other.FieldErrors {
		v.add(fe.Field, fe.Message)
	}
}

// ConflictError reports a uniqueness violation on a named field.
type ConflictError struct {
	FieldErrors []FieldError
}

func newConflict(field, message string) *ConflictError {
	return &ConflictError{FieldErrors: []FieldError{{Field: field, Message: message}}}
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil {
		return ""
	}
	return fieldErrors(c.FieldErrors).message("conflict")
}

// Unwrap lets errors.Is match ErrAlreadyExists.
func (c *ConflictError) Unwrap() error {
	return ErrAlreadyExists
}

// FieldErrorsOf extracts the field scoped errors carried by err.
func FieldErrorsOf(err error) []FieldError {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.FieldErrors
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		return cErr.FieldErrors
	}
	return nil
}

func fieldError(field, message string) *ValidationError {
	return &ValidationError{FieldErrors: []FieldError{{Field: field, Message: message}}}
}

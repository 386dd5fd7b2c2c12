// Package domain holds the error vocabulary shared by every service layer.
package domain

import (
	"errors"
	"fmt"
)

// Error categories. A DomainError always wraps exactly one of these.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrUnprocessable = errors.New("unprocessable")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidState  = errors.New("invalid state transition")
	ErrInternal      = errors.New("internal error")
)

// DomainError is an error with a category, a machine-readable code and an optional cause.
type DomainError struct {
	Err     error
	Code    string
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the category and the cause to errors.Is / errors.As.
func (e *DomainError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    "not_found",
		Message: fmt.Sprintf("%s %s not found", entity, id),
	}
}

// NewValidationError reports malformed input.
func NewValidationError(msg string) *DomainError {
	return &DomainError{Err: ErrValidation, Code: "validation_error", Message: msg}
}

// NewConflictError reports a write that lost against a concurrent one.
func NewConflictError(msg string) *DomainError {
	return &DomainError{Err: ErrConflict, Code: "conflict", Message: msg}
}

// NewForbiddenError reports an authorization failure on an existing resource.
func NewForbiddenError(msg string) *DomainError {
	return &DomainError{Err: ErrForbidden, Code: "forbidden", Message: msg}
}

// NewInvalidStateError reports a disallowed status transition.
func NewInvalidStateError(from, to string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidState,
		Code:    "invalid_state",
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// NewRejection builds a user-facing business rejection with a stable code.
func NewRejection(code, msg string) *DomainError {
	return &DomainError{Err: ErrUnprocessable, Code: code, Message: msg}
}

// NewPersistenceError wraps a storage failure. The request that triggered it is safe to retry.
func NewPersistenceError(op string, cause error) *DomainError {
	return &DomainError{
		Err:     ErrInternal,
		Code:    "persistence_failure",
		Message: op,
		Cause:   cause,
	}
}

// CodeOf returns the machine code carried by err, or "" when err is not a DomainError.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

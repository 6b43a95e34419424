package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy callers branch on with
// errors.Is.
var (
	// ErrUnauthenticated means no identity is established.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrAccessDenied means the identity does not own the addressed data.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound means the addressed entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRemoteUnavailable means the document store rejected or could not
	// complete an operation.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports which field of a submission was rejected and why.
// It unwraps to ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

package arcade

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services wraps exactly one of these.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("unavailable")
)

var (
	ErrAlreadyResolved = fmt.Errorf("%w: request already resolved", ErrConflict)
	ErrUsernameTaken   = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrBadgeLinked     = fmt.Errorf("%w: badge already linked to an account", ErrConflict)
	ErrEmailTaken      = fmt.Errorf("%w: email already in use", ErrConflict)

	ErrSessionMismatch = fmt.Errorf("%w: scan does not belong to user", ErrUnauthorized)
	ErrSessionRevoked  = fmt.Errorf("%w: session revoked", ErrUnauthorized)
	ErrSessionExpired  = fmt.Errorf("%w: session expired", ErrUnauthorized)
)

// ValidationError reports which input field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Required is shorthand for a missing required field.
func Required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

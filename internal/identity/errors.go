package identity

import (
	"errors"
	"fmt"
)

// Sentinel errors for identity resolution.
var (
	// ErrIdentityUnavailable indicates a resolver failed or returned no
	// usable identity.
	ErrIdentityUnavailable = errors.New("identity unavailable")

	// ErrExpired indicates a resolver returned an already expired identity.
	ErrExpired = errors.New("identity expired")
)

// Error describes a failed identity resolution.
type Error struct {
	Provider string
	Op       string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("identity provider %s: %s", e.Provider, e.Op)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports true for ErrIdentityUnavailable.
func (e *Error) Is(target error) bool {
	return target == ErrIdentityUnavailable
}

func unavailable(provider, op, message string, cause error) *Error {
	return &Error{Provider: provider, Op: op, Message: message, Cause: cause}
}

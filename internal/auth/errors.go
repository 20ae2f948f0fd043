package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for scheme negotiation and signing.
var (
	// ErrNoAuthenticationAvailable indicates no scheme option could be used.
	ErrNoAuthenticationAvailable = errors.New("no authentication scheme available")

	// ErrSchemeNotRegistered indicates an option names an unknown scheme.
	ErrSchemeNotRegistered = errors.New("auth scheme not registered")

	// ErrNoIdentityResolver indicates a scheme has no resolver configured.
	ErrNoIdentityResolver = errors.New("no identity resolver configured")

	// ErrIdentityMismatch indicates an identity of the wrong kind for a signer.
	ErrIdentityMismatch = errors.New("identity type not supported by signer")
)

// AuthError represents a scheme failure with the stage it happened in.
type AuthError struct {
	Scheme  SchemeID
	Stage   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := fmt.Sprintf("auth scheme %s: %s", e.Scheme, e.Stage)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewAuthErrorWithCause creates an AuthError.
func NewAuthErrorWithCause(scheme SchemeID, stage string, cause error) *AuthError {
	return &AuthError{Scheme: scheme, Stage: stage, Cause: cause}
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// SchemeOf returns the scheme recorded in an error, if any.
func SchemeOf(err error) SchemeID {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Scheme
	}
	return ""
}

// NegotiationError lists why each scheme option was rejected.
type NegotiationError struct {
	Options  []SchemeID
	Failures []error
}

// Error implements the error interface.
func (e *NegotiationError) Error() string {
	if len(e.Failures) == 0 {
		return ErrNoAuthenticationAvailable.Error() + ": no scheme options"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return ErrNoAuthenticationAvailable.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap returns the per-scheme failures.
func (e *NegotiationError) Unwrap() []error {
	return e.Failures
}

// Is reports true for ErrNoAuthenticationAvailable.
func (e *NegotiationError) Is(target error) bool {
	return target == ErrNoAuthenticationAvailable
}

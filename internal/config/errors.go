package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration failures. All of them are raised
// while building a client, never while sending a request.
var (
	// ErrInvalidRetryMode indicates an unrecognized retry mode.
	ErrInvalidRetryMode = errors.New("invalid retry mode")

	// ErrMaxAttemptsMustNotBeZero indicates max attempts was set to zero.
	ErrMaxAttemptsMustNotBeZero = errors.New("max attempts must not be zero")

	// ErrFailedToParseMaxAttempts indicates max attempts was not an integer.
	ErrFailedToParseMaxAttempts = errors.New("failed to parse max attempts")

	// ErrInvalidConfig indicates any other invalid configuration value.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RetryConfigError reports an invalid retry setting and where it came from.
type RetryConfigError struct {
	Kind  error
	SetBy string
	Value string
	Cause error
}

// Error implements the error interface.
func (e *RetryConfigError) Error() string {
	switch e.Kind {
	case ErrMaxAttemptsMustNotBeZero:
		return fmt.Sprintf("invalid configuration set by %s: It is invalid to set max attempts to 0. "+
			"Unset it or set it to an integer greater than or equal to one.", e.SetBy)
	case ErrFailedToParseMaxAttempts:
		return fmt.Sprintf("failed to parse max attempts set by %s: %v", e.SetBy, e.Cause)
	case ErrInvalidRetryMode:
		return fmt.Sprintf("invalid configuration set by %s: invalid retry mode %q, "+
			"valid options are 'standard' and 'adaptive'", e.SetBy, e.Value)
	default:
		return fmt.Sprintf("invalid retry configuration set by %s", e.SetBy)
	}
}

// Unwrap returns the underlying parse error, if any.
func (e *RetryConfigError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the error kind.
func (e *RetryConfigError) Is(target error) bool {
	return target == e.Kind
}

// ValidationError represents an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// Is allows matching against ErrInvalidConfig.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

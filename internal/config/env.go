package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables read by FromEnv.
const (
	EnvMaxAttempts   = "AWS_MAX_ATTEMPTS"
	EnvRetryMode     = "AWS_RETRY_MODE"
	EnvRegion        = "AWS_REGION"
	EnvDefaultRegion = "AWS_DEFAULT_REGION"
)

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// EnvLayer builds an override layer from the process environment.
func EnvLayer() (*Layer, error) {
	return FromEnv(os.LookupEnv)
}

// FromEnv builds an override layer from the given lookup function.
// Invalid retry settings fail here, at client construction.
func FromEnv(lookup LookupFunc) (*Layer, error) {
	l := &Layer{Name: "environment"}

	if v, ok := nonEmpty(lookup, EnvRegion); ok {
		l.Region = Ptr(v)
	} else if v, ok := nonEmpty(lookup, EnvDefaultRegion); ok {
		l.Region = Ptr(v)
	}

	if v, ok := nonEmpty(lookup, EnvMaxAttempts); ok {
		setBy := "environment variable " + EnvMaxAttempts
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &RetryConfigError{Kind: ErrFailedToParseMaxAttempts, SetBy: setBy, Value: v, Cause: err}
		}
		if n == 0 {
			return nil, &RetryConfigError{Kind: ErrMaxAttemptsMustNotBeZero, SetBy: setBy}
		}
		if n < 0 {
			return nil, &RetryConfigError{
				Kind: ErrFailedToParseMaxAttempts, SetBy: setBy, Value: v,
				Cause: newValidationError(EnvMaxAttempts, "must be positive"),
			}
		}
		l.Retry = &RetryLayer{MaxAttempts: Ptr(n)}
	}

	if v, ok := nonEmpty(lookup, EnvRetryMode); ok {
		if _, err := ParseRetryMode(v); err != nil {
			return nil, &RetryConfigError{
				Kind: ErrInvalidRetryMode, SetBy: "environment variable " + EnvRetryMode, Value: v,
			}
		}
		if l.Retry == nil {
			l.Retry = &RetryLayer{}
		}
		l.Retry.Mode = Ptr(v)
	}

	return l, nil
}

func nonEmpty(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

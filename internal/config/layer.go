package config

import (
	"time"

	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// Layer holds optional configuration overrides. Nil fields inherit the
// value from the layer below. Name identifies the layer in errors.
type Layer struct {
	Name              string                   `yaml:"-"`
	Region            *string                  `yaml:"region"`
	Retry             *RetryLayer              `yaml:"retry"`
	StalledStream     *StalledStreamLayer      `yaml:"stalled_stream"`
	MinimumThroughput *MinimumThroughputLayer  `yaml:"minimum_throughput"`
	IdentityCache     *IdentityCacheLayer      `yaml:"identity_cache"`
	Signing           *SigningLayer            `yaml:"signing"`
	CircuitBreaker    *CircuitBreakerLayer     `yaml:"circuit_breaker"`
	Log               *observability.LogConfig `yaml:"log"`
}

// RetryLayer overrides retry settings.
type RetryLayer struct {
	Mode           *string   `yaml:"mode"`
	MaxAttempts    *int      `yaml:"max_attempts"`
	InitialBackoff *Duration `yaml:"initial_backoff"`
	MaxBackoff     *Duration `yaml:"max_backoff"`
}

// StalledStreamLayer overrides stalled-stream protection.
type StalledStreamLayer struct {
	Enabled     *bool     `yaml:"enabled"`
	GracePeriod *Duration `yaml:"grace_period"`
}

// MinimumThroughputLayer overrides minimum-throughput enforcement.
type MinimumThroughputLayer struct {
	Enabled     *bool     `yaml:"enabled"`
	Bytes       *int64    `yaml:"bytes"`
	Per         *Duration `yaml:"per"`
	Window      *Duration `yaml:"window"`
	GracePeriod *Duration `yaml:"grace_period"`
}

// IdentityCacheLayer overrides identity cache settings.
type IdentityCacheLayer struct {
	RefreshMargin     *Duration `yaml:"refresh_margin"`
	LoadTimeout       *Duration `yaml:"load_timeout"`
	DefaultExpiration *Duration `yaml:"default_expiration"`
	AllowStale        *bool     `yaml:"allow_stale"`
	StaleGrace        *Duration `yaml:"stale_grace"`
}

// SigningLayer overrides signing settings.
type SigningLayer struct {
	Region          *string   `yaml:"region"`
	Service         *string   `yaml:"service"`
	DoubleURIEncode *bool     `yaml:"double_uri_encode"`
	ContentSHA256   *bool     `yaml:"content_sha256"`
	PresignExpires  *Duration `yaml:"presign_expires"`
	ExcludedHeaders []string  `yaml:"excluded_headers"`
}

// CircuitBreakerLayer overrides circuit breaker settings.
type CircuitBreakerLayer struct {
	Enabled     *bool     `yaml:"enabled"`
	MaxFailures *uint32   `yaml:"max_failures"`
	Timeout     *Duration `yaml:"timeout"`
}

func (l *Layer) setBy() string {
	if l.Name == "" {
		return "override layer"
	}
	return l.Name
}

func (l *Layer) applyTo(c *Client) error {
	setString(&c.Region, l.Region)

	if r := l.Retry; r != nil {
		if r.MaxAttempts != nil && *r.MaxAttempts == 0 {
			return &RetryConfigError{Kind: ErrMaxAttemptsMustNotBeZero, SetBy: l.setBy()}
		}
		if r.Mode != nil {
			mode, err := ParseRetryMode(*r.Mode)
			if err != nil {
				return &RetryConfigError{Kind: ErrInvalidRetryMode, SetBy: l.setBy(), Value: *r.Mode}
			}
			c.Retry.Mode = mode
		}
		if r.MaxAttempts != nil {
			c.Retry.MaxAttempts = *r.MaxAttempts
		}
		setDuration(&c.Retry.InitialBackoff, r.InitialBackoff)
		setDuration(&c.Retry.MaxBackoff, r.MaxBackoff)
	}

	if s := l.StalledStream; s != nil {
		setBool(&c.StalledStream.Enabled, s.Enabled)
		setDuration(&c.StalledStream.GracePeriod, s.GracePeriod)
	}

	if m := l.MinimumThroughput; m != nil {
		setBool(&c.MinimumThroughput.Enabled, m.Enabled)
		if m.Bytes != nil {
			c.MinimumThroughput.Bytes = *m.Bytes
		}
		setDuration(&c.MinimumThroughput.Per, m.Per)
		setDuration(&c.MinimumThroughput.Window, m.Window)
		setDuration(&c.MinimumThroughput.GracePeriod, m.GracePeriod)
	}

	if ic := l.IdentityCache; ic != nil {
		setDuration(&c.IdentityCache.RefreshMargin, ic.RefreshMargin)
		setDuration(&c.IdentityCache.LoadTimeout, ic.LoadTimeout)
		setDuration(&c.IdentityCache.DefaultExpiration, ic.DefaultExpiration)
		setBool(&c.IdentityCache.AllowStale, ic.AllowStale)
		setDuration(&c.IdentityCache.StaleGrace, ic.StaleGrace)
	}

	if s := l.Signing; s != nil {
		setString(&c.Signing.Region, s.Region)
		setString(&c.Signing.Service, s.Service)
		setBool(&c.Signing.DoubleURIEncode, s.DoubleURIEncode)
		setBool(&c.Signing.ContentSHA256, s.ContentSHA256)
		setDuration(&c.Signing.PresignExpires, s.PresignExpires)
		if s.ExcludedHeaders != nil {
			c.Signing.ExcludedHeaders = append([]string(nil), s.ExcludedHeaders...)
		}
	}

	if cb := l.CircuitBreaker; cb != nil {
		setBool(&c.CircuitBreaker.Enabled, cb.Enabled)
		if cb.MaxFailures != nil {
			c.CircuitBreaker.MaxFailures = *cb.MaxFailures
		}
		setDuration(&c.CircuitBreaker.Timeout, cb.Timeout)
	}

	if l.Log != nil {
		c.Log = *l.Log
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = v.Duration()
	}
}

// Ptr returns a pointer to v. It keeps override literals short.
func Ptr[T any](v T) *T {
	return &v
}

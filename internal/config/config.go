package config

import (
	"errors"
	"strings"
	"time"

	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// RetryMode selects the retry strategy family.
type RetryMode string

// Supported retry modes.
const (
	RetryModeStandard RetryMode = "standard"
	RetryModeAdaptive RetryMode = "adaptive"
)

// Default configuration values.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 20 * time.Second

	DefaultStalledStreamGrace = 5 * time.Second

	DefaultMinimumThroughputBytes = 1
	DefaultMinimumThroughputPer   = time.Second
	DefaultThroughputWindow       = time.Second
	DefaultThroughputGrace        = 5 * time.Second

	DefaultRefreshMargin    = 10 * time.Second
	DefaultLoadTimeout      = 5 * time.Second
	DefaultIdentityLifetime = 15 * time.Minute

	DefaultPresignExpires = 15 * time.Minute
	MaxPresignExpires     = 7 * 24 * time.Hour

	DefaultBreakerMaxFailures = 5
	DefaultBreakerTimeout     = 30 * time.Second
)

// Client is the fully resolved configuration for one client, operation,
// or request.
type Client struct {
	Region            string
	Retry             Retry
	StalledStream     StalledStream
	MinimumThroughput MinimumThroughput
	IdentityCache     IdentityCache
	Signing           Signing
	CircuitBreaker    CircuitBreaker
	Log               observability.LogConfig
}

// Retry holds the retry surface.
type Retry struct {
	Mode           RetryMode
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// StalledStream configures stalled-stream protection.
type StalledStream struct {
	Enabled     bool
	GracePeriod time.Duration
}

// MinimumThroughput configures minimum-throughput enforcement. The
// floor is Bytes per Per. No rate is computed until Window has
// elapsed, and no error is raised before GracePeriod.
type MinimumThroughput struct {
	Enabled     bool
	Bytes       int64
	Per         time.Duration
	Window      time.Duration
	GracePeriod time.Duration
}

// IdentityCache configures the lazy identity cache.
type IdentityCache struct {
	RefreshMargin     time.Duration
	LoadTimeout       time.Duration
	DefaultExpiration time.Duration
	AllowStale        bool

	// StaleGrace is how far into the refresh margin a failed refresh may
	// still serve the previous, unexpired identity.
	StaleGrace time.Duration
}

// Signing configures SigV4 request signing.
type Signing struct {
	Region          string
	Service         string
	DoubleURIEncode bool
	ContentSHA256   bool
	PresignExpires  time.Duration
	ExcludedHeaders []string
}

// CircuitBreaker configures the optional retry circuit breaker.
type CircuitBreaker struct {
	Enabled     bool
	MaxFailures uint32
	Timeout     time.Duration
}

// Defaults returns the client default configuration.
func Defaults() Client {
	return Client{
		Retry: Retry{
			Mode:           RetryModeStandard,
			MaxAttempts:    DefaultMaxAttempts,
			InitialBackoff: DefaultInitialBackoff,
			MaxBackoff:     DefaultMaxBackoff,
		},
		StalledStream: StalledStream{
			Enabled:     true,
			GracePeriod: DefaultStalledStreamGrace,
		},
		MinimumThroughput: MinimumThroughput{
			Bytes:       DefaultMinimumThroughputBytes,
			Per:         DefaultMinimumThroughputPer,
			Window:      DefaultThroughputWindow,
			GracePeriod: DefaultThroughputGrace,
		},
		IdentityCache: IdentityCache{
			RefreshMargin:     DefaultRefreshMargin,
			LoadTimeout:       DefaultLoadTimeout,
			DefaultExpiration: DefaultIdentityLifetime,
		},
		Signing: Signing{
			PresignExpires: DefaultPresignExpires,
		},
		CircuitBreaker: CircuitBreaker{
			MaxFailures: DefaultBreakerMaxFailures,
			Timeout:     DefaultBreakerTimeout,
		},
		Log: observability.DefaultLogConfig(),
	}
}

// ParseRetryMode parses a retry mode name, ignoring case and
// surrounding whitespace.
func ParseRetryMode(s string) (RetryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RetryModeStandard):
		return RetryModeStandard, nil
	case string(RetryModeAdaptive):
		return RetryModeAdaptive, nil
	default:
		return "", ErrInvalidRetryMode
	}
}

// SigningRegion returns the region used in the credential scope.
func (c *Client) SigningRegion() string {
	if c.Signing.Region != "" {
		return c.Signing.Region
	}
	return c.Region
}

// Validate checks the resolved configuration.
func (c *Client) Validate() error {
	var errs []error

	if c.Retry.MaxAttempts == 0 {
		errs = append(errs, &RetryConfigError{Kind: ErrMaxAttemptsMustNotBeZero, SetBy: "client configuration"})
	} else if c.Retry.MaxAttempts < 0 {
		errs = append(errs, newValidationError("retry.max_attempts", "must be positive, got %d", c.Retry.MaxAttempts))
	}
	if _, err := ParseRetryMode(string(c.Retry.Mode)); err != nil {
		errs = append(errs, &RetryConfigError{
			Kind: ErrInvalidRetryMode, SetBy: "client configuration", Value: string(c.Retry.Mode),
		})
	}
	if c.Retry.InitialBackoff < 0 {
		errs = append(errs, newValidationError("retry.initial_backoff", "must not be negative"))
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		errs = append(errs, newValidationError("retry.max_backoff", "must be at least initial_backoff"))
	}

	if c.StalledStream.GracePeriod < 0 {
		errs = append(errs, newValidationError("stalled_stream.grace_period", "must not be negative"))
	}

	if c.MinimumThroughput.Enabled {
		if c.MinimumThroughput.Bytes <= 0 {
			errs = append(errs, newValidationError("minimum_throughput.bytes", "must be positive"))
		}
		if c.MinimumThroughput.Per <= 0 {
			errs = append(errs, newValidationError("minimum_throughput.per", "must be positive"))
		}
		if c.MinimumThroughput.Window <= 0 {
			errs = append(errs, newValidationError("minimum_throughput.window", "must be positive"))
		}
	}

	ic := c.IdentityCache
	if ic.RefreshMargin < 0 || ic.LoadTimeout < 0 || ic.DefaultExpiration < 0 || ic.StaleGrace < 0 {
		errs = append(errs, newValidationError("identity_cache", "durations must not be negative"))
	}

	if c.Signing.PresignExpires < time.Second || c.Signing.PresignExpires > MaxPresignExpires {
		errs = append(errs, newValidationError("signing.presign_expires",
			"must be between 1s and %s, got %s", MaxPresignExpires, c.Signing.PresignExpires))
	}

	if c.CircuitBreaker.Enabled && c.CircuitBreaker.MaxFailures == 0 {
		errs = append(errs, newValidationError("circuit_breaker.max_failures", "must be positive"))
	}

	return errors.Join(errs...)
}

// With resolves the given override layers on top of c.
func (c *Client) With(layers ...*Layer) (*Client, error) {
	return Resolve(*c, layers...)
}

// Resolve applies layers in order on top of base and validates the
// result. Later layers win.
func Resolve(base Client, layers ...*Layer) (*Client, error) {
	out := base
	out.Signing.ExcludedHeaders = append([]string(nil), base.Signing.ExcludedHeaders...)

	for _, l := range layers {
		if l == nil {
			continue
		}
		if err := l.applyTo(&out); err != nil {
			return nil, err
		}
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

package retry

import (
	"github.com/vyrodovalexey/avasdk/internal/config"
)

// Mode selects the retry strategy family.
type Mode = config.RetryMode

// Retry modes.
const (
	ModeStandard = config.RetryModeStandard
	ModeAdaptive = config.RetryModeAdaptive
)

// ErrInvalidRetryMode is returned by ParseMode for unknown names.
var ErrInvalidRetryMode = config.ErrInvalidRetryMode

// ParseMode parses "standard" or "adaptive", ignoring case.
func ParseMode(s string) (Mode, error) {
	return config.ParseRetryMode(s)
}

// FromConfig builds the strategy a client uses: a StandardStrategy in the
// configured mode, wrapped in a CircuitBreakerStrategy when the breaker
// is enabled.
func FromConfig(name string, cfg *config.Client, opts ...StandardOption) Strategy {
	s := NewStandardStrategy(cfg.Retry, opts...)
	if !cfg.CircuitBreaker.Enabled {
		return s
	}
	return NewCircuitBreakerStrategy(name, s, cfg.CircuitBreaker,
		WithBreakerLogger(s.logger),
		WithBreakerMetrics(s.metrics),
	)
}

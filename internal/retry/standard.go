package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/vyrodovalexey/avasdk/internal/config"
	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// StandardStrategy retries with jittered exponential backoff, paid for
// from a token bucket shared across calls. In adaptive mode a
// ClientRateLimiter also paces every attempt.
type StandardStrategy struct {
	cfg     config.Retry
	bucket  *TokenBucket
	limiter *ClientRateLimiter
	clock   clock.Clock
	jitter  func() float64
	logger  observability.Logger
	metrics *observability.Metrics
}

// StandardOption configures a StandardStrategy.
type StandardOption func(*StandardStrategy)

// WithTokenBucket shares an existing retry quota.
func WithTokenBucket(b *TokenBucket) StandardOption {
	return func(s *StandardStrategy) {
		s.bucket = b
	}
}

// WithRateLimiter sets the adaptive rate limiter.
func WithRateLimiter(l *ClientRateLimiter) StandardOption {
	return func(s *StandardStrategy) {
		s.limiter = l
	}
}

// WithClock sets the time source.
func WithClock(clk clock.Clock) StandardOption {
	return func(s *StandardStrategy) {
		s.clock = clk
	}
}

// WithJitter sets the source of the backoff base, a value in [0, 1].
func WithJitter(fn func() float64) StandardOption {
	return func(s *StandardStrategy) {
		s.jitter = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) StandardOption {
	return func(s *StandardStrategy) {
		s.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) StandardOption {
	return func(s *StandardStrategy) {
		s.metrics = m
	}
}

// NewStandardStrategy creates a strategy from the retry configuration.
// Adaptive mode gets a ClientRateLimiter unless one is supplied.
func NewStandardStrategy(cfg config.Retry, opts ...StandardOption) *StandardStrategy {
	s := &StandardStrategy{
		cfg:    cfg,
		clock:  clock.NewClock(),
		jitter: rand.Float64,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bucket == nil {
		s.bucket = NewTokenBucket(DefaultQuotaCapacity, s.metrics)
	}
	if s.limiter == nil && cfg.Mode == config.RetryModeAdaptive {
		s.limiter = NewClientRateLimiter(s.clock.Now())
	}
	return s
}

// TokenBucket returns the retry quota.
func (s *StandardStrategy) TokenBucket() *TokenBucket {
	return s.bucket
}

// RateLimiter returns the adaptive limiter, or nil in standard mode.
func (s *StandardStrategy) RateLimiter() *ClientRateLimiter {
	return s.limiter
}

// ShouldAttemptInitial implements Strategy. In adaptive mode the answer
// may carry the delay the rate limiter imposes.
func (s *StandardStrategy) ShouldAttemptInitial(ctx context.Context, st *State) (ShouldAttempt, error) {
	if err := ctx.Err(); err != nil {
		return No, err
	}
	return YesAfterDelay(s.paceDelay()), nil
}

// ShouldAttemptRetry implements Strategy.
func (s *StandardStrategy) ShouldAttemptRetry(ctx context.Context, st *State, reason *Reason) (ShouldAttempt, error) {
	if err := ctx.Err(); err != nil {
		return No, err
	}
	st.LastReason = reason
	st.quotaCost = 0

	if s.limiter != nil {
		s.limiter.Update(s.clock.Now(), reason != nil && !reason.IsExplicit() && reason.Kind() == Throttling)
	}

	if !retryable(reason) {
		s.logger.Debug("not retrying unretryable failure",
			observability.String("operation", st.Operation),
			observability.Int("attempt", st.Attempt),
			observability.String("reason", reason.String()),
		)
		return No, nil
	}

	maxAttempts := st.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxAttempts
	}
	if st.Attempt >= maxAttempts {
		s.logger.Debug("not retrying, out of attempts",
			observability.String("operation", st.Operation),
			observability.Int("attempt", st.Attempt),
			observability.Int("max_attempts", maxAttempts),
		)
		return No, nil
	}

	cost := Cost(reason)
	if !s.bucket.TryAcquire(cost) {
		st.Declined = ErrQuotaExceeded
		s.metrics.RecordQuotaDeclined(st.Operation)
		s.logger.Warn("not retrying, retry quota exhausted",
			observability.String("operation", st.Operation),
			observability.Int("attempt", st.Attempt),
			observability.Int("cost", cost),
		)
		return No, nil
	}
	st.quotaCost = cost

	backoff := reason.Delay()
	if !reason.IsExplicit() {
		backoff = CalculateBackoff(s.jitter(), st.Attempt, s.cfg.InitialBackoff, s.cfg.MaxBackoff)
	}
	if pace := s.paceDelay(); pace > backoff {
		backoff = pace
	}

	s.metrics.RecordRetry(st.Operation, reason.Label(), backoff)
	s.logger.Debug("retrying",
		observability.String("operation", st.Operation),
		observability.Int("attempt", st.Attempt),
		observability.String("reason", reason.String()),
		observability.Duration("backoff", backoff),
	)
	return YesAfterDelay(backoff), nil
}

// OnSuccess implements Strategy. A successful retry returns its quota,
// and every success adds DefaultSuccessReward.
func (s *StandardStrategy) OnSuccess(st *State) {
	s.bucket.Release(st.quotaCost + DefaultSuccessReward)
	st.quotaCost = 0
	if s.limiter != nil {
		s.limiter.Update(s.clock.Now(), false)
	}
}

// Refund implements Refunder. It returns the quota taken by the last
// approved retry.
func (s *StandardStrategy) Refund(st *State) {
	if st.quotaCost == 0 {
		return
	}
	s.bucket.Release(st.quotaCost)
	st.quotaCost = 0
}

func (s *StandardStrategy) paceDelay() time.Duration {
	if s.limiter == nil {
		return 0
	}
	return s.limiter.Acquire(s.clock.Now(), 1)
}

package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"code.cloudfoundry.org/clock"
)

// DefaultFixedDelayAttempts is the attempt limit of a FixedDelayStrategy
// built without one.
const DefaultFixedDelayAttempts = 4

// Reasons a strategy declines an attempt, recorded in State.Declined.
var (
	// ErrAttemptNotAllowed is reported when a strategy declines an attempt
	// without a more specific cause.
	ErrAttemptNotAllowed = errors.New("attempt not allowed by retry strategy")

	// ErrQuotaExceeded means the retry token bucket could not pay for a retry.
	ErrQuotaExceeded = errors.New("retry quota exceeded")

	// ErrCircuitOpen means the circuit breaker is rejecting attempts.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State is the retry bookkeeping for one operation call.
type State struct {
	// Operation names the call in logs and metrics.
	Operation string

	// Attempt is the number of attempts made so far. It is 1 while the
	// first attempt is in flight.
	Attempt int

	// MaxAttempts is the attempt ceiling, including the first attempt.
	MaxAttempts int

	// LastReason is the classification of the most recent failure.
	LastReason *Reason

	// Declined is set when a strategy answers No for a reason other than
	// running out of attempts.
	Declined error

	quotaCost   int
	breakerDone func(success bool)
}

// NewState creates the state for one operation call.
func NewState(operation string, maxAttempts int) *State {
	return &State{Operation: operation, MaxAttempts: maxAttempts}
}

// NextAttempt advances the attempt counter and returns it.
func (s *State) NextAttempt() int {
	s.Attempt++
	return s.Attempt
}

// Exhausted reports whether no attempts are left.
func (s *State) Exhausted() bool {
	return s.MaxAttempts > 0 && s.Attempt >= s.MaxAttempts
}

// Strategy decides whether attempts are made and how long to wait first.
type Strategy interface {
	// ShouldAttemptInitial is asked once before the first attempt.
	ShouldAttemptInitial(ctx context.Context, st *State) (ShouldAttempt, error)

	// ShouldAttemptRetry is asked after every failed attempt. A nil
	// reason means the failure is not retryable.
	ShouldAttemptRetry(ctx context.Context, st *State, reason *Reason) (ShouldAttempt, error)

	// OnSuccess is called once when an attempt succeeds.
	OnSuccess(st *State)
}

// Refunder is implemented by strategies that hold resources for an
// approved retry. Refund returns them when a wrapping strategy vetoes
// the retry after all.
type Refunder interface {
	Refund(st *State)
}

// MaxAttempts returns the attempt ceiling for s. Strategies that carry
// their own limit override configured.
func MaxAttempts(s Strategy, configured int) int {
	if l, ok := s.(interface{ MaxAttempts() int }); ok {
		if n := l.MaxAttempts(); n > 0 {
			return n
		}
	}
	return configured
}

// FixedDelayStrategy retries every retryable failure after a constant
// delay, up to a fixed number of attempts. Explicit delays win over the
// constant one.
type FixedDelayStrategy struct {
	maxAttempts int
	delay       time.Duration
}

// NewFixedDelayStrategy creates a FixedDelayStrategy. A non-positive
// maxAttempts selects DefaultFixedDelayAttempts.
func NewFixedDelayStrategy(maxAttempts int, delay time.Duration) *FixedDelayStrategy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultFixedDelayAttempts
	}
	return &FixedDelayStrategy{maxAttempts: maxAttempts, delay: delay}
}

// MaxAttempts returns the attempt ceiling.
func (s *FixedDelayStrategy) MaxAttempts() int {
	return s.maxAttempts
}

// ShouldAttemptInitial implements Strategy.
func (s *FixedDelayStrategy) ShouldAttemptInitial(ctx context.Context, _ *State) (ShouldAttempt, error) {
	if err := ctx.Err(); err != nil {
		return No, err
	}
	return Yes, nil
}

// ShouldAttemptRetry implements Strategy.
func (s *FixedDelayStrategy) ShouldAttemptRetry(ctx context.Context, st *State, reason *Reason) (ShouldAttempt, error) {
	if err := ctx.Err(); err != nil {
		return No, err
	}
	st.LastReason = reason
	if !retryable(reason) || st.Attempt >= s.maxAttempts {
		return No, nil
	}
	if reason.IsExplicit() {
		return YesAfterDelay(reason.Delay()), nil
	}
	return YesAfterDelay(s.delay), nil
}

// OnSuccess implements Strategy.
func (s *FixedDelayStrategy) OnSuccess(*State) {}

func retryable(r *Reason) bool {
	return r != nil && (r.IsExplicit() || r.Kind() != Client)
}

// CalculateBackoff returns base * initial * 2^(attempt-1), capped at max.
// base is a jitter factor in [0, 1] and attempt counts from 1.
func CalculateBackoff(base float64, attempt int, initial, maxBackoff time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := base * float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(maxBackoff) || math.IsInf(backoff, 0) || math.IsNaN(backoff) {
		return maxBackoff
	}
	if backoff < 0 {
		return 0
	}
	return time.Duration(backoff)
}

// Sleep waits for d on clk or until ctx is done.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

package retry

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avasdk/internal/config"
	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// CircuitBreakerStrategy wraps a Strategy with a circuit breaker. Every
// attempt passes through the breaker, and retryable failures count
// against it. While the breaker is open attempts are declined.
type CircuitBreakerStrategy struct {
	inner   Strategy
	cb      *gobreaker.TwoStepCircuitBreaker
	name    string
	logger  observability.Logger
	metrics *observability.Metrics
}

// BreakerOption configures a CircuitBreakerStrategy.
type BreakerOption func(*CircuitBreakerStrategy)

// WithBreakerLogger sets the logger.
func WithBreakerLogger(l observability.Logger) BreakerOption {
	return func(s *CircuitBreakerStrategy) {
		s.logger = l
	}
}

// WithBreakerMetrics sets the metrics sink.
func WithBreakerMetrics(m *observability.Metrics) BreakerOption {
	return func(s *CircuitBreakerStrategy) {
		s.metrics = m
	}
}

// NewCircuitBreakerStrategy wraps inner. The breaker opens after
// cfg.MaxFailures consecutive retryable failures and lets a single probe
// through once cfg.Timeout has passed.
func NewCircuitBreakerStrategy(
	name string,
	inner Strategy,
	cfg config.CircuitBreaker,
	opts ...BreakerOption,
) *CircuitBreakerStrategy {
	s := &CircuitBreakerStrategy{
		inner:  inner,
		name:   name,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	threshold := cfg.MaxFailures
	if threshold == 0 {
		threshold = config.DefaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultBreakerTimeout
	}

	s.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			s.metrics.SetCircuitBreakerState(name, int(to))
		},
	})
	s.metrics.SetCircuitBreakerState(name, int(gobreaker.StateClosed))
	return s
}

// State returns the breaker state.
func (s *CircuitBreakerStrategy) State() gobreaker.State {
	return s.cb.State()
}

// MaxAttempts forwards the wrapped strategy's own limit, if any.
func (s *CircuitBreakerStrategy) MaxAttempts() int {
	return MaxAttempts(s.inner, 0)
}

// ShouldAttemptInitial implements Strategy.
func (s *CircuitBreakerStrategy) ShouldAttemptInitial(ctx context.Context, st *State) (ShouldAttempt, error) {
	if !s.admit(st) {
		return No, nil
	}
	decision, err := s.inner.ShouldAttemptInitial(ctx, st)
	if err != nil || !decision.Allowed() {
		s.settle(st, true)
	}
	return decision, err
}

// ShouldAttemptRetry implements Strategy.
func (s *CircuitBreakerStrategy) ShouldAttemptRetry(ctx context.Context, st *State, reason *Reason) (ShouldAttempt, error) {
	// Unretryable failures such as validation errors say nothing about
	// the health of the service.
	s.settle(st, !retryable(reason))

	decision, err := s.inner.ShouldAttemptRetry(ctx, st, reason)
	if err != nil || !decision.Allowed() {
		return decision, err
	}
	if !s.admit(st) {
		s.Refund(st)
		return No, nil
	}
	return decision, nil
}

// Refund implements Refunder by forwarding to the wrapped strategy.
func (s *CircuitBreakerStrategy) Refund(st *State) {
	if r, ok := s.inner.(Refunder); ok {
		r.Refund(st)
	}
}

// OnSuccess implements Strategy.
func (s *CircuitBreakerStrategy) OnSuccess(st *State) {
	s.settle(st, true)
	s.inner.OnSuccess(st)
}

var _ Refunder = (*CircuitBreakerStrategy)(nil)

func (s *CircuitBreakerStrategy) admit(st *State) bool {
	done, err := s.cb.Allow()
	if err != nil {
		st.Declined = ErrCircuitOpen
		if !errors.Is(err, gobreaker.ErrOpenState) {
			st.Declined = errors.Join(ErrCircuitOpen, err)
		}
		s.logger.Warn("circuit breaker rejected attempt",
			observability.String("name", s.name),
			observability.String("operation", st.Operation),
			observability.String("state", s.cb.State().String()),
		)
		return false
	}
	st.breakerDone = done
	return true
}

func (s *CircuitBreakerStrategy) settle(st *State, success bool) {
	if st.breakerDone == nil {
		return
	}
	st.breakerDone(success)
	st.breakerDone = nil
}

// Package retry decides whether and when a failed attempt is sent again.
//
// An attempt's Outcome is run through a ClassifierChain, which yields a
// *Reason, or nil when the failure is not retryable. A Strategy turns
// that reason into a ShouldAttempt: Yes, No, or YesAfterDelay.
//
// # Strategies
//
//   - FixedDelayStrategy retries up to a fixed attempt count with a
//     constant delay.
//   - StandardStrategy uses jittered exponential backoff and a retry
//     quota token bucket. In adaptive mode a ClientRateLimiter also gates
//     every attempt and backs off when the service throttles.
//   - CircuitBreakerStrategy wraps another strategy and vetoes attempts
//     while its breaker is open.
//
// # Usage
//
//	chain := retry.DefaultClassifiers()
//	strategy := retry.NewStandardStrategy(cfg.Retry)
//	st := retry.NewState("GetObject", cfg.Retry.MaxAttempts)
//	decision, err := strategy.ShouldAttemptRetry(ctx, st, chain.Classify(outcome))
package retry

package retry

import (
	"sync"

	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// Token bucket defaults.
const (
	DefaultQuotaCapacity    = 500
	DefaultRetryCost        = 5
	DefaultTimeoutRetryCost = DefaultRetryCost * 2
	DefaultSuccessReward    = 1
)

// TokenBucket is the retry quota shared by every call of a client.
// Retries draw from it and successes refill it, so a client facing a
// sustained outage stops retrying.
type TokenBucket struct {
	mu        sync.Mutex
	capacity  int
	available int
	metrics   *observability.Metrics
}

// NewTokenBucket creates a full bucket. A non-positive capacity selects
// DefaultQuotaCapacity.
func NewTokenBucket(capacity int, metrics *observability.Metrics) *TokenBucket {
	if capacity <= 0 {
		capacity = DefaultQuotaCapacity
	}
	metrics.SetQuotaAvailable(capacity)
	return &TokenBucket{capacity: capacity, available: capacity, metrics: metrics}
}

// Cost returns the quota a retry for reason costs.
func Cost(reason *Reason) int {
	if !reason.IsExplicit() && reason.Kind() == Transient {
		return DefaultTimeoutRetryCost
	}
	return DefaultRetryCost
}

// TryAcquire takes n tokens if available.
func (b *TokenBucket) TryAcquire(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.available < n {
		return false
	}
	b.available -= n
	b.metrics.SetQuotaAvailable(b.available)
	return true
}

// Release returns n tokens, up to capacity.
func (b *TokenBucket) Release(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.available += n
	if b.available > b.capacity {
		b.available = b.capacity
	}
	b.metrics.SetQuotaAvailable(b.available)
}

// Available returns the tokens left.
func (b *TokenBucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

package retry

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CUBIC tuning constants.
const (
	minFillRate   = 0.5
	minCapacity   = 1.0
	smooth        = 0.8
	beta          = 0.7
	scaleConstant = 0.4
)

// ClientRateLimiter paces attempts in adaptive retry mode. It stays
// inactive until the first throttling response, then adjusts its send
// rate with CUBIC: a multiplicative cut on every throttle and a cubic
// climb back towards the rate at which throttling began.
type ClientRateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter

	enabled        bool
	fillRate       float64
	maxCapacity    float64
	measuredRate   float64
	prevTimeBucket float64
	requestCount   int
	lastMaxRate    float64
	lastThrottle   float64
	timeWindow     float64
	calculatedRate float64
}

// NewClientRateLimiter creates an inactive limiter.
func NewClientRateLimiter(now time.Time) *ClientRateLimiter {
	t := seconds(now)
	return &ClientRateLimiter{
		limiter:        rate.NewLimiter(rate.Inf, 1),
		maxCapacity:    math.MaxFloat64,
		prevTimeBucket: math.Floor(t),
		lastThrottle:   t,
	}
}

// Acquire reserves amount send tokens and returns how long the caller
// must wait before sending. It is zero while the limiter is inactive.
func (l *ClientRateLimiter) Acquire(now time.Time, amount int) time.Duration {
	l.mu.Lock()
	enabled := l.enabled
	l.mu.Unlock()

	if !enabled {
		return 0
	}
	r := l.limiter.ReserveN(now, amount)
	if !r.OK() {
		// amount exceeds the burst. Wait for a full bucket instead.
		return time.Duration(float64(amount) / float64(l.limiter.Limit()) * float64(time.Second))
	}
	return r.DelayFrom(now)
}

// Update feeds the outcome of a response into the send rate.
func (l *ClientRateLimiter) Update(now time.Time, throttled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := seconds(now)
	l.updateMeasuredRate(t)

	if throttled {
		rateToUse := l.measuredRate
		if l.enabled {
			rateToUse = math.Min(l.measuredRate, l.fillRate)
		}
		l.lastMaxRate = rateToUse
		l.calculateTimeWindow()
		l.lastThrottle = t
		l.calculatedRate = cubicThrottle(rateToUse)
		l.enabled = true
	} else {
		l.calculateTimeWindow()
		l.calculatedRate = l.cubicSuccess(t)
	}

	newRate := math.Min(l.calculatedRate, 2*l.measuredRate)
	l.fillRate = math.Max(newRate, minFillRate)
	l.maxCapacity = math.Max(newRate, minCapacity)

	l.limiter.SetLimitAt(now, rate.Limit(l.fillRate))
	l.limiter.SetBurstAt(now, int(math.Ceil(l.maxCapacity)))
}

// Enabled reports whether throttling has been seen.
func (l *ClientRateLimiter) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// FillRate returns the current send rate in requests per second.
func (l *ClientRateLimiter) FillRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fillRate
}

// updateMeasuredRate keeps a smoothed request rate over half-second
// buckets.
func (l *ClientRateLimiter) updateMeasuredRate(t float64) {
	next := math.Floor(t*2) / 2
	l.requestCount++

	if next > l.prevTimeBucket {
		current := float64(l.requestCount) / (next - l.prevTimeBucket)
		l.measuredRate = current*smooth + l.measuredRate*(1-smooth)
		l.requestCount = 0
		l.prevTimeBucket = next
	}
}

func (l *ClientRateLimiter) calculateTimeWindow() {
	l.timeWindow = math.Cbrt(l.lastMaxRate * (1 - beta) / scaleConstant)
}

func (l *ClientRateLimiter) cubicSuccess(t float64) float64 {
	dt := t - l.lastThrottle - l.timeWindow
	return scaleConstant*dt*dt*dt + l.lastMaxRate
}

func cubicThrottle(rateToUse float64) float64 {
	return rateToUse * beta
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

package streamguard

import (
	"io"
	"net/http"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/vyrodovalexey/avasdk/internal/config"
	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// DefaultCheckInterval is how often a waiting minimum-throughput body
// records an empty sample and re-checks the rate.
const DefaultCheckInterval = time.Second

type minimumThroughputBody struct {
	body    io.ReadCloser
	pump    *pump
	clock   clock.Clock
	minimum Throughput
	grace   time.Duration
	opts    *options

	mu         sync.Mutex
	logs       *ThroughputLogs
	belowSince time.Time
	err        error
}

// NewMinimumThroughputBody fails reads with *ThroughputBelowMinimumError
// once the observed rate has stayed below cfg.Bytes per cfg.Per for
// longer than the grace period. No rate is computed until the samples
// span cfg.Window. A disabled config returns body unchanged.
func NewMinimumThroughputBody(
	body io.ReadCloser,
	cfg config.MinimumThroughput,
	clk clock.Clock,
	opts ...Option,
) io.ReadCloser {
	if !cfg.Enabled || body == nil || body == http.NoBody {
		return body
	}
	o := applyOptions(opts)
	if o.checkInterval <= 0 {
		o.checkInterval = DefaultCheckInterval
	}
	return &minimumThroughputBody{
		body:    body,
		pump:    newPump(body),
		clock:   clk,
		minimum: Throughput{Bytes: cfg.Bytes, Per: cfg.Per},
		grace:   cfg.GracePeriod,
		opts:    o,
		logs:    NewThroughputLogs(DefaultLogCapacity, cfg.Window),
	}
}

func (b *minimumThroughputBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return 0, b.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		b.pump.request(len(p))
		timer := b.clock.NewTimer(b.opts.checkInterval)

		select {
		case res := <-b.pump.results:
			timer.Stop()
			b.pump.received()
			n := copy(p, res.data)
			if res.err != nil {
				b.err = res.err
				return n, res.err
			}
			b.logs.Push(b.clock.Now(), int64(n))
			if err := b.check(); err != nil {
				return 0, err
			}
			if n > 0 {
				return n, nil
			}
		case <-timer.C():
			b.logs.Push(b.clock.Now(), 0)
			if err := b.check(); err != nil {
				return 0, err
			}
		case <-b.pump.done:
			timer.Stop()
			return 0, ErrBodyClosed
		}
	}
}

// check evaluates the rate and records a sticky error once the stream
// has been too slow for the whole grace period.
func (b *minimumThroughputBody) check() error {
	now := b.clock.Now()
	actual, ok := b.logs.Calculate(now)
	if !ok {
		return nil
	}
	if !actual.Less(b.minimum) {
		b.belowSince = time.Time{}
		return nil
	}
	if b.belowSince.IsZero() {
		b.belowSince = now
	}
	if now.Sub(b.belowSince) < b.grace {
		return nil
	}

	b.err = &ThroughputBelowMinimumError{Expected: b.minimum, Actual: actual}
	b.opts.metrics.RecordStreamGuardError(GuardMinimumThroughput)
	b.opts.logger.Warn("throughput below minimum",
		observability.String("expected", b.minimum.String()),
		observability.String("actual", actual.String()),
	)
	return b.err
}

func (b *minimumThroughputBody) Close() error {
	b.pump.close()
	return b.body.Close()
}

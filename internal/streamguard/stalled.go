package streamguard

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/vyrodovalexey/avasdk/internal/config"
	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// Guard names used in logs and metrics.
const (
	GuardStalledStream     = "stalled_stream"
	GuardMinimumThroughput = "minimum_throughput"
)

// ErrBodyClosed is returned by reads on a closed guarded body.
var ErrBodyClosed = errors.New("streamguard: read on closed body")

// Option configures a guarded body.
type Option func(*options)

type options struct {
	logger        observability.Logger
	metrics       *observability.Metrics
	checkInterval time.Duration
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithCheckInterval sets how often a waiting minimum-throughput body
// samples the stream.
func WithCheckInterval(d time.Duration) Option {
	return func(o *options) {
		o.checkInterval = d
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger:        observability.NopLogger(),
		checkInterval: DefaultCheckInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type stalledBody struct {
	body  io.ReadCloser
	pump  *pump
	clock clock.Clock
	grace time.Duration
	opts  *options

	mu  sync.Mutex
	err error
}

// NewStalledStreamBody fails reads that receive no data for the grace
// period with *StalledStreamError. The error is sticky. A disabled
// config returns body unchanged.
func NewStalledStreamBody(body io.ReadCloser, cfg config.StalledStream, clk clock.Clock, opts ...Option) io.ReadCloser {
	if !cfg.Enabled || body == nil || body == http.NoBody {
		return body
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = config.DefaultStalledStreamGrace
	}
	return &stalledBody{
		body:  body,
		pump:  newPump(body),
		clock: clk,
		grace: grace,
		opts:  applyOptions(opts),
	}
}

func (b *stalledBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return 0, b.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	timer := b.clock.NewTimer(b.grace)
	defer timer.Stop()

	for {
		b.pump.request(len(p))
		select {
		case res := <-b.pump.results:
			b.pump.received()
			n := copy(p, res.data)
			if res.err != nil {
				b.err = res.err
				return n, res.err
			}
			if n > 0 {
				return n, nil
			}
		case <-timer.C():
			b.err = &StalledStreamError{Grace: b.grace}
			b.opts.metrics.RecordStreamGuardError(GuardStalledStream)
			b.opts.logger.Warn("stalled stream detected",
				observability.Duration("grace_period", b.grace),
			)
			return 0, b.err
		case <-b.pump.done:
			return 0, ErrBodyClosed
		}
	}
}

func (b *stalledBody) Close() error {
	b.pump.close()
	return b.body.Close()
}

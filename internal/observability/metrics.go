package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace is the metrics namespace used when none is given.
const DefaultNamespace = "avasdk"

// Metrics holds the Prometheus collectors for the request pipeline.
// All record methods are safe to call on a nil receiver.
type Metrics struct {
	attemptsTotal       *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	retriesTotal        *prometheus.CounterVec
	retryQuotaDeclined  *prometheus.CounterVec
	backoffDuration     *prometheus.HistogramVec
	retryQuotaAvailable prometheus.Gauge
	identityCacheTotal  *prometheus.CounterVec
	identityRefreshTime *prometheus.HistogramVec
	authSchemeSelected  *prometheus.CounterVec
	streamGuardErrors   *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
	registry            *prometheus.Registry
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of request attempts",
		},
		[]string{"operation", "result"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation duration including retries in seconds",
			Buckets: []float64{
				.005, .01, .025, .05, .1,
				.25, .5, 1, 2.5, 5, 10, 30,
			},
		},
		[]string{"operation", "result"},
	)

	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retries by classification kind",
		},
		[]string{"operation", "kind"},
	)

	m.retryQuotaDeclined = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_quota_declined_total",
			Help:      "Retries declined because the retry quota was exhausted",
		},
		[]string{"operation"},
	)

	m.backoffDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_backoff_duration_seconds",
			Help:      "Duration of backoff waits in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"operation"},
	)

	m.retryQuotaAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_quota_available",
			Help:      "Tokens currently available in the retry quota",
		},
	)

	m.identityCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_cache_total",
			Help: "Identity cache lookups by result " +
				"(hit, miss, stale, error)",
		},
		[]string{"provider", "result"},
	)

	m.identityRefreshTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_refresh_duration_seconds",
			Help:      "Identity resolver refresh duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	m.authSchemeSelected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_scheme_selected_total",
			Help:      "Auth schemes selected during negotiation",
		},
		[]string{"scheme"},
	)

	m.streamGuardErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_guard_errors_total",
			Help:      "Transfers aborted by a stream guard",
		},
		[]string{"guard"},
	)

	m.circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help: "Retry circuit breaker state " +
				"(0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	m.registry.MustRegister(
		m.attemptsTotal,
		m.operationDuration,
		m.retriesTotal,
		m.retryQuotaDeclined,
		m.backoffDuration,
		m.retryQuotaAvailable,
		m.identityCacheTotal,
		m.identityRefreshTime,
		m.authSchemeSelected,
		m.streamGuardErrors,
		m.circuitBreakerState,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler exposing the registry. A nil Metrics
// serves 404.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAttempt records a completed attempt.
func (m *Metrics) RecordAttempt(operation, result string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(operation, result).Inc()
}

// RecordOperation records the end of an operation.
func (m *Metrics) RecordOperation(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation, result).Observe(d.Seconds())
}

// RecordRetry records a retry decision and its backoff.
func (m *Metrics) RecordRetry(operation, kind string, backoff time.Duration) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation, kind).Inc()
	m.backoffDuration.WithLabelValues(operation).Observe(backoff.Seconds())
}

// RecordQuotaDeclined records a retry refused by the retry quota.
func (m *Metrics) RecordQuotaDeclined(operation string) {
	if m == nil {
		return
	}
	m.retryQuotaDeclined.WithLabelValues(operation).Inc()
}

// SetQuotaAvailable sets the available retry quota.
func (m *Metrics) SetQuotaAvailable(tokens int) {
	if m == nil {
		return
	}
	m.retryQuotaAvailable.Set(float64(tokens))
}

// RecordIdentityCache records an identity cache lookup result.
func (m *Metrics) RecordIdentityCache(provider, result string) {
	if m == nil {
		return
	}
	m.identityCacheTotal.WithLabelValues(provider, result).Inc()
}

// RecordIdentityRefresh records the duration of a resolver call.
func (m *Metrics) RecordIdentityRefresh(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.identityRefreshTime.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordAuthScheme records the scheme chosen for an attempt.
func (m *Metrics) RecordAuthScheme(scheme string) {
	if m == nil {
		return
	}
	m.authSchemeSelected.WithLabelValues(scheme).Inc()
}

// RecordStreamGuardError records a transfer aborted by a guard.
func (m *Metrics) RecordStreamGuardError(guard string) {
	if m == nil {
		return
	}
	m.streamGuardErrors.WithLabelValues(guard).Inc()
}

// SetCircuitBreakerState sets the breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

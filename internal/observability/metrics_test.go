package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	m := NewMetrics("")
	require.NotNil(t, m)
	assert.NotNil(t, m.Registry())
}

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")

	m.RecordAttempt("GetObject", "success")
	m.RecordAttempt("GetObject", "success")
	m.RecordRetry("GetObject", "throttling", 200*time.Millisecond)
	m.RecordQuotaDeclined("GetObject")
	m.SetQuotaAvailable(495)
	m.RecordIdentityCache("env", "hit")
	m.RecordIdentityRefresh("env", time.Millisecond)
	m.RecordAuthScheme("sigv4")
	m.RecordStreamGuardError("stalled_stream")
	m.SetCircuitBreakerState("retry", 2)
	m.RecordOperation("GetObject", "success", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attemptsTotal.WithLabelValues("GetObject", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retriesTotal.WithLabelValues("GetObject", "throttling")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retryQuotaDeclined.WithLabelValues("GetObject")))
	assert.Equal(t, 495.0, testutil.ToFloat64(m.retryQuotaAvailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.identityCacheTotal.WithLabelValues("env", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authSchemeSelected.WithLabelValues("sigv4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamGuardErrors.WithLabelValues("stalled_stream")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.circuitBreakerState.WithLabelValues("retry")))
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAttempt("op", "error")
		m.RecordRetry("op", "transient", time.Second)
		m.RecordQuotaDeclined("op")
		m.SetQuotaAvailable(1)
		m.RecordIdentityCache("p", "miss")
		m.RecordIdentityRefresh("p", time.Second)
		m.RecordAuthScheme("no_auth")
		m.RecordStreamGuardError("minimum_throughput")
		m.SetCircuitBreakerState("x", 0)
		m.RecordOperation("op", "error", time.Second)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics("handler")
	m.RecordAttempt("ListBuckets", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "handler_attempts_total")
}

func TestMetrics_HandlerNil(t *testing.T) {
	t.Parallel()

	var m *Metrics
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avasdk/internal/streamguard"
)

func response(status int, headers map[string]string) *http.Response {
	h := make(http.Header)
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{StatusCode: status, Header: h}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type modeledError struct {
	kind ErrorKind
}

func (e modeledError) Error() string {
	return "modeled"
}

func (e modeledError) RetryableErrorKind() (ErrorKind, bool) {
	return e.kind, true
}

func TestHTTPStatusClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   int
		expected *Reason
	}{
		{http.StatusInternalServerError, Error(Transient)},
		{http.StatusBadGateway, Error(Transient)},
		{http.StatusServiceUnavailable, Error(Transient)},
		{http.StatusGatewayTimeout, Error(Transient)},
		{http.StatusTooManyRequests, Error(Throttling)},
		{http.StatusNotImplemented, nil},
		{http.StatusBadRequest, nil},
		{http.StatusNotFound, nil},
	}

	c := NewHTTPStatusClassifier()
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, c.Classify(&Outcome{Response: response(tt.status, nil)}))
		})
	}
}

func TestErrorCodeClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected *Reason
	}{
		{"throttling", &smithy.GenericAPIError{Code: "Throttling"}, Error(Throttling)},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, Error(Throttling)},
		{"wrapped throttling", fmt.Errorf("deserialize: %w", &smithy.GenericAPIError{Code: "ThrottlingException"}), Error(Throttling)},
		{"request timeout", &smithy.GenericAPIError{Code: "RequestTimeout"}, Error(Transient)},
		{"unknown code", &smithy.GenericAPIError{Code: "NoSuchKey"}, nil},
		{"modeled server error", modeledError{kind: Server}, Error(Server)},
		{"modeled client error", modeledError{kind: Client}, Error(Client)},
		{"plain error", errors.New("boom"), nil},
		{"no error", nil, nil},
	}

	c := NewErrorCodeClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, c.Classify(&Outcome{Err: tt.err}))
		})
	}
}

func TestErrorCodeClassifier_ExtraThrottlingCodes(t *testing.T) {
	t.Parallel()

	c := NewErrorCodeClassifier("CustomThrottle")
	assert.Equal(t, Error(Throttling), c.Classify(&Outcome{Err: &smithy.GenericAPIError{Code: "CustomThrottle"}}))
}

func TestTransientErrorClassifier(t *testing.T) {
	t.Parallel()

	stalled := &streamguard.StalledStreamError{Grace: time.Second}
	slow := &streamguard.ThroughputBelowMinimumError{}

	tests := []struct {
		name         string
		err          error
		streamGuards bool
		expected     *Reason
	}{
		{"net timeout", timeoutError{}, false, Error(Transient)},
		{"url timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutError{}}, false, Error(Transient)},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("no route")}, false, Error(Transient)},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), false, Error(Transient)},
		{"connection refused", syscall.ECONNREFUSED, false, Error(Transient)},
		{"unexpected eof", io.ErrUnexpectedEOF, false, Error(Transient)},
		{"deadline exceeded", context.DeadlineExceeded, false, Error(Transient)},
		{"canceled", fmt.Errorf("send: %w", context.Canceled), false, nil},
		{"plain error", errors.New("boom"), false, nil},
		{"stalled without opt in", stalled, false, nil},
		{"stalled with opt in", stalled, true, Error(Transient)},
		{"slow with opt in", fmt.Errorf("read body: %w", slow), true, Error(Transient)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var opts []TransientOption
			if tt.streamGuards {
				opts = append(opts, WithStreamGuardErrors())
			}
			c := NewTransientErrorClassifier(opts...)
			assert.Equal(t, tt.expected, c.Classify(&Outcome{Err: tt.err}))
		})
	}
}

func TestRetryAfterClassifier(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clk := fakeclock.NewFakeClock(now)

	tests := []struct {
		name     string
		headers  map[string]string
		expected *Reason
	}{
		{"amz millis", map[string]string{"x-amz-retry-after": "1500"}, Explicit(1500 * time.Millisecond)},
		{"seconds", map[string]string{"Retry-After": "3"}, Explicit(3 * time.Second)},
		{"http date", map[string]string{"Retry-After": now.Add(10 * time.Second).Format(http.TimeFormat)}, Explicit(10 * time.Second)},
		{"date in the past", map[string]string{"Retry-After": now.Add(-time.Minute).Format(http.TimeFormat)}, Explicit(0)},
		{"amz wins", map[string]string{"x-amz-retry-after": "100", "Retry-After": "3"}, Explicit(100 * time.Millisecond)},
		{"garbage", map[string]string{"Retry-After": "soon"}, nil},
		{"none", nil, nil},
	}

	c := NewRetryAfterClassifier(clk)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := &Outcome{Response: response(http.StatusServiceUnavailable, tt.headers)}
			assert.Equal(t, tt.expected, c.Classify(o))
		})
	}
}

func TestClassifierChain_Order(t *testing.T) {
	t.Parallel()

	chain := DefaultClassifiers()
	require.Equal(t, 4, chain.Len())

	tests := []struct {
		name     string
		outcome  *Outcome
		expected *Reason
	}{
		{
			name:     "success",
			outcome:  &Outcome{Response: response(http.StatusOK, nil)},
			expected: nil,
		},
		{
			name: "error code beats status",
			outcome: &Outcome{
				Response: response(http.StatusInternalServerError, nil),
				Err:      &smithy.GenericAPIError{Code: "Throttling"},
			},
			expected: Error(Throttling),
		},
		{
			name: "retry after beats error code",
			outcome: &Outcome{
				Response: response(http.StatusServiceUnavailable, map[string]string{"x-amz-retry-after": "20"}),
				Err:      &smithy.GenericAPIError{Code: "Throttling"},
			},
			expected: Explicit(20 * time.Millisecond),
		},
		{
			name: "status fallback",
			outcome: &Outcome{
				Response: response(http.StatusBadGateway, nil),
				Err:      &smithy.GenericAPIError{Code: "InternalFailure"},
			},
			expected: Error(Transient),
		},
		{
			name:     "transport error",
			outcome:  &Outcome{Err: syscall.ECONNRESET},
			expected: Error(Transient),
		},
		{
			name:     "client error",
			outcome:  &Outcome{Response: response(http.StatusForbidden, nil), Err: errors.New("denied")},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, chain.Classify(tt.outcome))
		})
	}
}

func TestClassifierChain_CustomPriority(t *testing.T) {
	t.Parallel()

	var calls []string
	record := func(name string, r *Reason) func(*Outcome) *Reason {
		return func(*Outcome) *Reason {
			calls = append(calls, name)
			return r
		}
	}

	chain := NewClassifierChain(
		ClassifierFunc{Fn: record("low", Error(Server)), Order: 1},
		ClassifierFunc{Fn: record("high", nil), Order: 10},
		ClassifierFunc{Fn: record("mid", Error(Throttling)), Order: 5},
		nil,
	)

	assert.Equal(t, Error(Throttling), chain.Classify(&Outcome{Err: errors.New("x")}))
	assert.Equal(t, []string{"high", "mid"}, calls)
}

func TestReason_String(t *testing.T) {
	t.Parallel()

	var none *Reason
	assert.Equal(t, "not retryable", none.String())
	assert.Equal(t, "explicit(2s)", Explicit(2*time.Second).String())
	assert.Equal(t, "error(throttling)", Error(Throttling).String())
	assert.Equal(t, "none", none.Label())
	assert.Equal(t, "explicit", Explicit(time.Second).Label())
	assert.Equal(t, "transient", Error(Transient).Label())
}

func TestShouldAttempt(t *testing.T) {
	t.Parallel()

	assert.True(t, Yes.Allowed())
	assert.False(t, No.Allowed())
	assert.Equal(t, Yes, YesAfterDelay(0))

	d := YesAfterDelay(time.Second)
	assert.True(t, d.Allowed())
	assert.Equal(t, time.Second, d.Delay())
	assert.Equal(t, "yes after 1s", d.String())
}

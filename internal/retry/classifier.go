package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/aws/smithy-go"

	"github.com/vyrodovalexey/avasdk/internal/streamguard"
)

// Outcome is the result of one attempt as seen by classifiers. Err is the
// transport or deserialization error, Response the raw response if one
// was received.
type Outcome struct {
	Response *http.Response
	Err      error
}

// StatusCode returns the response status, or zero without a response.
func (o *Outcome) StatusCode() int {
	if o == nil || o.Response == nil {
		return 0
	}
	return o.Response.StatusCode
}

func (o *Outcome) failed() bool {
	return o != nil && (o.Err != nil || o.StatusCode() >= http.StatusBadRequest)
}

// Priority orders classifiers in a chain. Higher runs first.
type Priority int

// Built-in classifier priorities.
const (
	PriorityHTTPStatus Priority = 100
	PriorityTransient  Priority = 200
	PriorityErrorCode  Priority = 300
	PriorityRetryAfter Priority = 400
)

// Classifier inspects an outcome. A nil result means it has no opinion.
type Classifier interface {
	Classify(o *Outcome) *Reason
	Priority() Priority
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc struct {
	Fn    func(o *Outcome) *Reason
	Order Priority
}

// Classify implements Classifier.
func (f ClassifierFunc) Classify(o *Outcome) *Reason {
	return f.Fn(o)
}

// Priority implements Classifier.
func (f ClassifierFunc) Priority() Priority {
	return f.Order
}

// ClassifierChain runs classifiers by descending priority and returns the
// first non-nil reason. Classifiers of equal priority run in the order
// they were added.
type ClassifierChain struct {
	classifiers []Classifier
}

// NewClassifierChain creates a chain.
func NewClassifierChain(classifiers ...Classifier) *ClassifierChain {
	c := &ClassifierChain{}
	for _, cl := range classifiers {
		c.Add(cl)
	}
	return c
}

// DefaultClassifiers returns the chain used by clients: retry-after
// headers, error codes, transient errors, then HTTP status.
func DefaultClassifiers(opts ...TransientOption) *ClassifierChain {
	return NewClassifierChain(
		NewRetryAfterClassifier(clock.NewClock()),
		NewErrorCodeClassifier(),
		NewTransientErrorClassifier(opts...),
		NewHTTPStatusClassifier(),
	)
}

// Add inserts a classifier and returns the chain.
func (c *ClassifierChain) Add(cl Classifier) *ClassifierChain {
	if cl == nil {
		return c
	}
	c.classifiers = append(c.classifiers, cl)
	sort.SliceStable(c.classifiers, func(i, j int) bool {
		return c.classifiers[i].Priority() > c.classifiers[j].Priority()
	})
	return c
}

// Len returns the number of classifiers.
func (c *ClassifierChain) Len() int {
	return len(c.classifiers)
}

// Classify returns the first non-nil reason, or nil for a successful or
// unretryable outcome.
func (c *ClassifierChain) Classify(o *Outcome) *Reason {
	if c == nil || !o.failed() {
		return nil
	}
	for _, cl := range c.classifiers {
		if r := cl.Classify(o); r != nil {
			return r
		}
	}
	return nil
}

// HeaderAmzRetryAfter carries a retry delay in milliseconds.
const HeaderAmzRetryAfter = "x-amz-retry-after"

// RetryAfterClassifier turns x-amz-retry-after (milliseconds) or
// Retry-After (seconds or HTTP date) into an explicit delay.
type RetryAfterClassifier struct {
	clock clock.Clock
}

// NewRetryAfterClassifier creates a RetryAfterClassifier. The clock
// resolves HTTP-date values.
func NewRetryAfterClassifier(clk clock.Clock) *RetryAfterClassifier {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &RetryAfterClassifier{clock: clk}
}

// Priority implements Classifier.
func (c *RetryAfterClassifier) Priority() Priority {
	return PriorityRetryAfter
}

// Classify implements Classifier.
func (c *RetryAfterClassifier) Classify(o *Outcome) *Reason {
	if o.Response == nil {
		return nil
	}
	h := o.Response.Header

	if v := strings.TrimSpace(h.Get(HeaderAmzRetryAfter)); v != "" {
		if ms, err := strconv.ParseUint(v, 10, 63); err == nil {
			return Explicit(time.Duration(ms) * time.Millisecond)
		}
	}

	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseUint(v, 10, 31); err == nil {
		return Explicit(time.Duration(secs) * time.Second)
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(c.clock.Now())
		if d < 0 {
			d = 0
		}
		return Explicit(d)
	}
	return nil
}

// ModeledError is implemented by service errors that declare their own
// retry behavior.
type ModeledError interface {
	error
	RetryableErrorKind() (ErrorKind, bool)
}

var defaultThrottlingCodes = []string{
	"Throttling",
	"ThrottlingException",
	"ThrottledException",
	"RequestThrottledException",
	"TooManyRequestsException",
	"ProvisionedThroughputExceededException",
	"TransactionInProgressException",
	"RequestLimitExceeded",
	"BandwidthLimitExceeded",
	"LimitExceededException",
	"RequestThrottled",
	"SlowDown",
	"PriorRequestNotComplete",
	"EC2ThrottledException",
}

var defaultTransientCodes = []string{
	"RequestTimeout",
	"RequestTimeoutException",
}

// ErrorCodeClassifier classifies service errors by their modeled retry
// kind, then by their smithy error code.
type ErrorCodeClassifier struct {
	throttling map[string]struct{}
	transient  map[string]struct{}
}

// NewErrorCodeClassifier creates a classifier with the known throttling
// and transient codes plus any extra throttling codes given.
func NewErrorCodeClassifier(extraThrottling ...string) *ErrorCodeClassifier {
	c := &ErrorCodeClassifier{
		throttling: make(map[string]struct{}),
		transient:  make(map[string]struct{}),
	}
	for _, code := range append(append([]string(nil), defaultThrottlingCodes...), extraThrottling...) {
		c.throttling[code] = struct{}{}
	}
	for _, code := range defaultTransientCodes {
		c.transient[code] = struct{}{}
	}
	return c
}

// Priority implements Classifier.
func (c *ErrorCodeClassifier) Priority() Priority {
	return PriorityErrorCode
}

// Classify implements Classifier.
func (c *ErrorCodeClassifier) Classify(o *Outcome) *Reason {
	if o.Err == nil {
		return nil
	}

	var modeled ModeledError
	if errors.As(o.Err, &modeled) {
		if kind, ok := modeled.RetryableErrorKind(); ok {
			return Error(kind)
		}
	}

	var apiErr smithy.APIError
	if !errors.As(o.Err, &apiErr) {
		return nil
	}
	code := apiErr.ErrorCode()
	if _, ok := c.throttling[code]; ok {
		return Error(Throttling)
	}
	if _, ok := c.transient[code]; ok {
		return Error(Transient)
	}
	return nil
}

// TransientOption configures a TransientErrorClassifier.
type TransientOption func(*TransientErrorClassifier)

// WithStreamGuardErrors treats stalled-stream and minimum-throughput
// failures as transient.
func WithStreamGuardErrors() TransientOption {
	return func(c *TransientErrorClassifier) {
		c.streamGuards = true
	}
}

// TransientErrorClassifier recognizes connection failures and timeouts.
type TransientErrorClassifier struct {
	streamGuards bool
}

// NewTransientErrorClassifier creates a TransientErrorClassifier.
func NewTransientErrorClassifier(opts ...TransientOption) *TransientErrorClassifier {
	c := &TransientErrorClassifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Priority implements Classifier.
func (c *TransientErrorClassifier) Priority() Priority {
	return PriorityTransient
}

// Classify implements Classifier.
func (c *TransientErrorClassifier) Classify(o *Outcome) *Reason {
	err := o.Err
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	if c.streamGuards && isStreamGuardError(err) {
		return Error(Transient)
	}
	if isNetworkError(err) {
		return Error(Transient)
	}
	return nil
}

func isStreamGuardError(err error) bool {
	var stalled *streamguard.StalledStreamError
	var slow *streamguard.ThroughputBelowMinimumError
	return errors.As(err, &stalled) || errors.As(err, &slow)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// HTTPStatusClassifier classifies by response status alone.
type HTTPStatusClassifier struct {
	transient  map[int]struct{}
	throttling map[int]struct{}
}

// NewHTTPStatusClassifier treats 500, 502, 503 and 504 as transient and
// 429 as throttling.
func NewHTTPStatusClassifier() *HTTPStatusClassifier {
	return &HTTPStatusClassifier{
		transient: map[int]struct{}{
			http.StatusInternalServerError: {},
			http.StatusBadGateway:          {},
			http.StatusServiceUnavailable:  {},
			http.StatusGatewayTimeout:      {},
		},
		throttling: map[int]struct{}{
			http.StatusTooManyRequests: {},
		},
	}
}

// Priority implements Classifier.
func (c *HTTPStatusClassifier) Priority() Priority {
	return PriorityHTTPStatus
}

// Classify implements Classifier.
func (c *HTTPStatusClassifier) Classify(o *Outcome) *Reason {
	status := o.StatusCode()
	if _, ok := c.throttling[status]; ok {
		return Error(Throttling)
	}
	if _, ok := c.transient[status]; ok {
		return Error(Transient)
	}
	return nil
}

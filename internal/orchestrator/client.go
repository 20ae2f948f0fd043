package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avasdk/internal/auth"
	"github.com/vyrodovalexey/avasdk/internal/chunked"
	"github.com/vyrodovalexey/avasdk/internal/config"
	"github.com/vyrodovalexey/avasdk/internal/identity"
	"github.com/vyrodovalexey/avasdk/internal/observability"
	"github.com/vyrodovalexey/avasdk/internal/retry"
	"github.com/vyrodovalexey/avasdk/internal/sigv4"
	"github.com/vyrodovalexey/avasdk/internal/streamguard"
)

// Headers set on every attempt.
const (
	HeaderInvocationID = "amz-sdk-invocation-id"
	HeaderRequest      = "amz-sdk-request"
)

const strategyName = "orchestrator"

// Options configures a Client.
type Options struct {
	// Config is the client configuration. Nil uses config.Defaults.
	Config *config.Client

	// Transport dispatches requests. Nil uses http.DefaultTransport.
	Transport http.RoundTripper

	// Registry holds the auth schemes. Nil registers sigv4, bearer,
	// no-auth and anonymous.
	Registry *auth.Registry

	// Resolvers maps schemes to identity resolvers. Each one that is not
	// already an *identity.Cache is wrapped in a cache owned by the
	// client.
	Resolvers auth.ResolverMap

	// Strategy decides whether to retry. Nil builds one from Config with
	// StrategyOptions applied.
	Strategy        retry.Strategy
	StrategyOptions []retry.StandardOption

	// Classifiers classify failed attempts. Nil uses the default chain.
	Classifiers *retry.ClassifierChain

	// RetryStreamGuardErrors makes stalled and too-slow streams
	// retryable under the default classifiers.
	RetryStreamGuardErrors bool

	ChunkSize      int
	Clock          clock.Clock
	Logger         observability.Logger
	Metrics        *observability.Metrics
	TracerProvider trace.TracerProvider
}

// Client runs operations. It is safe for concurrent use; invocations
// share its identity caches, retry quota and circuit breaker.
type Client struct {
	cfg         atomic.Pointer[config.Client]
	transport   http.RoundTripper
	registry    *auth.Registry
	resolvers   auth.ResolverMap
	strategy    retry.Strategy
	classifiers *retry.ClassifierChain
	chunkSize   int
	clock       clock.Clock
	logger      observability.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	guardOpts   []streamguard.Option
}

// New validates the configuration and builds a client. Configuration
// errors are reported here, never from Invoke.
func New(opts Options) (*Client, error) {
	cfg := config.Defaults()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Stage: StageConfig, Err: err}
	}

	c := &Client{
		transport:   opts.Transport,
		registry:    opts.Registry,
		strategy:    opts.Strategy,
		classifiers: opts.Classifiers,
		chunkSize:   opts.ChunkSize,
		clock:       opts.Clock,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		tracer:      observability.NewTracer(opts.TracerProvider),
	}
	c.cfg.Store(&cfg)
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}
	if c.clock == nil {
		c.clock = clock.NewClock()
	}
	if c.logger == nil {
		c.logger = observability.NopLogger()
	}
	if c.chunkSize <= 0 {
		c.chunkSize = chunked.DefaultChunkSize
	}

	if c.registry == nil {
		signer := sigv4.NewSigner(sigv4.WithClock(c.clock), sigv4.WithLogger(c.logger))
		c.registry = auth.NewRegistry(
			auth.WithLogger(c.logger),
			auth.WithMetrics(c.metrics),
			auth.WithClock(c.clock),
		).Register(
			auth.SigV4Scheme(signer),
			auth.BearerScheme(),
			auth.NoAuthScheme(),
			auth.AnonymousScheme(),
		)
	}

	c.resolvers = make(auth.ResolverMap, len(opts.Resolvers))
	for id, r := range opts.Resolvers {
		if r == nil {
			continue
		}
		if _, cached := r.(*identity.Cache); !cached {
			r = identity.NewCache(r,
				identity.WithCacheName(id.String()),
				identity.WithClock(c.clock),
				identity.WithCacheConfig(cfg.IdentityCache),
				identity.WithCacheLogger(c.logger),
				identity.WithCacheMetrics(c.metrics),
			)
		}
		c.resolvers[id] = r
	}

	if c.strategy == nil {
		sopts := append([]retry.StandardOption{
			retry.WithClock(c.clock),
			retry.WithLogger(c.logger),
			retry.WithMetrics(c.metrics),
		}, opts.StrategyOptions...)
		c.strategy = retry.FromConfig(strategyName, &cfg, sopts...)
	}

	if c.classifiers == nil {
		var topts []retry.TransientOption
		if opts.RetryStreamGuardErrors {
			topts = append(topts, retry.WithStreamGuardErrors())
		}
		c.classifiers = retry.NewClassifierChain(
			retry.NewRetryAfterClassifier(c.clock),
			retry.NewErrorCodeClassifier(),
			retry.NewTransientErrorClassifier(topts...),
			retry.NewHTTPStatusClassifier(),
		)
	}

	c.guardOpts = []streamguard.Option{
		streamguard.WithLogger(c.logger),
		streamguard.WithMetrics(c.metrics),
	}

	c.logger.Debug("orchestrator client created",
		observability.String("retry_mode", string(cfg.Retry.Mode)),
		observability.Int("max_attempts", cfg.Retry.MaxAttempts),
		observability.Bool("circuit_breaker", cfg.CircuitBreaker.Enabled),
		observability.Int("resolvers", len(c.resolvers)),
	)
	return c, nil
}

// Config returns a copy of the client configuration.
func (c *Client) Config() config.Client {
	return *c.cfg.Load()
}

// UpdateConfig replaces the client configuration used by later
// invocations. The retry strategy, its quota and breaker, and the
// identity caches keep the settings they were built with.
func (c *Client) UpdateConfig(cfg *config.Client) error {
	if cfg == nil {
		return &Error{Stage: StageConfig, Err: config.ErrInvalidConfig}
	}
	if err := cfg.Validate(); err != nil {
		return &Error{Stage: StageConfig, Err: err}
	}
	next := *cfg
	c.cfg.Store(&next)

	c.logger.Info("client configuration updated",
		observability.String("region", next.Region),
		observability.Int("max_attempts", next.Retry.MaxAttempts),
	)
	return nil
}

// WatchConfig loads the YAML layer at path on top of the current
// configuration and applies it again whenever the file changes, until ctx
// is done. It blocks, and fails only if the first load fails.
func (c *Client) WatchConfig(ctx context.Context, path string, opts ...config.WatcherOption) error {
	opts = append([]config.WatcherOption{
		config.WithBase(c.Config()),
		config.WithLogger(c.logger),
	}, opts...)
	w, err := config.NewWatcher(path, c.UpdateConfig, opts...)
	if err != nil {
		return &Error{Stage: StageConfig, Err: err}
	}
	if err := w.Run(ctx); err != nil {
		return &Error{Stage: StageConfig, Err: err}
	}
	return nil
}

// Strategy returns the retry strategy.
func (c *Client) Strategy() retry.Strategy {
	return c.strategy
}

// Invoke runs op with in until it succeeds or the retry strategy gives
// up. On failure it returns an *Error wrapping the last concrete error.
func (c *Client) Invoke(ctx context.Context, op *Operation, in *Input) (*Output, error) {
	if op == nil {
		return nil, &Error{Stage: StageRequest, Err: errors.New("nil operation")}
	}
	if in == nil {
		in = &Input{}
	}

	start := c.clock.Now()
	invocationID := uuid.NewString()
	ctx = observability.ContextWithInvocationID(ctx, invocationID)
	ctx = observability.ContextWithOperation(ctx, op.Name)

	ctx, span := c.tracer.StartSpan(ctx, op.Name,
		attribute.String("rpc.system", "aws-api"),
		attribute.String("rpc.service", op.Service),
		attribute.String("rpc.method", op.Name),
		attribute.String("aws.invocation_id", invocationID),
	)

	out, err := c.invoke(ctx, op, in, invocationID)

	if out != nil {
		span.SetAttributes(attribute.Int("aws.attempts", out.Attempts))
	}
	observability.EndSpan(span, err)

	result := "success"
	if err != nil {
		result = "error"
	}
	c.metrics.RecordOperation(op.Name, result, c.clock.Since(start))
	return out, err
}

func (c *Client) invoke(ctx context.Context, op *Operation, in *Input, invocationID string) (*Output, error) {
	logger := c.logger.WithContext(ctx)

	cfg, err := c.cfg.Load().With(op.Config, in.Overrides)
	if err != nil {
		return nil, &Error{Operation: op.Name, Stage: StageConfig, Err: err}
	}

	st := retry.NewState(op.Name, retry.MaxAttempts(c.strategy, cfg.Retry.MaxAttempts))
	decision, err := c.strategy.ShouldAttemptInitial(ctx, st)
	if err != nil {
		return nil, &Error{Operation: op.Name, Stage: StageRetry, Err: err}
	}
	if !decision.Allowed() {
		declined := st.Declined
		if declined == nil {
			declined = retry.ErrAttemptNotAllowed
		}
		return nil, &Error{Operation: op.Name, Stage: StageRetry, Err: declined}
	}
	if err := retry.Sleep(ctx, c.clock, decision.Delay()); err != nil {
		return nil, &Error{Operation: op.Name, Stage: StageRetry, Err: err}
	}

	for {
		attempt := st.NextAttempt()
		res := c.attempt(ctx, op, in, cfg, st, invocationID)

		if res.err == nil {
			c.strategy.OnSuccess(st)
			c.metrics.RecordAttempt(op.Name, "success")
			logger.Debug("operation succeeded",
				observability.Int("attempt", attempt),
				observability.String("scheme", res.scheme.String()),
				observability.Int("status", res.resp.StatusCode),
			)
			return &Output{
				Result:       res.result,
				Response:     res.resp,
				Attempts:     attempt,
				InvocationID: invocationID,
				Scheme:       res.scheme,
			}, nil
		}

		var reason *retry.Reason
		if res.dispatched {
			reason = c.classifiers.Classify(&retry.Outcome{Response: res.resp, Err: res.err})
		}
		c.metrics.RecordAttempt(op.Name, reason.Label())

		failure := &Error{
			Operation: op.Name,
			Stage:     res.stage,
			Scheme:    res.scheme,
			Attempt:   attempt,
			Err:       res.err,
		}

		decision, err := c.strategy.ShouldAttemptRetry(ctx, st, reason)
		if err != nil {
			failure.Err = errors.Join(res.err, err)
			return nil, failure
		}
		if !decision.Allowed() {
			fields := []observability.Field{
				observability.Int("attempt", attempt),
				observability.String("stage", string(res.stage)),
				observability.String("reason", reason.String()),
				observability.Error(res.err),
			}
			if st.Declined != nil {
				fields = append(fields, observability.String("declined", st.Declined.Error()))
			}
			logger.Debug("operation failed", fields...)
			return nil, failure
		}

		logger.Debug("retrying operation",
			observability.Int("attempt", attempt),
			observability.String("reason", reason.String()),
			observability.Duration("delay", decision.Delay()),
			observability.Error(res.err),
		)
		if err := retry.Sleep(ctx, c.clock, decision.Delay()); err != nil {
			failure.Err = errors.Join(res.err, err)
			return nil, failure
		}
	}
}

type attemptResult struct {
	resp       *http.Response
	result     interface{}
	scheme     auth.SchemeID
	stage      Stage
	dispatched bool
	err        error
}

func (r *attemptResult) fail(stage Stage, err error) attemptResult {
	r.stage = stage
	r.err = err
	return *r
}

func (c *Client) attempt(
	ctx context.Context,
	op *Operation,
	in *Input,
	cfg *config.Client,
	st *retry.State,
	invocationID string,
) (res attemptResult) {
	ctx, span := c.tracer.StartSpan(ctx, "attempt", attribute.Int("aws.attempt", st.Attempt))
	defer func() {
		span.SetAttributes(attribute.String("auth.scheme", res.scheme.String()))
		if res.resp != nil {
			span.SetAttributes(attribute.Int("http.response.status_code", res.resp.StatusCode))
		}
		observability.EndSpan(span, res.err)
	}()

	method := in.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, in.URL, http.NoBody)
	if err != nil {
		return res.fail(StageRequest, err)
	}
	if in.Header != nil {
		req.Header = in.Header.Clone()
	}
	req.Header.Set(HeaderInvocationID, invocationID)
	req.Header.Set(HeaderRequest, fmt.Sprintf("attempt=%d; max=%d", st.Attempt, st.MaxAttempts))

	sel, err := c.registry.Negotiate(ctx, op.AuthOptions, c.resolvers)
	if err != nil {
		res.scheme = auth.SchemeOf(err)
		return res.fail(StageAuth, err)
	}
	res.scheme = sel.SchemeID()

	props := signingProperties(op, cfg)
	if err := c.attachBody(ctx, req, in, res.scheme, props); err != nil {
		return res.fail(StageRequest, err)
	}

	if err := sel.Scheme.Signer().SignRequest(ctx, req, sel.Identity, props); err != nil {
		_ = req.Body.Close()
		return res.fail(StageSign, err)
	}

	req.Body = c.guard(req.Body, cfg)

	resp, err := c.transport.RoundTrip(req)
	res.dispatched = true
	if err != nil {
		return res.fail(StageTransmit, err)
	}
	resp.Body = c.guard(resp.Body, cfg)
	res.resp = resp

	deserializer := op.Deserializer
	if deserializer == nil {
		deserializer = defaultDeserializer
	}
	result, err := deserializer.Deserialize(ctx, resp)
	if err != nil || !op.StreamingResponse {
		_ = resp.Body.Close()
	}
	if err != nil {
		return res.fail(StageDeserialize, err)
	}
	res.result = result
	return res
}

// attachBody sets the request body and the payload to sign. Streams
// under SigV4 are framed as aws-chunked with a fresh deferred signer, so
// each attempt's chunk signatures chain from its own request signature.
func (c *Client) attachBody(
	ctx context.Context,
	req *http.Request,
	in *Input,
	scheme auth.SchemeID,
	props *auth.SigningProperties,
) error {
	switch {
	case in.Stream != nil:
		if in.ContentLength < 0 {
			return ErrMissingContentLength
		}
		stream, err := in.Stream()
		if err != nil {
			return fmt.Errorf("open stream: %w", err)
		}

		if scheme != auth.SchemeSigV4 || in.Payload == sigv4.UnsignedPayload {
			req.Body = stream
			req.ContentLength = in.ContentLength
			props.Payload = payloadOr(in.Payload, sigv4.UnsignedPayload)
			return nil
		}

		deferred, sender := sigv4.NewDeferredSignerPair()
		props.Deferred = sender
		props.Payload = sigv4.StreamingSignedPayload
		if len(in.Trailers) > 0 {
			props.Payload = sigv4.StreamingSignedPayloadTrailer
		}
		props.Settings.ContentSHA256Header = true

		chunked.SetHeaders(req.Header, in.ContentLength, in.Trailers)
		req.Body = chunked.NewSignedReader(ctx, stream, c.chunkSize, deferred, in.Trailers)
		req.ContentLength = chunked.EncodedLength(in.ContentLength, c.chunkSize, in.Trailers)

	case len(in.Body) > 0:
		body := in.Body
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.ContentLength = int64(len(body))
		props.Payload = payloadOr(in.Payload, sigv4.HashPayload(body))

	default:
		props.Payload = payloadOr(in.Payload, sigv4.EmptyPayload)
	}
	return nil
}

// guard wraps body with the stream guards enabled in cfg.
func (c *Client) guard(body io.ReadCloser, cfg *config.Client) io.ReadCloser {
	body = streamguard.NewStalledStreamBody(body, cfg.StalledStream, c.clock, c.guardOpts...)
	return streamguard.NewMinimumThroughputBody(body, cfg.MinimumThroughput, c.clock, c.guardOpts...)
}

// signingProperties derives the signing parameters of an attempt. A
// configured signing service overrides the operation's.
func signingProperties(op *Operation, cfg *config.Client) *auth.SigningProperties {
	service := cfg.Signing.Service
	if service == "" {
		service = op.Service
	}
	settings := sigv4.Settings{
		Location:            sigv4.LocationHeaders,
		ContentSHA256Header: cfg.Signing.ContentSHA256,
		ExcludedHeaders:     cfg.Signing.ExcludedHeaders,
	}
	if cfg.Signing.DoubleURIEncode {
		settings.PercentEncoding = sigv4.DoubleEncode
	}
	return &auth.SigningProperties{
		Region:   cfg.SigningRegion(),
		Service:  service,
		Settings: settings,
	}
}

func payloadOr(p, fallback sigv4.Payload) sigv4.Payload {
	if p != "" {
		return p
	}
	return fallback
}

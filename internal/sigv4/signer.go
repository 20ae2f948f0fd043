package sigv4

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/vyrodovalexey/avasdk/internal/identity"
	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// Signer signs requests with SigV4. It is safe for concurrent use and
// caches derived signing keys.
type Signer struct {
	keys   *keyCache
	clock  clock.Clock
	logger observability.Logger
}

// Option configures a Signer.
type Option func(*Signer)

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(s *Signer) {
		s.logger = l
	}
}

// WithClock sets the clock used when Params.Time is zero.
func WithClock(clk clock.Clock) Option {
	return func(s *Signer) {
		s.clock = clk
	}
}

// NewSigner creates a Signer.
func NewSigner(opts ...Option) *Signer {
	s := &Signer{
		keys:   newKeyCache(),
		clock:  clock.NewClock(),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SigningContext is the state an initial signature establishes for the
// chunk and trailer signatures that follow it.
type SigningContext struct {
	Time    time.Time
	Region  string
	Service string
	key     []byte
}

// Scope returns the credential scope, date/region/service/aws4_request.
func (c SigningContext) Scope() string {
	return credentialScope(c.Time, c.Region, c.Service)
}

// Output is the result of signing a request.
type Output struct {
	// Signature is the hex signature. For streaming payloads it seeds the
	// first chunk signature.
	Signature string

	SignedHeaders    []string
	CanonicalRequest string
	StringToSign     string
	Context          SigningContext
}

// ChunkSigner returns a chunk signer seeded with this signature.
func (o *Output) ChunkSigner() *ChunkSigner {
	return newChunkSigner(o.Signature, o.Context.key, o.Context.Time, o.Context.Scope())
}

// Sign signs req in place and returns the signature and signing context.
// In header mode it sets X-Amz-Date, Authorization and, when applicable,
// X-Amz-Security-Token and X-Amz-Content-Sha256. In query mode it adds
// the presign parameters to the URL.
func (s *Signer) Sign(req *http.Request, params *Params) (*Output, error) {
	if req == nil || req.URL == nil {
		return nil, canonicalRequestError("request has no URL")
	}
	if params == nil {
		return nil, canonicalRequestError("missing signing params")
	}
	if params.Region == "" || params.Service == "" {
		return nil, canonicalRequestError("region and service are required")
	}

	signingTime := params.Time
	if signingTime.IsZero() {
		signingTime = s.clock.Now()
	}
	signingTime = signingTime.UTC()

	if params.Identity == nil {
		return nil, signingError("", ErrMissingCredentials)
	}
	creds, ok := params.Identity.Credentials()
	if !ok || creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, signingError("", ErrMissingCredentials)
	}
	if params.Identity.Expired(signingTime) {
		return nil, signingError("", identity.ErrExpired)
	}

	settings := &params.Settings
	query := settings.Location == LocationQuery
	if query && (settings.Expires < MinPresignExpires || settings.Expires > MaxPresignExpires) {
		return nil, signingError("", fmt.Errorf("%w: %s not in [%s, %s]",
			ErrInvalidExpires, settings.Expires, MinPresignExpires, MaxPresignExpires))
	}

	dateTime := signingTime.Format(timeFormat)
	scope := credentialScope(signingTime, params.Region, params.Service)
	payloadHash := params.Payload.hash()

	if !query {
		// Values from an earlier signature must not leak into this one.
		for _, h := range []string{HeaderAuthorization, HeaderDate, HeaderSecurityToken, HeaderContentSHA256} {
			req.Header.Del(h)
		}
	}
	headers, err := collectHeaders(req)
	if err != nil {
		return nil, err
	}
	if !query {
		headers[HeaderDate] = []string{dateTime}
		if creds.SessionToken != "" {
			headers[HeaderSecurityToken] = []string{creds.SessionToken}
		}
		if settings.ContentSHA256Header {
			headers[HeaderContentSHA256] = []string{payloadHash}
		}
	}

	signed := signedHeaderNames(headers, settings)
	signedList := strings.Join(signed, ";")

	creq := &canonicalRequest{
		method:        strings.ToUpper(req.Method),
		path:          canonicalPath(req.URL, settings),
		signedHeaders: signedList,
		payloadHash:   payloadHash,
	}
	if creq.method == "" {
		creq.method = http.MethodGet
	}
	for _, name := range signed {
		creq.headers = append(creq.headers, canonicalHeader{
			name:  name,
			value: strings.Join(headers[name], ","),
		})
	}

	qp := parseQuery(req.URL.RawQuery)
	if query {
		qp = append(qp,
			queryParam{ParamAlgorithm, Algorithm},
			queryParam{ParamCredential, creds.AccessKeyID + "/" + scope},
			queryParam{ParamDate, dateTime},
			queryParam{ParamExpires, strconv.FormatInt(int64(settings.Expires/time.Second), 10)},
			queryParam{ParamSignedHeaders, signedList},
		)
		if creds.SessionToken != "" {
			qp = append(qp, queryParam{ParamSecurityToken, creds.SessionToken})
		}
	}
	creq.query = encodeQuery(qp)

	canonical := creq.String()
	stringToSign := buildStringToSign(Algorithm, dateTime, scope, hashHex([]byte(canonical)))
	key := s.keys.signingKey(creds.AccessKeyID, creds.SecretAccessKey,
		signingTime.Format(shortTimeFormat), params.Region, params.Service)
	signature := signHex(key, stringToSign)

	if query {
		req.URL.RawQuery = creq.query + "&" + ParamSignature + "=" + signature
	} else {
		req.Header.Set(HeaderDate, dateTime)
		if creds.SessionToken != "" {
			req.Header.Set(HeaderSecurityToken, creds.SessionToken)
		}
		if settings.ContentSHA256Header {
			req.Header.Set(HeaderContentSHA256, payloadHash)
		}
		req.Header.Set(HeaderAuthorization, fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
			Algorithm, creds.AccessKeyID, scope, signedList, signature))
	}

	s.logger.Debug("request signed",
		observability.String("location", settings.Location.String()),
		observability.String("scope", scope),
		observability.String("signed_headers", signedList),
		observability.String("provider", params.Identity.ProviderName()),
	)

	return &Output{
		Signature:        signature,
		SignedHeaders:    signed,
		CanonicalRequest: canonical,
		StringToSign:     stringToSign,
		Context: SigningContext{
			Time:    signingTime,
			Region:  params.Region,
			Service: params.Service,
			key:     key,
		},
	}, nil
}

// NewChunkSigner builds a chunk signer from a seed signature without an
// Output, for bodies signed elsewhere.
func (s *Signer) NewChunkSigner(seed string, creds identity.Credentials, region, service string, t time.Time) *ChunkSigner {
	t = t.UTC()
	key := s.keys.signingKey(creds.AccessKeyID, creds.SecretAccessKey, t.Format(shortTimeFormat), region, service)
	return newChunkSigner(seed, key, t, credentialScope(t, region, service))
}

func credentialScope(t time.Time, region, service string) string {
	return strings.Join([]string{t.UTC().Format(shortTimeFormat), region, service, scopeTerminator}, "/")
}

func buildStringToSign(algorithm, dateTime, scope, hash string) string {
	return algorithm + "\n" + dateTime + "\n" + scope + "\n" + hash
}

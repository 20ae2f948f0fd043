package sigv4

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsv4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avasdk/internal/identity"
)

const (
	exampleAccessKey = "AKIDEXAMPLE"
	exampleSecretKey = "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY"
)

var vanillaTime = time.Date(2015, 8, 30, 12, 36, 0, 0, time.UTC)

func exampleIdentity(token string) *identity.Identity {
	return identity.NewCredentials(identity.Credentials{
		AccessKeyID:     exampleAccessKey,
		SecretAccessKey: exampleSecretKey,
		SessionToken:    token,
	}, time.Time{}, "Static")
}

func newRequest(t *testing.T, method, rawURL string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, rawURL, nil)
	require.NoError(t, err)
	return req
}

func vanillaParams() *Params {
	return &Params{
		Identity: exampleIdentity(""),
		Region:   "us-east-1",
		Service:  "service",
		Time:     vanillaTime,
	}
}

func TestSigner_GetVanilla(t *testing.T) {
	t.Parallel()

	req := newRequest(t, http.MethodGet, "https://example.amazonaws.com/")
	out, err := NewSigner().Sign(req, vanillaParams())
	require.NoError(t, err)

	assert.Equal(t, "5fa00fa31553b73ebf1942676e86291e8372ff2a2260956d9b8aae1d763fbf31", out.Signature)
	assert.Equal(t, []string{"host", "x-amz-date"}, out.SignedHeaders)
	assert.Equal(t, "20150830T123600Z", req.Header.Get("X-Amz-Date"))
	assert.Equal(t,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20150830/us-east-1/service/aws4_request, "+
			"SignedHeaders=host;x-amz-date, "+
			"Signature=5fa00fa31553b73ebf1942676e86291e8372ff2a2260956d9b8aae1d763fbf31",
		req.Header.Get("Authorization"))
	assert.Equal(t, "20150830/us-east-1/service/aws4_request", out.Context.Scope())
}

func TestDeriveKey_SignatureCalculation(t *testing.T) {
	t.Parallel()

	stringToSign := "AWS4-HMAC-SHA256\n" +
		"20150830T123600Z\n" +
		"20150830/us-east-1/iam/aws4_request\n" +
		"f536975d06c0309214f805bb90ccff089219ecd68b2577efef23edd43b7e1a59"

	key := deriveKey(exampleSecretKey, "20150830", "us-east-1", "iam")
	assert.Equal(t, "5d672d79c15b13162d9279b0855cfba6789a8edb4c82c400e06b5924a6f2b5d7", signHex(key, stringToSign))
}

func TestSigner_Deterministic(t *testing.T) {
	t.Parallel()

	signer := NewSigner()
	req := newRequest(t, http.MethodPut, "https://bucket.s3.amazonaws.com/key?versionId=1&acl")
	req.Header.Set("X-Amz-Meta-Owner", "  alice   and  bob ")

	params := vanillaParams()
	params.Identity = exampleIdentity("session")
	params.Service = "s3"
	params.Payload = HashPayload([]byte("hello"))
	params.Settings.ContentSHA256Header = true

	first, err := signer.Sign(req, params)
	require.NoError(t, err)
	auth := req.Header.Get("Authorization")

	// Re-signing the signed request re-derives the same canonical request.
	second, err := signer.Sign(req.Clone(context.Background()), params)
	require.NoError(t, err)

	assert.Equal(t, first.CanonicalRequest, second.CanonicalRequest)
	assert.Equal(t, first.Signature, second.Signature)
	assert.Contains(t, auth, "Signature="+first.Signature)
	assert.Contains(t, first.CanonicalRequest, "x-amz-meta-owner:alice and bob\n")
	assert.Contains(t, first.CanonicalRequest, "\nacl=&versionId=1\n")
	assert.Equal(t, "session", req.Header.Get("X-Amz-Security-Token"))
	assert.Equal(t, string(HashPayload([]byte("hello"))), req.Header.Get("X-Amz-Content-Sha256"))
	assert.Equal(t,
		[]string{"host", "x-amz-content-sha256", "x-amz-date", "x-amz-meta-owner", "x-amz-security-token"},
		first.SignedHeaders)
}

func TestSigner_MatchesAWSSDK(t *testing.T) {
	t.Parallel()

	const payload = EmptySHA256
	ours := newRequest(t, http.MethodGet, "https://example.amazonaws.com/path/obj?b=2&a=1")
	ours.Header.Set("X-Custom", "value")
	theirs := ours.Clone(context.Background())

	_, err := NewSigner().Sign(ours, vanillaParams())
	require.NoError(t, err)

	err = awsv4.NewSigner().SignHTTP(context.Background(), aws.Credentials{
		AccessKeyID:     exampleAccessKey,
		SecretAccessKey: exampleSecretKey,
	}, theirs, payload, "service", "us-east-1", vanillaTime)
	require.NoError(t, err)

	assert.Equal(t, theirs.Header.Get("Authorization"), ours.Header.Get("Authorization"))
}

func TestSigner_Presign(t *testing.T) {
	t.Parallel()

	req := newRequest(t, http.MethodGet, "https://examplebucket.s3.amazonaws.com/test.txt")
	req.Header.Set("X-Amz-User-Agent", "sdk/1.0")
	params := &Params{
		Identity: exampleIdentity("token"),
		Region:   "us-east-1",
		Service:  "s3",
		Time:     vanillaTime,
		Payload:  UnsignedPayload,
		Settings: Settings{Location: LocationQuery, Expires: 24 * time.Hour},
	}

	out, err := NewSigner().Sign(req, params)
	require.NoError(t, err)

	q := req.URL.Query()
	assert.Equal(t, Algorithm, q.Get(ParamAlgorithm))
	assert.Equal(t, exampleAccessKey+"/20150830/us-east-1/s3/aws4_request", q.Get(ParamCredential))
	assert.Equal(t, "20150830T123600Z", q.Get(ParamDate))
	assert.Equal(t, "86400", q.Get(ParamExpires))
	assert.Equal(t, "host", q.Get(ParamSignedHeaders))
	assert.Equal(t, "token", q.Get(ParamSecurityToken))
	assert.Equal(t, out.Signature, q.Get(ParamSignature))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.True(t, strings.HasSuffix(out.CanonicalRequest, "\nhost\nUNSIGNED-PAYLOAD"))
}

func TestSigner_PresignExpiresBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expires time.Duration
		wantErr bool
	}{
		{name: "zero", expires: 0, wantErr: true},
		{name: "sub-second", expires: 500 * time.Millisecond, wantErr: true},
		{name: "one second", expires: time.Second},
		{name: "seven days", expires: 7 * 24 * time.Hour},
		{name: "over seven days", expires: 7*24*time.Hour + time.Second, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := newRequest(t, http.MethodGet, "https://example.amazonaws.com/")
			params := vanillaParams()
			params.Settings = Settings{Location: LocationQuery, Expires: tt.expires}

			_, err := NewSigner().Sign(req, params)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidExpires)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSigner_Errors(t *testing.T) {
	t.Parallel()

	expired := identity.NewCredentials(identity.Credentials{
		AccessKeyID:     exampleAccessKey,
		SecretAccessKey: exampleSecretKey,
	}, vanillaTime.Add(-time.Minute), "Static")

	tests := []struct {
		name    string
		mutate  func(req *http.Request, p *Params)
		wantErr error
		header  string
	}{
		{
			name:    "invalid header name",
			mutate:  func(req *http.Request, _ *Params) { req.Header["Bad Header"] = []string{"v"} },
			wantErr: ErrInvalidHeaderName,
			header:  "Bad Header",
		},
		{
			name:    "invalid header value",
			mutate:  func(req *http.Request, _ *Params) { req.Header["X-Bad"] = []string{"a\nb"} },
			wantErr: ErrInvalidHeaderValue,
			header:  "X-Bad",
		},
		{
			name:    "invalid utf8",
			mutate:  func(req *http.Request, _ *Params) { req.Header["X-Bad"] = []string{"\xff\xfe"} },
			wantErr: ErrInvalidUTF8InHeaderValue,
			header:  "X-Bad",
		},
		{
			name:    "missing host",
			mutate:  func(req *http.Request, _ *Params) { req.Host = ""; req.URL.Host = "" },
			wantErr: ErrFailedToCreateCanonicalRequest,
		},
		{
			name:    "missing region",
			mutate:  func(_ *http.Request, p *Params) { p.Region = "" },
			wantErr: ErrFailedToCreateCanonicalRequest,
		},
		{
			name:    "token identity",
			mutate:  func(_ *http.Request, p *Params) { p.Identity = identity.NewToken("t", time.Time{}, "Token") },
			wantErr: ErrMissingCredentials,
		},
		{
			name:    "nil identity",
			mutate:  func(_ *http.Request, p *Params) { p.Identity = nil },
			wantErr: ErrMissingCredentials,
		},
		{
			name:    "expired identity",
			mutate:  func(_ *http.Request, p *Params) { p.Identity = expired },
			wantErr: identity.ErrExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := newRequest(t, http.MethodGet, "https://example.amazonaws.com/")
			params := vanillaParams()
			tt.mutate(req, params)

			_, err := NewSigner().Sign(req, params)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var se *SigningError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.header, se.Header)
			assert.Empty(t, req.Header.Get("Authorization"))
		})
	}
}

func TestSigner_ExcludedHeaders(t *testing.T) {
	t.Parallel()

	req := newRequest(t, http.MethodGet, "https://example.amazonaws.com/")
	req.Header.Set("User-Agent", "test")
	req.Header.Set("X-Amzn-Trace-Id", "Root=1")
	req.Header.Set("X-Skip-Me", "1")
	req.Header.Set("X-Keep-Me", "1")
	req.Header.Set("X-Amz-User-Agent", "sdk")

	params := vanillaParams()
	params.Settings.ExcludedHeaders = []string{"X-Skip-Me"}

	out, err := NewSigner().Sign(req, params)
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "x-amz-date", "x-amz-user-agent", "x-keep-me"}, out.SignedHeaders)
}

func TestSigner_ContentLength(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest(http.MethodPut, "https://example.amazonaws.com/obj", strings.NewReader("hello"))
	require.NoError(t, err)

	params := vanillaParams()
	params.Payload = HashPayload([]byte("hello"))
	out, err := NewSigner().Sign(req, params)
	require.NoError(t, err)
	assert.Contains(t, out.SignedHeaders, "content-length")
	assert.Contains(t, out.CanonicalRequest, "content-length:5\n")
}

func TestSigner_UsesClockWhenTimeUnset(t *testing.T) {
	t.Parallel()

	clk := fakeclock.NewFakeClock(vanillaTime)
	req := newRequest(t, http.MethodGet, "https://example.amazonaws.com/")
	params := vanillaParams()
	params.Time = time.Time{}

	out, err := NewSigner(WithClock(clk)).Sign(req, params)
	require.NoError(t, err)
	assert.Equal(t, "5fa00fa31553b73ebf1942676e86291e8372ff2a2260956d9b8aae1d763fbf31", out.Signature)
}

func TestCanonicalPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		settings Settings
		want     string
	}{
		{name: "root", path: "/", want: "/"},
		{name: "dot segments", path: "/a/./b/../c", want: "/a/c"},
		{name: "trailing slash", path: "/a/b/", want: "/a/b/"},
		{name: "double slash kept", path: "/a//b", want: "/a//b"},
		{name: "normalization disabled", path: "/a/./b", settings: Settings{DisablePathNormalization: true}, want: "/a/./b"},
		{name: "single encode", path: "/a%20b", want: "/a%20b"},
		{name: "double encode", path: "/a%20b", settings: Settings{PercentEncoding: DoubleEncode}, want: "/a%2520b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u, err := url.Parse("https://example.amazonaws.com" + tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, canonicalPath(u, &tt.settings))
		})
	}
}

func TestTrimAll(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                        "",
		"value":                   "value",
		"  Some  example   text ": "Some example text",
		"\ttab\t":                 "\ttab\t",
		"     ":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, trimAll(in), "input %q", in)
	}
}

func TestEncodeQuery(t *testing.T) {
	t.Parallel()

	params := parseQuery("b=2&a=x+y&a=1&empty&sp=%2F%20~")
	assert.Equal(t, "a=1&a=x%20y&b=2&empty=&sp=%2F%20~", encodeQuery(params))
}

func TestKeyCache_ReusesKeyForSameDay(t *testing.T) {
	t.Parallel()

	c := newKeyCache()
	k1 := c.signingKey("AKID", "secret", "20150830", "us-east-1", "s3")
	k2 := c.signingKey("AKID", "secret", "20150830", "us-east-1", "s3")
	assert.Same(t, &k1[0], &k2[0])

	k3 := c.signingKey("AKID", "secret", "20150831", "us-east-1", "s3")
	assert.NotEqual(t, k1, k3)

	k4 := c.signingKey("OTHER", "secret2", "20150831", "us-east-1", "s3")
	assert.NotEqual(t, k3, k4)
	assert.Len(t, c.entries, 1)
}

func TestKeyCache_RotatedSecret(t *testing.T) {
	t.Parallel()

	c := newKeyCache()
	old := c.signingKey("AKID", "secret-v1", "20150830", "us-east-1", "s3")
	rotated := c.signingKey("AKID", "secret-v2", "20150830", "us-east-1", "s3")

	assert.NotEqual(t, old, rotated)
	assert.Equal(t, deriveKey("secret-v2", "20150830", "us-east-1", "s3"), rotated)

	again := c.signingKey("AKID", "secret-v2", "20150830", "us-east-1", "s3")
	assert.Same(t, &rotated[0], &again[0])
}

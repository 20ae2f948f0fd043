package sigv4

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/vyrodovalexey/avasdk/internal/identity"
)

// SignatureLocation selects where the signature is attached.
type SignatureLocation int

// Signature locations.
const (
	// LocationHeaders signs with an Authorization header.
	LocationHeaders SignatureLocation = iota
	// LocationQuery presigns with X-Amz-* query parameters.
	LocationQuery
)

// String implements fmt.Stringer.
func (l SignatureLocation) String() string {
	if l == LocationQuery {
		return "query"
	}
	return "headers"
}

// PercentEncodingMode selects how the request path is encoded in the
// canonical request.
type PercentEncodingMode int

// Percent encoding modes.
const (
	// SingleEncode uses the escaped path as sent.
	SingleEncode PercentEncodingMode = iota
	// DoubleEncode escapes the escaped path again, so "%" becomes "%25".
	// Services that decode the path before verifying need this.
	DoubleEncode
)

// Payload is the value placed in the payload hash slot of the canonical
// request: a hex SHA-256 or one of the sentinel values below.
type Payload string

// Payload sentinels.
const (
	EmptyPayload                    Payload = EmptySHA256
	UnsignedPayload                 Payload = "UNSIGNED-PAYLOAD"
	StreamingSignedPayload          Payload = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"
	StreamingSignedPayloadTrailer   Payload = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD-TRAILER"
	StreamingUnsignedPayloadTrailer Payload = "STREAMING-UNSIGNED-PAYLOAD-TRAILER"
)

// HashPayload returns the payload for an in-memory body.
func HashPayload(body []byte) Payload {
	return Payload(hashHex(body))
}

// IsStreamingSigned reports whether the payload uses signed aws-chunked
// framing, which needs a chunk signer after the request is signed.
func (p Payload) IsStreamingSigned() bool {
	return p == StreamingSignedPayload || p == StreamingSignedPayloadTrailer
}

func (p Payload) hash() string {
	if p == "" {
		return EmptySHA256
	}
	return string(p)
}

// Settings alter how a request is signed.
type Settings struct {
	Location        SignatureLocation
	PercentEncoding PercentEncodingMode

	// ContentSHA256Header adds and signs x-amz-content-sha256 in header mode.
	ContentSHA256Header bool

	// DisablePathNormalization keeps "." and ".." path segments.
	DisablePathNormalization bool

	// Expires is the presigned request validity. Query mode only.
	Expires time.Duration

	// ExcludedHeaders are left unsigned in addition to DefaultExcludedHeaders.
	ExcludedHeaders []string
}

// Params are the per-request signing inputs.
type Params struct {
	Identity *identity.Identity
	Region   string
	Service  string

	// Time is the signing time. Zero means the signer's clock.
	Time time.Time

	Payload  Payload
	Settings Settings
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

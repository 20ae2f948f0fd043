package sigv4

import "time"

// Algorithm identifiers.
const (
	Algorithm        = "AWS4-HMAC-SHA256"
	algorithmPayload = "AWS4-HMAC-SHA256-PAYLOAD"
	algorithmTrailer = "AWS4-HMAC-SHA256-TRAILER"
	scopeTerminator  = "aws4_request"
)

// Headers set or read by the signer, in canonical (lowercase) form.
const (
	HeaderAuthorization    = "authorization"
	HeaderContentSHA256    = "x-amz-content-sha256"
	HeaderDate             = "x-amz-date"
	HeaderSecurityToken    = "x-amz-security-token"
	HeaderUserAgent        = "x-amz-user-agent"
	HeaderDecodedLength    = "x-amz-decoded-content-length"
	HeaderTrailer          = "x-amz-trailer"
	HeaderTrailerSignature = "x-amz-trailer-signature"
)

// Presigned query parameters.
const (
	ParamAlgorithm     = "X-Amz-Algorithm"
	ParamCredential    = "X-Amz-Credential"
	ParamDate          = "X-Amz-Date"
	ParamExpires       = "X-Amz-Expires"
	ParamSecurityToken = "X-Amz-Security-Token"
	ParamSignedHeaders = "X-Amz-SignedHeaders"
	ParamSignature     = "X-Amz-Signature"
)

const (
	timeFormat      = "20060102T150405Z"
	shortTimeFormat = "20060102"

	// EmptySHA256 is the hex SHA-256 of an empty payload.
	EmptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// MaxPresignExpires is the longest validity of a presigned request.
	MaxPresignExpires = 7 * 24 * time.Hour
	// MinPresignExpires is the shortest validity of a presigned request.
	MinPresignExpires = time.Second
)

// DefaultExcludedHeaders are never signed. Proxies and transports are
// free to rewrite them.
var DefaultExcludedHeaders = []string{
	"authorization",
	"user-agent",
	"x-amzn-trace-id",
	"expect",
	"transfer-encoding",
}

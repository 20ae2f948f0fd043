package sigv4

import (
	"errors"
	"fmt"
)

// Sentinel errors for signing. None of them is retryable: the request
// or the parameters must change first.
var (
	// ErrInvalidHeaderName indicates a header name that is not an HTTP token.
	ErrInvalidHeaderName = errors.New("invalid header name")

	// ErrInvalidHeaderValue indicates a header value with control characters.
	ErrInvalidHeaderValue = errors.New("invalid header value")

	// ErrInvalidUTF8InHeaderValue indicates a header value that is not valid UTF-8.
	ErrInvalidUTF8InHeaderValue = errors.New("invalid UTF-8 in header value")

	// ErrFailedToCreateCanonicalRequest indicates the request or parameters
	// cannot be put in canonical form.
	ErrFailedToCreateCanonicalRequest = errors.New("failed to create canonical request")

	// ErrMissingCredentials indicates the identity carries no credentials.
	ErrMissingCredentials = errors.New("identity does not carry credentials")

	// ErrInvalidExpires indicates a presign expiry outside the allowed range.
	ErrInvalidExpires = errors.New("invalid presign expiry")

	// ErrStreamFinished indicates a chunk signer was used after its trailer
	// or final chunk was signed.
	ErrStreamFinished = errors.New("chunk signing already finished")

	// ErrAlreadySent indicates a second Send on a deferred signer sender.
	ErrAlreadySent = errors.New("deferred signer already sent")

	// ErrNilSigner indicates a nil chunk signer was sent.
	ErrNilSigner = errors.New("nil chunk signer")
)

// SigningError reports why a request could not be signed.
type SigningError struct {
	// Header is the offending header, when there is one.
	Header string
	Err    error
}

// Error implements the error interface.
func (e *SigningError) Error() string {
	if e.Header != "" {
		return fmt.Sprintf("sigv4: %s: %v", e.Header, e.Err)
	}
	return fmt.Sprintf("sigv4: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SigningError) Unwrap() error {
	return e.Err
}

func signingError(header string, err error) *SigningError {
	return &SigningError{Header: header, Err: err}
}

func canonicalRequestError(format string, args ...interface{}) *SigningError {
	return &SigningError{
		Err: fmt.Errorf("%w: %s", ErrFailedToCreateCanonicalRequest, fmt.Sprintf(format, args...)),
	}
}

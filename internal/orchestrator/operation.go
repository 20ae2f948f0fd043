package orchestrator

import (
	"context"
	"io"
	"net/http"

	"github.com/vyrodovalexey/avasdk/internal/auth"
	"github.com/vyrodovalexey/avasdk/internal/config"
	"github.com/vyrodovalexey/avasdk/internal/sigv4"
)

// Deserializer turns a response into an operation result. It returns an
// error for responses that represent a failure.
type Deserializer interface {
	Deserialize(ctx context.Context, resp *http.Response) (interface{}, error)
}

// DeserializerFunc adapts a function to Deserializer.
type DeserializerFunc func(ctx context.Context, resp *http.Response) (interface{}, error)

// Deserialize implements Deserializer.
func (f DeserializerFunc) Deserialize(ctx context.Context, resp *http.Response) (interface{}, error) {
	return f(ctx, resp)
}

// defaultDeserializer returns a nil result for 2xx responses and a
// *ResponseError otherwise.
var defaultDeserializer = DeserializerFunc(func(_ context.Context, resp *http.Response) (interface{}, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, nil
	}
	return nil, newResponseError(resp)
})

// Operation describes one API operation.
type Operation struct {
	Name    string
	Service string

	// AuthOptions lists the acceptable auth schemes in preference order.
	AuthOptions []auth.SchemeID

	// Deserializer parses responses. Nil accepts any 2xx response with a
	// nil result.
	Deserializer Deserializer

	// Config overrides the client configuration for this operation.
	Config *config.Layer

	// StreamingResponse leaves the body of a successful response open
	// for the caller.
	StreamingResponse bool
}

// Input is a serialized request.
type Input struct {
	Method string
	URL    string
	Header http.Header

	// Body is an in-memory payload. It is replayed on every attempt.
	Body []byte

	// Stream opens a streaming payload of ContentLength bytes. It is
	// called once per attempt and must return the payload from the
	// start each time. Under SigV4 the stream is sent as signed
	// aws-chunked frames.
	Stream        func() (io.ReadCloser, error)
	ContentLength int64

	// Trailers are sent after a chunked payload. Every value must have
	// its final length before Invoke, because it is part of the encoded
	// Content-Length. A stream may overwrite a value with another of the
	// same length, for example a checksum computed at EOF.
	Trailers http.Header

	// Payload overrides the payload hash. UnsignedPayload sends a stream
	// without chunk signatures.
	Payload sigv4.Payload

	// Overrides apply on top of the operation configuration.
	Overrides *config.Layer
}

// Output is the result of a successful invocation.
type Output struct {
	Result interface{}

	// Response is the final response. Its body is closed unless the
	// operation streams its response.
	Response *http.Response

	Attempts     int
	InvocationID string
	Scheme       auth.SchemeID
}

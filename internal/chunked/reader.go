package chunked

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/avasdk/internal/sigv4"
)

const (
	// DefaultChunkSize is the payload size of every frame but the last.
	DefaultChunkSize = 64 * 1024

	// ContentEncoding is the Content-Encoding of a chunked body.
	ContentEncoding = "aws-chunked"

	crlf            = "\r\n"
	signatureLength = 64
	chunkSignature  = ";chunk-signature="
)

// ErrTrailerLengthChanged is returned when a trailer value no longer has
// the length it had when the encoded length was computed.
var ErrTrailerLengthChanged = errors.New("trailer length changed after encoded length was computed")

// SignedReader streams a body as aws-chunked frames, each carrying a
// signature chained from the request signature.
type SignedReader struct {
	ctx      context.Context
	body     io.Reader
	deferred *sigv4.DeferredSigner
	trailers http.Header
	trailerN int64
	signer   sigv4.StreamSigner
	buf      []byte
	pending  bytes.Buffer
	finished bool
	err      error
	chunks   int
}

// NewSignedReader wraps body. The chunk signer is acquired from deferred
// when the first frame is produced. trailers is read once the body is
// exhausted. Its names and the length of every value are fixed when the
// reader is built, since EncodedLength depends on them; a value may be
// overwritten while the body streams only with one of the same length,
// such as a checksum replacing a placeholder of equal size.
func NewSignedReader(
	ctx context.Context,
	body io.Reader,
	chunkSize int,
	deferred *sigv4.DeferredSigner,
	trailers http.Header,
) *SignedReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &SignedReader{
		ctx:      ctx,
		body:     body,
		deferred: deferred,
		trailers: trailers,
		trailerN: trailerLength(trailers),
		buf:      make([]byte, chunkSize),
	}
}

// Read implements io.Reader.
func (r *SignedReader) Read(p []byte) (int, error) {
	for r.pending.Len() == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if r.finished {
			return 0, io.EOF
		}
		if err := r.next(); err != nil {
			r.err = err
		}
	}
	return r.pending.Read(p)
}

// Close closes the wrapped body when it is a Closer.
func (r *SignedReader) Close() error {
	if c, ok := r.body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Chunks returns the number of data frames written so far.
func (r *SignedReader) Chunks() int {
	return r.chunks
}

func (r *SignedReader) next() error {
	if r.signer == nil {
		signer, err := r.deferred.Acquire(r.ctx)
		if err != nil {
			return fmt.Errorf("acquire chunk signer: %w", err)
		}
		r.signer = signer
	}

	n, err := io.ReadFull(r.body, r.buf)
	switch {
	case err == nil || errors.Is(err, io.ErrUnexpectedEOF):
		return r.writeChunk(r.buf[:n])
	case errors.Is(err, io.EOF):
		return r.writeFinal()
	default:
		return fmt.Errorf("read chunk body: %w", err)
	}
}

func (r *SignedReader) writeChunk(data []byte) error {
	sig, err := r.signer.SignChunk(data)
	if err != nil {
		return fmt.Errorf("sign chunk %d: %w", r.chunks+1, err)
	}
	r.chunks++
	r.pending.WriteString(strconv.FormatInt(int64(len(data)), 16))
	r.pending.WriteString(chunkSignature)
	r.pending.WriteString(sig)
	r.pending.WriteString(crlf)
	r.pending.Write(data)
	r.pending.WriteString(crlf)
	return nil
}

func (r *SignedReader) writeFinal() error {
	sig, err := r.signer.SignChunk(nil)
	if err != nil {
		return fmt.Errorf("sign final chunk: %w", err)
	}
	r.pending.WriteString("0")
	r.pending.WriteString(chunkSignature)
	r.pending.WriteString(sig)
	r.pending.WriteString(crlf)

	if len(r.trailers) > 0 {
		if n := trailerLength(r.trailers); n != r.trailerN {
			return fmt.Errorf("%w: %d bytes, expected %d", ErrTrailerLengthChanged, n, r.trailerN)
		}
		trailerSig, err := r.signer.SignTrailer(r.trailers)
		if err != nil {
			return fmt.Errorf("sign trailer: %w", err)
		}
		for _, line := range trailerLines(r.trailers) {
			r.pending.WriteString(line)
			r.pending.WriteString(crlf)
		}
		r.pending.WriteString(sigv4.HeaderTrailerSignature)
		r.pending.WriteByte(':')
		r.pending.WriteString(trailerSig)
		r.pending.WriteString(crlf)
	}
	r.pending.WriteString(crlf)

	r.finished = true
	r.deferred.Release()
	return nil
}

// trailerLines renders trailers as "name:value" in signing order.
func trailerLines(trailers http.Header) []string {
	canonical := strings.TrimSuffix(sigv4.CanonicalTrailers(trailers), "\n")
	if canonical == "" {
		return nil
	}
	return strings.Split(canonical, "\n")
}

// EncodedLength returns the Content-Length of the encoded stream for a
// body of decodedLength bytes. Trailer values count at their current
// length.
func EncodedLength(decodedLength int64, chunkSize int, trailers http.Header) int64 {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	size := int64(chunkSize)

	var total int64
	if full := decodedLength / size; full > 0 {
		total += full * frameLength(size)
	}
	if rem := decodedLength % size; rem > 0 {
		total += frameLength(rem)
	}

	// Final zero-length frame has no data section.
	total += int64(1 + len(chunkSignature) + signatureLength + len(crlf))

	return total + trailerLength(trailers) + int64(len(crlf))
}

// trailerLength is the encoded size of the trailer section, signature
// line included.
func trailerLength(trailers http.Header) int64 {
	if len(trailers) == 0 {
		return 0
	}
	total := int64(len(sigv4.HeaderTrailerSignature) + 1 + signatureLength + len(crlf))
	for _, line := range trailerLines(trailers) {
		total += int64(len(line) + len(crlf))
	}
	return total
}

func frameLength(n int64) int64 {
	return int64(len(strconv.FormatInt(n, 16))+len(chunkSignature)+signatureLength+2*len(crlf)) + n
}

// SetHeaders sets the headers announcing a chunked body of
// decodedLength bytes with the given trailers.
func SetHeaders(h http.Header, decodedLength int64, trailers http.Header) {
	h.Set("Content-Encoding", ContentEncoding)
	h.Set(sigv4.HeaderDecodedLength, strconv.FormatInt(decodedLength, 10))
	if len(trailers) == 0 {
		h.Del(sigv4.HeaderTrailer)
		return
	}
	names := make([]string, 0, len(trailers))
	for name := range trailers {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	h.Set(sigv4.HeaderTrailer, strings.Join(names, ","))
}

var _ io.ReadCloser = (*SignedReader)(nil)

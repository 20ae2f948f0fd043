package sigv4

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// StreamSigner signs the frames of an aws-chunked body. Each signature
// depends on the one before it, starting from the request signature.
type StreamSigner interface {
	SignChunk(chunk []byte) (string, error)
	SignTrailer(trailers http.Header) (string, error)
}

// ChunkSigner is the running signature state of a streaming payload.
type ChunkSigner struct {
	mu       sync.Mutex
	key      []byte
	dateTime string
	scope    string
	prev     string
	done     bool
}

func newChunkSigner(seed string, key []byte, t time.Time, scope string) *ChunkSigner {
	return &ChunkSigner{
		key:      key,
		dateTime: t.UTC().Format(timeFormat),
		scope:    scope,
		prev:     seed,
	}
}

// SignChunk signs the next chunk. An empty chunk is the final frame.
func (s *ChunkSigner) SignChunk(chunk []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return "", ErrStreamFinished
	}
	hash := EmptySHA256 + "\n" + hashHex(chunk)
	s.prev = signHex(s.key, buildStringToSign(algorithmPayload, s.dateTime, s.scope, s.prev+"\n"+hash))
	return s.prev, nil
}

// SignTrailer signs the trailing headers. No further signing is allowed.
func (s *ChunkSigner) SignTrailer(trailers http.Header) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return "", ErrStreamFinished
	}
	s.done = true
	hash := hashHex([]byte(CanonicalTrailers(trailers)))
	s.prev = signHex(s.key, buildStringToSign(algorithmTrailer, s.dateTime, s.scope, s.prev+"\n"+hash))
	return s.prev, nil
}

// Signature returns the most recent signature.
func (s *ChunkSigner) Signature() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prev
}

// CanonicalTrailers renders trailers sorted by lowercase name, one
// "name:value\n" line per value, with values trimmed.
func CanonicalTrailers(trailers http.Header) string {
	names := make([]string, 0, len(trailers))
	for name := range trailers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	var b strings.Builder
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range trailers[name] {
			b.WriteString(lower)
			b.WriteByte(':')
			b.WriteString(strings.TrimSpace(v))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

var _ StreamSigner = (*ChunkSigner)(nil)

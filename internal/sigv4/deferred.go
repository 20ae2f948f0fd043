package sigv4

import (
	"context"
	"sync"
	"sync/atomic"
)

// DeferredSigner is the receiving end of a one-shot handoff of a
// StreamSigner. The body encoder acquires the signer lazily, after the
// request has been signed. A pair serves exactly one attempt.
type DeferredSigner struct {
	ch <-chan StreamSigner

	mu       sync.Mutex
	signer   StreamSigner
	released bool
}

// DeferredSignerSender is the sending end of the handoff.
type DeferredSignerSender struct {
	ch   chan<- StreamSigner
	sent atomic.Bool
}

// NewDeferredSignerPair creates a connected receiver and sender.
func NewDeferredSignerPair() (*DeferredSigner, *DeferredSignerSender) {
	ch := make(chan StreamSigner, 1)
	return &DeferredSigner{ch: ch}, &DeferredSignerSender{ch: ch}
}

// Send hands the signer over. Only the first call succeeds.
func (s *DeferredSignerSender) Send(signer StreamSigner) error {
	if signer == nil {
		return ErrNilSigner
	}
	if !s.sent.CompareAndSwap(false, true) {
		return ErrAlreadySent
	}
	s.ch <- signer
	return nil
}

// Sent reports whether a signer has been sent.
func (s *DeferredSignerSender) Sent() bool {
	return s.sent.Load()
}

// Acquire blocks until the signer has been sent and returns it. Later
// calls return the same signer until Release. Acquiring after Release is
// a programming error and panics: a retried attempt needs a new pair and
// a new seed signature.
func (d *DeferredSigner) Acquire(ctx context.Context) (StreamSigner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		panic("sigv4: deferred signer acquired after release")
	}
	if d.signer != nil {
		return d.signer, nil
	}

	select {
	case signer := <-d.ch:
		d.signer = signer
		return signer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release marks the handoff consumed.
func (d *DeferredSigner) Release() {
	d.mu.Lock()
	d.signer = nil
	d.released = true
	d.mu.Unlock()
}

package streamguard

import (
	"io"
	"sync"
)

type readResult struct {
	data []byte
	err  error
}

// pump performs reads of the wrapped body on its own goroutine, one at a
// time and only on request, so callers can stop waiting on a read.
type pump struct {
	body    io.Reader
	want    chan int
	results chan readResult
	done    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	inflight  bool
}

func newPump(body io.Reader) *pump {
	return &pump{
		body:    body,
		want:    make(chan int),
		results: make(chan readResult),
		done:    make(chan struct{}),
	}
}

// request starts a read of up to n bytes unless one is already in flight.
// The result arrives on p.results.
func (p *pump) request(n int) {
	p.startOnce.Do(func() { go p.run() })
	if p.inflight {
		return
	}
	select {
	case p.want <- n:
		p.inflight = true
	case <-p.done:
	}
}

// received marks the in-flight read as consumed.
func (p *pump) received() {
	p.inflight = false
}

func (p *pump) run() {
	var buf []byte
	for {
		var n int
		select {
		case n = <-p.want:
		case <-p.done:
			return
		}
		if cap(buf) < n {
			buf = make([]byte, n)
		}
		read, err := p.body.Read(buf[:n])

		res := readResult{data: buf[:read], err: err}
		select {
		case p.results <- res:
		case <-p.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (p *pump) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

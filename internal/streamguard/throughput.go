package streamguard

import (
	"fmt"
	"math"
	"time"
)

// DefaultLogCapacity is the number of samples kept by ThroughputLogs.
// At 16 bytes per sample it keeps the log near 10KB.
const DefaultLogCapacity = 640

// Throughput is Bytes transferred per Per.
type Throughput struct {
	Bytes int64
	Per   time.Duration
}

// BytesPerSecond returns the rate. A zero Per yields zero.
func (t Throughput) BytesPerSecond() float64 {
	if t.Per <= 0 {
		return 0
	}
	return float64(t.Bytes) / t.Per.Seconds()
}

// Less reports whether t is strictly slower than o.
func (t Throughput) Less(o Throughput) bool {
	return t.BytesPerSecond() < o.BytesPerSecond()
}

// String implements fmt.Stringer.
func (t Throughput) String() string {
	return fmt.Sprintf("%g B/s", math.Round(t.BytesPerSecond()*1000)/1000)
}

type sample struct {
	at    time.Time
	bytes int64
}

// ThroughputLogs is a bounded ring of read samples. When full, pushing
// evicts the oldest sample. It is not safe for concurrent use.
type ThroughputLogs struct {
	samples []sample
	head    int
	size    int
	window  time.Duration
}

// NewThroughputLogs creates a log holding up to capacity samples. No
// throughput is reported until the samples span at least window.
func NewThroughputLogs(capacity int, window time.Duration) *ThroughputLogs {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &ThroughputLogs{samples: make([]sample, capacity), window: window}
}

// Push records bytes read at t.
func (l *ThroughputLogs) Push(t time.Time, bytes int64) {
	idx := (l.head + l.size) % len(l.samples)
	l.samples[idx] = sample{at: t, bytes: bytes}
	if l.size < len(l.samples) {
		l.size++
		return
	}
	l.head = (l.head + 1) % len(l.samples)
}

// Len returns the number of samples held.
func (l *ThroughputLogs) Len() int {
	return l.size
}

// Calculate returns the throughput from the oldest sample to now. It
// reports false while the log is empty or spans less than the window.
func (l *ThroughputLogs) Calculate(now time.Time) (Throughput, bool) {
	if l.size == 0 {
		return Throughput{}, false
	}
	elapsed := now.Sub(l.samples[l.head].at)
	if elapsed < l.window || elapsed <= 0 {
		return Throughput{}, false
	}

	var total int64
	for i := 0; i < l.size; i++ {
		total += l.samples[(l.head+i)%len(l.samples)].bytes
	}
	return Throughput{Bytes: total, Per: elapsed}, true
}

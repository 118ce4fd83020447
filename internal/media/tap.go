package media

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// DefaultTapSize is the ring buffer length in samples.
const DefaultTapSize = 4096

// Tap is a streamer wrapper that copies a mono mix of the samples flowing
// through it into a ring buffer for analysis. The source can be replaced
// between loads.
type Tap struct {
	mu      sync.Mutex
	src     beep.Streamer
	buf     []float64
	pos     int
	size    int
	written uint64
}

// NewTap creates a tap with a ring buffer of bufSize samples.
func NewTap(bufSize int) *Tap {
	if bufSize <= 0 {
		bufSize = DefaultTapSize
	}
	return &Tap{
		buf:  make([]float64, bufSize),
		size: bufSize,
	}
}

// SetSource replaces the wrapped streamer and clears the buffer.
func (t *Tap) SetSource(s beep.Streamer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.src = s
	clear(t.buf)
	t.pos = 0
	t.written = 0
}

// Stream passes audio through while capturing a mono mix into the ring buffer.
func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.src == nil {
		return 0, false
	}
	n, ok := t.src.Stream(samples)
	for i := range n {
		t.buf[t.pos] = (samples[i][0] + samples[i][1]) / 2
		t.pos = (t.pos + 1) % t.size
	}
	t.written += uint64(n)
	return n, ok
}

// Err returns the wrapped streamer's error.
func (t *Tap) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.src == nil {
		return nil
	}
	return t.src.Err()
}

// Samples returns the last n samples in chronological order.
func (t *Tap) Samples(n int) []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	n = min(n, t.size)
	out := make([]float64, n)
	start := (t.pos - n + t.size) % t.size
	for i := range n {
		out[i] = t.buf[(start+i)%t.size]
	}
	return out
}

// Written returns how many samples have passed through since the last SetSource.
func (t *Tap) Written() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

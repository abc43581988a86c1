// Package series buffers temperature samples for time series display.
package series

import (
	"sync"
	"time"
)

// Sample is one point of the time series
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Buffer is an append-only, chronologically ordered store of samples
//
// All access is serialized by a single lock, so a snapshot never
// observes a partially appended sample.
type Buffer struct {
	mu      sync.RWMutex
	samples []Sample

	// maximum number of samples kept, 0 keeps everything
	limit int
}

// NewBuffer returns a buffer that grows without bound
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBoundedBuffer returns a buffer keeping only the newest limit samples
//
// A limit <= 0 means unbounded, same as NewBuffer.
func NewBoundedBuffer(limit int) *Buffer {
	if limit < 0 {
		limit = 0
	}
	return &Buffer{limit: limit}
}

// Append a sample in O(1) amortized
func (b *Buffer) Append(ts time.Time, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Elements already handed out by Snapshot are never written again:
	// append only writes beyond the current length and dropping the
	// oldest samples only moves the start of the slice.
	b.samples = append(b.samples, Sample{Timestamp: ts, Value: value})
	if b.limit > 0 && len(b.samples) > b.limit {
		b.samples = b.samples[len(b.samples)-b.limit:]
	}
}

// Len returns the number of buffered samples
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Snapshot returns a point-in-time view of the buffered samples
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.samples)
	return Snapshot{samples: b.samples[:n:n]}
}

// Snapshot is an immutable view of a buffer at one point in time
//
// It shares memory with the buffer but exposes no way to modify it.
type Snapshot struct {
	samples []Sample
}

// Len returns the number of samples in the snapshot
func (s Snapshot) Len() int {
	return len(s.samples)
}

// At returns the i-th sample, oldest first
func (s Snapshot) At(i int) Sample {
	return s.samples[i]
}

// Latest returns the newest sample, if any
func (s Snapshot) Latest() (Sample, bool) {
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Samples returns a copy of the samples, oldest first
func (s Snapshot) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Series splits the snapshot into x (timestamps) and y (values) as
// expected by most chart surfaces
func (s Snapshot) Series() ([]time.Time, []float64) {
	xs := make([]time.Time, len(s.samples))
	ys := make([]float64, len(s.samples))
	for i, sample := range s.samples {
		xs[i] = sample.Timestamp
		ys[i] = sample.Value
	}
	return xs, ys
}

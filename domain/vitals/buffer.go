package vitals

import "sync"

// SignalBuffer is a fixed-capacity, time-ordered sliding window of color
// samples. Entries are evicted in FIFO order when capacity is reached.
// Safe for concurrent use: frame delivery pushes while ticks take snapshots.
type SignalBuffer struct {
	mu       sync.Mutex
	entries  []ColorSample // ring storage, len == capacity once wrapped
	capacity int
	head     int // index of the oldest entry
	size     int
	newest   int64
}

// NewSignalBuffer creates a buffer holding at most capacity samples.
func NewSignalBuffer(capacity int) *SignalBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SignalBuffer{entries: make([]ColorSample, capacity), capacity: capacity}
}

// Push appends s, evicting the oldest sample when full. Samples older than
// the newest buffered one are rejected and Push returns false.
func (b *SignalBuffer) Push(s ColorSample) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size > 0 && s.TimestampMillis < b.newest {
		return false
	}
	if b.size < b.capacity {
		b.entries[(b.head+b.size)%b.capacity] = s
		b.size++
	} else {
		b.entries[b.head] = s
		b.head = (b.head + 1) % b.capacity
	}
	b.newest = s.TimestampMillis
	return true
}

// IsFull reports whether the buffer holds capacity samples.
func (b *SignalBuffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size == b.capacity
}

func (b *SignalBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *SignalBuffer) Cap() int { return b.capacity }

// Snapshot returns a copy of the buffered samples, oldest first.
func (b *SignalBuffer) Snapshot() []ColorSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ColorSample, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.head+i)%b.capacity]
	}
	return out
}

// Reset drops every sample.
func (b *SignalBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head, b.size, b.newest = 0, 0, 0
}

package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrEmptyBuffer is returned when a combined payload is requested from a
// buffer that holds no chunks.
var ErrEmptyBuffer = errors.New("chunk buffer is empty")

// DefaultRingCapacity is the number of recent chunks retained per session.
const DefaultRingCapacity = 5

// Chunk is one captured slice of audio, emitted by the capture source on a
// fixed cadence. Payload is a WAV-encoded segment.
type Chunk struct {
	Seq       uint64    `json:"seq"`
	Payload   []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// RingBuffer retains the most recent chunks of a session in insertion order.
// Capacity is fixed at construction; adding beyond capacity evicts the
// oldest chunk.
type RingBuffer struct {
	chunks   []Chunk
	start    int
	length   int
	capacity int
	evicted  uint64

	mu sync.RWMutex
}

// RingStats represents buffer state for monitoring.
type RingStats struct {
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
	Evicted  uint64 `json:"evicted"`
}

// NewRingBuffer creates a ring buffer with the given capacity. Non-positive
// capacities fall back to DefaultRingCapacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}

	return &RingBuffer{
		chunks:   make([]Chunk, capacity),
		capacity: capacity,
	}
}

// Add appends a chunk, evicting the oldest entry when the buffer is full.
func (r *RingBuffer) Add(c Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos := (r.start + r.length) % r.capacity
	r.chunks[pos] = c

	if r.length < r.capacity {
		r.length++
		return
	}

	// Full: the slot we just wrote was the oldest entry.
	r.start = (r.start + 1) % r.capacity
	r.evicted++
}

// Len returns the number of retained chunks.
func (r *RingBuffer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.length
}

// Capacity returns the fixed buffer capacity.
func (r *RingBuffer) Capacity() int {
	return r.capacity
}

// Chunks returns a copy of the retained chunks in insertion order.
func (r *RingBuffer) Chunks() []Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Chunk, 0, r.length)
	for i := 0; i < r.length; i++ {
		out = append(out, r.chunks[(r.start+i)%r.capacity])
	}

	return out
}

// Combined concatenates all retained chunks into a single payload in
// insertion order. When every payload decodes as WAV, the samples are merged
// and re-encoded at the first chunk's sample rate; otherwise the raw bytes
// are joined as-is.
func (r *RingBuffer) Combined() ([]byte, error) {
	chunks := r.Chunks()
	if len(chunks) == 0 {
		return nil, ErrEmptyBuffer
	}

	var (
		merged     []int16
		sampleRate int
		decodable  = true
	)

	for _, c := range chunks {
		samples, rate, err := DecodeWAV(c.Payload)
		if err != nil {
			decodable = false
			break
		}
		if sampleRate == 0 {
			sampleRate = rate
		}
		merged = append(merged, samples...)
	}

	if decodable {
		return EncodeWAV(merged, sampleRate)
	}

	var raw []byte
	for _, c := range chunks {
		raw = append(raw, c.Payload...)
	}

	return raw, nil
}

// Reset discards all retained chunks.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.start = 0
	r.length = 0
}

// Stats returns current buffer statistics.
func (r *RingBuffer) Stats() RingStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RingStats{
		Length:   r.length,
		Capacity: r.capacity,
		Evicted:  r.evicted,
	}
}

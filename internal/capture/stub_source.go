package capture

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/audio"
)

// StubSourceConfig configures the stub capture source behavior.
type StubSourceConfig struct {
	// Interval is the chunk emission cadence.
	Interval time.Duration
	// ChunkDuration is the audio length of each emitted chunk.
	ChunkDuration time.Duration
	// SampleRate of the synthesized PCM audio.
	SampleRate int
	// Amplitude of the synthesized tone, normalized to [0, 1].
	// Zero produces silent chunks.
	Amplitude float64
	// MaxChunks stops emission after N chunks (0 = unbounded).
	MaxChunks int
	// FailBegin makes Begin fail with ErrNoStreamAvailable.
	FailBegin bool
}

// DefaultStubSourceConfig returns sensible defaults for local runs and tests.
func DefaultStubSourceConfig() *StubSourceConfig {
	return &StubSourceConfig{
		Interval:      500 * time.Millisecond,
		ChunkDuration: 500 * time.Millisecond,
		SampleRate:    16000,
		Amplitude:     0.5,
	}
}

// StubSource is a capture source that synthesizes WAV chunks on a fixed
// cadence. It stands in for the host runtime's real capture pipeline.
type StubSource struct {
	config *StubSourceConfig

	mu     sync.Mutex
	begun  int
	closed int
}

// NewStubSource creates a stub source with the given config.
func NewStubSource(config *StubSourceConfig) *StubSource {
	if config == nil {
		config = DefaultStubSourceConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 500 * time.Millisecond
	}
	if config.ChunkDuration <= 0 {
		config.ChunkDuration = config.Interval
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	return &StubSource{config: config}
}

// Begin acquires a synthetic stream for the source key.
func (s *StubSource) Begin(ctx context.Context, sourceKey string) (Stream, error) {
	if s.config.FailBegin {
		return nil, ErrNoStreamAvailable
	}

	s.mu.Lock()
	s.begun++
	s.mu.Unlock()

	st := &stubStream{
		source: s,
		chunks: make(chan audio.Chunk, 1),
		done:   make(chan struct{}),
	}

	go st.emit(ctx, s.config)

	return st, nil
}

// BeginCount returns how many streams have been acquired.
func (s *StubSource) BeginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begun
}

// CloseCount returns how many stream Close calls have been observed,
// including repeated closes of the same stream.
func (s *StubSource) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubStream struct {
	source    *StubSource
	chunks    chan audio.Chunk
	done      chan struct{}
	closeOnce sync.Once
}

func (st *stubStream) Chunks() <-chan audio.Chunk {
	return st.chunks
}

// Close is an idempotent release of the stream.
func (st *stubStream) Close() error {
	st.source.mu.Lock()
	st.source.closed++
	st.source.mu.Unlock()

	st.closeOnce.Do(func() {
		close(st.done)
	})

	return nil
}

func (st *stubStream) emit(ctx context.Context, cfg *StubSourceConfig) {
	defer close(st.chunks)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-st.done:
			return
		case <-ticker.C:
			seq++
			payload, err := synthesizeChunk(cfg, seq)
			if err != nil {
				continue
			}

			select {
			case st.chunks <- audio.Chunk{Seq: seq, Payload: payload, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			case <-st.done:
				return
			}

			if cfg.MaxChunks > 0 && int(seq) >= cfg.MaxChunks {
				return
			}
		}
	}
}

// synthesizeChunk builds one WAV chunk: a 440 Hz tone at the configured
// amplitude, or silence when amplitude is zero.
func synthesizeChunk(cfg *StubSourceConfig, seq uint64) ([]byte, error) {
	numSamples := int(float64(cfg.SampleRate) * cfg.ChunkDuration.Seconds())
	if numSamples <= 0 {
		numSamples = cfg.SampleRate / 2
	}

	samples := make([]int16, numSamples)
	if cfg.Amplitude > 0 {
		for i := range samples {
			phase := 2 * math.Pi * 440 * float64(i) / float64(cfg.SampleRate)
			samples[i] = int16(cfg.Amplitude * 32767 * math.Sin(phase))
		}
	}

	return audio.EncodeWAV(samples, cfg.SampleRate)
}

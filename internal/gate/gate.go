package gate

import (
	"sync"
	"time"

	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/audio"
)

// DefaultThreshold is the silence threshold on normalized mean amplitude.
const DefaultThreshold = 0.01

// Gate decides whether a captured chunk contains speech worth forwarding.
type Gate struct {
	threshold float64

	// Statistics
	totalChunks  uint64
	passedChunks uint64
	lastDecision time.Time

	mu sync.RWMutex
}

// Stats represents gate statistics for monitoring.
type Stats struct {
	Threshold    float64   `json:"threshold"`
	TotalChunks  uint64    `json:"total_chunks"`
	PassedChunks uint64    `json:"passed_chunks"`
	PassRate     float64   `json:"pass_rate"`
	LastDecision time.Time `json:"last_decision"`
}

// New creates a speech gate. Non-positive thresholds fall back to
// DefaultThreshold.
func New(threshold float64) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Gate{threshold: threshold}
}

// HasSpeech reports whether the WAV payload's mean absolute amplitude
// exceeds the silence threshold. Payloads that fail to decode pass the gate:
// dropping real speech on a decode error is worse than one spurious backend
// call.
func (g *Gate) HasSpeech(payload []byte) bool {
	samples, _, err := audio.DecodeWAV(payload)
	if err != nil {
		g.record(true)
		return true
	}

	speech := audio.MeanAmplitude(samples) > g.threshold
	g.record(speech)

	return speech
}

// Threshold returns the configured silence threshold.
func (g *Gate) Threshold() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}

// GetStats returns current gate statistics.
func (g *Gate) GetStats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	passRate := float64(0)
	if g.totalChunks > 0 {
		passRate = float64(g.passedChunks) / float64(g.totalChunks) * 100
	}

	return Stats{
		Threshold:    g.threshold,
		TotalChunks:  g.totalChunks,
		PassedChunks: g.passedChunks,
		PassRate:     passRate,
		LastDecision: g.lastDecision,
	}
}

func (g *Gate) record(passed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.totalChunks++
	if passed {
		g.passedChunks++
	}
	g.lastDecision = time.Now()
}

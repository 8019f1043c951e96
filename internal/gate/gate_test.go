package gate

import (
	"math"
	"testing"

	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/audio"
)

// encodeTone builds a WAV payload of a constant-amplitude sine wave.
// amplitude is normalized to [0, 1].
func encodeTone(t *testing.T, amplitude float64, sampleRate int) []byte {
	t.Helper()

	samples := make([]int16, sampleRate/2)
	for i := range samples {
		phase := 2 * math.Pi * 440 * float64(i) / float64(sampleRate)
		samples[i] = int16(amplitude * 32767 * math.Sin(phase))
	}

	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	return data
}

func TestNewDefaults(t *testing.T) {
	g := New(0)
	if g.Threshold() != DefaultThreshold {
		t.Errorf("Expected default threshold %f, got %f", DefaultThreshold, g.Threshold())
	}

	g = New(0.05)
	if g.Threshold() != 0.05 {
		t.Errorf("Expected threshold 0.05, got %f", g.Threshold())
	}
}

func TestHasSpeechLoudChunk(t *testing.T) {
	g := New(DefaultThreshold)

	payload := encodeTone(t, 0.5, 16000)
	if !g.HasSpeech(payload) {
		t.Error("Expected loud chunk to pass the gate")
	}
}

func TestHasSpeechSilentChunk(t *testing.T) {
	g := New(DefaultThreshold)

	silence := make([]int16, 8000)
	payload, err := audio.EncodeWAV(silence, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if g.HasSpeech(payload) {
		t.Error("Expected silent chunk to be rejected")
	}
}

func TestHasSpeechBelowThreshold(t *testing.T) {
	g := New(DefaultThreshold)

	// Mean amplitude of a sine at peak 0.01 is ~0.0064, below 0.01.
	payload := encodeTone(t, 0.01, 16000)
	if g.HasSpeech(payload) {
		t.Error("Expected near-silent chunk to be rejected")
	}
}

func TestHasSpeechFailsOpenOnDecodeError(t *testing.T) {
	g := New(DefaultThreshold)

	if !g.HasSpeech([]byte("definitely not a wav payload")) {
		t.Error("Expected undecodable chunk to pass the gate")
	}
}

func TestGetStats(t *testing.T) {
	g := New(DefaultThreshold)

	loud := encodeTone(t, 0.5, 16000)
	silence, err := audio.EncodeWAV(make([]int16, 8000), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	g.HasSpeech(loud)
	g.HasSpeech(silence)
	g.HasSpeech(loud)

	stats := g.GetStats()
	if stats.TotalChunks != 3 {
		t.Errorf("Expected 3 total chunks, got %d", stats.TotalChunks)
	}
	if stats.PassedChunks != 2 {
		t.Errorf("Expected 2 passed chunks, got %d", stats.PassedChunks)
	}
	if stats.LastDecision.IsZero() {
		t.Error("Expected last decision timestamp to be set")
	}
}

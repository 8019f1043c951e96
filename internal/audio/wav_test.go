package audio

import (
	"math"
	"testing"
)

func TestEncodeDecodeWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 500}
	sampleRate := 16000

	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != 44+len(samples)*2 {
		t.Errorf("Expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if rate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, rate)
	}

	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}

	for i, s := range samples {
		if decoded[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, decoded[i])
		}
	}
}

func TestEncodeWAVEmptySamples(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	if _, err := EncodeWAV([]int16{1, 2, 3}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestDecodeWAVTooShort(t *testing.T) {
	if _, _, err := DecodeWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for truncated data")
	}
}

func TestDecodeWAVInvalidHeader(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	data, err := EncodeWAV(samples, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// Corrupt the RIFF magic.
	corrupt := make([]byte, len(data))
	copy(corrupt, data)
	copy(corrupt[0:4], []byte("JUNK"))

	if _, _, err := DecodeWAV(corrupt); err == nil {
		t.Error("Expected error for corrupted RIFF header")
	}
}

func TestWAVDuration(t *testing.T) {
	sampleRate := 8000
	samples := make([]int16, sampleRate) // exactly one second

	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := WAVDuration(data)
	if err != nil {
		t.Fatalf("WAVDuration failed: %v", err)
	}

	if math.Abs(duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.0s, got %f", duration)
	}
}

func TestMeanAmplitude(t *testing.T) {
	if amp := MeanAmplitude(nil); amp != 0 {
		t.Errorf("Expected 0 for empty samples, got %f", amp)
	}

	silence := make([]int16, 100)
	if amp := MeanAmplitude(silence); amp != 0 {
		t.Errorf("Expected 0 for silence, got %f", amp)
	}

	// Constant full-scale signal normalizes to just under 1.0.
	loud := make([]int16, 100)
	for i := range loud {
		loud[i] = 32767
	}
	amp := MeanAmplitude(loud)
	if math.Abs(amp-float64(32767)/32768.0) > 1e-9 {
		t.Errorf("Expected near-1.0 amplitude, got %f", amp)
	}

	// Alternating-sign samples must not cancel out.
	alternating := []int16{1000, -1000, 1000, -1000}
	amp = MeanAmplitude(alternating)
	if math.Abs(amp-1000.0/32768.0) > 1e-9 {
		t.Errorf("Expected amplitude %f, got %f", 1000.0/32768.0, amp)
	}
}

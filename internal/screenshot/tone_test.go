package screenshot

import (
	"math"
	"testing"
)

func TestBeep_Samples(t *testing.T) {
	b := NewBeep()
	samples := b.Samples()

	if len(samples) != 4410 {
		t.Fatalf("len(samples) = %d, want 4410", len(samples))
	}
	if samples[0] != 0 {
		t.Errorf("first sample = %f, want 0", samples[0])
	}

	peak := func(from, to int) float64 {
		var m float64
		for _, s := range samples[from:to] {
			m = math.Max(m, math.Abs(float64(s)))
		}
		return m
	}

	head := peak(0, 441)
	tail := peak(len(samples)-441, len(samples))
	if head > b.StartGain+1e-6 {
		t.Errorf("head peak %f exceeds start gain %f", head, b.StartGain)
	}
	if tail >= head/10 {
		t.Errorf("tone does not decay: head %f, tail %f", head, tail)
	}
}

func TestBeep_ZeroDuration(t *testing.T) {
	b := NewBeep()
	b.Duration = 0
	if got := b.Samples(); got != nil {
		t.Errorf("Samples() = %d samples, want nil", len(got))
	}
}

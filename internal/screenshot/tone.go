package screenshot

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Beep is a short decaying sine tone played on the default output device.
type Beep struct {
	Frequency  float64
	Duration   time.Duration
	StartGain  float64
	EndGain    float64
	SampleRate float64

	mu sync.Mutex
}

// NewBeep returns the 800 Hz, 100 ms shutter cue.
func NewBeep() *Beep {
	return &Beep{
		Frequency:  800,
		Duration:   100 * time.Millisecond,
		StartGain:  0.1,
		EndGain:    0.00001,
		SampleRate: 44100,
	}
}

const framesPerBuffer = 512

// Play blocks until the tone has been written to the device.
func (b *Beep) Play() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("init audio: %w", err)
	}
	defer portaudio.Terminate()

	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, b.SampleRate, len(buf), buf)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output: %w", err)
	}

	samples := b.Samples()
	for off := 0; off < len(samples); off += len(buf) {
		n := copy(buf, samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			stream.Stop()
			return fmt.Errorf("write output: %w", err)
		}
	}

	return stream.Stop()
}

// Samples renders the tone as mono float32 PCM with an exponential gain ramp.
func (b *Beep) Samples() []float32 {
	n := int(b.SampleRate * b.Duration.Seconds())
	if n <= 0 {
		return nil
	}

	out := make([]float32, n)
	ratio := b.EndGain / b.StartGain
	for i := range out {
		t := float64(i) / b.SampleRate
		frac := float64(i) / float64(n)
		gain := b.StartGain * math.Pow(ratio, frac)
		out[i] = float32(gain * math.Sin(2*math.Pi*b.Frequency*t))
	}
	return out
}

package gesture

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/swipeshot/internal/pose"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRecognizer(threshold float64, cooldown time.Duration) (*Recognizer, *fakeClock) {
	clock := newFakeClock()
	r := NewRecognizer(Settings{Threshold: threshold, Cooldown: cooldown})
	r.SetClock(clock.Now)
	return r, clock
}

func TestRecognizer_Progress(t *testing.T) {
	r, _ := newTestRecognizer(0.75, 0)

	tests := []struct {
		name      string
		landmarks pose.Landmarks
		want      float64
	}{
		{
			name:      "nil landmarks",
			landmarks: nil,
			want:      0,
		},
		{
			name:      "both wrists hidden",
			landmarks: pose.WristsAt(0.9, 0.5, 0.8, 0.2),
			want:      0,
		},
		{
			name:      "single visible wrist",
			landmarks: pose.WristsAt(0.9, 0.1, 0.4, 0.9),
			want:      40,
		},
		{
			name:      "most advanced wrist wins",
			landmarks: pose.WristsAt(0.3, 0.9, 0.6, 0.9),
			want:      60,
		},
		{
			name:      "value at threshold",
			landmarks: pose.WristsAt(0, 0, 0.75, 0.9),
			want:      75,
		},
		{
			name:      "out of frame is clamped high",
			landmarks: pose.WristsAt(1.2, 0.9, 0, 0),
			want:      100,
		},
		{
			name:      "negative x is clamped low",
			landmarks: pose.WristsAt(-0.2, 0.9, 0, 0),
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Progress(tt.landmarks)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Progress() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRecognizer_ProgressMonotonic(t *testing.T) {
	r, _ := newTestRecognizer(0.75, 0)

	prev := -1.0
	for i := 0; i <= 100; i++ {
		x := float64(i) / 100
		got := r.Progress(pose.WristsAt(0.5, 0.9, x, 0.9))
		if got < prev {
			t.Fatalf("progress decreased at x=%.2f: %f < %f", x, got, prev)
		}
		prev = got
	}
}

func TestRecognizer_DetectEdgeCases(t *testing.T) {
	r, _ := newTestRecognizer(0.75, 0)

	tests := []struct {
		name      string
		landmarks pose.Landmarks
	}{
		{"nil landmarks", nil},
		{"short landmark set", make(pose.Landmarks, 10)},
		{"wrists hidden past threshold", pose.WristsAt(0.9, 0.4, 0.9, 0.5)},
		{"wrist exactly at threshold", pose.WristsAt(0, 0, 0.75, 0.9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r.Detect(tt.landmarks) {
				t.Error("Detect() = true, want false")
			}
		})
	}

	if _, ok := r.LastTrigger(); ok {
		t.Error("LastTrigger() reported a trigger after only rejected frames")
	}
}

func TestRecognizer_CooldownSuppressesRepeats(t *testing.T) {
	r, clock := newTestRecognizer(0.75, 2000*time.Millisecond)
	qualifying := pose.WristsAt(0.9, 0.9, 0.95, 0.9)

	var triggers []time.Time
	for i := 0; i < 10000; i++ {
		if r.Detect(qualifying) {
			triggers = append(triggers, clock.Now())
		}
		clock.Advance(time.Millisecond)
	}

	// Strictly greater than the cooldown: 0, 2001, 4002, 6003, 8004 ms.
	if len(triggers) != 5 {
		t.Fatalf("got %d triggers, want 5", len(triggers))
	}
	for i := 1; i < len(triggers); i++ {
		if gap := triggers[i].Sub(triggers[i-1]); gap <= 2*time.Second {
			t.Errorf("triggers %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestRecognizer_BothWristsSingleTrigger(t *testing.T) {
	r, _ := newTestRecognizer(0.75, time.Second)

	both := pose.WristsAt(0.9, 0.9, 0.92, 0.9)
	if !r.Detect(both) {
		t.Fatal("first Detect() = false, want true")
	}
	if r.Detect(both) {
		t.Error("second Detect() within cooldown = true, want false")
	}
}

func TestRecognizer_SetThresholdClamps(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.3, 0.5},
		{0.99, 0.95},
		{0.5, 0.5},
		{0.95, 0.95},
		{0.8, 0.8},
	}

	r, _ := newTestRecognizer(0.75, 0)
	for _, tt := range tests {
		r.SetThreshold(tt.in)
		if got := r.Settings().Threshold; got != tt.want {
			t.Errorf("SetThreshold(%v): threshold = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRecognizer_SetCooldownVerbatim(t *testing.T) {
	r, _ := newTestRecognizer(0.75, time.Second)

	r.SetCooldown(0)
	if got := r.Settings().Cooldown; got != 0 {
		t.Errorf("Cooldown = %v, want 0", got)
	}

	r.SetCooldown(-time.Second)
	if got := r.Settings().Cooldown; got != -time.Second {
		t.Errorf("Cooldown = %v, want -1s", got)
	}
}

func TestRecognizer_NewClampsInitialSettings(t *testing.T) {
	r := NewRecognizer(Settings{Threshold: 0.1, Cooldown: time.Second})
	if got := r.Settings().Threshold; got != MinThreshold {
		t.Errorf("Threshold = %v, want %v", got, MinThreshold)
	}
}

func TestRecognizer_SweepSequence(t *testing.T) {
	r, clock := newTestRecognizer(0.75, 0)
	seq := pose.SweepSequence(40, 0, 0.9)

	for i, lms := range seq {
		x := lms[pose.RightWrist].X
		reading := r.Evaluate(lms)

		if want := x > 0.75; reading.Triggered != want {
			t.Errorf("frame %d (x=%.4f): Triggered = %v, want %v", i, x, reading.Triggered, want)
		}
		if math.Abs(reading.Progress-100*x) > 1e-9 {
			t.Errorf("frame %d: Progress = %f, want %f", i, reading.Progress, 100*x)
		}
		if reading.Threshold != 0.75 {
			t.Errorf("frame %d: Threshold = %v, want 0.75", i, reading.Threshold)
		}
		clock.Advance(33 * time.Millisecond)
	}
}

func TestRecognizer_ConcurrentSettingsUpdates(t *testing.T) {
	r, clock := newTestRecognizer(0.75, 0)
	lms := pose.WristsAt(0, 0, 0.9, 0.9)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Apply(Settings{Threshold: 0.5 + float64(i%45)/100, Cooldown: 0})
		}
	}()

	for i := 0; i < 1000; i++ {
		reading := r.Evaluate(lms)
		if reading.Threshold < MinThreshold || reading.Threshold > MaxThreshold {
			t.Fatalf("observed out-of-range threshold %v", reading.Threshold)
		}
		clock.Advance(time.Millisecond)
	}
	wg.Wait()
}

func TestSettings_ThresholdPercent(t *testing.T) {
	tests := []struct {
		threshold float64
		want      int
	}{
		{0.5, 50},
		{0.75, 75},
		{0.95, 95},
		{0.7349, 73},
	}

	for _, tt := range tests {
		s := Settings{Threshold: tt.threshold}
		if got := s.ThresholdPercent(); got != tt.want {
			t.Errorf("ThresholdPercent(%v) = %d, want %d", tt.threshold, got, tt.want)
		}
	}
}

package gesture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/swipeshot/internal/pose"
)

// Reading is the recognizer output for one detection cycle.
type Reading struct {
	Progress  float64   `json:"progress"`
	Triggered bool      `json:"triggered"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

// Recognizer turns landmark sets into a progress value and a debounced trigger.
// Landmarks are expected in mirrored space. Settings may be replaced from any
// goroutine; Detect and Evaluate are meant to be called by a single loop.
type Recognizer struct {
	settings atomic.Pointer[Settings]
	now      func() time.Time

	mu          sync.Mutex
	lastTrigger time.Time
	hasTrigger  bool
}

// NewRecognizer creates a Recognizer with the given settings. The threshold is clamped.
func NewRecognizer(s Settings) *Recognizer {
	r := &Recognizer{now: time.Now}
	r.Apply(s)
	return r
}

// SetClock replaces the time source used for cooldown checks.
func (r *Recognizer) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Settings returns the current settings.
func (r *Recognizer) Settings() Settings {
	return *r.settings.Load()
}

// Apply replaces the settings as a whole value.
func (r *Recognizer) Apply(s Settings) {
	s = s.Normalize()
	r.settings.Store(&s)
}

// SetThreshold stores v clamped into [MinThreshold, MaxThreshold].
func (r *Recognizer) SetThreshold(v float64) {
	s := r.Settings()
	s.Threshold = v
	r.Apply(s)
}

// SetCooldown stores d without validation.
func (r *Recognizer) SetCooldown(d time.Duration) {
	s := r.Settings()
	s.Cooldown = d
	r.Apply(s)
}

// LastTrigger returns the time of the most recent trigger, if any.
func (r *Recognizer) LastTrigger() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTrigger, r.hasTrigger
}

// Progress returns how far the most advanced visible wrist has swept, in [0,100].
func (r *Recognizer) Progress(lms pose.Landmarks) float64 {
	x, ok := maxWristX(lms)
	if !ok {
		return 0
	}
	return clamp(100*x, 0, 100)
}

// Detect reports whether a visible wrist is past the threshold and the cooldown
// has elapsed since the last trigger. A suppressed event is dropped, not queued.
func (r *Recognizer) Detect(lms pose.Landmarks) bool {
	return r.detect(lms, r.Settings())
}

// Evaluate computes progress and runs Detect against a single settings snapshot.
func (r *Recognizer) Evaluate(lms pose.Landmarks) Reading {
	s := r.Settings()
	triggered := r.detect(lms, s)

	r.mu.Lock()
	at := r.now()
	r.mu.Unlock()

	return Reading{
		Progress:  r.Progress(lms),
		Triggered: triggered,
		Threshold: s.Threshold,
		At:        at,
	}
}

func (r *Recognizer) detect(lms pose.Landmarks, s Settings) bool {
	x, ok := maxWristX(lms)
	if !ok || x <= s.Threshold {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.hasTrigger && now.Sub(r.lastTrigger) <= s.Cooldown {
		return false
	}
	r.lastTrigger = now
	r.hasTrigger = true
	return true
}

// maxWristX returns the largest x among the visible wrists.
func maxWristX(lms pose.Landmarks) (float64, bool) {
	wrists := lms.Wrists()
	if len(wrists) == 0 {
		return 0, false
	}
	best := wrists[0].X
	for _, w := range wrists[1:] {
		if w.X > best {
			best = w.X
		}
	}
	return best, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

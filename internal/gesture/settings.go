// Package gesture recognizes the horizontal hand sweep that triggers a capture.
package gesture

import "time"

// Threshold bounds. Values written outside this range are clamped.
const (
	MinThreshold = 0.5
	MaxThreshold = 0.95
)

// Settings are the tunable recognizer parameters. They are always replaced as a whole.
type Settings struct {
	// Threshold is the normalized x a visible wrist must exceed to trigger.
	Threshold float64 `json:"threshold"`
	// Cooldown is the minimum time between two successful triggers. Zero disables debouncing.
	Cooldown time.Duration `json:"cooldown"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		Threshold: 0.75,
		Cooldown:  2 * time.Second,
	}
}

// ClampThreshold narrows v into [MinThreshold, MaxThreshold].
func ClampThreshold(v float64) float64 {
	if v < MinThreshold {
		return MinThreshold
	}
	if v > MaxThreshold {
		return MaxThreshold
	}
	return v
}

// Normalize returns a copy with the threshold clamped. Cooldown is kept verbatim.
func (s Settings) Normalize() Settings {
	s.Threshold = ClampThreshold(s.Threshold)
	return s
}

// ThresholdPercent returns the threshold as the integer percent shown on the slider.
func (s Settings) ThresholdPercent() int {
	return int(s.Threshold*100 + 0.5)
}

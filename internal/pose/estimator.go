package pose

import "gocv.io/x/gocv"

// Estimator defines the interface for body-pose estimation backends.
type Estimator interface {
	// Estimate analyzes a video frame and returns the detected body landmarks.
	// A nil Result with a nil error means no body was found in the frame.
	Estimate(frame *gocv.Mat) (*Result, error)

	// Close releases any resources held by the estimator.
	Close() error
}

// Result is the output of a single estimate.
type Result struct {
	Landmarks Landmarks `json:"landmarks"`
	Score     float64   `json:"score"`
}

// Empty reports whether the result carries no landmarks.
func (r *Result) Empty() bool {
	return r == nil || len(r.Landmarks) == 0
}

// Config holds the model knobs consumed when the estimator is initialized.
type Config struct {
	// MinDetectionConfidence is the minimum person detection confidence (0.0-1.0).
	MinDetectionConfidence float64 `yaml:"min_detection_confidence" json:"min_detection_confidence"`

	// MinTrackingConfidence is the minimum landmark tracking confidence (0.0-1.0).
	MinTrackingConfidence float64 `yaml:"min_tracking_confidence" json:"min_tracking_confidence"`

	// ModelComplexity selects the landmark model: 0 lite, 1 full, 2 heavy.
	ModelComplexity int `yaml:"model_complexity" json:"model_complexity" validate:"oneof=0 1 2"`

	// SmoothLandmarks enables temporal landmark filtering inside the model.
	SmoothLandmarks bool `yaml:"smooth_landmarks" json:"smooth_landmarks"`
}

// DefaultConfig returns a Config with sensible default values.
// Input is never mirrored by the model; mirroring happens in the detection loop.
func DefaultConfig() Config {
	return Config{
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
		ModelComplexity:        1,
		SmoothLandmarks:        true,
	}
}

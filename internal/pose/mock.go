package pose

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockEstimator is a test implementation of the Estimator interface.
// It allows tests to control the estimation results.
type MockEstimator struct {
	mu       sync.Mutex
	result   *Result
	sequence []*Result
	err      error
	calls    int
	closed   bool
	onCall   func(n int)
}

// NewMockEstimator creates a new MockEstimator instance.
func NewMockEstimator() *MockEstimator {
	return &MockEstimator{}
}

// SetResult sets the result returned by every Estimate call.
func (m *MockEstimator) SetResult(r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
}

// SetSequence scripts one result per call. Once exhausted, the last result repeats.
func (m *MockEstimator) SetSequence(results []*Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = results
}

// SetError sets the error that will be returned by Estimate.
func (m *MockEstimator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// OnCall registers a hook run after each Estimate with the 1-based call number.
func (m *MockEstimator) OnCall(fn func(n int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCall = fn
}

// Calls returns the number of Estimate calls so far.
func (m *MockEstimator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockEstimator) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Estimate returns the pre-configured result or error.
func (m *MockEstimator) Estimate(frame *gocv.Mat) (*Result, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	hook := m.onCall
	res, err := m.next(n)
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return res, err
}

func (m *MockEstimator) next(n int) (*Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.sequence) > 0 {
		if n > len(m.sequence) {
			n = len(m.sequence)
		}
		return m.sequence[n-1], nil
	}
	return m.result, nil
}

// Close marks the mock as closed.
func (m *MockEstimator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// StaticLoader returns a Loader that always yields est, or err when set.
func StaticLoader(est Estimator, err error) Loader {
	return func(ctx context.Context) (Estimator, error) {
		if err != nil {
			return nil, err
		}
		return est, nil
	}
}

// StandingLandmarks returns a full landmark set of a person standing centred in
// frame with both arms down. Every point is fully visible.
func StandingLandmarks() Landmarks {
	lms := make(Landmarks, NumLandmarks)
	for i := range lms {
		lms[i] = Landmark{X: 0.5, Y: 0.5, Visibility: 0.99}
	}

	lms[Nose] = Landmark{X: 0.50, Y: 0.15, Visibility: 0.99}
	lms[LeftShoulder] = Landmark{X: 0.58, Y: 0.30, Visibility: 0.99}
	lms[RightShoulder] = Landmark{X: 0.42, Y: 0.30, Visibility: 0.99}
	lms[LeftElbow] = Landmark{X: 0.60, Y: 0.45, Visibility: 0.98}
	lms[RightElbow] = Landmark{X: 0.40, Y: 0.45, Visibility: 0.98}
	lms[LeftWrist] = Landmark{X: 0.61, Y: 0.58, Visibility: 0.95}
	lms[RightWrist] = Landmark{X: 0.39, Y: 0.58, Visibility: 0.95}
	lms[LeftHip] = Landmark{X: 0.55, Y: 0.60, Visibility: 0.99}
	lms[RightHip] = Landmark{X: 0.45, Y: 0.60, Visibility: 0.99}
	lms[LeftKnee] = Landmark{X: 0.55, Y: 0.78, Visibility: 0.97}
	lms[RightKnee] = Landmark{X: 0.45, Y: 0.78, Visibility: 0.97}
	lms[LeftAnkle] = Landmark{X: 0.55, Y: 0.94, Visibility: 0.90}
	lms[RightAnkle] = Landmark{X: 0.45, Y: 0.94, Visibility: 0.90}

	return lms
}

// WristsAt returns StandingLandmarks with the wrists moved to the given
// horizontal positions and visibilities.
func WristsAt(leftX, leftVis, rightX, rightVis float64) Landmarks {
	lms := StandingLandmarks()
	lms[LeftWrist].X, lms[LeftWrist].Visibility = leftX, leftVis
	lms[RightWrist].X, lms[RightWrist].Visibility = rightX, rightVis
	return lms
}

// SweepSequence returns n landmark sets in which the right wrist moves linearly
// from x=from to x=to while the left wrist stays hidden.
func SweepSequence(n int, from, to float64) []Landmarks {
	seq := make([]Landmarks, n)
	for i := 0; i < n; i++ {
		x := from
		if n > 1 {
			x = from + (to-from)*float64(i)/float64(n-1)
		}
		seq[i] = WristsAt(0, 0.1, x, 0.95)
	}
	return seq
}

package capture

import (
	"context"
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when the viewfinder has not received a frame yet.
var ErrNoFrame = errors.New("no frame available")

// Sink receives frames from a running stream.
type Sink interface {
	// Put takes ownership of frame.
	Put(frame *gocv.Mat)
	// Ready reports whether the sink holds a frame with valid dimensions.
	Ready() bool
	// Reset drops any held frame.
	Reset()
}

// Viewfinder is a Sink that keeps the most recent frame and lets readers wait
// for the next one.
type Viewfinder struct {
	mu      sync.Mutex
	frame   gocv.Mat
	hasMat  bool
	seq     uint64
	width   int
	height  int
	changed chan struct{}
}

// NewViewfinder creates an empty Viewfinder.
func NewViewfinder() *Viewfinder {
	return &Viewfinder{changed: make(chan struct{})}
}

// Put replaces the held frame and wakes waiting readers.
func (v *Viewfinder) Put(frame *gocv.Mat) {
	if frame == nil {
		return
	}
	if frame.Empty() {
		frame.Close()
		return
	}

	v.mu.Lock()
	if v.hasMat {
		v.frame.Close()
	}
	v.frame = *frame
	v.hasMat = true
	v.seq++
	v.width, v.height = frame.Cols(), frame.Rows()
	close(v.changed)
	v.changed = make(chan struct{})
	v.mu.Unlock()
}

// Ready reports whether a frame with non-zero dimensions is held.
func (v *Viewfinder) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasMat && v.width > 0 && v.height > 0
}

// Size returns the native dimensions of the held frame.
func (v *Viewfinder) Size() (width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height
}

// Seq returns the sequence number of the held frame. Zero means none.
func (v *Viewfinder) Seq() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seq
}

// Next blocks until a frame newer than afterSeq is held and returns a clone of
// it with its sequence number. The caller owns the returned Mat.
func (v *Viewfinder) Next(ctx context.Context, afterSeq uint64) (gocv.Mat, uint64, error) {
	for {
		v.mu.Lock()
		if v.hasMat && v.seq > afterSeq {
			frame := v.frame.Clone()
			seq := v.seq
			v.mu.Unlock()
			return frame, seq, nil
		}
		changed := v.changed
		v.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return gocv.Mat{}, 0, ctx.Err()
		}
	}
}

// Snapshot returns a clone of the held frame. The caller owns the returned Mat.
func (v *Viewfinder) Snapshot() (gocv.Mat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.hasMat {
		return gocv.Mat{}, ErrNoFrame
	}
	return v.frame.Clone(), nil
}

// Reset drops the held frame. The sequence keeps counting so that readers
// waiting on an old sequence number only see frames put after the reset.
func (v *Viewfinder) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.hasMat {
		v.frame.Close()
	}
	v.frame = gocv.Mat{}
	v.hasMat = false
	v.width, v.height = 0, 0
}

// Close releases the held frame.
func (v *Viewfinder) Close() error {
	v.Reset()
	return nil
}

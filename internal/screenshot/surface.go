// Package screenshot turns renderable surfaces into PNG capture artifacts.
package screenshot

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	vscreen "github.com/vova616/screenshot"
	"gocv.io/x/gocv"

	"github.com/ayusman/swipeshot/internal/pose"
)

// Surface is anything that can produce its current contents at native resolution.
// The caller owns the returned Mat.
type Surface interface {
	Snapshot() (gocv.Mat, error)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func() (gocv.Mat, error)

func (f SurfaceFunc) Snapshot() (gocv.Mat, error) { return f() }

// Overlay holds what is drawn over the mirrored video: the latest mirrored
// landmarks and the trigger threshold.
type Overlay struct {
	mu           sync.RWMutex
	landmarks    pose.Landmarks
	threshold    float64
	showSkeleton bool
}

// NewOverlay creates an Overlay with the skeleton enabled.
func NewOverlay() *Overlay {
	return &Overlay{showSkeleton: true}
}

// Update replaces the landmarks (already mirrored) and threshold.
func (o *Overlay) Update(mirrored pose.Landmarks, threshold float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.landmarks = mirrored
	o.threshold = threshold
}

// SetSkeleton toggles skeleton drawing.
func (o *Overlay) SetSkeleton(show bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.showSkeleton = show
}

func (o *Overlay) state() (pose.Landmarks, float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.landmarks, o.threshold, o.showSkeleton
}

var (
	limbColors = map[pose.Limb]color.RGBA{
		pose.LimbTorso: {R: 255, G: 255, B: 0, A: 255},
		pose.LimbArm:   {R: 255, G: 153, B: 0, A: 255},
		pose.LimbLeg:   {R: 0, G: 255, B: 0, A: 255},
		pose.LimbFoot:  {R: 0, G: 255, B: 0, A: 255},
	}
	jointColor     = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	wristColor     = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	shoulderColor  = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	outlineColor   = color.RGBA{A: 255}
	thresholdColor = color.RGBA{R: 59, G: 130, B: 246, A: 204}
)

const (
	boneThickness      = 3
	thresholdThickness = 4
	dashLength         = 15
)

// Composite renders the mirrored video with the skeleton and dashed threshold
// line on top, matching what the user sees.
type Composite struct {
	Video   Surface
	Overlay *Overlay
}

// Snapshot draws the composite frame.
func (c *Composite) Snapshot() (gocv.Mat, error) {
	frame, err := c.Video.Snapshot()
	if err != nil {
		return gocv.Mat{}, err
	}
	if frame.Empty() {
		frame.Close()
		return gocv.Mat{}, fmt.Errorf("video surface is empty")
	}

	gocv.Flip(frame, &frame, 1)

	if c.Overlay == nil {
		return frame, nil
	}

	lms, threshold, showSkeleton := c.Overlay.state()
	if showSkeleton {
		drawSkeleton(&frame, lms)
	}
	if threshold > 0 {
		drawThreshold(&frame, threshold)
	}
	return frame, nil
}

func toPixel(lm pose.Landmark, width, height int) image.Point {
	return image.Pt(int(lm.X*float64(width)), int(lm.Y*float64(height)))
}

func drawSkeleton(frame *gocv.Mat, lms pose.Landmarks) {
	if len(lms) == 0 {
		return
	}
	width, height := frame.Cols(), frame.Rows()

	for _, b := range lms.VisibleBones() {
		gocv.Line(frame,
			toPixel(lms[b.From], width, height),
			toPixel(lms[b.To], width, height),
			limbColors[b.Limb], boneThickness)
	}

	for i, lm := range lms {
		if !lm.Visible() {
			continue
		}
		radius, c := 6, jointColor
		switch i {
		case pose.LeftWrist, pose.RightWrist:
			radius, c = 8, wristColor
		case pose.LeftShoulder, pose.RightShoulder:
			radius, c = 7, shoulderColor
		}
		center := toPixel(lm, width, height)
		gocv.Circle(frame, center, radius, c, -1)
		gocv.Circle(frame, center, radius, outlineColor, 2)
	}
}

func drawThreshold(frame *gocv.Mat, threshold float64) {
	x := int(threshold * float64(frame.Cols()))
	for y := 0; y < frame.Rows(); y += 2 * dashLength {
		end := y + dashLength
		if end > frame.Rows() {
			end = frame.Rows()
		}
		gocv.Line(frame, image.Pt(x, y), image.Pt(x, end), thresholdColor, thresholdThickness)
	}
}

// Desktop grabs the whole primary screen.
type Desktop struct{}

// Snapshot captures the screen as a BGR Mat.
func (Desktop) Snapshot() (gocv.Mat, error) {
	img, err := vscreen.CaptureScreen()
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("grab screen: %w", err)
	}
	return gocv.ImageToMatRGB(img)
}

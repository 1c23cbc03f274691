package screenshot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/swipeshot/internal/pose"
)

func solidSurface(width, height int) Surface {
	return SurfaceFunc(func() (gocv.Mat, error) {
		return gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3), nil
	})
}

func TestFilename(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.FixedZone("CET", 3600))

	got := Filename(ts)
	want := "screenshot-2024-03-09T13-05-07-123Z.png"
	if got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
	if got != SanitizeFilename(got) {
		t.Errorf("Filename() output is not already sanitized: %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"screenshot.png", "screenshot.png"},
		{"shot:1.png", "shot-1.png"},
		{"../../etc/passwd", "passwd.png"},
		{`C:\Users\me\a?b*.png`, "a-b-.png"},
		{"tab\there", "tab-here.png"},
		{"   ", "screenshot.png"},
		{"...", "screenshot.png"},
		{"photo.PNG", "photo.PNG"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSink_CaptureNativeResolution(t *testing.T) {
	sink := NewSink(t.TempDir(), nil, WithPlayer(nil))

	data, err := sink.Capture(solidSurface(1280, 720))
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1280 || b.Dy() != 720 {
		t.Errorf("image size = %dx%d, want 1280x720", b.Dx(), b.Dy())
	}
}

func TestSink_CaptureErrors(t *testing.T) {
	sink := NewSink(t.TempDir(), nil, WithPlayer(nil))

	tests := []struct {
		name    string
		surface Surface
	}{
		{"nil surface", nil},
		{"snapshot error", SurfaceFunc(func() (gocv.Mat, error) {
			return gocv.Mat{}, errors.New("no context")
		})},
		{"empty frame", SurfaceFunc(func() (gocv.Mat, error) {
			return gocv.NewMat(), nil
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sink.Capture(tt.surface); !errors.Is(err, ErrCapture) {
				t.Errorf("Capture() error = %v, want ErrCapture", err)
			}
		})
	}
}

func TestSink_DownloadAvoidsCollisions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	sink := NewSink(dir, nil, WithPlayer(nil))

	first, err := sink.Download([]byte("one"), "shot.png")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	second, err := sink.Download([]byte("two"), "shot.png")
	if err != nil {
		t.Fatalf("second Download() error = %v", err)
	}

	if filepath.Base(first) != "shot.png" || filepath.Base(second) != "shot-1.png" {
		t.Errorf("paths = %q, %q", first, second)
	}

	data, err := os.ReadFile(first)
	if err != nil || string(data) != "one" {
		t.Errorf("first file content = %q, %v; want \"one\"", data, err)
	}
}

func TestSink_DownloadRejectsEmptyData(t *testing.T) {
	sink := NewSink(t.TempDir(), nil, WithPlayer(nil))
	if _, err := sink.Download(nil, "x.png"); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestSink_DownloadAll(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(dir, nil, WithPlayer(nil), WithStagger(5*time.Millisecond))

	exports := []Export{
		{Data: []byte("a"), Filename: "a.png"},
		{Data: []byte("b"), Filename: "b.png"},
		{Data: []byte("c"), Filename: "c.png"},
	}

	start := time.Now()
	paths, err := sink.DownloadAll(context.Background(), exports)
	if err != nil {
		t.Fatalf("DownloadAll() error = %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("wrote %d files, want 3", len(paths))
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("DownloadAll() took %v, want staggered writes", elapsed)
	}
}

func TestSink_DownloadAllCancelled(t *testing.T) {
	sink := NewSink(t.TempDir(), nil, WithPlayer(nil), WithStagger(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paths, err := sink.DownloadAll(ctx, []Export{
		{Data: []byte("a"), Filename: "a.png"},
		{Data: []byte("b"), Filename: "b.png"},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(paths) != 1 {
		t.Errorf("wrote %d files before cancellation, want 1", len(paths))
	}
}

type recordingPlayer struct {
	played chan struct{}
	err    error
}

func (p *recordingPlayer) Play() error {
	p.played <- struct{}{}
	return p.err
}

func TestSink_AcknowledgeSwallowsFailures(t *testing.T) {
	player := &recordingPlayer{played: make(chan struct{}, 1), err: errors.New("no audio device")}
	sink := NewSink(t.TempDir(), nil, WithPlayer(player))

	sink.Acknowledge()

	select {
	case <-player.played:
	case <-time.After(time.Second):
		t.Fatal("player was not invoked")
	}
}

func TestSink_AcknowledgeWithoutPlayer(t *testing.T) {
	sink := NewSink(t.TempDir(), nil, WithPlayer(nil))
	sink.Acknowledge()
}

func TestComposite_MirrorsVideo(t *testing.T) {
	video := SurfaceFunc(func() (gocv.Mat, error) {
		frame := gocv.NewMatWithSize(10, 20, gocv.MatTypeCV8UC3)
		gocv.Rectangle(&frame, image.Rect(0, 0, 10, 10), color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
		return frame, nil
	})

	frame, err := (&Composite{Video: video}).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	defer frame.Close()

	if v := frame.GetVecbAt(5, 2); v[0] != 0 {
		t.Errorf("left pixel = %v, want black after mirroring", v)
	}
	if v := frame.GetVecbAt(5, 17); v[0] != 255 {
		t.Errorf("right pixel = %v, want white after mirroring", v)
	}
}

func TestComposite_DrawsThresholdLine(t *testing.T) {
	overlay := NewOverlay()
	overlay.Update(pose.StandingLandmarks().Mirror(), 0.5)

	c := &Composite{Video: solidSurface(200, 100), Overlay: overlay}
	frame, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	defer frame.Close()

	if frame.Cols() != 200 || frame.Rows() != 100 {
		t.Fatalf("composite size = %dx%d, want 200x100", frame.Cols(), frame.Rows())
	}

	// BGR order.
	v := frame.GetVecbAt(5, 100)
	if v[0] != 246 || v[1] != 130 || v[2] != 59 {
		t.Errorf("threshold pixel = %v, want [246 130 59]", v)
	}
	// Gap between dashes.
	if v := frame.GetVecbAt(20, 100); v[0] == 246 && v[1] == 130 {
		t.Errorf("pixel in dash gap is coloured: %v", v)
	}
}

func TestComposite_PropagatesVideoError(t *testing.T) {
	c := &Composite{Video: SurfaceFunc(func() (gocv.Mat, error) {
		return gocv.Mat{}, errors.New("no frame")
	})}

	if _, err := c.Snapshot(); err == nil {
		t.Error("expected error from empty video surface")
	}
}

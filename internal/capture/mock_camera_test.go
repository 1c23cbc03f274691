package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestMockCamera_Playback(t *testing.T) {
	frame1 := SolidFrame(640, 480)
	defer frame1.Close()
	frame2 := SolidFrame(640, 480)
	defer frame2.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame1, &frame2}, false)

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	for i := 0; i < 2; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() %d error = %v", i, err)
		}
		if f.Cols() != 640 || f.Rows() != 480 {
			t.Errorf("frame %d size = %dx%d, want 640x480", i, f.Cols(), f.Rows())
		}
		f.Close()
	}

	if _, err := cam.ReadFrame(); err == nil {
		t.Error("expected error after all frames consumed")
	}
}

func TestMockCamera_Loop(t *testing.T) {
	frame := SolidFrame(320, 240)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.Open()
	defer cam.Close()

	for i := 0; i < 5; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		f.Close()
	}
}

func TestMockCamera_OpenError(t *testing.T) {
	cam := NewMockCamera(nil, false)
	want := &PlatformError{Name: "NotAllowedError"}
	cam.SetOpenError(want)

	if err := cam.Open(); !errors.Is(err, want) {
		t.Errorf("Open() error = %v, want %v", err, want)
	}
	if cam.IsOpen() {
		t.Error("camera should not be open after a rejected Open()")
	}
	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
}

func TestMockOpener(t *testing.T) {
	known := NewMockCamera(nil, false)
	open, history := MockOpener(map[string]*MockCamera{"0": known})

	if cam := open("0"); cam != known {
		t.Error("open(\"0\") did not return the registered camera")
	}

	err := open("7").Open()
	if Categorize(err).Kind != DeviceNotFound {
		t.Errorf("unknown device error = %v, want DeviceNotFound", err)
	}

	got := history()
	if len(got) != 2 || got[0] != "0" || got[1] != "7" {
		t.Errorf("history = %v, want [0 7]", got)
	}
}

package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeNode(t *testing.T, root, node, name, index string) {
	t.Helper()
	dir := filepath.Join(root, node)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if name != "" {
		if err := os.WriteFile(filepath.Join(dir, "name"), []byte(name+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if index != "" {
		if err := os.WriteFile(filepath.Join(dir, "index"), []byte(index+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListVideoDevicesIn(t *testing.T) {
	root := t.TempDir()
	writeNode(t, root, "video10", "USB Camera", "0")
	writeNode(t, root, "video0", "Integrated Webcam", "0")
	writeNode(t, root, "video1", "Integrated Webcam", "1")
	writeNode(t, root, "video2", "", "")
	writeNode(t, root, "v4l-subdev0", "sensor", "0")

	devices, err := listVideoDevicesIn(context.Background(), root)
	if err != nil {
		t.Fatalf("listVideoDevicesIn() error = %v", err)
	}

	want := []DeviceInfo{
		{ID: "0", Label: "Integrated Webcam", Path: "/dev/video0"},
		{ID: "2", Label: "Camera 2", Path: "/dev/video2"},
		{ID: "10", Label: "USB Camera", Path: "/dev/video10"},
	}
	if len(devices) != len(want) {
		t.Fatalf("got %d devices, want %d: %+v", len(devices), len(want), devices)
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Errorf("device %d = %+v, want %+v", i, devices[i], want[i])
		}
	}
}

func TestListVideoDevicesIn_MissingRoot(t *testing.T) {
	devices, err := listVideoDevicesIn(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Errorf("error = %v, want nil", err)
	}
	if len(devices) != 0 {
		t.Errorf("devices = %v, want none", devices)
	}
}

func TestListVideoDevicesIn_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeNode(t, root, "video0", "cam", "0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := listVideoDevicesIn(ctx, root); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestScanDevices(t *testing.T) {
	open, history := MockOpener(map[string]*MockCamera{
		"0": NewMockCamera(nil, false),
		"2": NewMockCamera(nil, false),
	})

	devices, err := ScanDevices(open, ScanLimit)(context.Background())
	if err != nil {
		t.Fatalf("ScanDevices() error = %v", err)
	}
	if len(devices) != 2 || devices[0].ID != "0" || devices[1].ID != "2" {
		t.Errorf("devices = %+v, want ids 0 and 2", devices)
	}
	if got := len(history()); got != ScanLimit {
		t.Errorf("scanned %d indexes, want %d", got, ScanLimit)
	}
}

func TestWithFallback(t *testing.T) {
	empty := func(ctx context.Context) ([]DeviceInfo, error) { return nil, nil }
	one := func(ctx context.Context) ([]DeviceInfo, error) { return []DeviceInfo{{ID: "7"}}, nil }

	devices, err := withFallback(empty, one)(context.Background())
	if err != nil || len(devices) != 1 || devices[0].ID != "7" {
		t.Errorf("fallback = %+v, %v", devices, err)
	}

	devices, _ = withFallback(one, empty)(context.Background())
	if len(devices) != 1 {
		t.Errorf("primary result not used: %+v", devices)
	}
}

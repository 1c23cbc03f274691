package capture

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SysVideoDir is where Linux exposes V4L2 devices.
const SysVideoDir = "/sys/class/video4linux"

// DeviceInfo describes a video input device.
type DeviceInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Path  string `json:"path,omitempty"`
}

// Enumerator lists video input devices.
type Enumerator func(ctx context.Context) ([]DeviceInfo, error)

// ListVideoDevices enumerates capture nodes under SysVideoDir. Metadata nodes
// (index other than 0) are skipped. Platforms without the directory yield an
// empty list.
func ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	return listVideoDevicesIn(ctx, SysVideoDir)
}

func listVideoDevicesIn(ctx context.Context, root string) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	type numbered struct {
		n    int
		info DeviceInfo
	}
	var found []numbered

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}

		dir := filepath.Join(root, name)
		if idx := readTrimmed(filepath.Join(dir, "index")); idx != "" && idx != "0" {
			continue
		}

		label := readTrimmed(filepath.Join(dir, "name"))
		if label == "" {
			label = "Camera " + strconv.Itoa(n)
		}

		found = append(found, numbered{n: n, info: DeviceInfo{
			ID:    strconv.Itoa(n),
			Label: label,
			Path:  "/dev/" + name,
		}})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	devices := make([]DeviceInfo, len(found))
	for i, f := range found {
		devices[i] = f.info
	}
	return devices, nil
}

// ScanLimit is how many device indexes ScanDevices tries.
const ScanLimit = 4

// ScanDevices returns an Enumerator that opens indexes 0..limit-1 and reports
// the ones that open. It is the fallback where no device listing exists.
func ScanDevices(open Opener, limit int) Enumerator {
	return func(ctx context.Context) ([]DeviceInfo, error) {
		var devices []DeviceInfo
		for i := 0; i < limit; i++ {
			if err := ctx.Err(); err != nil {
				return devices, err
			}
			id := strconv.Itoa(i)
			cam := open(id)
			if err := cam.Open(); err != nil {
				continue
			}
			cam.Close()
			devices = append(devices, DeviceInfo{ID: id, Label: "Camera " + id})
		}
		return devices, nil
	}
}

// withFallback uses next when primary finds nothing.
func withFallback(primary, next Enumerator) Enumerator {
	return func(ctx context.Context) ([]DeviceInfo, error) {
		devices, err := primary(ctx)
		if err != nil || len(devices) > 0 {
			return devices, err
		}
		return next(ctx)
	}
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

package capture

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
)

// Kind classifies a device acquisition failure.
type Kind string

const (
	// PermissionDenied means camera access was refused.
	PermissionDenied Kind = "permission_denied"
	// DeviceNotFound means no matching camera is present.
	DeviceNotFound Kind = "device_not_found"
	// DeviceBusy means the camera is held exclusively elsewhere.
	DeviceBusy Kind = "device_busy"
	// DeviceTimeout means the device opened but never produced a frame in time.
	DeviceTimeout Kind = "device_timeout"
	// Unknown covers every other failure.
	Unknown Kind = "unknown"
)

// Message returns user-facing text for the kind.
func (k Kind) Message() string {
	switch k {
	case PermissionDenied:
		return "Camera access was denied. Allow camera access and try again."
	case DeviceNotFound:
		return "No camera was found. Connect a camera and try again."
	case DeviceBusy:
		return "The camera is in use by another application. Close it and try again."
	case DeviceTimeout:
		return "The camera did not start in time. Try again."
	default:
		return "The camera could not be started. Try again."
	}
}

// DeviceError reports a failed camera acquisition.
type DeviceError struct {
	Kind Kind
	// Name is the platform error name when one was reported, e.g. NotAllowedError.
	Name string
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("camera: %s", e.Kind)
	}
	return fmt.Sprintf("camera: %s: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// PlatformError is a rejection that carries a platform error name.
type PlatformError struct {
	Name    string
	Message string
}

func (e *PlatformError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// KindForName maps a platform error name to a Kind.
func KindForName(name string) Kind {
	switch name {
	case "NotAllowedError", "PermissionDeniedError", "SecurityError":
		return PermissionDenied
	case "NotFoundError", "DevicesNotFoundError", "OverconstrainedError":
		return DeviceNotFound
	case "NotReadableError", "TrackStartError", "AbortError":
		return DeviceBusy
	default:
		return Unknown
	}
}

// Categorize converts an acquisition error into a *DeviceError. Existing
// DeviceErrors are returned unchanged and nil stays nil.
func Categorize(err error) *DeviceError {
	if err == nil {
		return nil
	}

	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr
	}

	var platErr *PlatformError
	if errors.As(err, &platErr) {
		return &DeviceError{Kind: KindForName(platErr.Name), Name: platErr.Name, Err: err}
	}

	switch {
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return &DeviceError{Kind: PermissionDenied, Err: err}
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		return &DeviceError{Kind: DeviceNotFound, Err: err}
	case errors.Is(err, syscall.EBUSY):
		return &DeviceError{Kind: DeviceBusy, Err: err}
	}

	// OpenCV only reports text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"):
		return &DeviceError{Kind: PermissionDenied, Err: err}
	case strings.Contains(msg, "device or resource busy"):
		return &DeviceError{Kind: DeviceBusy, Err: err}
	case strings.Contains(msg, "no such file"), strings.Contains(msg, "no such device"):
		return &DeviceError{Kind: DeviceNotFound, Err: err}
	}
	return &DeviceError{Kind: Unknown, Err: err}
}

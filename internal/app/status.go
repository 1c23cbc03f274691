package app

import (
	"time"

	"github.com/ayusman/swipeshot/internal/gesture"
	"github.com/ayusman/swipeshot/internal/store"
)

// State is the orchestration lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateDetecting    State = "detecting"
	StateStopped      State = "stopped"
)

// LastCaptureTTL is how long the last-capture notice stays visible.
const LastCaptureTTL = 3 * time.Second

// CameraStatus describes the capture device.
type CameraStatus struct {
	Active    bool   `json:"active"`
	Device    string `json:"device,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// ModelStatus describes the pose model.
type ModelStatus struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// CaptureNotice is the short-lived acknowledgement of the latest capture.
type CaptureNotice struct {
	ID       string       `json:"id"`
	Filename string       `json:"filename"`
	Origin   store.Origin `json:"origin"`
	At       time.Time    `json:"at"`
}

// Status is a point-in-time view of the whole pipeline.
type Status struct {
	State        State          `json:"state"`
	Camera       CameraStatus   `json:"camera"`
	Model        ModelStatus    `json:"model"`
	Progress     float64        `json:"progress"`
	Settings     SettingsView   `json:"settings"`
	Preferences  Preferences    `json:"preferences"`
	LastCapture  *CaptureNotice `json:"last_capture,omitempty"`
	CaptureError string         `json:"capture_error,omitempty"`
}

// SettingsView renders recognizer settings in slider units.
type SettingsView struct {
	ThresholdPercent int `json:"threshold_percent"`
	DelaySeconds     int `json:"delay_seconds"`
}

// NewSettingsView converts recognizer settings to slider units.
func NewSettingsView(s gesture.Settings) SettingsView {
	return SettingsView{
		ThresholdPercent: s.ThresholdPercent(),
		DelaySeconds:     int(s.Cooldown / time.Second),
	}
}

// EventType names an Event.
type EventType string

const (
	EventReading EventType = "reading"
	EventCapture EventType = "capture"
	EventStatus  EventType = "status"
)

// Event is delivered to subscribers.
type Event struct {
	Type    EventType        `json:"type"`
	Reading *gesture.Reading `json:"reading,omitempty"`
	Capture *store.Capture   `json:"capture,omitempty"`
	Status  *Status          `json:"status,omitempty"`
}

// Listener receives events. It is called on the detection goroutine and must not block.
type Listener func(Event)

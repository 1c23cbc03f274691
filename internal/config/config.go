// Package config loads and validates swipeshot configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/swipeshot/internal/gesture"
	"github.com/ayusman/swipeshot/internal/pose"
)

// Slider bounds exposed to the user.
const (
	MinThresholdPercent = 50
	MaxThresholdPercent = 95
	MinDelaySeconds     = 0
	MaxDelaySeconds     = 5
)

// Capture sources.
const (
	SourceVideo   = "video"
	SourceOverlay = "overlay"
	SourceScreen  = "screen"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Gesture GestureConfig `yaml:"gesture" json:"gesture"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`
	Camera  CameraConfig  `yaml:"camera" json:"camera"`
	Pose    pose.Config   `yaml:"pose" json:"pose"`
	Debug   bool          `yaml:"debug" json:"debug"`
	Tray    bool          `yaml:"tray" json:"tray"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr" json:"addr" validate:"required"`
	StaticDir string `yaml:"static_dir" json:"static_dir"`
}

// GestureConfig holds the slider values as the user sees them.
type GestureConfig struct {
	ThresholdPercent int  `yaml:"threshold_percent" json:"threshold_percent"`
	DelaySeconds     int  `yaml:"delay_seconds" json:"delay_seconds"`
	AutoCapture      bool `yaml:"auto_capture" json:"auto_capture"`
}

// CaptureConfig configures what is captured and where exports go.
type CaptureConfig struct {
	Source       string `yaml:"source" json:"source" validate:"oneof=video overlay screen"`
	ExportDir    string `yaml:"export_dir" json:"export_dir" validate:"required"`
	Sound        bool   `yaml:"sound" json:"sound"`
	ShowSkeleton bool   `yaml:"show_skeleton" json:"show_skeleton"`
}

// CameraConfig selects the initial device.
type CameraConfig struct {
	Device string `yaml:"device" json:"device"`
	FPS    int    `yaml:"fps" json:"fps" validate:"gte=1,lte=60"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Gesture: GestureConfig{
			ThresholdPercent: 75,
			DelaySeconds:     2,
			AutoCapture:      true,
		},
		Capture: CaptureConfig{
			Source:       SourceOverlay,
			ExportDir:    DefaultExportDir(),
			Sound:        true,
			ShowSkeleton: true,
		},
		Camera: CameraConfig{FPS: 30},
		Pose:   pose.DefaultConfig(),
	}
}

// DefaultExportDir returns ~/Pictures/swipeshot, or a relative dir without a home.
func DefaultExportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "swipeshot-captures"
	}
	return filepath.Join(home, "Pictures", "swipeshot")
}

// DefaultPath returns ~/.swipeshot/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".swipeshot", "config.yaml")
}

var validate = validator.New()

// Validate clamps the slider values into range and checks the remaining fields.
func (c *Config) Validate() error {
	c.Gesture.ThresholdPercent = clampInt(c.Gesture.ThresholdPercent, MinThresholdPercent, MaxThresholdPercent)
	c.Gesture.DelaySeconds = clampInt(c.Gesture.DelaySeconds, MinDelaySeconds, MaxDelaySeconds)
	c.Pose.MinDetectionConfidence = clampFloat(c.Pose.MinDetectionConfidence, 0, 1)
	c.Pose.MinTrackingConfidence = clampFloat(c.Pose.MinTrackingConfidence, 0, 1)
	c.Capture.ExportDir = ExpandHome(c.Capture.ExportDir)

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GestureSettings converts the slider values into recognizer settings.
func (c *Config) GestureSettings() gesture.Settings {
	return gesture.Settings{
		Threshold: float64(c.Gesture.ThresholdPercent) / 100,
		Cooldown:  time.Duration(c.Gesture.DelaySeconds) * time.Second,
	}.Normalize()
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

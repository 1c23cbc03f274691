// Package app wires the camera, pose source, gesture recognizer and capture
// sink into the detection loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/swipeshot/internal/capture"
	"github.com/ayusman/swipeshot/internal/config"
	"github.com/ayusman/swipeshot/internal/gesture"
	"github.com/ayusman/swipeshot/internal/metrics"
	"github.com/ayusman/swipeshot/internal/pose"
	"github.com/ayusman/swipeshot/internal/screenshot"
	"github.com/ayusman/swipeshot/internal/store"
)

// Preferences are the user toggles that do not belong to the recognizer.
type Preferences struct {
	AutoCapture  bool   `json:"auto_capture"`
	Source       string `json:"source" validate:"oneof=video overlay screen"`
	Sound        bool   `json:"sound"`
	ShowSkeleton bool   `json:"show_skeleton"`
}

// PreferencesFrom extracts Preferences from a loaded configuration.
func PreferencesFrom(cfg *config.Config) Preferences {
	return Preferences{
		AutoCapture:  cfg.Gesture.AutoCapture,
		Source:       cfg.Capture.Source,
		Sound:        cfg.Capture.Sound,
		ShowSkeleton: cfg.Capture.ShowSkeleton,
	}
}

// Config holds the components the App orchestrates. The App does not create
// them, but it stops the camera on Close and releases the pose model on Shutdown.
type Config struct {
	Camera     *capture.Manager
	Viewfinder *capture.Viewfinder
	Pose       *pose.Source
	Recognizer *gesture.Recognizer
	Sink       *screenshot.Sink
	Store      *store.Store
	Metrics    *metrics.Collector
	Logger     *zap.Logger

	// Device is the preferred camera. Empty selects the first enumerated device.
	Device      string
	Preferences Preferences
}

// App is the orchestration loop.
type App struct {
	camera     *capture.Manager
	viewfinder *capture.Viewfinder
	pose       *pose.Source
	recognizer *gesture.Recognizer
	sink       *screenshot.Sink
	store      *store.Store
	metrics    *metrics.Collector
	logger     *zap.Logger
	overlay    *screenshot.Overlay
	desktop    screenshot.Surface
	now        func() time.Time

	// lifecycle serializes Start, SelectDevice and Close.
	lifecycle  sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	captureMu sync.Mutex

	mu           sync.RWMutex
	state        State
	device       string
	prefs        Preferences
	cameraStatus CameraStatus
	modelStatus  ModelStatus
	progress     float64
	lastCapture  *CaptureNotice
	captureError string
	estimateErrs int

	subMu     sync.RWMutex
	listeners map[int]Listener
	nextSub   int
}

// New creates an App in the idle state.
func New(cfg Config) (*App, error) {
	switch {
	case cfg.Camera == nil:
		return nil, errors.New("app: camera manager is required")
	case cfg.Viewfinder == nil:
		return nil, errors.New("app: viewfinder is required")
	case cfg.Pose == nil:
		return nil, errors.New("app: pose source is required")
	case cfg.Recognizer == nil:
		return nil, errors.New("app: recognizer is required")
	case cfg.Sink == nil:
		return nil, errors.New("app: capture sink is required")
	case cfg.Store == nil:
		return nil, errors.New("app: store is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	prefs := cfg.Preferences
	if prefs.Source == "" {
		prefs.Source = config.SourceOverlay
	}

	a := &App{
		camera:     cfg.Camera,
		viewfinder: cfg.Viewfinder,
		pose:       cfg.Pose,
		recognizer: cfg.Recognizer,
		sink:       cfg.Sink,
		store:      cfg.Store,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		overlay:    screenshot.NewOverlay(),
		desktop:    screenshot.Desktop{},
		now:        time.Now,
		state:      StateIdle,
		device:     cfg.Device,
		prefs:      prefs,
		listeners:  make(map[int]Listener),
	}
	a.overlay.SetSkeleton(prefs.ShowSkeleton)
	return a, nil
}

// Start brings up the pose model and the camera concurrently and enters
// detection once both are ready. Failures are recorded in Status and returned
// for logging; the App stays usable and Start may be called again to retry.
func (a *App) Start(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.State() == StateDetecting {
		// The loop is running but the model may have been dropped after a crash.
		if a.pose.Ready() {
			return nil
		}
		return a.ensureModel(ctx)
	}
	a.setState(StateInitializing)

	var modelErr, cameraErr error
	var g errgroup.Group
	g.Go(func() error {
		modelErr = a.ensureModel(ctx)
		return nil
	})
	g.Go(func() error {
		if a.camera.Active() {
			return nil
		}
		cameraErr = a.startCamera(ctx, a.Device())
		return nil
	})
	g.Wait()

	if err := errors.Join(modelErr, cameraErr); err != nil {
		a.setState(StateReady)
		return err
	}
	a.startLoop()
	return nil
}

// Close stops detection and the camera. The pose model stays loaded so a
// later Start is fast.
func (a *App) Close() error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.stopLoop()
	err := a.camera.Stop()
	a.setCamera(CameraStatus{Device: a.Device()})
	a.setState(StateStopped)
	a.logger.Info("detection stopped")
	return err
}

// Shutdown closes the App and releases the pose model.
func (a *App) Shutdown() error {
	err := a.Close()
	if relErr := a.pose.Release(); relErr != nil {
		err = errors.Join(err, relErr)
	}
	a.setModel(ModelStatus{})
	return err
}

// SelectDevice switches to deviceID. The detection loop is stopped and
// joined before the old stream is released, so no in-flight estimate can
// touch state after the switch. Detection resumes if the model is loaded.
func (a *App) SelectDevice(ctx context.Context, deviceID string) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.stopLoop()
	if err := a.camera.Stop(); err != nil {
		a.logger.Warn("failed to release camera", zap.Error(err))
	}

	a.mu.Lock()
	a.device = deviceID
	a.mu.Unlock()

	if err := a.startCamera(ctx, deviceID); err != nil {
		a.setState(StateReady)
		return err
	}
	if !a.pose.Ready() {
		a.setState(StateReady)
		return nil
	}
	a.startLoop()
	return nil
}

// ListDevices enumerates cameras within capture.EnumerateTimeout.
func (a *App) ListDevices(ctx context.Context) ([]capture.DeviceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, capture.EnumerateTimeout)
	defer cancel()
	return a.camera.ListDevices(ctx)
}

// RequestPermission checks camera access without starting a stream.
func (a *App) RequestPermission(ctx context.Context) error {
	err := a.camera.RequestPermission(ctx)
	if err != nil {
		a.recordCameraError(a.Device(), err)
	}
	return err
}

// Settings returns the recognizer settings.
func (a *App) Settings() gesture.Settings {
	return a.recognizer.Settings()
}

// ApplySettings updates threshold and cooldown. The threshold is clamped into
// its allowed range.
func (a *App) ApplySettings(s gesture.Settings) gesture.Settings {
	a.recognizer.Apply(s)
	applied := a.recognizer.Settings()
	a.logger.Info("gesture settings applied",
		zap.Int("threshold_percent", applied.ThresholdPercent()),
		zap.Duration("cooldown", applied.Cooldown),
	)
	a.publishStatus()
	return applied
}

// Preferences returns the current user toggles.
func (a *App) Preferences() Preferences {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.prefs
}

// SetPreferences replaces the user toggles.
func (a *App) SetPreferences(p Preferences) error {
	switch p.Source {
	case config.SourceVideo, config.SourceOverlay, config.SourceScreen:
	default:
		return fmt.Errorf("unknown capture source %q", p.Source)
	}
	a.mu.Lock()
	a.prefs = p
	a.mu.Unlock()
	a.overlay.SetSkeleton(p.ShowSkeleton)
	a.publishStatus()
	return nil
}

// SetAutoCapture toggles gesture-triggered captures.
func (a *App) SetAutoCapture(enabled bool) {
	a.mu.Lock()
	a.prefs.AutoCapture = enabled
	a.mu.Unlock()
	a.logger.Info("auto capture toggled", zap.Bool("enabled", enabled))
	a.publishStatus()
}

// ApplyConfig applies a reloaded configuration file.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.ApplySettings(cfg.GestureSettings())
	if err := a.SetPreferences(PreferencesFrom(cfg)); err != nil {
		a.logger.Warn("ignoring reloaded preferences", zap.Error(err))
	}
}

// Device returns the selected camera id.
func (a *App) Device() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.device
}

// State returns the lifecycle state.
func (a *App) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Status returns a snapshot of the pipeline.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Status{
		State:        a.state,
		Camera:       a.cameraStatus,
		Model:        a.modelStatus,
		Progress:     a.progress,
		Settings:     NewSettingsView(a.recognizer.Settings()),
		Preferences:  a.prefs,
		CaptureError: a.captureError,
	}
	if a.lastCapture != nil && a.now().Sub(a.lastCapture.At) < LastCaptureTTL {
		notice := *a.lastCapture
		st.LastCapture = &notice
	}
	return st
}

// Overlay returns the overlay rendered on top of the video.
func (a *App) Overlay() *screenshot.Overlay {
	return a.overlay
}

// Viewfinder returns the frame holder fed by the camera.
func (a *App) Viewfinder() *capture.Viewfinder {
	return a.viewfinder
}

// Subscribe registers l for pipeline events and returns a function that
// removes it.
func (a *App) Subscribe(l Listener) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	id := a.nextSub
	a.nextSub++
	a.listeners[id] = l
	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *App) publish(e Event) {
	a.subMu.RLock()
	listeners := make([]Listener, 0, len(a.listeners))
	for _, l := range a.listeners {
		listeners = append(listeners, l)
	}
	a.subMu.RUnlock()

	for _, l := range listeners {
		l(e)
	}
}

func (a *App) publishStatus() {
	st := a.Status()
	a.publish(Event{Type: EventStatus, Status: &st})
}

func (a *App) ensureModel(ctx context.Context) error {
	if err := a.pose.EnsureReady(ctx); err != nil {
		a.logger.Error("pose model unavailable", zap.Error(err))
		a.setModel(ModelStatus{Error: err.Error()})
		return err
	}
	a.setModel(ModelStatus{Ready: true})
	return nil
}

// syncModel reflects a model that was dropped or reloaded by the detection
// loop. err is the estimate failure, or nil after a successful estimate.
func (a *App) syncModel(err error) {
	ready := err == nil || a.pose.Ready()
	a.mu.Lock()
	prev := a.modelStatus
	a.mu.Unlock()

	switch {
	case ready && !prev.Ready && err == nil:
		a.logger.Info("pose model recovered")
		a.setModel(ModelStatus{Ready: true})
	case !ready:
		msg := "Pose model stopped: " + err.Error()
		if !prev.Ready && prev.Error == msg {
			return
		}
		a.setModel(ModelStatus{Error: msg})
	default:
		return
	}
	a.publishStatus()
}

// startCamera starts deviceID, or the first enumerated device when empty.
// Enumeration failures fall back to the default device.
func (a *App) startCamera(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		devices, err := a.ListDevices(ctx)
		switch {
		case err != nil:
			a.logger.Warn("device enumeration failed, using default device", zap.Error(err))
		case len(devices) > 0:
			deviceID = devices[0].ID
		}
	}

	if err := a.camera.Start(ctx, a.viewfinder, deviceID); err != nil {
		a.recordCameraError(deviceID, err)
		return err
	}

	a.metrics.ObserveDeviceStart("ok")
	w, h := a.viewfinder.Size()
	a.setCamera(CameraStatus{Active: true, Device: a.camera.DeviceID(), Width: w, Height: h})
	return nil
}

func (a *App) recordCameraError(deviceID string, err error) {
	st := CameraStatus{Device: deviceID, Error: err.Error(), ErrorKind: string(capture.Unknown)}
	var devErr *capture.DeviceError
	if errors.As(err, &devErr) {
		st.Error = devErr.Kind.Message()
		st.ErrorKind = string(devErr.Kind)
	}
	a.metrics.ObserveDeviceStart(st.ErrorKind)
	a.setCamera(st)
}

func (a *App) startLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.loopCancel = cancel
	a.loopDone = done
	a.setState(StateDetecting)

	go func() {
		defer close(done)
		a.runPipeline(ctx)
	}()
	a.logger.Info("detection started", zap.String("device", a.camera.DeviceID()))
}

// stopLoop cancels the detection loop and waits for it to exit.
func (a *App) stopLoop() {
	if a.loopCancel == nil {
		return
	}
	a.loopCancel()
	<-a.loopDone
	a.loopCancel = nil
	a.loopDone = nil
}

func (a *App) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.publishStatus()
}

func (a *App) setCamera(st CameraStatus) {
	a.mu.Lock()
	a.cameraStatus = st
	a.mu.Unlock()
}

func (a *App) setModel(st ModelStatus) {
	a.mu.Lock()
	a.modelStatus = st
	a.mu.Unlock()
}

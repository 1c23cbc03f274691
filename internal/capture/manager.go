package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Timeouts applied around device acquisition.
const (
	StartTimeout     = 20 * time.Second
	EnumerateTimeout = 3 * time.Second
)

// Manager owns at most one active camera stream and pumps its frames into a Sink.
type Manager struct {
	open         Opener
	enumerate    Enumerator
	logger       *zap.Logger
	startTimeout time.Duration

	mu       sync.Mutex
	cam      Camera
	deviceID string
	sink     Sink
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithOpener replaces the camera constructor.
func WithOpener(open Opener) Option {
	return func(m *Manager) { m.open = open }
}

// WithEnumerator replaces device enumeration.
func WithEnumerator(enumerate Enumerator) Option {
	return func(m *Manager) { m.enumerate = enumerate }
}

// WithStartTimeout overrides StartTimeout.
func WithStartTimeout(d time.Duration) Option {
	return func(m *Manager) { m.startTimeout = d }
}

// NewManager creates a Manager backed by GoCV cameras and V4L2 enumeration,
// falling back to probing device indexes.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		open:         NewCamera,
		logger:       logger,
		startTimeout: StartTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.enumerate == nil {
		m.enumerate = withFallback(ListVideoDevices, ScanDevices(m.open, ScanLimit))
	}
	return m
}

// Start acquires deviceID (DefaultDevice when empty), binds it to sink and
// returns once the sink holds a frame. Any active stream is released first.
// Failures are returned as *DeviceError.
func (m *Manager) Start(ctx context.Context, sink Sink, deviceID string) error {
	if err := m.Stop(); err != nil {
		m.logger.Warn("failed to release previous stream", zap.Error(err))
	}
	if deviceID == "" {
		deviceID = DefaultDevice
	}

	cam := m.open(deviceID)
	if err := cam.Open(); err != nil {
		devErr := Categorize(err)
		m.logger.Error("camera acquisition rejected",
			zap.String("device", deviceID),
			zap.String("kind", string(devErr.Kind)),
			zap.Error(err),
		)
		return devErr
	}

	sink.Reset()
	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	playing := make(chan struct{})

	m.mu.Lock()
	m.cam = cam
	m.deviceID = deviceID
	m.sink = sink
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.pump(pumpCtx, cam, sink, playing, done)

	timer := time.NewTimer(m.startTimeout)
	defer timer.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-poll.C:
			select {
			case <-playing:
				if sink.Ready() {
					m.logger.Info("camera started", zap.String("device", deviceID))
					return nil
				}
			default:
			}
		case <-timer.C:
			// A driver stuck in Read must not hold the caller past the bound.
			m.releaseInBackground()
			return &DeviceError{
				Kind: DeviceTimeout,
				Err:  fmt.Errorf("device %s produced no frame within %v", deviceID, m.startTimeout),
			}
		case <-ctx.Done():
			m.releaseInBackground()
			return ctx.Err()
		}
	}
}

func (m *Manager) pump(ctx context.Context, cam Camera, sink Sink, playing, done chan struct{}) {
	defer close(done)

	fps := cam.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	started := false
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := cam.ReadFrame()
		if err != nil {
			failures++
			if failures == 1 || failures%100 == 0 {
				m.logger.Warn("frame read failed", zap.Int("consecutive", failures), zap.Error(err))
			}
			continue
		}
		failures = 0

		if ctx.Err() != nil {
			frame.Close()
			return
		}
		sink.Put(frame)
		if !started {
			started = true
			close(playing)
		}
	}
}

// Stop releases the active stream. It is a no-op when nothing is active.
func (m *Manager) Stop() error {
	st := m.detach()
	if st == nil {
		return nil
	}
	<-st.done
	st.sink.Reset()
	return m.closeStream(st)
}

// releaseInBackground detaches the active stream at once and closes the
// camera after its pump has exited.
func (m *Manager) releaseInBackground() {
	st := m.detach()
	if st == nil {
		return
	}
	st.sink.Reset()
	go func() {
		<-st.done
		if err := m.closeStream(st); err != nil {
			m.logger.Warn("failed to release stream", zap.Error(err))
		}
	}()
}

type stream struct {
	cam      Camera
	sink     Sink
	done     chan struct{}
	deviceID string
}

// detach clears the active stream and cancels its pump.
func (m *Manager) detach() *stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cam == nil {
		return nil
	}
	st := &stream{cam: m.cam, sink: m.sink, done: m.done, deviceID: m.deviceID}
	m.cancel()
	m.cam, m.sink, m.cancel, m.done = nil, nil, nil, nil
	m.deviceID = ""
	return st
}

func (m *Manager) closeStream(st *stream) error {
	if err := st.cam.Close(); err != nil {
		return fmt.Errorf("close device %s: %w", st.deviceID, err)
	}
	m.logger.Info("camera stopped", zap.String("device", st.deviceID))
	return nil
}

// Active reports whether a stream is running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cam != nil
}

// DeviceID returns the id of the active stream, or "" when none is active.
func (m *Manager) DeviceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceID
}

// ListDevices enumerates video input devices. The result may be empty.
// Enumeration may be slow, so callers should bound ctx with EnumerateTimeout.
func (m *Manager) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	type result struct {
		devices []DeviceInfo
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		devices, err := m.enumerate(ctx)
		ch <- result{devices, err}
	}()

	select {
	case r := <-ch:
		return r.devices, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestPermission acquires and immediately releases the default device
// without binding a sink.
func (m *Manager) RequestPermission(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Active() {
		return nil
	}

	cam := m.open(DefaultDevice)
	if err := cam.Open(); err != nil {
		return Categorize(err)
	}
	return cam.Close()
}

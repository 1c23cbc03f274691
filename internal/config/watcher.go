package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DebounceDelay collapses bursts of write events into one reload.
const DebounceDelay = 500 * time.Millisecond

// Watcher reloads the config file when it changes and notifies subscribers.
type Watcher struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	delay   time.Duration

	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// reloadMu serializes reloads with Close; closed is guarded by it.
	reloadMu sync.Mutex
	closed   bool
}

// NewWatcher starts watching path. The parent directory is watched so that
// editors that replace the file on save are picked up.
func NewWatcher(path string, initial *Config, logger *zap.Logger) (*Watcher, error) {
	return newWatcher(path, initial, logger, DebounceDelay)
}

func newWatcher(path string, initial *Config, logger *zap.Logger, delay time.Duration) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:    abs,
		logger:  logger,
		watcher: fsw,
		delay:   delay,
		current: initial,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.watchLoop()

	logger.Info("configuration hot reloading enabled", zap.String("path", abs))
	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to be called with every successfully reloaded config.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Close stops watching. It waits for a reload that is already running, and no
// callback runs after it returns. Callbacks must not call Close.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done

	w.reloadMu.Lock()
	w.closed = true
	w.reloadMu.Unlock()
	return nil
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	defer w.watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug("configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.delay, w.fire)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

// fire runs a debounced reload unless the watcher has been closed.
func (w *Watcher) fire() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	if w.closed {
		return
	}
	select {
	case <-w.stopCh:
		return
	default:
	}
	w.reload()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("invalid configuration after reload, keeping previous", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := append(([]func(*Config))(nil), w.callbacks...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
	w.logger.Info("configuration reloaded",
		zap.Int("threshold_percent", cfg.Gesture.ThresholdPercent),
		zap.Int("delay_seconds", cfg.Gesture.DelaySeconds),
		zap.Int("callbacks_notified", len(callbacks)),
	)
}

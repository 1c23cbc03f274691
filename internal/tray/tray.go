// Package tray provides a system tray menu for swipeshot.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(enabled bool)
	onCapture  func()
	onSettings func()
	onQuit     func()
	enabled    bool
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuLastCapture *systray.MenuItem
}

// New creates a Tray with auto capture in the given state.
func New(autoCapture bool) *Tray {
	return &Tray{
		enabled: autoCapture,
	}
}

// OnToggle sets the callback called when auto capture is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnCapture sets the callback called when "Capture now" is clicked.
func (t *Tray) OnCapture(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCapture = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Swipeshot")
	systray.SetTooltip("Swipeshot gesture capture")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle gesture-triggered capture")
	systray.AddSeparator()

	t.menuLastCapture = systray.AddMenuItem("Last: none", "Most recent capture")
	t.menuLastCapture.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuCapture := systray.AddMenuItem("Capture now", "Take a capture immediately")
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Swipeshot")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuCapture.ClickedCh:
				t.call(t.onCaptureFn())
			case <-menuSettings.ClickedCh:
				t.call(t.onSettingsFn())
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Auto capture"
	}
	return "○ Auto capture"
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

func (t *Tray) onCaptureFn() func() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onCapture
}

func (t *Tray) onSettingsFn() func() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onSettings
}

func (t *Tray) call(fn func()) {
	if fn != nil {
		fn()
	}
}

// SetEnabled reflects an auto capture change made elsewhere.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetLastCapture updates the last capture label.
func (t *Tray) SetLastCapture(filename string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastCapture != nil {
		if filename == "" {
			t.menuLastCapture.SetTitle("Last: none")
		} else {
			t.menuLastCapture.SetTitle("Last: " + filename)
		}
	}
}

// IsEnabled returns the current auto capture state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/png"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/swipeshot/internal/config"
	"github.com/ayusman/swipeshot/internal/gesture"
	"github.com/ayusman/swipeshot/internal/pose"
	"github.com/ayusman/swipeshot/internal/screenshot"
	"github.com/ayusman/swipeshot/internal/store"
)

// estimateErrLogEvery throttles repeated estimate failures in the log.
const estimateErrLogEvery = 100

// runPipeline processes one frame per new viewfinder frame until ctx is done.
func (a *App) runPipeline(ctx context.Context) {
	var seq uint64
	for {
		frame, next, err := a.viewfinder.Next(ctx, seq)
		if err != nil {
			return
		}
		seq = next
		a.processFrame(ctx, &frame)
		frame.Close()
	}
}

func (a *App) processFrame(ctx context.Context, frame *gocv.Mat) {
	start := time.Now()
	result, err := a.pose.Estimate(ctx, frame)
	empty := err == nil && result.Empty()
	a.metrics.ObserveEstimate(time.Since(start), err, empty)

	// A device switch or shutdown may have happened while the model was busy.
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		a.estimateFailed(err)
		a.syncModel(err)
		return
	}
	a.syncModel(nil)
	a.mu.Lock()
	a.estimateErrs = 0
	autoCapture := a.prefs.AutoCapture
	a.mu.Unlock()

	var mirrored pose.Landmarks
	if !empty {
		mirrored = result.Landmarks.Mirror()
	}

	var reading gesture.Reading
	if autoCapture {
		reading = a.recognizer.Evaluate(mirrored)
	} else {
		settings := a.recognizer.Settings()
		reading = gesture.Reading{
			Progress:  a.recognizer.Progress(mirrored),
			Threshold: settings.Threshold,
			At:        a.now(),
		}
	}

	a.overlay.Update(mirrored, reading.Threshold)
	a.mu.Lock()
	a.progress = reading.Progress
	a.mu.Unlock()
	a.metrics.Progress.Set(reading.Progress)
	a.publish(Event{Type: EventReading, Reading: &reading})

	if !reading.Triggered {
		return
	}
	a.metrics.Triggers.Inc()
	a.logger.Info("sweep gesture detected", zap.Float64("progress", reading.Progress))
	if _, err := a.Capture(store.OriginAuto); err != nil {
		a.logger.Warn("auto capture failed", zap.Error(err))
	}
}

func (a *App) estimateFailed(err error) {
	a.mu.Lock()
	a.estimateErrs++
	n := a.estimateErrs
	a.mu.Unlock()

	if n == 1 || n%estimateErrLogEvery == 0 {
		a.logger.Warn("pose estimate failed",
			zap.Error(err),
			zap.Int("consecutive", n),
		)
	}
}

// Capture snapshots the configured surface, stores the result and plays the
// shutter cue. It is used for both gesture-triggered and manual captures.
func (a *App) Capture(origin store.Origin) (*store.Capture, error) {
	a.captureMu.Lock()
	defer a.captureMu.Unlock()

	prefs := a.Preferences()
	data, err := a.sink.Capture(a.surface(prefs.Source))
	if err != nil {
		return nil, a.captureFailed(err)
	}

	c := &store.Capture{
		Origin:    origin,
		Source:    prefs.Source,
		Data:      data,
		CreatedAt: a.now(),
	}
	c.Filename = screenshot.Filename(c.CreatedAt)
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		c.Width, c.Height = cfg.Width, cfg.Height
	}
	if err := a.store.Captures().Add(c); err != nil {
		return nil, a.captureFailed(err)
	}

	if prefs.Sound {
		a.sink.Acknowledge()
	}
	a.metrics.Captures.WithLabelValues(string(origin)).Inc()
	a.logger.Info("capture stored",
		zap.String("id", c.ID),
		zap.String("origin", string(origin)),
		zap.String("source", prefs.Source),
		zap.Int("size", c.Size),
	)

	a.mu.Lock()
	a.captureError = ""
	a.lastCapture = &CaptureNotice{ID: c.ID, Filename: c.Filename, Origin: origin, At: c.CreatedAt}
	a.mu.Unlock()

	a.publish(Event{Type: EventCapture, Capture: c})
	a.publishStatus()
	return c, nil
}

func (a *App) captureFailed(err error) error {
	a.metrics.CaptureErrors.Inc()
	msg := "Capture failed."
	if errors.Is(err, screenshot.ErrCapture) {
		msg = "Nothing to capture yet. Wait for the camera to start."
	}
	a.mu.Lock()
	a.captureError = msg
	a.mu.Unlock()
	a.publishStatus()
	return err
}

func (a *App) surface(source string) screenshot.Surface {
	switch source {
	case config.SourceVideo:
		return a.viewfinder
	case config.SourceScreen:
		return a.desktop
	default:
		return &screenshot.Composite{Video: a.viewfinder, Overlay: a.overlay}
	}
}

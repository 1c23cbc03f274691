package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/ayusman/swipeshot/internal/screenshot"
	"github.com/ayusman/swipeshot/internal/store"
)

// Captures lists stored captures, most recent first, without image data.
func (a *App) Captures() ([]*store.Capture, error) {
	return a.store.Captures().List()
}

// CaptureByID returns one capture with its image data.
func (a *App) CaptureByID(id string) (*store.Capture, error) {
	return a.store.Captures().Get(id)
}

// DeleteCapture removes exactly the capture with id.
func (a *App) DeleteCapture(id string) error {
	if err := a.store.Captures().Delete(id); err != nil {
		return err
	}
	a.logger.Info("capture deleted", zap.String("id", id))
	return nil
}

// ClearCaptures removes every capture and returns how many were removed.
func (a *App) ClearCaptures() (int64, error) {
	n, err := a.store.Captures().DeleteAll()
	if err != nil {
		return 0, err
	}
	a.logger.Info("gallery cleared", zap.Int64("removed", n))
	return n, nil
}

// Export writes captures to the export directory. With no ids every capture
// is exported, oldest first. It returns the paths written.
func (a *App) Export(ctx context.Context, ids ...string) ([]string, error) {
	var captures []*store.Capture
	if len(ids) == 0 {
		all, err := a.store.Captures().ListWithData()
		if err != nil {
			return nil, err
		}
		for i := len(all) - 1; i >= 0; i-- {
			captures = append(captures, all[i])
		}
	} else {
		for _, id := range ids {
			c, err := a.store.Captures().Get(id)
			if err != nil {
				return nil, err
			}
			captures = append(captures, c)
		}
	}

	exports := make([]screenshot.Export, len(captures))
	for i, c := range captures {
		exports[i] = screenshot.Export{Data: c.Data, Filename: c.Filename}
	}
	return a.sink.DownloadAll(ctx, exports)
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/swipeshot/internal/screenshot"
)

// streamInterval caps the preview at roughly 15 FPS.
const streamInterval = 66 * time.Millisecond

// FrameSource yields frames newer than a sequence number.
type FrameSource interface {
	Next(ctx context.Context, afterSeq uint64) (gocv.Mat, uint64, error)
}

// StreamHandler serves the preview as MJPEG. Frames are mirrored and carry the
// overlay unless ?raw=1 is given.
type StreamHandler struct {
	frames  FrameSource
	overlay *screenshot.Overlay
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(frames FrameSource, overlay *screenshot.Overlay) *StreamHandler {
	return &StreamHandler{frames: frames, overlay: overlay}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, _ := strconv.ParseBool(r.URL.Query().Get("raw"))

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	var seq uint64
	for {
		frame, next, err := h.frames.Next(ctx, seq)
		if err != nil {
			return
		}
		seq = next

		if !raw {
			composite := &screenshot.Composite{
				Video:   screenshot.SurfaceFunc(func() (gocv.Mat, error) { return frame, nil }),
				Overlay: h.overlay,
			}
			// Composite draws on the frame in place.
			if frame, err = composite.Snapshot(); err != nil {
				continue
			}
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
		frame.Close()
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		w.Write(buf.GetBytes())
		fmt.Fprintf(w, "\r\n")
		buf.Close()

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(streamInterval):
		}
	}
}

package screenshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrCapture is returned when the surface has nothing to render.
var ErrCapture = errors.New("capture surface unavailable")

// DownloadStagger is the pause between files written by DownloadAll.
const DownloadStagger = 200 * time.Millisecond

// Player plays the audible acknowledgement.
type Player interface {
	Play() error
}

// Export is one artifact to write to disk.
type Export struct {
	Data     []byte
	Filename string
}

// Sink encodes surfaces to PNG, writes exports and plays the shutter cue.
type Sink struct {
	dir     string
	logger  *zap.Logger
	player  Player
	stagger time.Duration
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithPlayer replaces the shutter cue player. A nil player disables the cue.
func WithPlayer(p Player) SinkOption {
	return func(s *Sink) { s.player = p }
}

// WithStagger overrides DownloadStagger.
func WithStagger(d time.Duration) SinkOption {
	return func(s *Sink) { s.stagger = d }
}

// NewSink creates a Sink that exports into dir.
func NewSink(dir string, logger *zap.Logger, opts ...SinkOption) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{
		dir:     dir,
		logger:  logger,
		player:  NewBeep(),
		stagger: DownloadStagger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the export directory.
func (s *Sink) Dir() string { return s.dir }

// Capture snapshots surface at its native resolution and encodes it as PNG.
func (s *Sink) Capture(surface Surface) ([]byte, error) {
	if surface == nil {
		return nil, ErrCapture
	}

	frame, err := surface.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	defer frame.Close()
	if frame.Empty() {
		return nil, ErrCapture
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close.
	data := append([]byte(nil), buf.GetBytes()...)
	return data, nil
}

// Filename derives a collision-resistant artifact name from t.
func Filename(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "screenshot-" + stamp + ".png"
}

// SanitizeFilename strips path components and replaces characters that are
// illegal in filenames. An empty result falls back to screenshot.png.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteRune('-')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.Trim(b.String(), " .")
	if clean == "" {
		return "screenshot.png"
	}
	if !strings.EqualFold(filepath.Ext(clean), ".png") {
		clean += ".png"
	}
	return clean
}

// Download writes data into the export directory and returns the written path.
// An existing file is never overwritten; a numeric suffix is added instead.
func (s *Sink) Download(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("nothing to download")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	name := SanitizeFilename(filename)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = base + "-" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(s.dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", candidate, err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", candidate, err)
		}

		s.logger.Info("capture exported", zap.String("path", path), zap.Int("bytes", len(data)))
		return path, nil
	}
	return "", fmt.Errorf("no free filename for %s", name)
}

// DownloadAll writes every export, pausing between files. It stops at the
// first error or when ctx is cancelled and returns the paths written so far.
func (s *Sink) DownloadAll(ctx context.Context, exports []Export) ([]string, error) {
	paths := make([]string, 0, len(exports))
	for i, e := range exports {
		if i > 0 && s.stagger > 0 {
			select {
			case <-time.After(s.stagger):
			case <-ctx.Done():
				return paths, ctx.Err()
			}
		}

		path, err := s.Download(e.Data, e.Filename)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Acknowledge plays the shutter cue in the background. Failures are logged only.
func (s *Sink) Acknowledge() {
	if s.player == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Warn("shutter cue panicked", zap.Any("panic", r))
			}
		}()
		if err := s.player.Play(); err != nil {
			s.logger.Warn("shutter cue failed", zap.Error(err))
		}
	}()
}

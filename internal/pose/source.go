package pose

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gocv.io/x/gocv"
)

// LoadTimeout bounds a single model initialization attempt.
const LoadTimeout = 60 * time.Second

var (
	// ErrNotReady is returned when an estimate is requested from a released model.
	ErrNotReady = errors.New("pose model is not loaded")
	// ErrBusy is returned when a frame is submitted while another estimate is in flight.
	ErrBusy = errors.New("pose estimate already in flight")
	// ErrReleased is returned to loaders whose result was discarded by Release.
	ErrReleased = errors.New("pose source released during load")
	// ErrHelperExited reports that the estimator process is gone and must be restarted.
	ErrHelperExited = errors.New("pose helper exited")
)

// Breaker defaults for the estimate path.
const (
	DefaultBreakerTrips   = 10
	DefaultBreakerTimeout = 5 * time.Second
)

// ModelLoadError reports that the pose model could not be initialized.
type ModelLoadError struct {
	Cause error
}

func (e *ModelLoadError) Error() string {
	return "pose model failed to load: " + e.Cause.Error()
}

func (e *ModelLoadError) Unwrap() error { return e.Cause }

// Loader creates a ready-to-use estimator. It is called lazily by Source.
type Loader func(ctx context.Context) (Estimator, error)

// MediaPipeLoader returns a Loader that starts the MediaPipe helper with the given config.
func MediaPipeLoader(config Config) Loader {
	return func(ctx context.Context) (Estimator, error) {
		return StartMediaPipe(ctx, config)
	}
}

// Source wraps an Estimator behind lazy, at-most-once initialization and
// enforces a single in-flight estimate. An estimator that dies, or one that
// keeps failing until the breaker opens, is dropped and loaded again.
type Source struct {
	load    Loader
	logger  *zap.Logger
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker
	slot    chan struct{}

	trips        uint32
	breakerSleep time.Duration

	mu        sync.Mutex
	estimator Estimator
	epoch     uint64
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithBreaker sets how many consecutive failures open the estimate breaker
// and how long it stays open before a trial request.
func WithBreaker(trips int, timeout time.Duration) SourceOption {
	return func(s *Source) {
		if trips > 0 {
			s.trips = uint32(trips)
		}
		if timeout > 0 {
			s.breakerSleep = timeout
		}
	}
}

// NewSource creates a Source. Nothing is loaded until EnsureReady or Estimate is called.
func NewSource(load Loader, logger *zap.Logger, opts ...SourceOption) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{
		load:         load,
		logger:       logger,
		slot:         make(chan struct{}, 1),
		trips:        DefaultBreakerTrips,
		breakerSleep: DefaultBreakerTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pose-estimate",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     s.breakerSleep,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.trips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("pose estimate breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if to == gobreaker.StateOpen {
				s.drop(nil, "estimate breaker opened")
			}
		},
	})
	return s
}

// Ready reports whether a model is currently loaded.
func (s *Source) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimator != nil
}

// EnsureReady loads the model if needed. Concurrent callers share one attempt;
// a failed attempt is not remembered, so a later call retries.
func (s *Source) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	if s.estimator != nil {
		s.mu.Unlock()
		return nil
	}
	epoch := s.epoch
	s.mu.Unlock()

	ch := s.group.DoChan("load", func() (interface{}, error) {
		// The attempt is shared, so no single caller's cancellation may abort it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()

		start := time.Now()
		est, err := s.load(loadCtx)
		if err != nil {
			s.logger.Error("pose model load failed", zap.Error(err))
			return nil, &ModelLoadError{Cause: err}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch {
			est.Close()
			return nil, &ModelLoadError{Cause: ErrReleased}
		}
		s.estimator = est
		s.logger.Info("pose model loaded", zap.Duration("took", time.Since(start)))
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Estimate ensures the model is ready and returns the landmarks for one frame.
// A nil Result means no body was detected. Estimates are not cancellable once
// submitted; callers must discard results they no longer want.
//
// Loading runs behind the same breaker as estimating, so a helper that keeps
// dying is restarted at most once per breaker timeout.
func (s *Source) Estimate(ctx context.Context, frame *gocv.Mat) (*Result, error) {
	select {
	case s.slot <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	defer func() { <-s.slot }()

	res, err := s.breaker.Execute(func() (interface{}, error) {
		if err := s.EnsureReady(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		est := s.estimator
		s.mu.Unlock()
		if est == nil {
			return nil, ErrNotReady
		}

		result, err := est.Estimate(frame)
		if err != nil && helperGone(err) {
			s.drop(est, err.Error())
		}
		return result, err
	})
	if err != nil {
		return nil, err
	}

	result, _ := res.(*Result)
	return result, nil
}

// helperGone reports whether err means the estimator can never succeed again.
func helperGone(err error) bool {
	return errors.Is(err, ErrHelperExited) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EPIPE)
}

// drop discards est (or whatever is loaded when est is nil) so the next
// EnsureReady loads a fresh one.
func (s *Source) drop(est Estimator, reason string) {
	s.mu.Lock()
	if s.estimator == nil || (est != nil && s.estimator != est) {
		s.mu.Unlock()
		return
	}
	est = s.estimator
	s.estimator = nil
	s.epoch++
	s.mu.Unlock()

	s.logger.Warn("pose model dropped, it will be reloaded", zap.String("reason", reason))
	if err := est.Close(); err != nil {
		s.logger.Warn("failed to close dropped pose model", zap.Error(err))
	}
}

// Release tears down the model. The next EnsureReady or Estimate loads it again.
func (s *Source) Release() error {
	s.mu.Lock()
	est := s.estimator
	s.estimator = nil
	s.epoch++
	s.mu.Unlock()

	if est == nil {
		return nil
	}
	s.logger.Info("pose model released")
	return est.Close()
}

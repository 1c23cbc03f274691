// Package metrics exposes Prometheus metrics for the detection loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "swipeshot"

// Collector holds all Prometheus metrics for the application. Each Collector
// owns its registry, so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	FramesProcessed  prometheus.Counter
	EstimateErrors   prometheus.Counter
	EstimateDuration prometheus.Histogram
	NoBodyFrames     prometheus.Counter
	Triggers         prometheus.Counter
	Captures         *prometheus.CounterVec
	CaptureErrors    prometheus.Counter
	Progress         prometheus.Gauge
	DeviceStarts     *prometheus.CounterVec
}

// NewCollector creates and registers the metric set.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_processed_total",
			Help:      "Frames submitted to the pose source.",
		}),
		EstimateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "estimate_errors_total",
			Help:      "Pose estimates that failed.",
		}),
		EstimateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "estimate_duration_seconds",
			Help:      "Pose estimate latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
		NoBodyFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "no_body_frames_total",
			Help:      "Frames in which no body was detected.",
		}),
		Triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "gesture_triggers_total",
			Help:      "Sweep gestures that passed the cooldown.",
		}),
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "captures_total",
			Help:      "Capture artifacts stored, by origin.",
		}, []string{"origin"}),
		CaptureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "capture_errors_total",
			Help:      "Captures that could not be produced.",
		}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sweep_progress_percent",
			Help:      "Most recent sweep progress.",
		}),
		DeviceStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "device_starts_total",
			Help:      "Camera start attempts, by result.",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		c.FramesProcessed,
		c.EstimateErrors,
		c.EstimateDuration,
		c.NoBodyFrames,
		c.Triggers,
		c.Captures,
		c.CaptureErrors,
		c.Progress,
		c.DeviceStarts,
	)
	return c
}

// ObserveEstimate records one pose estimate.
func (c *Collector) ObserveEstimate(took time.Duration, err error, empty bool) {
	c.FramesProcessed.Inc()
	c.EstimateDuration.Observe(took.Seconds())
	switch {
	case err != nil:
		c.EstimateErrors.Inc()
	case empty:
		c.NoBodyFrames.Inc()
	}
}

// ObserveDeviceStart records a camera start with result "ok" or the error kind.
func (c *Collector) ObserveDeviceStart(result string) {
	c.DeviceStarts.WithLabelValues(result).Inc()
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

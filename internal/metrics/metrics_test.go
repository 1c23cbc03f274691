package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_ObserveEstimate(t *testing.T) {
	c := NewCollector()

	c.ObserveEstimate(10*time.Millisecond, nil, false)
	c.ObserveEstimate(10*time.Millisecond, nil, true)
	c.ObserveEstimate(10*time.Millisecond, errors.New("boom"), false)

	if got := testutil.ToFloat64(c.FramesProcessed); got != 3 {
		t.Errorf("frames = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.EstimateErrors); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.NoBodyFrames); got != 1 {
		t.Errorf("no-body frames = %v, want 1", got)
	}
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.Triggers.Inc()
	if got := testutil.ToFloat64(b.Triggers); got != 0 {
		t.Errorf("collectors share state: b.Triggers = %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.Captures.WithLabelValues("auto").Inc()
	c.ObserveDeviceStart("ok")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`swipeshot_captures_total{origin="auto"} 1`,
		`swipeshot_device_starts_total{result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

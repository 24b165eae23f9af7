// Package metrics exposes capture and detection counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Capture loop
	FramesCaptured atomic.Uint64
	CaptureErrors  atomic.Uint64
	LastFrameSeq   atomic.Uint64

	// Request handling
	LandmarkRequests atomic.Uint64
	SnapshotMisses   atomic.Uint64
	Detections       atomic.Uint64
	NoDetections     atomic.Uint64
	DetectErrors     atomic.Uint64

	// Websocket clients
	ActiveClients atomic.Int64

	detectLatency prometheus.Histogram
	registry      *prometheus.Registry
}

// New creates a new Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "posecam_detect_duration_seconds",
			Help:    "Pose model inference latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counters := []struct {
		name string
		help string
		v    *atomic.Uint64
	}{
		{"posecam_frames_captured_total", "Frames stored in the frame slot", &m.FramesCaptured},
		{"posecam_capture_errors_total", "Failed camera reads", &m.CaptureErrors},
		{"posecam_landmark_requests_total", "Landmark requests handled", &m.LandmarkRequests},
		{"posecam_snapshot_misses_total", "Landmark requests made before any frame was captured", &m.SnapshotMisses},
		{"posecam_detections_total", "Requests that returned a pose", &m.Detections},
		{"posecam_no_detections_total", "Requests where the model found no pose", &m.NoDetections},
		{"posecam_detect_errors_total", "Requests where the model failed", &m.DetectErrors},
	}

	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "posecam_last_frame_seq",
			Help: "Sequence number of the frame currently in the slot",
		},
		func() float64 { return float64(m.LastFrameSeq.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "posecam_websocket_clients",
			Help: "Connected landmark websocket clients",
		},
		func() float64 { return float64(m.ActiveClients.Load()) },
	))

	m.registry.MustRegister(m.detectLatency)
}

// FrameCaptured records a frame stored in the slot.
func (m *Metrics) FrameCaptured(seq uint64) {
	if m == nil {
		return
	}
	m.FramesCaptured.Add(1)
	m.LastFrameSeq.Store(seq)
}

// CaptureError records a failed camera read.
func (m *Metrics) CaptureError() {
	if m == nil {
		return
	}
	m.CaptureErrors.Add(1)
}

// Request records an incoming landmark request.
func (m *Metrics) Request() {
	if m == nil {
		return
	}
	m.LandmarkRequests.Add(1)
}

// SnapshotMiss records a request made while the slot was empty.
func (m *Metrics) SnapshotMiss() {
	if m == nil {
		return
	}
	m.SnapshotMisses.Add(1)
}

// Detection records the outcome of one model call.
func (m *Metrics) Detection(detected bool, err error, took time.Duration) {
	if m == nil {
		return
	}

	m.detectLatency.Observe(took.Seconds())

	switch {
	case err != nil:
		m.DetectErrors.Add(1)
	case detected:
		m.Detections.Add(1)
	default:
		m.NoDetections.Add(1)
	}
}

// ClientConnected adjusts the websocket client gauge by delta.
func (m *Metrics) ClientConnected(delta int64) {
	if m == nil {
		return
	}
	m.ActiveClients.Add(delta)
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

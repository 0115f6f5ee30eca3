// Package metrics exposes Prometheus collectors for the scan pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	decodeAttempts  prometheus.Counter     // Frames handed to the decoder.
	decodeErrors    prometheus.Counter     // Decoder failures.
	lowConfidence   prometheus.Counter     // Candidates under the acceptance threshold.
	scans           *prometheus.CounterVec // Completed scans by category and outcome.
	lookupFailures  prometheus.Counter     // Lookups that sent the session back to scanning.
	cameraFailures  *prometheus.CounterVec // Failed acquisitions by reason.
	liveStreams     prometheus.Gauge       // Camera streams currently held.
	sessionsStarted prometheus.Counter     // Scan sessions started.
}

// NewWithRegistry creates Metrics and registers them with registry.
func NewWithRegistry(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		decodeAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_scan_decode_attempts_total",
			Help: "Number of frames handed to the barcode decoder",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_scan_decode_errors_total",
			Help: "Number of decode attempts that failed",
		}),
		lowConfidence: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_scan_low_confidence_total",
			Help: "Number of decoded candidates rejected by the confidence threshold",
		}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_scan_scans_total",
			Help: "Number of scans handed to the caller",
		}, []string{"category", "outcome"}),
		lookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_scan_lookup_failures_total",
			Help: "Number of catalog lookups that failed and resumed scanning",
		}),
		cameraFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_scan_camera_failures_total",
			Help: "Number of camera acquisitions that failed",
		}, []string{"reason"}),
		liveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arcade_scan_live_streams",
			Help: "Number of camera streams currently held",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_scan_sessions_started_total",
			Help: "Number of scan sessions started",
		}),
	}

	collectors := []prometheus.Collector{
		m.decodeAttempts,
		m.decodeErrors,
		m.lowConfidence,
		m.scans,
		m.lookupFailures,
		m.cameraFailures,
		m.liveStreams,
		m.sessionsStarted,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}

	return m, nil
}

// DecodeAttempt counts a frame handed to the decoder
func (m *Metrics) DecodeAttempt() {
	if m == nil {
		return
	}
	m.decodeAttempts.Inc()
}

// DecodeError counts a failed decode
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// LowConfidence counts a candidate under the threshold
func (m *Metrics) LowConfidence() {
	if m == nil {
		return
	}
	m.lowConfidence.Inc()
}

// Scan counts a scan delivered to the caller. Outcome is "accepted" or "mismatch".
func (m *Metrics) Scan(category, outcome string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(category, outcome).Inc()
}

// LookupFailure counts a failed lookup
func (m *Metrics) LookupFailure() {
	if m == nil {
		return
	}
	m.lookupFailures.Inc()
}

// CameraFailure counts a failed acquisition
func (m *Metrics) CameraFailure(reason string) {
	if m == nil {
		return
	}
	m.cameraFailures.WithLabelValues(reason).Inc()
}

// StreamAcquired increments the live stream gauge
func (m *Metrics) StreamAcquired() {
	if m == nil {
		return
	}
	m.liveStreams.Inc()
}

// StreamReleased decrements the live stream gauge
func (m *Metrics) StreamReleased() {
	if m == nil {
		return
	}
	m.liveStreams.Dec()
}

// SessionStarted counts a session start
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

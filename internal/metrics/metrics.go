// Package metrics defines postlens's Prometheus instrumentation, served
// by internal/healthsrv. It replaces the teacher's placeholder /metrics
// text stub (References/orion-prototipe/internal/core/health.go) with
// real counters and histograms, grounded on the promauto style used
// throughout the Livepeer-FrameWorks-monorepo pack
// (api_sidecar/internal/control/metrics.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesCaptured counts capture attempts, labeled by outcome.
	FramesCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postlens",
			Name:      "frames_captured_total",
			Help:      "Total screen captures attempted by the per-post session.",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	// BatchesUploaded counts batch submissions to the classifier.
	BatchesUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postlens",
			Name:      "batches_uploaded_total",
			Help:      "Total frame batches submitted to the classifier.",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	// VerdictsReceived counts verdicts the session resolves on, labeled by
	// label. Verdicts fetched by the control surface's poll are not counted.
	VerdictsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postlens",
			Name:      "verdicts_received_total",
			Help:      "Total detection verdicts received, labeled by derived label.",
		},
		[]string{"label"},
	)

	// SessionDuration observes Arming-to-Resolved latency per post.
	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "postlens",
			Name:      "session_resolution_seconds",
			Help:      "Time from a post first being observed to its verdict resolving.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13},
		},
	)

	// ActiveSensorConnections reports whether the sensor socket currently
	// has a connected client (1) or not (0).
	ActiveSensorConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "postlens",
			Name:      "sensor_connected",
			Help:      "Whether the browser sensor is currently connected (1=connected, 0=disconnected).",
		},
	)
)

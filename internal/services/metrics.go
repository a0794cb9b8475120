package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the daemon.
type Metrics struct {
	// Capture loop
	Captures      prometheus.Counter
	CaptureErrors *prometheus.CounterVec
	PrivacyVetoes prometheus.Counter
	Evictions     prometheus.Counter

	// Hive Mind sync
	SyncPublished prometheus.Counter
	SyncSkipped   *prometheus.CounterVec
	SyncFailed    prometheus.Counter

	// Oracle
	OracleAsks prometheus.Counter

	// Activity stream
	StreamConnections prometheus.Gauge
}

var globalMetrics *Metrics

// InitMetrics registers the Prometheus metrics. Call once at startup.
func InitMetrics() *Metrics {
	metrics := &Metrics{
		Captures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devscope_captures_total",
			Help: "Total number of completed capture cycles",
		}),
		CaptureErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "devscope_capture_errors_total",
			Help: "Capture cycle failures by stage",
		}, []string{"stage"}), // "frame", "classify", "panic"
		PrivacyVetoes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devscope_privacy_vetoes_total",
			Help: "Capture cycles skipped by the privacy filter",
		}),
		Evictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devscope_ring_evictions_total",
			Help: "Records evicted from session ring buffers",
		}),
		SyncPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devscope_sync_published_total",
			Help: "Records forwarded to the Hive Mind",
		}),
		SyncSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "devscope_sync_skipped_total",
			Help: "Records withheld from the Hive Mind by reason",
		}, []string{"reason"}), // "privacy", "shallow", "identity", "disabled"
		SyncFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devscope_sync_failed_total",
			Help: "Hive Mind writes that failed in transport",
		}),
		OracleAsks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devscope_oracle_asks_total",
			Help: "Oracle questions answered",
		}),
		StreamConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "devscope_stream_connections_active",
			Help: "Active activity-stream WebSocket connections",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance, or nil before InitMetrics.
func GetMetrics() *Metrics {
	return globalMetrics
}

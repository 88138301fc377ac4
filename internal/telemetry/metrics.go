package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	BatchesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "epcis_batches_submitted_total", Help: "Batch documents accepted for processing"})
	BatchesCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "epcis_batches_completed_total", Help: "Batches that reached completed status"})
	BatchesFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "epcis_batches_failed_total", Help: "Batches that failed mid-pipeline"})
	EventsProcessed  = prometheus.NewCounter(prometheus.CounterOpts{Name: "epcis_events_processed_total", Help: "Events persisted successfully"})
	EventsFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "epcis_events_failed_total", Help: "Events that failed per-event processing"})
	RisksDetected    = prometheus.NewCounter(prometheus.CounterOpts{Name: "epcis_risks_detected_total", Help: "Compliance risks emitted by the detector"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "epcis_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})
	BatchesInFlight  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "epcis_batches_inflight", Help: "Batches currently being processed"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			BatchesSubmitted,
			BatchesCompleted,
			BatchesFailed,
			EventsProcessed,
			EventsFailed,
			RisksDetected,
			RateLimitRejects,
			BatchesInFlight,
		)
	})
	return promhttp.Handler()
}

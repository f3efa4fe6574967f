package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors for the chat front-end.
type Metrics struct {
	AskTotal          *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
	InferenceRetries  prometheus.Counter
	ExportsTotal      *prometheus.CounterVec
	TablesExtracted   prometheus.Counter
}

// NewMetrics returns the process-wide collectors, registering them on the
// default registry the first time it is called.
//
//   - adapta_ask_total{outcome}
//   - adapta_inference_duration_seconds
//   - adapta_inference_retries_total
//   - adapta_exports_total{format,outcome}
//   - adapta_tables_extracted_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AskTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "adapta_ask_total",
					Help: "Questions handled, by outcome",
				},
				[]string{"outcome"}, // "success", "not_found", "upstream_error", "store_error"
			),

			InferenceDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "adapta_inference_duration_seconds",
					Help:    "Wall time of inference calls including retries",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
				},
			),

			InferenceRetries: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "adapta_inference_retries_total",
					Help: "Inference attempts retried after a transport failure",
				},
			),

			ExportsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "adapta_exports_total",
					Help: "Export requests, by format and outcome",
				},
				[]string{"format", "outcome"}, // outcome: "success", "no_tables", "error"
			),

			TablesExtracted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "adapta_tables_extracted_total",
					Help: "Markdown tables found in export and check requests",
				},
			),
		}
	})
	return globalMetrics
}

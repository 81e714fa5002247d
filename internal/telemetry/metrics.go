// Package telemetry registers the Prometheus metrics for retrieval and
// ingestion. The CLI is short-lived, so instead of serving /metrics it writes
// the registry to a node-exporter textfile when DOCQA_METRICS_FILE is set.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every metric name.
const namespace = "docqa"

// Metrics holds all Prometheus metrics owned by docqa. It implements
// rag.Observer and ingestion.Observer.
type Metrics struct {
	// gatherer reads back what was registered, for WriteTextfile.
	gatherer prometheus.Gatherer

	// retrievalsTotal counts completed retrieval calls, partitioned by mode
	// and outcome: "ok", "fallback", "empty" or "error".
	retrievalsTotal *prometheus.CounterVec

	// retrievalDurationSeconds records retrieval latency by mode.
	retrievalDurationSeconds *prometheus.HistogramVec

	// retrievalResults records how many fragments each call returned.
	retrievalResults *prometheus.HistogramVec

	// ingestionsTotal counts processing attempts by outcome.
	ingestionsTotal *prometheus.CounterVec

	// ingestionDurationSeconds records processing latency by outcome.
	ingestionDurationSeconds *prometheus.HistogramVec

	// fragments is the current size of the retrieval pool.
	fragments prometheus.Gauge
}

// New registers all metrics against reg. promauto.With(reg) keeps tests
// hermetic: each test passes a fresh prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of retrieval calls, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),

		retrievalDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Latency of retrieval calls including query embedding.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"mode"}),

		retrievalResults: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Number of fragments returned per retrieval call.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}, []string{"mode"}),

		ingestionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "documents_total",
			Help:      "Total number of document processing attempts, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestionDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of chunking and embedding one document.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"outcome"}),

		fragments: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_fragments",
			Help:      "Number of fragments currently visible to retrieval.",
		}),
	}
}

// ObserveRetrieval implements rag.Observer.
func (m *Metrics) ObserveRetrieval(mode, outcome string, results int, seconds float64) {
	m.retrievalsTotal.WithLabelValues(mode, outcome).Inc()
	m.retrievalDurationSeconds.WithLabelValues(mode).Observe(seconds)
	m.retrievalResults.WithLabelValues(mode).Observe(float64(results))
}

// ObserveIngestion implements ingestion.Observer.
func (m *Metrics) ObserveIngestion(outcome string, _ int, seconds float64) {
	m.ingestionsTotal.WithLabelValues(outcome).Inc()
	m.ingestionDurationSeconds.WithLabelValues(outcome).Observe(seconds)
}

// SetFragments implements ingestion.Observer.
func (m *Metrics) SetFragments(n int) {
	m.fragments.Set(float64(n))
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("telemetry: write %s: %w", path, err)
	}
	return nil
}

// Package metrics provides Prometheus metrics for the reconciliation engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	ExtractionsTotal       *prometheus.CounterVec
	ExtractionConfidence   prometheus.Histogram
	ExtractionDuration     prometheus.Histogram
	OracleFailures         prometheus.Counter
	CacheHits              prometheus.Counter
	CacheMisses            prometheus.Counter
	ReconciliationsTotal   prometheus.Counter
	ReconciliationDuration prometheus.Histogram
	MedicationsAdded       prometheus.Counter
	MedicationsUpdated     prometheus.Counter
	MedicationsStopped     prometheus.Counter
	ReconciliationWarnings prometheus.Counter
	KafkaMessagesProduced  prometheus.Counter
	KafkaMessagesConsumed  prometheus.Counter
	OutboxPending          prometheus.Gauge
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests use a fresh
// registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExtractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extractions_total",
			Help: "Total note extractions by method",
		}, []string{"method"}),
		ExtractionConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extraction_confidence",
			Help:    "Aggregate confidence of extraction results",
			Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
		}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Note extraction duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracle_failures_total",
			Help: "Primary oracle failures that triggered the fallback extractor",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracle_cache_hits_total",
			Help: "Oracle response cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracle_cache_misses_total",
			Help: "Oracle response cache misses",
		}),
		ReconciliationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconciliations_total",
			Help: "Total medication list reconciliations",
		}),
		ReconciliationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciliation_duration_seconds",
			Help:    "Reconciliation duration",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		}),
		MedicationsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medications_added_total",
			Help: "Medication records created by reconciliation",
		}),
		MedicationsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medications_updated_total",
			Help: "Medication records updated by reconciliation",
		}),
		MedicationsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medications_stopped_total",
			Help: "Medication records deactivated by reconciliation",
		}),
		ReconciliationWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_warnings_total",
			Help: "Non-fatal reconciliation warnings (ambiguous or unresolved stops)",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending audit outbox entries",
		}),
	}

	reg.MustRegister(
		m.ExtractionsTotal,
		m.ExtractionConfidence,
		m.ExtractionDuration,
		m.OracleFailures,
		m.CacheHits,
		m.CacheMisses,
		m.ReconciliationsTotal,
		m.ReconciliationDuration,
		m.MedicationsAdded,
		m.MedicationsUpdated,
		m.MedicationsStopped,
		m.ReconciliationWarnings,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

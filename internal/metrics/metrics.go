package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record outcomes for RecordsProcessed.
const (
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

var (
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherload_records_total",
			Help: "Weather records processed, by outcome",
		},
		[]string{"outcome"},
	)

	ModelMetricsLogged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherload_model_metrics_logged_total",
			Help: "Model evaluation rows written to model_metrics",
		},
	)

	LoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weatherload_load_duration_seconds",
			Help:    "Duration of a CSV batch load in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// WriteTextfile dumps the default registry in the node_exporter textfile
// format, for batch runs that exit before they could be scraped.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

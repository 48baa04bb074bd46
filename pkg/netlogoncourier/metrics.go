package netlogoncourier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Host status label values
const (
	statusCollected = "collected"
	statusSkipped   = "skipped"
	statusFailed    = "failed"
)

// Metrics holds all Prometheus metrics for netlogon-courier, grouped by stage
// NOTE: No host labels are used to keep cardinality independent of forest size
type Metrics struct {
	Hosts  HostMetrics
	Report ReportMetrics
}

// HostMetrics tracks enumeration and per-host collection
type HostMetrics struct {
	// Processed tracks hosts visited with status
	Processed *prometheus.CounterVec // labels: status (collected/skipped/failed)

	// RecordsCollected tracks records kept after the recency scan
	RecordsCollected prometheus.Counter

	// LinesMalformed tracks lines skipped by the parser
	LinesMalformed prometheus.Counter

	// Duration tracks time spent per host, retries included
	Duration prometheus.Histogram

	// EnumerationDuration tracks time spent listing domain controllers
	EnumerationDuration prometheus.Histogram
}

// ReportMetrics tracks the exported report
type ReportMetrics struct {
	// Rows is the number of rows of the last report
	Rows prometheus.Gauge

	// SinkFailures tracks failed report publications
	SinkFailures *prometheus.CounterVec // labels: sink
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics with a custom registry
// This is useful for testing to avoid conflicts with the default registry
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Hosts: HostMetrics{
			Processed: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "netlogon_courier_hosts_processed_total",
					Help: "Total number of domain controllers processed",
				},
				[]string{"status"},
			),
			RecordsCollected: factory.NewCounter(
				prometheus.CounterOpts{
					Name: "netlogon_courier_records_collected_total",
					Help: "Total number of log records newer than the cutoff",
				},
			),
			LinesMalformed: factory.NewCounter(
				prometheus.CounterOpts{
					Name: "netlogon_courier_lines_malformed_total",
					Help: "Total number of log lines that could not be parsed",
				},
			),
			Duration: factory.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "netlogon_courier_host_duration_seconds",
					Help:    "Time spent reading one domain controller log, retries included",
					Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
				},
			),
			EnumerationDuration: factory.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "netlogon_courier_enumeration_duration_seconds",
					Help:    "Time spent listing domain controllers",
					Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
				},
			),
		},

		Report: ReportMetrics{
			Rows: factory.NewGauge(
				prometheus.GaugeOpts{
					Name: "netlogon_courier_report_rows",
					Help: "Number of distinct IP addresses in the last report",
				},
			),
			SinkFailures: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "netlogon_courier_sink_failures_total",
					Help: "Total number of failed report publications",
				},
				[]string{"sink"},
			),
		},
	}
}

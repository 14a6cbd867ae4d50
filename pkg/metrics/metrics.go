// Package metrics holds the Prometheus collectors updated by the descriptor
// layer, the serial engine and the streaming engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FeatureOps counts descriptor operations by instrument, descriptor and op (get, set, invoke)
	FeatureOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantz_feature_operations_total",
			Help: "Descriptor operations by instrument, descriptor and operation",
		},
		[]string{"instrument", "feature", "op"},
	)

	FeatureErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantz_feature_errors_total",
			Help: "Failed descriptor operations",
		},
		[]string{"instrument", "feature", "op"},
	)

	Queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantz_serial_queries_total",
			Help: "Write-then-read round trips on serial lines",
		},
		[]string{"instrument"},
	)

	TransportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantz_transport_errors_total",
			Help: "Transport failures by instrument and kind",
		},
		[]string{"instrument", "kind"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lantz_serial_query_duration_seconds",
			Help:    "Duration of serial query round trips",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"instrument"},
	)

	StreamScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantz_stream_scans_total",
			Help: "Scans delivered by streaming acquisition",
		},
		[]string{"instrument"},
	)

	StreamRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lantz_stream_running",
			Help: "1 while a streaming session is active",
		},
		[]string{"instrument"},
	)
)

// Collectors returns every collector of this package
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		FeatureOps,
		FeatureErrors,
		Queries,
		TransportErrors,
		QueryDuration,
		StreamScans,
		StreamRunning,
	}
}

// Register adds all collectors to reg
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

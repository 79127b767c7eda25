package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker runtime metrics
	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lta_heartbeats_total",
			Help: "Total number of heartbeat documents published to the LTA DB",
		},
		[]string{"component"},
	)

	HeartbeatFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lta_heartbeat_failures_total",
			Help: "Total number of heartbeat publications that failed",
		},
		[]string{"component"},
	)

	WorkCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lta_work_cycles_total",
			Help: "Total number of work loop cycles run",
		},
		[]string{"component"},
	)

	WorkCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lta_work_cycle_duration_seconds",
			Help:    "Duration of a single work loop cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	// Entity lifecycle metrics
	QuarantinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lta_quarantines_total",
			Help: "Total number of entities quarantined, by component and entity kind",
		},
		[]string{"component", "kind"},
	)

	QuarantineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lta_quarantine_failures_total",
			Help: "Total number of quarantine attempts that failed and were swallowed",
		},
		[]string{"component", "kind"},
	)

	BundlesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lta_bundles_created_total",
			Help: "Total number of Bundles created",
		},
		[]string{"component"},
	)

	// File Catalog interaction metrics
	CatalogFilesReturnedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lta_catalog_files_returned_total",
			Help: "Total number of files returned by File Catalog query pages",
		},
		[]string{"component"},
	)

	CatalogPagesFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lta_catalog_pages_fetched_total",
			Help: "Total number of File Catalog query pages fetched",
		},
		[]string{"component"},
	)

	// Rucio Stager quota metrics
	RucioInboxBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lta_rucio_inbox_bytes",
			Help: "Size in bytes of the local Rucio RSE ingest directory as of the last quota check",
		},
	)

	RucioQuotaBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lta_rucio_quota_bytes",
			Help: "Configured destination quota in bytes enforced by the Rucio Stager",
		},
	)

	RucioBundlesUnclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lta_rucio_bundles_unclaimed_total",
			Help: "Total number of bundles unclaimed because staging them would exceed quota",
		},
	)

	RucioBundlesStagedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lta_rucio_bundles_staged_total",
			Help: "Total number of bundles successfully staged to the Rucio RSE",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HeartbeatsTotal,
		HeartbeatFailuresTotal,
		WorkCyclesTotal,
		WorkCycleDuration,
		QuarantinesTotal,
		QuarantineFailuresTotal,
		BundlesCreatedTotal,
		CatalogFilesReturnedTotal,
		CatalogPagesFetchedTotal,
		RucioInboxBytes,
		RucioQuotaBytes,
		RucioBundlesUnclaimedTotal,
		RucioBundlesStagedTotal,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Package metrics exposes Prometheus collectors for the harvest pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	slotsProcessedTotal  *prometheus.CounterVec
	slotsDeferredTotal   prometheus.Counter
	snapshotErrorsTotal  *prometheus.CounterVec
	topicsMergedTotal    prometheus.Counter
	topicsRefreshedTotal *prometheus.CounterVec
	crawlPagesTotal      *prometheus.CounterVec
	cycleDurationSeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		slotsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotarchive_slots_processed_total",
				Help: "Total hourly slots merged into the archive, labeled by snapshot origin.",
			},
			[]string{"origin"},
		)

		slotsDeferredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hotarchive_slots_deferred_total",
				Help: "Total pending slots left for a later cycle because the snapshot was not published yet.",
			},
		)

		snapshotErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotarchive_snapshot_errors_total",
				Help: "Total snapshot fetch failures, labeled by source.",
			},
			[]string{"source"},
		)

		topicsMergedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hotarchive_topics_merged_total",
				Help: "Total snapshot entries folded into daily archives.",
			},
		)

		topicsRefreshedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotarchive_topics_refreshed_total",
				Help: "Total topic post refreshes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotarchive_crawl_pages_total",
				Help: "Total search pages requested, labeled by status.",
			},
			[]string{"status"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hotarchive_cycle_duration_seconds",
				Help:    "Histogram of scheduler cycle wall time.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSlot increments the slot counter for the given snapshot origin.
func ObserveSlot(origin string) {
	slotsProcessedTotal.WithLabelValues(origin).Inc()
}

// ObserveSlotDeferred counts a pending slot left for a later cycle.
func ObserveSlotDeferred() {
	slotsDeferredTotal.Inc()
}

// ObserveSnapshotError increments the fetch failure counter for a source.
func ObserveSnapshotError(source string) {
	snapshotErrorsTotal.WithLabelValues(source).Inc()
}

// ObserveTopicsMerged adds to the merged entry counter.
func ObserveTopicsMerged(n int) {
	if n > 0 {
		topicsMergedTotal.Add(float64(n))
	}
}

// ObserveRefresh increments the refresh counter for the given outcome.
func ObserveRefresh(outcome string, n int) {
	if n > 0 {
		topicsRefreshedTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveCrawlPage increments the search page counter for the given status.
func ObserveCrawlPage(status string) {
	crawlPagesTotal.WithLabelValues(status).Inc()
}

// ObserveCycle records the duration of one scheduler cycle.
func ObserveCycle(duration time.Duration) {
	cycleDurationSeconds.Observe(duration.Seconds())
}

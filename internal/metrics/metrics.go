package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Total outbox rows published to the bus.",
	})
	OutboxFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failed_total",
		Help: "Total failed publish attempts (row stays pending).",
	})
	OutboxRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publisher_runs_total",
		Help: "Total publisher runs.",
	})
	OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_pending",
		Help: "Unprocessed outbox rows at the end of the last run.",
	})
	OutboxPersistentFailures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_persistent_failures",
		Help: "Pending rows whose attempt count reached the failure threshold.",
	})
	OutboxPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_purged_total",
		Help: "Total processed rows removed by the retention sweep.",
	})
	OutboxArchiveFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_archive_fail_total",
		Help: "Total sweeps skipped because archiving failed.",
	})
	BreakerOpen = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_breaker_open_total",
		Help: "Total times the bus circuit breaker opened.",
	})

	Consumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analytics_consumed_total",
		Help: "Total bus messages received by the analytics consumer.",
	})
	Poison = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analytics_poison_total",
		Help: "Total messages acknowledged without processing because the body was not an envelope.",
	})
	Ingested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_ingest_total",
		Help: "Ingest outcomes by kind.",
	}, []string{"outcome"})
	IngestErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analytics_ingest_errors_total",
		Help: "Total ingests rolled back on a store error.",
	})
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			OutboxPublished, OutboxFailed, OutboxRuns,
			OutboxPending, OutboxPersistentFailures,
			OutboxPurged, OutboxArchiveFail, BreakerOpen,
			Consumed, Poison, Ingested, IngestErrors,
		)
	})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RulesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_rules_evaluated_total",
			Help: "Total number of alert rule evaluations",
		},
	)

	TriggersGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_triggers_generated_total",
			Help: "Total number of alert triggers generated",
		},
		[]string{"severity"},
	)

	EvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_evaluation_errors_total",
			Help: "Total number of per-rule evaluation failures",
		},
		[]string{"reason"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_evaluation_duration_seconds",
			Help:    "Time taken to evaluate a full rule batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	CorrelationLookups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_correlation_lookups_total",
			Help: "Total number of security event correlation lookups",
		},
	)

	CorrelationMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_correlation_matches_total",
			Help: "Total number of correlations that matched at least one indicator",
		},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_anomalies_detected_total",
			Help: "Total number of metric anomalies detected",
		},
		[]string{"metric"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_store_errors_total",
			Help: "Total number of storage failures by store",
		},
		[]string{"store"},
	)

	IndicatorCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_indicator_cache_hits_total",
			Help: "Total number of indicator lookup cache hits",
		},
		[]string{"cache"},
	)

	IndicatorCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_indicator_cache_misses_total",
			Help: "Total number of indicator lookup cache misses",
		},
		[]string{"cache"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_published_total",
			Help: "Total number of events published to sinks",
		},
		[]string{"kind"},
	)

	EventPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_event_publish_errors_total",
			Help: "Total number of failed event deliveries per sink",
		},
		[]string{"sink"},
	)

	WorkerPoolActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_worker_pool_active_workers",
			Help: "Number of active workers per pool",
		},
		[]string{"pool"},
	)

	WorkerPoolQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_worker_pool_queue_size",
			Help: "Current task queue depth per pool",
		},
		[]string{"pool"},
	)

	WorkerPoolTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_worker_pool_tasks_processed_total",
			Help: "Total number of tasks processed per pool",
		},
		[]string{"pool"},
	)
)

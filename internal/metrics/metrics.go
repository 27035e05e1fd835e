// Package metrics defines Prometheus instrumentation for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts raw events accepted per source.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentrix_events_ingested_total",
		Help: "Total raw telemetry events accepted for processing",
	}, []string{"source_type"})

	// IngestRejected counts rejected ingestion requests by reason.
	IngestRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentrix_ingest_rejected_total",
		Help: "Total ingestion requests rejected",
	}, []string{"reason"})

	// RateLimitHits counts requests blocked by the rate limiter.
	RateLimitHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentrix_rate_limit_hits_total",
		Help: "Total requests blocked by rate limiting",
	}, []string{"key"})

	// PipelineCycles counts processing cycles run.
	PipelineCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentrix_pipeline_cycles_total",
		Help: "Total processing cycles executed",
	})

	// EventsProcessed counts raw events that completed processing.
	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentrix_events_processed_total",
		Help: "Total raw events processed successfully",
	})

	// EventsFailed counts raw events whose processing failed and will retry.
	EventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentrix_events_failed_total",
		Help: "Total raw event processing failures (events retried later)",
	})

	// EventsDeadLettered counts raw events routed to the dead letter queue.
	EventsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentrix_events_dead_lettered_total",
		Help: "Total raw events moved to the dead letter queue",
	})

	// NormalizationDuration tracks per-event normalization latency.
	NormalizationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentrix_normalization_duration_seconds",
		Help:    "Time to normalize a raw event",
		Buckets: prometheus.DefBuckets,
	})

	// EnrichmentFailures counts geolocation lookups that returned nothing.
	EnrichmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentrix_enrichment_failures_total",
		Help: "Total geolocation lookups that failed or returned no data",
	})

	// ThreatsDetected counts threats by severity.
	ThreatsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentrix_threats_detected_total",
		Help: "Total threats detected by signature matching",
	}, []string{"severity", "threat_type"})

	// NotificationFailures counts failed critical alert deliveries.
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentrix_notification_failures_total",
		Help: "Total failed critical alert notification deliveries",
	})

	// KeyRotations counts API key rotations per source.
	KeyRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentrix_key_rotations_total",
		Help: "Total API key rotations performed",
	})
)

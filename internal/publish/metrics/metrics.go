package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishesTotal tracks publish outcomes per platform
	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_publishes_total",
			Help: "Total number of publish attempts by terminal result",
		},
		[]string{"platform", "result"},
	)

	// ProviderCallsTotal tracks outbound provider calls
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_provider_calls_total",
			Help: "Total number of outbound provider calls",
		},
		[]string{"platform"},
	)

	// ProviderErrorsTotal tracks classified provider errors
	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_provider_errors_total",
			Help: "Total number of provider errors by classified code",
		},
		[]string{"platform", "code"},
	)

	// PublishLatency tracks end-to-end publish latency per platform
	PublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publisher_publish_latency_seconds",
			Help:    "Publish call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	// QueueDepth tracks queue items per status
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "publisher_queue_depth",
			Help: "Number of queue items by status",
		},
		[]string{"status"},
	)

	// BreakerState reports circuit breaker state per service (0 closed, 1 open, 2 half-open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "publisher_breaker_state",
			Help: "Circuit breaker state per external service",
		},
		[]string{"service"},
	)

	// ItemsReaped counts stuck processing items reclaimed by the reaper
	ItemsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "publisher_items_reaped_total",
			Help: "Total number of stale processing items reclaimed",
		},
	)
)

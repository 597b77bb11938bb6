package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_events_written_total",
		Help: "Total number of events appended to the store, labelled by severity.",
	}, []string{"severity"})

	EventWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auditlog_event_write_failures_total",
		Help: "Total number of writes that could not reach the store.",
	})

	DispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auditlog_dispatch_dropped_total",
		Help: "Total number of written events not dispatched because the bus queue was full.",
	})

	DispatchQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auditlog_dispatch_queue_utilization_ratio",
		Help: "Current post-write bus queue utilization (0–1).",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_notifications_total",
		Help: "Total number of notification attempts, labelled by channel and status.",
	}, []string{"channel", "status"})

	NotifierBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "auditlog_notifier_breaker_state",
		Help: "Circuit breaker state per channel (0 closed, 1 half-open, 2 open).",
	}, []string{"channel"})

	Sweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_sweeps_total",
		Help: "Total number of retention sweeps, labelled by status.",
	}, []string{"status"})

	SweptEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auditlog_swept_events_total",
		Help: "Total number of events removed by retention.",
	})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auditlog_query_duration_seconds",
		Help:    "Latency of paginated event queries.",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_http_requests_total",
		Help: "Total number of HTTP requests, labelled by method, route and status.",
	}, []string{"method", "route", "status"})
)

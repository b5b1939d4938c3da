// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indexer.
type Metrics struct {
	// Ingestion metrics
	EventsReceived  *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	EventRetries    *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	HighestBlock    prometheus.Gauge

	// Handler metrics
	HandlerLatency *prometheus.HistogramVec
	StoreErrors    *prometheus.CounterVec
	ArchiveErrors  *prometheus.CounterVec

	// Notification metrics
	Notifications *prometheus.CounterVec

	// Chain metrics
	RPCCallLatency  *prometheus.HistogramVec
	WSReconnects    prometheus.Counter
	LastEventTimeTS prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wooswap_indexer"
	}

	return &Metrics{
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_received_total",
			Help:      "Total number of raw events received by source",
		}, []string{"source"}),
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_processed_total",
			Help:      "Total number of events handled by kind and outcome",
		}, []string{"kind", "outcome"}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped by reason",
		}, []string{"reason"}),
		EventRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_retries_total",
			Help:      "Total number of event handling retries by kind",
		}, []string{"kind"}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Current number of queued events per worker",
		}, []string{"worker"}),
		HighestBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_block_seen",
			Help:      "Highest block number seen",
		}),

		HandlerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "latency_seconds",
			Help:      "Event handling latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "store_errors_total",
			Help:      "Total number of aggregate store failures by event kind",
		}, []string{"kind"}),
		ArchiveErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "archive_errors_total",
			Help:      "Total number of event archive failures by backend",
		}, []string{"backend"}),

		Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of breakup notifications by status",
		}, []string{"status"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnects",
		}),
		LastEventTimeTS: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_block_timestamp",
			Help:      "Block timestamp of the last applied event",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventReceived counts a raw event from a source.
func RecordEventReceived(source string) {
	DefaultMetrics.EventsReceived.WithLabelValues(source).Inc()
}

// RecordEventProcessed counts a handled event.
func RecordEventProcessed(kind, outcome string) {
	DefaultMetrics.EventsProcessed.WithLabelValues(kind, outcome).Inc()
}

// RecordEventDropped counts an event that will never be applied.
func RecordEventDropped(reason string) {
	DefaultMetrics.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordEventRetry counts a retry after a store failure.
func RecordEventRetry(kind string) {
	DefaultMetrics.EventRetries.WithLabelValues(kind).Inc()
}

// UpdateQueueDepth sets the queue depth gauge for a worker.
func UpdateQueueDepth(worker string, depth int) {
	DefaultMetrics.QueueDepth.WithLabelValues(worker).Set(float64(depth))
}

// UpdateHighestBlock updates the highest block gauge.
func UpdateHighestBlock(block uint64) {
	DefaultMetrics.HighestBlock.Set(float64(block))
}

// UpdateLastEventTime updates the last applied event timestamp gauge.
func UpdateLastEventTime(ts int64) {
	DefaultMetrics.LastEventTimeTS.Set(float64(ts))
}

// RecordHandlerLatency records event handling latency.
func RecordHandlerLatency(kind string, seconds float64) {
	DefaultMetrics.HandlerLatency.WithLabelValues(kind).Observe(seconds)
}

// RecordStoreError counts an aggregate store failure.
func RecordStoreError(kind string) {
	DefaultMetrics.StoreErrors.WithLabelValues(kind).Inc()
}

// RecordArchiveError counts an archive failure.
func RecordArchiveError(backend string) {
	DefaultMetrics.ArchiveErrors.WithLabelValues(backend).Inc()
}

// RecordNotification counts a notification by status (sent, failed, dropped, disabled).
func RecordNotification(status string) {
	DefaultMetrics.Notifications.WithLabelValues(status).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSReconnect counts a WebSocket reconnect.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

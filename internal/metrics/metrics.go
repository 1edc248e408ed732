package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// WebSocket метрики
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argate_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argate_websocket_messages_out_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	WebSocketErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argate_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
	)

	// MQTT метрики
	MQTTMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argate_mqtt_messages_received_total",
			Help: "Total number of MQTT status messages received",
		},
		[]string{"confidence"},
	)

	MQTTParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argate_mqtt_parse_errors_total",
			Help: "Total number of MQTT message parse errors",
		},
	)

	MQTTConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argate_mqtt_connection_status",
			Help: "MQTT connection status (1 = connected, 0 = disconnected)",
		},
	)

	// Метрики state machine видимости
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argate_transitions_total",
			Help: "Total number of visibility transitions by kind",
		},
		[]string{"kind"}, // found, lost
	)

	ScaleAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argate_scale_anomalies_total",
			Help: "Total number of wrong scale anomalies reported by the tracker",
		},
	)

	TrackedTargets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argate_targets_total",
			Help: "Total number of targets with active presence controllers",
		},
	)

	RenderedTargets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argate_targets_rendered",
			Help: "Number of targets whose content is currently rendered",
		},
	)

	StaleTargetsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argate_stale_targets_expired_total",
			Help: "Number of targets forced to not_observed after tracker silence",
		},
	)

	// Redis метрики
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argate_redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	RedisOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argate_redis_operation_errors_total",
			Help: "Total number of Redis operation errors",
		},
		[]string{"operation"},
	)

	// Метрики журнала переходов (MySQL)
	JournalBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argate_journal_batch_size",
			Help:    "Size of transition journal batch inserts",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
		},
	)

	JournalBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argate_journal_batch_duration_seconds",
			Help:    "Duration of transition journal batch writes in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	JournalQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argate_journal_queue_size",
			Help: "Current size of the transition journal queue",
		},
	)

	JournalWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argate_journal_write_errors_total",
			Help: "Total number of transition journal write errors",
		},
	)

	JournalDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argate_journal_dropped_total",
			Help: "Total number of transitions dropped due to a full journal queue",
		},
	)

	// Общие метрики приложения
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "argate_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetAppInfo устанавливает информацию о версии приложения
func SetAppInfo(version, commit, buildTime string) {
	AppInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

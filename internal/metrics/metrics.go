package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Event listener metrics
	// ============================================
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_events_received_total",
			Help: "Total number of verification request events received",
		},
		[]string{"source"},
	)

	EventDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_event_decode_failures_total",
		Help: "Total number of events dropped because decoding failed",
	})

	ListenerStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_listener_status",
			Help: "Event listener status (1=subscribed, 0=down)",
		},
		[]string{"source"},
	)

	// ============================================
	// Request processor metrics
	// ============================================
	RequestsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_requests_processed_total",
			Help: "Total number of verification requests driven to a terminal outcome",
		},
		[]string{"outcome"},
	)

	RequestsUnresolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_requests_unresolved_total",
		Help: "Requests left unresolved after exhausting chain write retries",
	})

	RequestRequeues = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_request_requeues_total",
		Help: "Total number of requests requeued while waiting for a submission",
	})

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_request_processing_duration_seconds",
		Help:    "Wall time of one request processor invocation",
		Buckets: prometheus.DefBuckets,
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oracle_work_queue_depth",
		Help: "Units of work queued or in flight",
	})

	// ============================================
	// Chain write metrics
	// ============================================
	ChainWriteAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_chain_write_attempts_total",
		Help: "Total number of fulfillment transaction attempts",
	})

	ChainWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_chain_write_failures_total",
		Help: "Total number of failed fulfillment transaction attempts",
	})

	ChainReadFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_chain_read_fallbacks_total",
			Help: "Chain reads that fell back to a default value",
		},
		[]string{"read"},
	)

	// ============================================
	// HTTP ingestion metrics
	// ============================================
	SubmissionsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_submissions_stored_total",
		Help: "Total number of code submissions accepted",
	})

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_auth_failures_total",
			Help: "Rejected requests by auth mechanism",
		},
		[]string{"mechanism"},
	)

	// ============================================
	// Websocket push metrics
	// ============================================
	WSClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oracle_ws_clients_connected",
		Help: "Currently connected websocket clients",
	})
)

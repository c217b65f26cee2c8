package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	IndexerWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_indexer_write_failures_total",
			Help: "Total number of ledger events the indexer failed to persist",
		},
		[]string{"event_type"},
	)

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_published_total",
			Help: "Total number of ledger events published to NATS",
		},
		[]string{"subject"},
	)

	NATSMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_failed_total",
			Help: "Total number of ledger events that failed to publish",
		},
		[]string{"subject"},
	)

	// ============================================
	// Ledger
	// ============================================
	LedgerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_ledger_events_total",
			Help: "Total number of committed ledger events",
		},
		[]string{"type"},
	)

	PendingIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_pending_intents",
		Help: "Intents waiting for a settlement batch",
	})

	PendingReleases = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_pending_releases",
		Help: "Queued releases not yet executed",
	})

	// ============================================
	// Relay
	// ============================================
	SettlementBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_settlement_batches_total",
			Help: "Settlement batches by outcome (settled, empty, replay, rejected, failed)",
		},
		[]string{"result"},
	)

	SignatureRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_signature_rejections_total",
		Help: "Batches rejected because the enclave signature did not verify",
	})

	RelaySkippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_relay_skipped_ticks_total",
		Help: "Relay ticks skipped because a submission was already in flight",
	})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backend_settlement_batch_duration_seconds",
		Help:    "Time from enclave request to ledger acceptance",
		Buckets: prometheus.DefBuckets,
	})

	ReleasesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_releases_executed_total",
			Help: "Release executions attempted by the keeper, by result",
		},
		[]string{"result"},
	)

	// ============================================
	// WebSocket
	// ============================================
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_websocket_clients",
		Help: "Connected websocket event stream clients",
	})
)

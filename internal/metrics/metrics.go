// Package metrics defines the Prometheus instrumentation for pulsebridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook metrics
var (
	// WebhookEventsTotal tracks inbound webhook verification outcomes
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound webhook events by verification result",
		},
		[]string{"result"},
	)
)

// Fanout metrics
var (
	// FanoutCyclesTotal tracks completed fanout cycles
	FanoutCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_cycles_total",
			Help: "Completed broadcast fanout cycles",
		},
	)

	// FanoutDeliveredTotal tracks successful per-connection deliveries
	FanoutDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_delivered_total",
			Help: "Payloads successfully pushed to connections",
		},
	)

	// FanoutStaleCleanedTotal tracks stale connections evicted from the registry
	FanoutStaleCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_stale_cleaned_total",
			Help: "Stale connections evicted during fanout reconciliation",
		},
	)

	// PushesTotal tracks individual push attempts by outcome
	PushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushes_total",
			Help: "Push attempts by outcome (ok/gone/transient)",
		},
		[]string{"outcome"},
	)

	// PushDuration tracks push latency in seconds
	PushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "push_duration_seconds",
			Help:    "Per-connection push duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// BroadcastMessagesDropped tracks payloads dropped by latest-wins batching
	BroadcastMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_messages_dropped_total",
			Help: "Broadcast payloads superseded within a batch (latest-wins)",
		},
	)
)

// Connection metrics
var (
	// ActiveConnections tracks currently attached WebSocket connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Currently attached WebSocket connections",
		},
	)

	// ConnectionsRejectedTotal tracks rejected connection attempts by reason
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_rejected_total",
			Help: "Rejected connection attempts by reason",
		},
		[]string{"reason"},
	)
)

// Redis metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

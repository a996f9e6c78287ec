package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the multiplayer room server.
//
// Naming convention: namespace_subsystem_name
// - namespace: roomplay (application-level grouping)
// - subsystem: websocket, room, countdown, playlist, redis, persistence, circuit_breaker, rate_limit
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, room users)
// - Counter: Cumulative events (messages processed, state transitions)
// - Histogram: Latency distributions (processing time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections (Gauge - current state)
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomplay",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomplay",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomUsers tracks the number of users in each room (GaugeVec with room_id label - current state per room)
	RoomUsers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roomplay",
		Subsystem: "room",
		Name:      "users_count",
		Help:      "Number of users in each room",
	}, []string{"room_id"})

	// RoomStateTransitions tracks room state machine transitions (CounterVec - cumulative)
	RoomStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "room",
		Name:      "state_transitions_total",
		Help:      "Total room state transitions, keyed by the resulting state",
	}, []string{"state"})

	// RoomUserStateTransitions tracks per-user state machine transitions (CounterVec - cumulative)
	RoomUserStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "room",
		Name:      "user_state_transitions_total",
		Help:      "Total room-user state transitions, keyed by the resulting state",
	}, []string{"state"})

	// WebsocketEvents tracks the total number of WebSocket events processed (CounterVec - cumulative)
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks the time spent processing WebSocket messages (HistogramVec - latency distribution)
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "roomplay",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// CountdownsActive tracks the number of countdowns currently running (Gauge - current state)
	CountdownsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomplay",
		Subsystem: "countdown",
		Name:      "active",
		Help:      "Current number of running countdowns across all rooms",
	})

	// CountdownOutcomes tracks how countdowns end (CounterVec - cumulative)
	CountdownOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "countdown",
		Name:      "outcomes_total",
		Help:      "Total countdowns, keyed by how they ended",
	}, []string{"outcome"})

	// PlaylistQueueLength tracks the number of items in a room's playlist queue (GaugeVec - current state per room)
	PlaylistQueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roomplay",
		Subsystem: "playlist",
		Name:      "queue_length",
		Help:      "Number of items in each room's playlist queue",
	}, []string{"room_id"})

	// PlaylistItemsFinished tracks completed playlist items (CounterVec - cumulative)
	PlaylistItemsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "playlist",
		Name:      "items_finished_total",
		Help:      "Total playlist items marked finished",
	}, []string{"room_id"})

	// CircuitBreakerState tracks the current state of the circuit breaker (GaugeVec)
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roomplay",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by the circuit breaker
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the rate limit
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks the total number of Redis operations (CounterVec)
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations (HistogramVec)
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "roomplay",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// PersistenceOperationsTotal tracks the total number of persistence-store operations (CounterVec)
	PersistenceOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomplay",
		Subsystem: "persistence",
		Name:      "operations_total",
		Help:      "Total number of persistence store operations",
	}, []string{"operation", "status"})

	// PersistenceOperationDuration tracks the duration of persistence-store operations (HistogramVec)
	PersistenceOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "roomplay",
		Subsystem: "persistence",
		Name:      "operation_duration_seconds",
		Help:      "Duration of persistence store operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}

// Package metrics provides Prometheus metrics for the live game service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks games currently held in memory.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livegame_active_sessions",
			Help: "Number of live game sessions held in memory",
		},
	)

	// SessionsCreated counts sessions seeded from the game store.
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livegame_sessions_created_total",
			Help: "Total number of sessions seeded from the game store",
		},
	)

	// SessionsRetired counts sessions removed from memory, by reason.
	SessionsRetired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livegame_sessions_retired_total",
			Help: "Total number of sessions retired",
		},
		[]string{"reason"},
	)

	MutationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livegame_mutations_applied_total",
			Help: "Total number of accepted score mutations",
		},
		[]string{"kind"},
	)

	MutationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livegame_mutations_rejected_total",
			Help: "Total number of rejected score mutations",
		},
		[]string{"code"},
	)

	// ConnectedClients tracks open websocket connections.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livegame_connected_clients",
			Help: "Number of open websocket connections",
		},
	)

	// BroadcastDropped counts subscribers dropped because their send buffer was full.
	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livegame_broadcast_dropped_total",
			Help: "Total number of subscribers dropped for being too slow",
		},
	)

	// StatForwards counts stat delta deliveries by outcome.
	StatForwards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livegame_stat_forwards_total",
			Help: "Total number of player stat delta deliveries",
		},
		[]string{"outcome"},
	)

	StatRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livegame_stat_retries_total",
			Help: "Total number of player stat delta retries",
		},
	)

	StatQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livegame_stat_queue_depth",
			Help: "Number of stat deltas waiting for delivery",
		},
	)
)

// RecordSessionCreated increments session creation metrics.
func RecordSessionCreated() {
	SessionsCreated.Inc()
	ActiveSessions.Inc()
}

// RecordSessionRetired increments session retirement metrics.
func RecordSessionRetired(reason string) {
	SessionsRetired.WithLabelValues(reason).Inc()
	ActiveSessions.Dec()
}

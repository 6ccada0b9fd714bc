// Package metrics defines all Prometheus collectors for the realtime core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session lifecycle metrics
var (
	// SessionsActive tracks the number of sessions currently in the live state.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_sessions_active",
			Help: "Number of stream sessions currently live",
		},
	)

	// SessionTransitionsTotal tracks lifecycle state transitions by target state.
	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_session_transitions_total",
			Help: "Session state machine transitions by target state",
		},
		[]string{"to"},
	)

	// SessionCreateFailures tracks failed session creations by failure kind.
	SessionCreateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_session_create_failures_total",
			Help: "Failed session creations by failure kind",
		},
		[]string{"kind"},
	)
)

// Event bus metrics
var (
	// BusEventsPublished tracks events published to the bus by kind.
	BusEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Events published to the event bus by kind",
		},
		[]string{"kind"},
	)

	// BusEventsReceived tracks events received from the bus by kind.
	BusEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_received_total",
			Help: "Events received from the event bus by kind",
		},
		[]string{"kind"},
	)

	// BusEventsDropped tracks events dropped due to slow subscribers.
	BusEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
	)
)

// Presence metrics
var (
	// PresenceViewers tracks the last synced viewer count per session.
	PresenceViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_viewers_current",
			Help: "Viewers across all tracked sessions, from the last presence sync",
		},
	)

	// PresenceSyncsTotal tracks processed presence sync snapshots.
	PresenceSyncsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_syncs_total",
			Help: "Presence sync snapshots processed",
		},
	)
)

// Momentum metrics
var (
	// GiftEventsTotal tracks processed gift events.
	GiftEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "momentum_gift_events_total",
			Help: "Gift events processed by the momentum engine",
		},
	)

	// ComboResets tracks combo windows that expired and reset.
	ComboResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "momentum_combo_resets_total",
			Help: "Combo windows reset after the gap exceeded the window",
		},
	)

	// HypeMultiplier observes the multiplier applied to each gift.
	HypeMultiplier = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "momentum_hype_multiplier",
			Help:    "Hype multiplier applied per gift event",
			Buckets: []float64{1.0, 1.25, 1.5, 1.75, 2.0, 2.5, 3.0},
		},
	)
)

// Ranking metrics
var (
	// ScoreIncrementsTotal tracks gameplay score increments by source.
	ScoreIncrementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_score_increments_total",
			Help: "Gameplay score increments by source (gift/battle/watch_time)",
		},
		[]string{"source"},
	)

	// ModerationCorrectionsTotal tracks moderation corrections by outcome.
	ModerationCorrectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_moderation_corrections_total",
			Help: "Moderation score corrections by outcome (applied/failed)",
		},
		[]string{"outcome"},
	)

	// RankRefreshDuration observes leaderboard rank recompute latency.
	RankRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ranking_rank_refresh_duration_seconds",
			Help:    "Leaderboard rank recompute duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)

// Background job metrics
var (
	// OrphanSessionsEndedTotal tracks stale live sessions force-ended by cleanup.
	OrphanSessionsEndedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_sessions_ended_total",
			Help: "Stale live sessions force-ended by the orphan cleanup job",
		},
	)

	// OrphanCleanupScansTotal tracks completed orphan cleanup scans.
	OrphanCleanupScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_cleanup_scans_total",
			Help: "Completed orphan session cleanup scans",
		},
	)
)

// Connection resilience metrics
var (
	// ReconnectAttemptsTotal tracks reconnect attempts by result.
	ReconnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_reconnect_attempts_total",
			Help: "Reconnect attempts by result (success/failure)",
		},
		[]string{"result"},
	)

	// ConnectionState tracks the current connection state (0=connected,
	// 1=degraded, 2=reconnecting, 3=disconnected).
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connection_state",
			Help: "Current connection state (0=connected, 1=degraded, 2=reconnecting, 3=disconnected)",
		},
	)
)

// WebSocket metrics
var (
	// WSClientsConnected tracks connected viewer websocket clients.
	WSClientsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_clients_connected",
			Help: "Connected viewer WebSocket clients across all sessions",
		},
	)

	// WSClientsEvicted tracks clients dropped for not keeping up.
	WSClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_clients_evicted_total",
			Help: "WebSocket clients evicted because their send buffer was full",
		},
	)
)

// HTTP metrics
var (
	// HTTPErrorsTotal tracks HTTP errors by structured error type.
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)

	// ProviderRequestsTotal tracks streaming provider calls by operation and status.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Streaming provider requests by operation and status",
		},
		[]string{"operation", "status"},
	)
)

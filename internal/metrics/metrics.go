// Package metrics defines the Prometheus metrics for the ACD engine.
// All metrics use the "acd_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "acd"

// --- ARP I/O Metrics ---

var (
	// ProbesSent counts ARP probes transmitted.
	ProbesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probes_sent_total",
		Help:      "Total ARP probes sent.",
	})

	// AnnouncementsSent counts gratuitous ARP announcements transmitted,
	// by reason (bind or defend).
	AnnouncementsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "announcements_sent_total",
		Help:      "Total gratuitous ARP announcements sent, by reason.",
	}, []string{"reason"})

	// FramesReceived counts inbound ARP frames handled, by disposition.
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_received_total",
		Help:      "Total inbound ARP frames handled, by disposition.",
	}, []string{"disposition"})

	// IOErrors counts fatal errors (send, recv, or timer scheduling) that
	// forced a session to stop. Sessions record all of them under op
	// "session".
	IOErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "io_errors_total",
		Help:      "Total fatal ARP socket errors, by operation.",
	}, []string{"op"})
)

// --- State Machine Metrics ---

var (
	// SessionsRunning is a gauge of sessions currently outside INIT.
	SessionsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_running",
		Help:      "Number of ACD sessions currently running (state != INIT).",
	})

	// StateTransitions counts transitions into each state.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_transitions_total",
		Help:      "Total transitions into each ACD state.",
	}, []string{"state"})

	// ConflictsDetected counts conflicts observed, by the state the
	// session was in when the conflict arrived.
	ConflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflicts_detected_total",
		Help:      "Total ARP conflicts observed, by session state.",
	}, []string{"state"})

	// RateLimitActivations counts times MAX_CONFLICTS was reached and the
	// next probe cycle was delayed by RATE_LIMIT_INTERVAL.
	RateLimitActivations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_activations_total",
		Help:      "Total times the conflict rate limit delayed a probe cycle.",
	})
)

// --- Event Bus Metrics ---

var (
	// EventsPublished counts events published to the bus.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total events published to the event bus.",
	}, []string{"event_type"})

	// EventBufferDrops counts events dropped due to full buffer.
	EventBufferDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_buffer_drops_total",
		Help:      "Total events dropped due to full event bus buffer.",
	})
)

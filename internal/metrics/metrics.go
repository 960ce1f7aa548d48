// Package metrics exposes Prometheus collectors for the orchestrator.
// Dropped frames and undelivered events are surfaced here rather than
// as errors: they are tolerated conditions that operators watch for
// trends, not faults a call can recover from.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks live call sessions per organization.
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vocaliq",
		Subsystem: "session",
		Name:      "active",
		Help:      "Number of active call sessions.",
	}, []string{"org_id"})

	// SessionsRejected counts admissions refused by the org cap.
	SessionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vocaliq",
		Subsystem: "session",
		Name:      "rejected_total",
		Help:      "Sessions rejected because the organization concurrency cap was reached.",
	}, []string{"org_id"})

	// SessionsEnded counts sessions by end reason.
	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vocaliq",
		Subsystem: "session",
		Name:      "ended_total",
		Help:      "Sessions ended, labelled by reason.",
	}, []string{"reason"})

	// FramesDropped counts inbound audio frames overwritten before a
	// reader consumed them.
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vocaliq",
		Subsystem: "audio",
		Name:      "frames_dropped_total",
		Help:      "Inbound audio frames dropped due to slow consumption.",
	})

	// FramesFlushed counts outbound chunks discarded by barge-in flushes.
	FramesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vocaliq",
		Subsystem: "audio",
		Name:      "frames_flushed_total",
		Help:      "Outbound audio chunks discarded by flush-and-discard.",
	})

	// EventsDropped counts bus events undeliverable to slow observers.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vocaliq",
		Subsystem: "event",
		Name:      "dropped_total",
		Help:      "Events dropped because a subscriber queue was full.",
	})

	// Interruptions counts caller barge-ins that pre-empted playback.
	Interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vocaliq",
		Subsystem: "session",
		Name:      "interruptions_total",
		Help:      "Caller barge-ins that cancelled in-flight agent speech.",
	})

	// TurnLatency observes final-transcript-to-committed-response latency.
	TurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vocaliq",
		Subsystem: "session",
		Name:      "turn_latency_seconds",
		Help:      "Latency from final caller transcript to the committed agent response.",
		Buckets:   []float64{0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 8},
	})

	// FirstAudioLatency observes the caller-perceived response time.
	FirstAudioLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vocaliq",
		Subsystem: "session",
		Name:      "first_audio_latency_seconds",
		Help:      "Latency from final caller transcript to the first synthesized audio chunk.",
		Buckets:   []float64{0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 8},
	})

	// ReasoningLatency observes reasoning capability response time.
	ReasoningLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vocaliq",
		Subsystem: "reasoning",
		Name:      "latency_seconds",
		Help:      "Reasoning capability response latency.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
	})
)

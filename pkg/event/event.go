// Package event publishes call lifecycle events to interested
// consumers (dashboards, analytics, persistence). Consumers may be
// slow or absent; publishing never blocks the orchestrator, and
// undeliverable events are dropped with a metric increment rather
// than retried.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the event category.
type Kind string

const (
	// KindStateChanged fires on every session state transition.
	KindStateChanged Kind = "state_changed"

	// KindTranscriptFinal fires when a final caller transcript is
	// committed to history.
	KindTranscriptFinal Kind = "transcript_final"

	// KindAgentResponded fires when the agent's utterance is
	// committed, before its audio finishes playing.
	KindAgentResponded Kind = "agent_responded"

	// KindCallEnded is the last event a session emits.
	KindCallEnded Kind = "call_ended"

	// KindError fires on adapter failures the session survived.
	KindError Kind = "error"
)

// Event is one entry in a call's ordered event stream. Events for a
// single call are published from that session's own goroutine, so a
// subscriber observes them in emission order.
type Event struct {
	ID        string         `json:"id"`
	CallID    string         `json:"call_id"`
	OrgID     string         `json:"org_id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      Kind           `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New creates an event stamped with an ID and the current time.
func New(callID, orgID string, kind Kind, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		CallID:    callID,
		OrgID:     orgID,
		Timestamp: time.Now(),
		Kind:      kind,
		Payload:   payload,
	}
}

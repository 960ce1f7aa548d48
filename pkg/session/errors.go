package session

import "errors"

// Sentinel errors for common conditions.
var (
	// ErrCapacityExceeded is returned when an organization's
	// concurrent-call limit is reached. Admission control protects
	// shared downstream capabilities from overload.
	ErrCapacityExceeded = errors.New("session: organization capacity exceeded")

	// ErrSessionEnded is returned when interacting with a session
	// that has already reached its terminal state.
	ErrSessionEnded = errors.New("session: session ended")

	// ErrManagerClosed is returned when the manager is shutting down.
	ErrManagerClosed = errors.New("session: manager closed")
)

// End reasons recorded in the final lifecycle event and metrics.
const (
	ReasonCallerHangup      = "caller_hangup"
	ReasonTelephonyDropped  = "telephony_dropped"
	ReasonIdleTimeout       = "idle_timeout"
	ReasonMaxDuration       = "max_duration"
	ReasonAdminTerminate    = "admin_terminate"
	ReasonReasoningFailed   = "reasoning_failed"
	ReasonTranscriptionDown = "transcription_unavailable"
	ReasonConfigUnavailable = "config_unavailable"
	ReasonManagerShutdown   = "manager_shutdown"
)

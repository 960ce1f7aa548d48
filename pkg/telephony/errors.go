package telephony

import "errors"

// Sentinel errors for common conditions.
var (
	// ErrDropped is returned when the media connection is lost
	// without a stop event. The session treats this as a hangup.
	ErrDropped = errors.New("telephony: media connection dropped")

	// ErrLegClosed is returned when writing to a closed leg.
	ErrLegClosed = errors.New("telephony: leg closed")

	// ErrBadHandshake is returned when the carrier does not open the
	// stream with a start event.
	ErrBadHandshake = errors.New("telephony: expected start event")
)

// Package telephony carries call audio between the carrier and the
// orchestrator over media-stream websockets.
//
// The carrier opens one websocket per call and speaks a small JSON
// protocol: a start event with call identity, media events carrying
// base64 μ-law audio both directions, mark events for playback
// checkpoints, and a stop event on hangup. A Leg is the
// orchestrator's view of one such connection.
package telephony

import (
	"context"

	"github.com/vocaliq/go-vocaliq/pkg/audio"
)

// StartInfo is the call identity announced by the carrier's start
// event.
type StartInfo struct {
	StreamSID  string
	CallSID    string
	AccountSID string

	// Custom parameters set when the call was routed.
	OrgID   string
	AgentID string
	From    string
	To      string
}

// Leg is one call's media connection.
type Leg interface {
	// Info returns the call identity from the start handshake.
	Info() StartInfo

	// Frames returns decoded inbound caller audio. The channel closes
	// on hangup or connection loss; Err distinguishes the two.
	Frames() <-chan audio.Frame

	// Write sends μ-law audio bytes to the caller.
	Write(ctx context.Context, mulaw []byte) error

	// Mark asks the carrier to echo a named checkpoint once all audio
	// queued before it has played out.
	Mark(ctx context.Context, name string) error

	// Marks returns checkpoint names echoed back by the carrier.
	Marks() <-chan string

	// Clear tells the carrier to discard any audio it has buffered
	// but not yet played. Used on barge-in.
	Clear(ctx context.Context) error

	// Err returns the terminal error after Frames closes, nil for a
	// clean hangup.
	Err() error

	// Close tears the connection down.
	Close() error
}

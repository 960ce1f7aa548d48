package telephony

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/vocaliq/go-vocaliq/pkg/audio"
)

// Conn is the subset of a websocket connection the leg needs. Both
// gorilla/websocket and the fiber contrib websocket satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// wsTextMessage matches websocket.TextMessage in both libraries.
const wsTextMessage = 1

const (
	frameBuffer  = 64
	markBuffer   = 16
	readDeadline = 60 * time.Second
)

// WSLeg is a Leg over a media-stream websocket.
type WSLeg struct {
	conn Conn
	info StartInfo

	frames chan audio.Frame
	marks  chan string

	writeMu sync.Mutex

	mu     sync.Mutex
	err    error
	closed bool

	logger *slog.Logger
}

// Accept performs the start handshake on a freshly upgraded
// connection and returns the leg with its read loop running. The
// first frame from the carrier must be a start event.
func Accept(conn Conn) (*WSLeg, error) {
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, ErrBadHandshake
	}

	msg, err := ParseMessage(data)
	if err != nil || msg.Event != EventStart || msg.Start == nil {
		return nil, ErrBadHandshake
	}

	params := msg.Start.CustomParameters
	leg := &WSLeg{
		conn: conn,
		info: StartInfo{
			StreamSID:  msg.Start.StreamSID,
			CallSID:    msg.Start.CallSID,
			AccountSID: msg.Start.AccountSID,
			OrgID:      params["org_id"],
			AgentID:    params["agent_id"],
			From:       params["from_number"],
			To:         params["to_number"],
		},
		frames: make(chan audio.Frame, frameBuffer),
		marks:  make(chan string, markBuffer),
		logger: slog.Default().With(
			"component", "telephony.leg",
			"call_sid", msg.Start.CallSID,
		),
	}

	go leg.readLoop()
	return leg, nil
}

// Info returns the call identity from the start handshake.
func (l *WSLeg) Info() StartInfo { return l.info }

// Frames returns decoded inbound caller audio.
func (l *WSLeg) Frames() <-chan audio.Frame { return l.frames }

// Marks returns checkpoint names echoed back by the carrier.
func (l *WSLeg) Marks() <-chan string { return l.marks }

func (l *WSLeg) readLoop() {
	defer close(l.frames)

	var seq uint64
	for {
		l.conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.setErr(ErrDropped)
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			l.logger.Warn("unparseable media-stream frame", "error", err)
			continue
		}

		switch msg.Event {
		case EventMedia:
			if msg.Media == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				l.logger.Warn("bad media payload", "error", err)
				continue
			}
			frame := audio.DecodeMulawFrame(payload, seq)
			seq++
			select {
			case l.frames <- frame:
			default:
				// The session's ingest goroutine has stalled; the
				// stream cannot be paused, so the frame is lost.
			}

		case EventMark:
			if msg.Mark == nil {
				continue
			}
			select {
			case l.marks <- msg.Mark.Name:
			default:
			}

		case EventStop:
			l.logger.Info("stream stopped by carrier")
			return
		}
	}
}

// Write sends μ-law audio to the caller.
func (l *WSLeg) Write(ctx context.Context, mulaw []byte) error {
	msg := NewMediaMessage(l.info.StreamSID, base64.StdEncoding.EncodeToString(mulaw))
	return l.send(msg)
}

// Mark requests a playback checkpoint.
func (l *WSLeg) Mark(ctx context.Context, name string) error {
	return l.send(NewMarkMessage(l.info.StreamSID, name))
}

// Clear tells the carrier to drop buffered audio.
func (l *WSLeg) Clear(ctx context.Context) error {
	return l.send(NewClearMessage(l.info.StreamSID))
}

func (l *WSLeg) send(msg *Message) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLegClosed
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.WriteMessage(wsTextMessage, data); err != nil {
		l.setErr(ErrDropped)
		return ErrDropped
	}
	return nil
}

func (l *WSLeg) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil && !l.closed {
		l.err = err
	}
}

// Err returns the terminal error, nil for a clean stop.
func (l *WSLeg) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close tears the connection down.
func (l *WSLeg) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.conn.Close()
}

// Verify WSLeg implements Leg at compile time.
var _ Leg = (*WSLeg)(nil)

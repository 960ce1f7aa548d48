package telephony

import "encoding/json"

// Wire event names.
const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
	EventMark  = "mark"
	EventClear = "clear"
)

// Message is one media-stream protocol frame. Only the section named
// by Event is populated.
type Message struct {
	Event     string     `json:"event"`
	StreamSID string     `json:"streamSid,omitempty"`
	Start     *StartData `json:"start,omitempty"`
	Media     *MediaData `json:"media,omitempty"`
	Mark      *MarkData  `json:"mark,omitempty"`
	Stop      *StopData  `json:"stop,omitempty"`
}

// StartData announces call identity at stream open.
type StartData struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	AccountSID       string            `json:"accountSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaData carries one chunk of base64 μ-law audio.
type MediaData struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// MarkData names a playback checkpoint.
type MarkData struct {
	Name string `json:"name"`
}

// StopData closes the stream.
type StopData struct {
	CallSID string `json:"callSid,omitempty"`
}

// ParseMessage decodes one protocol frame.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Encode serializes the message for the wire.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// NewMediaMessage builds an outbound audio frame. The payload must
// already be base64 μ-law.
func NewMediaMessage(streamSID, payload string) *Message {
	return &Message{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     &MediaData{Payload: payload},
	}
}

// NewMarkMessage builds a playback checkpoint request.
func NewMarkMessage(streamSID, name string) *Message {
	return &Message{
		Event:     EventMark,
		StreamSID: streamSID,
		Mark:      &MarkData{Name: name},
	}
}

// NewClearMessage tells the carrier to drop buffered audio.
func NewClearMessage(streamSID string) *Message {
	return &Message{Event: EventClear, StreamSID: streamSID}
}

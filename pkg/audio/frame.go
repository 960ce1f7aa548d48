// Package audio provides fixed-size audio framing and the per-call
// frame bus that connects the telephony leg to transcription, voice
// activity detection, and synthesis playback.
//
// Telephony audio arrives as 8 kHz mono μ-law; frames carry decoded
// PCM16 samples tagged with a monotonic sequence number so the
// pipeline can detect gaps without treating them as fatal.
package audio

import "time"

// Telephony audio framing constants. Carriers deliver 8 kHz mono
// μ-law in 20 ms chunks, which this package adopts as its native
// frame size.
const (
	SampleRate      = 8000
	FrameDuration   = 20 * time.Millisecond
	SamplesPerFrame = int(SampleRate * FrameDuration / time.Second)
)

// Direction indicates which way a frame is travelling.
type Direction int

const (
	// Inbound frames carry caller audio from the telephony leg.
	Inbound Direction = iota

	// Outbound frames carry synthesized agent audio toward the line.
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Frame is a fixed-duration slice of PCM16 samples. Seq is assigned
// by the producer and increases monotonically per direction; a jump
// greater than one marks dropped frames upstream.
type Frame struct {
	Seq       uint64
	Direction Direction
	Samples   []int16
	Timestamp time.Time
}

// Duration returns the playback duration of the frame.
func (f *Frame) Duration() time.Duration {
	return time.Duration(len(f.Samples)) * time.Second / SampleRate
}

// Bytes returns the samples as little-endian PCM16 bytes, the layout
// WAV and most vendor stream APIs expect.
func (f *Frame) Bytes() []byte {
	buf := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

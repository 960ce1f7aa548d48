package tts

import (
	"context"
	"errors"
	"sync"
)

// ErrNoClip is returned when a Static provider is created without
// audio data.
var ErrNoClip = errors.New("tts: static clip required")

// staticChunkSize is one 20ms μ-law frame at 8 kHz.
const staticChunkSize = 160

// Static serves one pre-rendered audio clip for every utterance,
// ignoring the text. It has no external dependency, so it stays
// available when every real synthesis vendor is down; placed last in
// a chain it turns total synthesis failure into a canned apology
// instead of dead air. The clip must already be in the line encoding.
type Static struct {
	clip []byte
}

// NewStatic creates a provider that always speaks clip.
func NewStatic(clip []byte) (*Static, error) {
	if len(clip) == 0 {
		return nil, ErrNoClip
	}
	return &Static{clip: clip}, nil
}

// Name returns the vendor identifier.
func (s *Static) Name() string { return "static" }

// Health always succeeds; there is nothing to reach.
func (s *Static) Health(ctx context.Context) error { return nil }

// Close releases any resources held by the provider.
func (s *Static) Close() error { return nil }

// Speak returns the clip chunked into frame-sized pieces.
func (s *Static) Speak(ctx context.Context, text string) (Stream, error) {
	st := &staticStream{
		chunks: make(chan []byte),
		done:   make(chan struct{}),
	}
	go st.run(s.clip)
	return st, nil
}

// Verify interface compliance at compile time.
var _ Provider = (*Static)(nil)

type staticStream struct {
	chunks chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *staticStream) run(clip []byte) {
	defer close(s.chunks)
	for off := 0; off < len(clip); off += staticChunkSize {
		end := off + staticChunkSize
		if end > len(clip) {
			end = len(clip)
		}
		select {
		case s.chunks <- clip[off:end]:
		case <-s.done:
			return
		}
	}
}

func (s *staticStream) Chunks() <-chan []byte { return s.chunks }

func (s *staticStream) Cancel() {
	s.once.Do(func() { close(s.done) })
}

// Err always reports nil: the clip either plays or is cancelled.
func (s *staticStream) Err() error { return nil }

var _ Stream = (*staticStream)(nil)

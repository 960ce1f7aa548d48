// Package stt provides a unified interface for speech-to-text providers.
//
// A Provider opens one Session per phone call. The session accepts
// audio frames and produces transcript events on a channel that stays
// open for the life of the call: partial events may repeat with
// growing text, and only final events become conversation turns.
//
// Streaming vendors (Deepgram) endpoint utterances server-side; batch
// vendors (Whisper) endpoint locally with a silence detector before
// submitting the buffered utterance.
//
// Example usage:
//
//	provider, _ := stt.NewDeepgram(
//	    stt.WithAPIKey(os.Getenv("DEEPGRAM_API_KEY")),
//	    stt.WithLanguage("en"),
//	)
//	defer provider.Close()
//
//	sess, _ := provider.StartSession(ctx)
//	for ev := range sess.Events() {
//	    if ev.IsFinal {
//	        // append caller turn
//	    }
//	}
package stt

import (
	"context"

	"github.com/vocaliq/go-vocaliq/pkg/audio"
)

// TranscriptEvent is one transcription result. Partial events carry
// the best hypothesis so far; a final event closes the utterance.
type TranscriptEvent struct {
	// Text is the transcribed text.
	Text string

	// IsFinal indicates the utterance is complete. Only final events
	// are appended to conversation history.
	IsFinal bool

	// Confidence is the vendor's confidence in [0,1], 0 if unknown.
	Confidence float64
}

// Session is an active transcription stream for one call.
type Session interface {
	// Submit sends one inbound audio frame. It never blocks on the
	// vendor; frames the vendor cannot absorb are dropped.
	Submit(f audio.Frame) error

	// Events returns the transcript event channel. The channel is
	// closed only when the session closes; it is never restarted.
	Events() <-chan TranscriptEvent

	// Close ends the session and releases the vendor connection.
	// Safe to call more than once.
	Close() error
}

// Provider defines the speech-to-text provider interface.
type Provider interface {
	// StartSession opens a transcription session for one call.
	StartSession(ctx context.Context) (Session, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Name returns the vendor identifier (e.g. "deepgram", "mock").
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Package tts provides a unified interface for text-to-speech providers.
//
// The package supports multiple synthesis backends, all behind the
// Provider interface: ElevenLabs (custom voices, telephony μ-law
// output) and OpenAI (built-in voices). A Speak call returns a
// cancellable audio stream; cancellation is the barge-in path and must
// stop producing chunks within the caller's flush budget.
//
// Example usage:
//
//	provider, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    tts.WithVoice("voice-id"),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.Speak(ctx, "Sure, what day works?")
//	for chunk := range stream.Chunks() {
//	    // write chunk toward the telephony leg
//	}
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
// All implementations must satisfy this interface for seamless
// provider switching.
type Provider interface {
	// Speak starts synthesizing text and returns a stream of audio
	// chunks. The stream is finite; a new utterance requires a new
	// Speak call, and any in-flight stream must be cancelled first,
	// never restarted.
	Speak(ctx context.Context, text string) (Stream, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Name returns the vendor identifier (e.g. "elevenlabs", "mock").
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is one in-flight synthesis. Chunks arrive in playback order
// on the channel, which closes on completion, cancellation, or error.
type Stream interface {
	// Chunks returns the audio chunk channel. Chunk encoding follows
	// the provider's configured output format.
	Chunks() <-chan []byte

	// Cancel stops producing further chunks within a bounded latency.
	// It is idempotent: safe to call repeatedly or after natural
	// completion.
	Cancel()

	// Err reports why the stream ended early, or nil after natural
	// completion or cancellation.
	Err() error
}

// Encoding represents audio output encodings.
// These match ElevenLabs output format identifiers.
type Encoding string

const (
	// EncodingULaw8000 is 8-bit μ-law at 8 kHz, the telephony line
	// format. Chunks in this encoding go to the frame bus unmodified.
	EncodingULaw8000 Encoding = "ulaw_8000"

	// EncodingPCM16000 is 16 kHz mono PCM16.
	EncodingPCM16000 Encoding = "pcm_16000"

	// EncodingPCM24000 is 24 kHz mono PCM16.
	EncodingPCM24000 Encoding = "pcm_24000"
)

// VoiceSettings controls voice characteristics for providers that
// support them.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	Stability float64

	// SimilarityBoost controls closeness to the original voice (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	Style float64

	// SpeakerBoost enhances speaker clarity on noisy lines.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns sensible defaults for phone audio.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}

// CancelBudget is the latency bound on Cancel taking effect. It backs
// the perceived interruption latency, so it must stay well under the
// flush-to-silence target.
const CancelBudget = 200 * time.Millisecond

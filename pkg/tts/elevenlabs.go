package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vocaliq/go-vocaliq/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"

	// streamChunkSize is the read granularity off the response body.
	// 160 bytes of μ-law is one 20 ms telephony frame.
	streamChunkSize = 160
)

// ElevenLabs model IDs.
const (
	// ModelTurboV2_5 is the fastest English model (~200ms latency).
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelFlashV2_5 is the fastest multilingual model (~150ms latency).
	ModelFlashV2_5 = "eleven_flash_v2_5"

	// ModelMultilingualV2 is the highest quality multilingual model.
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider for ElevenLabs TTS. With the default
// ulaw_8000 output format, chunks go to the telephony leg unmodified.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:  cfg,
		client:  httpc.StreamingClient,
		logger:  cfg.Logger.With("component", "tts.elevenlabs"),
		baseURL: baseURL,
	}, nil
}

// Name returns the vendor identifier.
func (e *ElevenLabs) Name() string { return providerElevenLabs }

// Speak starts a streaming synthesis request.
func (e *ElevenLabs) Speak(ctx context.Context, text string) (Stream, error) {
	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s",
		e.baseURL, e.config.VoiceID, e.config.OutputFormat)

	payload := map[string]any{
		"text":     text,
		"model_id": e.config.ModelID,
		"voice_settings": map[string]any{
			"stability":         e.config.VoiceSettings.Stability,
			"similarity_boost":  e.config.VoiceSettings.SimilarityBoost,
			"style":             e.config.VoiceSettings.Style,
			"use_speaker_boost": e.config.VoiceSettings.SpeakerBoost,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerElevenLabs, err)
	}

	sctx, cancel := context.WithTimeout(ctx, e.config.StreamTimeout)

	req, err := http.NewRequestWithContext(sctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, WrapError(providerElevenLabs, err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		cancel()
		return nil, WrapError(providerElevenLabs, ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(data), Provider: providerElevenLabs}
	}

	s := newBodyStream(resp.Body, cancel)
	go s.pump()
	e.logger.Debug("synthesis stream started", "chars", len(text), "model", e.config.ModelID)
	return s, nil
}

// Health checks API key validity against the voices endpoint.
func (e *ElevenLabs) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/voices", nil)
	if err != nil {
		return WrapError(providerElevenLabs, err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := httpc.Do(req)
	if err != nil {
		return WrapError(providerElevenLabs, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "health check failed", Provider: providerElevenLabs}
	}
	return nil
}

// Close releases provider resources.
func (e *ElevenLabs) Close() error { return nil }

// bodyStream adapts a streaming HTTP response body to Stream.
// Cancel closes the body, which unblocks the pump read within the
// transport's read window, well inside CancelBudget.
type bodyStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	chunks chan []byte

	once      sync.Once
	mu        sync.Mutex
	err       error
	cancelled bool
}

func newBodyStream(body io.ReadCloser, cancel context.CancelFunc) *bodyStream {
	return &bodyStream{
		body:   body,
		cancel: cancel,
		chunks: make(chan []byte, 64),
	}
}

func (s *bodyStream) pump() {
	defer close(s.chunks)
	defer s.cancel()
	defer s.body.Close()

	buf := make([]byte, streamChunkSize)
	for {
		n, err := io.ReadFull(s.body, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.setErr(err)
			}
			return
		}
	}
}

func (s *bodyStream) Chunks() <-chan []byte { return s.chunks }

func (s *bodyStream) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()
		s.cancel()
		s.body.Close()
		// Drain so the pump can exit even with an unread buffer.
		go func() {
			for range s.chunks {
			}
		}()
	})
}

func (s *bodyStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *bodyStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// An error caused by our own cancellation is not a failure.
	if s.err == nil && !s.cancelled {
		s.err = err
	}
}

// Verify ElevenLabs implements Provider at compile time.
var _ Provider = (*ElevenLabs)(nil)

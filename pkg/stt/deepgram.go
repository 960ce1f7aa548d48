package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vocaliq/go-vocaliq/internal/httpc"
	"github.com/vocaliq/go-vocaliq/pkg/audio"
)

const (
	deepgramWSURL   = "wss://api.deepgram.com/v1/listen"
	deepgramRESTURL = "https://api.deepgram.com/v1"

	providerDeepgram = "deepgram"

	// Deepgram closes idle streams after ~10s without audio.
	deepgramKeepAlive = 5 * time.Second
)

// Deepgram implements Provider using Deepgram's streaming WebSocket
// API. Audio is sent as raw μ-law at 8 kHz; Deepgram endpoints
// utterances server-side and emits interim and final results.
type Deepgram struct {
	cfg    *Config
	logger *slog.Logger
}

// NewDeepgram creates a Deepgram streaming transcription provider.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	cfg.Model = "nova-2"
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Deepgram{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "stt.deepgram"),
	}, nil
}

// Name returns the vendor identifier.
func (d *Deepgram) Name() string { return providerDeepgram }

// Health verifies the API key against the projects endpoint.
func (d *Deepgram) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, deepgramRESTURL+"/projects", nil)
	if err != nil {
		return WrapError(providerDeepgram, err)
	}
	req.Header.Set("Authorization", "Token "+d.cfg.APIKey)

	resp, err := httpc.Do(req)
	if err != nil {
		return WrapError(providerDeepgram, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "health check failed", Provider: providerDeepgram}
	}
	return nil
}

// Close releases provider resources. Sessions hold their own
// connections, so there is nothing to tear down here.
func (d *Deepgram) Close() error { return nil }

// StartSession dials the streaming endpoint and starts the reader
// and writer loops.
func (d *Deepgram) StartSession(ctx context.Context) (Session, error) {
	q := url.Values{}
	q.Set("model", d.cfg.Model)
	q.Set("language", d.cfg.Language)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", fmt.Sprint(audio.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")

	wsURL := deepgramWSURL
	if d.cfg.BaseURL != "" {
		wsURL = d.cfg.BaseURL
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"?"+q.Encode(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error(), Provider: providerDeepgram}
		}
		return nil, WrapError(providerDeepgram, ErrUnavailable)
	}

	s := &deepgramSession{
		conn:   conn,
		logger: d.logger,
		events: make(chan TranscriptEvent, 32),
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	go s.readLoop()
	return s, nil
}

type deepgramSession struct {
	conn   *websocket.Conn
	logger *slog.Logger
	events chan TranscriptEvent
	frames chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// deepgramResult is the subset of the Results message we consume.
type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramSession) Submit(f audio.Frame) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.frames <- audio.EncodeMulaw(f.Samples):
		return nil
	default:
		// Vendor not keeping up; the frame is dropped, not queued.
		return nil
	}
}

func (s *deepgramSession) Events() <-chan TranscriptEvent {
	return s.events
}

func (s *deepgramSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		// Best effort: tell Deepgram the stream is complete.
		msg, _ := json.Marshal(map[string]string{"type": "CloseStream"})
		_ = s.conn.WriteControl(websocket.TextMessage, msg, time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
	return nil
}

func (s *deepgramSession) writeLoop() {
	ticker := time.NewTicker(deepgramKeepAlive)
	defer ticker.Stop()

	keepAlive, _ := json.Marshal(map[string]string{"type": "KeepAlive"})
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.frames:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				s.logger.Warn("audio write failed", "error", err)
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.TextMessage, keepAlive); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *deepgramSession) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("transcript stream ended", "error", err)
				s.Close()
			}
			return
		}

		var result deepgramResult
		if err := json.Unmarshal(data, &result); err != nil || result.Type != "Results" {
			continue
		}
		if len(result.Channel.Alternatives) == 0 {
			continue
		}
		alt := result.Channel.Alternatives[0]
		ev := TranscriptEvent{
			Text:       alt.Transcript,
			IsFinal:    result.IsFinal,
			Confidence: alt.Confidence,
		}

		if ev.IsFinal {
			// Finals become conversation turns; deliver even if the
			// consumer is momentarily behind.
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		} else {
			// Partials are advisory and droppable.
			select {
			case s.events <- ev:
			default:
			}
		}
	}
}

// Verify Deepgram implements Provider at compile time.
var _ Provider = (*Deepgram)(nil)

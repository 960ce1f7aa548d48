package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/vocaliq/go-vocaliq/internal/httpc"
	"github.com/vocaliq/go-vocaliq/pkg/audio"
	"github.com/vocaliq/go-vocaliq/pkg/vad"
)

const (
	whisperBaseURL   = "https://api.openai.com/v1"
	providerWhisper  = "whisper"
	whisperMinSpeech = 250 * time.Millisecond
)

// Whisper implements Provider against OpenAI's transcription REST
// API. Whisper is a batch endpoint, so the session endpoints
// utterances locally: frames buffer while the caller speaks, and a
// sustained silence run closes the utterance and submits it as WAV.
// No partial events are produced, only finals.
type Whisper struct {
	cfg    *Config
	logger *slog.Logger
	client *http.Client
}

// NewWhisper creates a Whisper batch transcription provider.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Model = "whisper-1"
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Whisper{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "stt.whisper"),
		client: httpc.NewClient(cfg.Timeout),
	}, nil
}

// Name returns the vendor identifier.
func (w *Whisper) Name() string { return providerWhisper }

// Health verifies the API key against the models endpoint.
func (w *Whisper) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL()+"/models", nil)
	if err != nil {
		return WrapError(providerWhisper, err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return WrapError(providerWhisper, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "health check failed", Provider: providerWhisper}
	}
	return nil
}

// Close releases provider resources.
func (w *Whisper) Close() error { return nil }

func (w *Whisper) baseURL() string {
	if w.cfg.BaseURL != "" {
		return w.cfg.BaseURL
	}
	return whisperBaseURL
}

// StartSession opens a locally endpointed transcription session.
func (w *Whisper) StartSession(ctx context.Context) (Session, error) {
	sctx, cancel := context.WithCancel(ctx)
	return &whisperSession{
		provider: w,
		ctx:      sctx,
		cancel:   cancel,
		detector: vad.New(vad.DefaultConfig()),
		events:   make(chan TranscriptEvent, 8),
	}, nil
}

type whisperSession struct {
	provider *Whisper
	ctx      context.Context
	cancel   context.CancelFunc
	detector *vad.Detector
	events   chan TranscriptEvent

	mu        sync.Mutex
	utterance []int16
	speech    time.Duration
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

func (s *whisperSession) Submit(f audio.Frame) error {
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	speech := s.detector.Process(f)
	if speech {
		s.utterance = append(s.utterance, f.Samples...)
		s.speech += f.Duration()
		return nil
	}

	// Silence. Keep padding the tail briefly, then endpoint.
	if len(s.utterance) > 0 {
		s.utterance = append(s.utterance, f.Samples...)
	}
	if s.detector.SilenceRun() >= s.provider.cfg.EndpointSilence && s.speech >= whisperMinSpeech {
		samples := s.utterance
		s.utterance = nil
		s.speech = 0

		s.inflight.Add(1)
		go s.transcribe(samples)
	} else if s.detector.SilenceRun() >= s.provider.cfg.EndpointSilence {
		// Too short to be a real utterance; discard the buffer.
		s.utterance = nil
		s.speech = 0
	}
	return nil
}

func (s *whisperSession) transcribe(samples []int16) {
	defer s.inflight.Done()

	text, confidence, err := s.provider.transcribeWAV(s.ctx, encodeWAV(samples))
	if err != nil {
		s.provider.logger.Warn("utterance transcription failed", "error", err)
		return
	}
	if text == "" {
		return
	}
	select {
	case s.events <- TranscriptEvent{Text: text, IsFinal: true, Confidence: confidence}:
	case <-s.ctx.Done():
	}
}

func (s *whisperSession) Events() <-chan TranscriptEvent {
	return s.events
}

func (s *whisperSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		go func() {
			s.inflight.Wait()
			close(s.events)
		}()
	})
	return nil
}

// transcribeWAV posts one WAV utterance to the transcription endpoint.
func (w *Whisper) transcribeWAV(ctx context.Context, wav []byte) (string, float64, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", 0, WrapError(providerWhisper, err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", 0, WrapError(providerWhisper, err)
	}
	_ = mw.WriteField("model", w.cfg.Model)
	if w.cfg.Language != "" {
		_ = mw.WriteField("language", w.cfg.Language)
	}
	if err := mw.Close(); err != nil {
		return "", 0, WrapError(providerWhisper, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL()+"/audio/transcriptions", &body)
	if err != nil {
		return "", 0, WrapError(providerWhisper, err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", 0, WrapError(providerWhisper, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, &APIError{StatusCode: resp.StatusCode, Message: string(data), Provider: providerWhisper}
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, WrapError(providerWhisper, err)
	}
	// The REST endpoint reports no confidence; treat success as full.
	return parsed.Text, 1.0, nil
}

// encodeWAV wraps 8 kHz mono PCM16 samples in a WAV container.
func encodeWAV(samples []int16) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(audio.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(audio.SampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))                  // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))                 // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	f := audio.Frame{Samples: samples}
	buf.Write(f.Bytes())
	return buf.Bytes()
}

// Verify Whisper implements Provider at compile time.
var _ Provider = (*Whisper)(nil)

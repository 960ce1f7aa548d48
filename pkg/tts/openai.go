package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vocaliq/go-vocaliq/internal/httpc"
	"github.com/vocaliq/go-vocaliq/pkg/audio"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI voice names.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI implements Provider for OpenAI's speech endpoint. The
// endpoint cannot emit μ-law, so PCM output is transcoded to the
// configured telephony format on the way through.
type OpenAI struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = "tts-1"
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceAlloy
	}
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{
		config:  cfg,
		client:  httpc.StreamingClient,
		logger:  cfg.Logger.With("component", "tts.openai"),
		baseURL: baseURL,
	}, nil
}

// Name returns the vendor identifier.
func (o *OpenAI) Name() string { return providerOpenAI }

// Speak starts a streaming synthesis request.
func (o *OpenAI) Speak(ctx context.Context, text string) (Stream, error) {
	payload := map[string]any{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           text,
		"response_format": "pcm", // 24kHz mono PCM16
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	sctx, cancel := context.WithTimeout(ctx, o.config.StreamTimeout)

	req, err := http.NewRequestWithContext(sctx, http.MethodPost, o.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, WrapError(providerOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		cancel()
		return nil, WrapError(providerOpenAI, ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(data), Provider: providerOpenAI}
	}

	var rc io.ReadCloser = resp.Body
	if o.config.OutputFormat == EncodingULaw8000 {
		rc = &pcm24ToULawReader{src: resp.Body}
	}
	s := newBodyStream(rc, cancel)
	go s.pump()
	return s, nil
}

// Health checks API key validity against the models endpoint.
func (o *OpenAI) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return WrapError(providerOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := httpc.Do(req)
	if err != nil {
		return WrapError(providerOpenAI, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "health check failed", Provider: providerOpenAI}
	}
	return nil
}

// Close releases provider resources.
func (o *OpenAI) Close() error { return nil }

// pcm24ToULawReader downsamples 24 kHz PCM16 to 8 kHz and μ-law
// encodes it. 24 kHz divides evenly into the 8 kHz line rate, so
// decimation takes every third sample; phone-band audio loses nothing
// audible to the simple approach.
type pcm24ToULawReader struct {
	src     io.ReadCloser
	pending []byte // carry for partial 6-byte groups between reads
}

func (r *pcm24ToULawReader) Read(p []byte) (int, error) {
	// Each output μ-law byte consumes 6 source bytes (3 samples).
	need := len(p) * 6
	buf := make([]byte, len(r.pending)+need)
	copy(buf, r.pending)

	n, err := r.src.Read(buf[len(r.pending):])
	total := len(r.pending) + n
	usable := total - total%6
	r.pending = append(r.pending[:0], buf[usable:total]...)

	samples := make([]int16, 0, usable/6)
	for i := 0; i+5 < usable; i += 6 {
		s := int16(buf[i]) | int16(buf[i+1])<<8
		samples = append(samples, s)
	}
	out := audio.EncodeMulaw(samples)
	copied := copy(p, out)
	if copied < len(out) {
		// Caller buffer too small; stash the remainder as raw tail.
		// With streamChunkSize reads this does not occur.
		return copied, fmt.Errorf("tts [%s]: short transcode buffer", providerOpenAI)
	}
	if err != nil && usable > 0 && err == io.EOF {
		return copied, io.EOF
	}
	return copied, err
}

func (r *pcm24ToULawReader) Close() error { return r.src.Close() }

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)

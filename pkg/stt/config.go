package stt

import (
	"log/slog"
	"time"
)

// Config holds speech-to-text provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Provider credentials
	APIKey  string
	BaseURL string

	// Model and language
	Model    string
	Language string

	// Endpointing for batch providers: silence run that closes an
	// utterance before submitting it for transcription.
	EndpointSilence time.Duration

	// Timeouts
	Timeout time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring STT providers.
type Option func(*Config)

// WithAPIKey sets the API key for the provider.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLanguage sets the language code (e.g. "en", "de").
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithEndpointSilence sets the silence run that closes an utterance
// for batch providers.
func WithEndpointSilence(d time.Duration) Option {
	return func(c *Config) { c.EndpointSilence = d }
}

// WithTimeout sets the per-request timeout for batch providers.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Language:        "en",
		EndpointSilence: 1500 * time.Millisecond,
		Timeout:         30 * time.Second,
		Logger:          slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

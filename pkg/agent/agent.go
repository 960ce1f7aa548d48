// Package agent holds per-organization agent configuration and the
// client for the external configuration service that serves it.
//
// An AgentConfig is loaded once when a call session starts and is
// read-only for the session's whole lifetime. A dashboard edit takes
// effect on the next call, never mid-call.
package agent

import (
	"time"
)

// Default configuration values applied when the configuration service
// omits a field.
const (
	DefaultLanguage           = "en"
	DefaultHistoryWindow      = 20
	DefaultMaxTokens          = 150
	DefaultTemperature        = 0.7
	DefaultReasoningBudget    = 8 * time.Second
	DefaultMinInterruption    = 300 * time.Millisecond
	DefaultMaxCallDuration    = 10 * time.Minute
	DefaultMaxConcurrentCalls = 10
)

// DefaultFallbackMessage is spoken when the reasoning capability
// cannot produce an utterance.
const DefaultFallbackMessage = "I apologize, I didn't understand that. Could you please repeat?"

// InterruptionPolicy governs barge-in behavior while the agent is
// speaking.
type InterruptionPolicy struct {
	// Enabled allows the caller to interrupt agent speech.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MinDuration is how long sustained caller speech must run before
	// it counts as a genuine interruption rather than a cough or line
	// noise.
	MinDuration time.Duration `json:"-" yaml:"min_duration"`
}

// VoiceSettings selects and shapes the synthesized voice.
type VoiceSettings struct {
	VoiceID string  `json:"voice_id" yaml:"voice_id"`
	Speed   float64 `json:"speed" yaml:"speed"`
	Pitch   float64 `json:"pitch" yaml:"pitch"`
}

// AgentConfig is the immutable per-call snapshot of an organization's
// agent settings.
type AgentConfig struct {
	AgentID string `json:"agent_id" yaml:"agent_id"`
	OrgID   string `json:"org_id" yaml:"org_id"`
	Name    string `json:"name" yaml:"name"`

	// Prompting
	SystemPrompt    string `json:"system_prompt" yaml:"system_prompt"`
	GreetingMessage string `json:"greeting_message" yaml:"greeting_message"`
	FallbackMessage string `json:"fallback_message" yaml:"fallback_message"`
	Language        string `json:"language" yaml:"language"`

	// Reasoning
	Model           string        `json:"model" yaml:"model"`
	Temperature     float64       `json:"temperature" yaml:"temperature"`
	MaxTokens       int           `json:"max_tokens" yaml:"max_tokens"`
	HistoryWindow   int           `json:"history_window" yaml:"history_window"`
	ReasoningBudget time.Duration `json:"-" yaml:"reasoning_budget"`

	// Voice
	Voice VoiceSettings `json:"voice" yaml:"voice"`

	// Interruption
	Interruption InterruptionPolicy `json:"interruption" yaml:"interruption"`

	// Limits
	MaxCallDuration    time.Duration `json:"-" yaml:"max_call_duration"`
	MaxConcurrentCalls int           `json:"max_concurrent_calls" yaml:"max_concurrent_calls"`
}

// Default returns an AgentConfig with every tunable at its default.
func Default() *AgentConfig {
	return &AgentConfig{
		Name:            "assistant",
		FallbackMessage: DefaultFallbackMessage,
		Language:        DefaultLanguage,
		Temperature:     DefaultTemperature,
		MaxTokens:       DefaultMaxTokens,
		HistoryWindow:   DefaultHistoryWindow,
		ReasoningBudget: DefaultReasoningBudget,
		Voice:           VoiceSettings{Speed: 1.0, Pitch: 1.0},
		Interruption: InterruptionPolicy{
			Enabled:     true,
			MinDuration: DefaultMinInterruption,
		},
		MaxCallDuration:    DefaultMaxCallDuration,
		MaxConcurrentCalls: DefaultMaxConcurrentCalls,
	}
}

// Normalize fills zero-valued fields with defaults. The configuration
// service may serve sparse records; a session must never run with a
// zero budget or an empty fallback message.
func (c *AgentConfig) Normalize() {
	d := Default()
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.FallbackMessage == "" {
		c.FallbackMessage = d.FallbackMessage
	}
	if c.Temperature == 0 {
		c.Temperature = d.Temperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.ReasoningBudget == 0 {
		c.ReasoningBudget = d.ReasoningBudget
	}
	if c.Voice.Speed == 0 {
		c.Voice.Speed = 1.0
	}
	if c.Voice.Pitch == 0 {
		c.Voice.Pitch = 1.0
	}
	if c.Interruption.MinDuration == 0 {
		c.Interruption.MinDuration = d.Interruption.MinDuration
	}
	if c.MaxCallDuration == 0 {
		c.MaxCallDuration = d.MaxCallDuration
	}
	if c.MaxConcurrentCalls == 0 {
		c.MaxConcurrentCalls = d.MaxConcurrentCalls
	}
}

// Validate checks that a normalized config is usable.
func (c *AgentConfig) Validate() error {
	if c.OrgID == "" {
		return ErrNoOrgID
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return ErrInvalidConfig
	}
	if c.HistoryWindow < 1 {
		return ErrInvalidConfig
	}
	return nil
}

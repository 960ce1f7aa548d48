// Package engine decides what the agent says next.
//
// The conversation engine owns prompt construction and the reasoning
// timeout. It is invoked only while a session is in its thinking
// state, performs no retries, and maps every failure onto
// reasoning.ErrUnavailable so the session's failure policy has a
// single error to branch on.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vocaliq/go-vocaliq/internal/metrics"
	"github.com/vocaliq/go-vocaliq/pkg/agent"
	"github.com/vocaliq/go-vocaliq/pkg/reasoning"
)

// Speaker identifies which side of the call produced a turn.
type Speaker string

const (
	// SpeakerCaller is the human on the telephony leg.
	SpeakerCaller Speaker = "caller"

	// SpeakerAgent is the synthesized assistant.
	SpeakerAgent Speaker = "agent"
)

// Turn is one utterance in the conversation history. Turns are
// append-only: once recorded they are never reordered or edited,
// except to set the Truncated flag when playback is interrupted.
type Turn struct {
	ID        string
	Speaker   Speaker
	Text      string
	StartedAt time.Time
	EndedAt   time.Time

	// Truncated marks an agent turn whose playback was cut short by a
	// caller interruption. The text stays in history as committed
	// intent even though the caller never heard the end of it.
	Truncated bool

	// Intent is the detected caller intent, empty for agent turns or
	// when nothing matched.
	Intent string
}

// NewTurn creates a turn starting now.
func NewTurn(speaker Speaker, text string) Turn {
	now := time.Now()
	return Turn{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Text:      text,
		StartedAt: now,
		EndedAt:   now,
	}
}

// briefRetryInstruction replaces the full prompt context on the
// session's single retry after a reasoning failure.
const briefRetryInstruction = "The previous attempt to respond failed. Reply with one short sentence acknowledging a brief technical difficulty and ask the caller to repeat."

// Engine builds prompts and invokes the reasoning capability.
type Engine struct {
	provider reasoning.Provider
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger.With("component", "engine") }
}

// New creates a conversation engine on top of a reasoning provider.
func New(provider reasoning.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		logger:   slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Respond produces the agent's next turn from the conversation so
// far. The prompt is built deterministically: fixed system preamble
// from config, then the most recent HistoryWindow turns. The call is
// bounded by the config's reasoning budget; on timeout or capability
// error it fails with reasoning.ErrUnavailable and performs no
// internal retry.
func (e *Engine) Respond(ctx context.Context, history []Turn, cfg *agent.AgentConfig) (Turn, error) {
	return e.respond(ctx, history, cfg, false)
}

// RespondBrief is the retry variant: it keeps only the tail of the
// conversation and instructs the model to produce a short recovery
// utterance. The session calls this once after Respond fails.
func (e *Engine) RespondBrief(ctx context.Context, history []Turn, cfg *agent.AgentConfig) (Turn, error) {
	return e.respond(ctx, history, cfg, true)
}

func (e *Engine) respond(ctx context.Context, history []Turn, cfg *agent.AgentConfig, brief bool) (Turn, error) {
	started := time.Now()

	req := e.buildRequest(history, cfg, brief)

	budget := cfg.ReasoningBudget
	if budget <= 0 {
		budget = agent.DefaultReasoningBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	resp, err := e.provider.Complete(ctx, req)
	elapsed := time.Since(started)
	metrics.ReasoningLatency.Observe(elapsed.Seconds())

	if err != nil {
		e.logger.Warn("reasoning failed",
			"provider", e.provider.Name(),
			"elapsed", elapsed,
			"brief", brief,
			"error", err,
		)
		return Turn{}, fmt.Errorf("engine: %w", reasoning.ErrUnavailable)
	}

	e.logger.Debug("response generated",
		"model", resp.Model,
		"latency_ms", resp.LatencyMs,
		"chars", len(resp.Text),
	)

	turn := NewTurn(SpeakerAgent, resp.Text)
	turn.StartedAt = started
	turn.EndedAt = time.Now()
	return turn, nil
}

// buildRequest assembles the completion request. The same history and
// config always yield the same request.
func (e *Engine) buildRequest(history []Turn, cfg *agent.AgentConfig, brief bool) *reasoning.Request {
	var sb strings.Builder
	if cfg.SystemPrompt != "" {
		sb.WriteString(cfg.SystemPrompt)
	} else {
		sb.WriteString("You are a helpful AI phone assistant.")
	}

	sb.WriteString("\n\nConversation rules:")
	fmt.Fprintf(&sb, "\n- Primary language: %s", cfg.Language)
	sb.WriteString("\n- Keep responses concise and natural for a phone conversation.")
	sb.WriteString("\n- Be helpful and professional.")

	if intent := lastCallerIntent(history); intent != "" {
		fmt.Fprintf(&sb, "\n\nDetected caller intent: %s", intent)
	}
	if cfg.GreetingMessage != "" && len(history) == 0 {
		fmt.Fprintf(&sb, "\n- Start with this greeting: %s", cfg.GreetingMessage)
	}
	if brief {
		sb.WriteString("\n\n")
		sb.WriteString(briefRetryInstruction)
	}

	window := cfg.HistoryWindow
	if window <= 0 {
		window = agent.DefaultHistoryWindow
	}
	if brief && window > 2 {
		window = 2
	}
	recent := history
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	messages := make([]reasoning.Message, 0, len(recent))
	for _, t := range recent {
		role := reasoning.RoleUser
		if t.Speaker == SpeakerAgent {
			role = reasoning.RoleAssistant
		}
		messages = append(messages, reasoning.Message{Role: role, Content: t.Text})
	}

	return &reasoning.Request{
		System:      sb.String(),
		Messages:    messages,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

func lastCallerIntent(history []Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Speaker == SpeakerCaller {
			return history[i].Intent
		}
	}
	return ""
}

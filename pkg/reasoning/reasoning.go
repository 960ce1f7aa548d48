// Package reasoning provides a unified interface for the language
// models that drive agent responses.
//
// The orchestrator never branches on vendor identity: OpenAI,
// Anthropic, and the fallback chain all sit behind Provider. A
// Complete call is a single-utterance request: the conversation
// engine owns prompt construction and timeout policy, the provider
// only executes one bounded completion.
//
// Example usage:
//
//	provider, _ := reasoning.NewOpenAI(
//	    reasoning.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    reasoning.WithModel("gpt-4o-mini"),
//	)
//	defer provider.Close()
//
//	resp, _ := provider.Complete(ctx, &reasoning.Request{
//	    System:   "You are a helpful phone receptionist.",
//	    Messages: []reasoning.Message{{Role: reasoning.RoleUser, Content: "Hello!"}},
//	})
package reasoning

import "context"

// Role identifies a message author.
type Role string

const (
	// RoleUser is the caller side of the conversation.
	RoleUser Role = "user"

	// RoleAssistant is the agent side of the conversation.
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation context.
type Message struct {
	Role    Role
	Content string
}

// Request is a single-utterance completion request.
type Request struct {
	// System is the fixed system preamble from the agent config.
	System string

	// Messages is the truncated turn history, oldest first.
	Messages []Message

	// Model overrides the provider's default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64
}

// Response is the completed utterance.
type Response struct {
	// Text is the agent's next utterance.
	Text string

	// Model that produced the response.
	Model string

	// PromptTokens and CompletionTokens track usage for billing.
	PromptTokens     int
	CompletionTokens int

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Provider is the reasoning capability interface.
type Provider interface {
	// Complete generates the next agent utterance. Implementations
	// perform no retries; retry policy belongs to the call session so
	// one coherent policy governs the whole turn.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Name returns the vendor identifier (e.g. "openai", "mock").
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

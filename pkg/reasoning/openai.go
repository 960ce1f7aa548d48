package reasoning

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const providerOpenAI = "openai"

// OpenAI implements Provider using the chat completions API.
type OpenAI struct {
	config *Config
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI reasoning provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = openai.GPT4oMini
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
		logger: cfg.Logger.With("component", "reasoning.openai"),
	}, nil
}

// Name returns the vendor identifier.
func (o *OpenAI) Name() string { return providerOpenAI }

// Complete generates the next agent utterance.
func (o *OpenAI) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model(req),
		Messages:    messages,
		MaxTokens:   o.maxTokens(req),
		Temperature: float32(o.temperature(req)),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Provider: providerOpenAI}
		}
		return nil, WrapError(providerOpenAI, ErrUnavailable)
	}

	if len(resp.Choices) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("completion finished",
		"model", resp.Model,
		"latency_ms", latency,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return &Response{
		Text:             text,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		LatencyMs:        latency,
	}, nil
}

// Health verifies the API key by listing models.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return WrapError(providerOpenAI, ErrUnavailable)
	}
	return nil
}

// Close releases provider resources.
func (o *OpenAI) Close() error { return nil }

func (o *OpenAI) model(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return o.config.Model
}

func (o *OpenAI) maxTokens(req *Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return o.config.MaxTokens
}

func (o *OpenAI) temperature(req *Request) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return o.config.Temperature
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)

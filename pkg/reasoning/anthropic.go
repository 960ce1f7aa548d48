package reasoning

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const providerAnthropic = "anthropic"

// Anthropic implements Provider using the Claude messages API.
type Anthropic struct {
	config *Config
	client anthropic.Client
	logger *slog.Logger
}

// NewAnthropic creates an Anthropic reasoning provider.
func NewAnthropic(opts ...Option) (*Anthropic, error) {
	cfg := DefaultConfig()
	cfg.Model = "claude-3-5-haiku-latest"
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Anthropic{
		config: cfg,
		client: anthropic.NewClient(clientOpts...),
		logger: cfg.Logger.With("component", "reasoning.anthropic"),
	}, nil
}

// Name returns the vendor identifier.
func (a *Anthropic) Name() string { return providerAnthropic }

// Complete generates the next agent utterance.
func (a *Anthropic) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model(req)),
		Messages:    messages,
		MaxTokens:   int64(a.maxTokens(req)),
		Temperature: anthropic.Float(a.temperature(req)),
	}
	// System prompt is separate from messages in the Anthropic API.
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Error(), Provider: providerAnthropic}
		}
		return nil, WrapError(providerAnthropic, ErrUnavailable)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, WrapError(providerAnthropic, ErrEmptyResponse)
	}

	latency := time.Since(start).Milliseconds()
	a.logger.Debug("completion finished",
		"model", msg.Model,
		"latency_ms", latency,
		"completion_tokens", msg.Usage.OutputTokens,
	)

	return &Response{
		Text:             text,
		Model:            string(msg.Model),
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		LatencyMs:        latency,
	}, nil
}

// Health issues a minimal completion to verify connectivity.
func (a *Anthropic) Health(ctx context.Context) error {
	_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
		MaxTokens: 1,
	})
	if err != nil {
		return WrapError(providerAnthropic, ErrUnavailable)
	}
	return nil
}

// Close releases provider resources.
func (a *Anthropic) Close() error { return nil }

func (a *Anthropic) model(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return a.config.Model
}

func (a *Anthropic) maxTokens(req *Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return a.config.MaxTokens
}

func (a *Anthropic) temperature(req *Request) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return a.config.Temperature
}

// Verify Anthropic implements Provider at compile time.
var _ Provider = (*Anthropic)(nil)

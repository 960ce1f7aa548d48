package reasoning

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrUnavailable is returned when the reasoning capability cannot
	// be reached or times out. The session decides whether to retry
	// with the fallback prompt or end the call.
	ErrUnavailable = errors.New("reasoning: capability unavailable")

	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("reasoning: API key required")

	// ErrEmptyResponse is returned when the model produced no usable
	// utterance.
	ErrEmptyResponse = errors.New("reasoning: empty response")
)

// APIError represents an error response from a reasoning API.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("reasoning [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// Unwrap maps vendor API failures onto ErrUnavailable.
func (e *APIError) Unwrap() error {
	return ErrUnavailable
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("reasoning [%s]: %w", provider, err)
}

// ChainError aggregates errors from all providers in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "reasoning chain: no errors recorded"
	}
	return fmt.Sprintf("reasoning chain: all %d providers failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

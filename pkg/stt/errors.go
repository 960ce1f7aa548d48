package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrUnavailable is returned when the transcription capability
	// cannot be reached. The session's failure policy decides how to
	// react; the adapter never retries on its own.
	ErrUnavailable = errors.New("stt: transcription unavailable")

	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("stt: API key required")

	// ErrSessionClosed is returned when submitting to a closed session.
	ErrSessionClosed = errors.New("stt: session closed")
)

// APIError represents an error response from a transcription API.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("stt [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// Unwrap maps vendor API failures onto ErrUnavailable so callers can
// branch with errors.Is without knowing the vendor.
func (e *APIError) Unwrap() error {
	return ErrUnavailable
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("stt [%s]: %w", provider, err)
}

package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrConfigUnavailable is returned when the configuration service
	// cannot be reached. A session cannot start without its agent
	// configuration, so this is fatal for that call.
	ErrConfigUnavailable = errors.New("agent: configuration service unavailable")

	// ErrNotFound is returned when no agent configuration exists for
	// the requested organization.
	ErrNotFound = errors.New("agent: configuration not found")

	// ErrNoOrgID is returned when a config record lacks its
	// organization identifier.
	ErrNoOrgID = errors.New("agent: organization ID required")

	// ErrInvalidConfig is returned when a config record fails
	// validation.
	ErrInvalidConfig = errors.New("agent: invalid configuration")
)

// ServiceError represents an error response from the configuration
// service.
type ServiceError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("agent: config service error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps service failures onto the sentinel the session policy
// branches on.
func (e *ServiceError) Unwrap() error {
	if e.StatusCode == 404 {
		return ErrNotFound
	}
	return ErrConfigUnavailable
}

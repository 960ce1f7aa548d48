package agent

import (
	"context"
	"sync"
)

// MockService implements ConfigService for testing.
type MockService struct {
	// FetchFunc is called when Fetch is invoked. If nil, a normalized
	// default config for the requested org is returned.
	FetchFunc func(ctx context.Context, orgID string) (*AgentConfig, error)

	mu      sync.Mutex
	fetched []string
}

// NewMockService creates a mock config service.
func NewMockService() *MockService {
	return &MockService{}
}

// Fetch calls FetchFunc and records the org ID.
func (m *MockService) Fetch(ctx context.Context, orgID string) (*AgentConfig, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, orgID)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, orgID)
	}

	cfg := Default()
	cfg.OrgID = orgID
	cfg.AgentID = "mock-agent"
	cfg.SystemPrompt = "You are a helpful phone assistant."
	return cfg, nil
}

// Fetched returns every org ID passed to Fetch.
func (m *MockService) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.fetched))
	copy(out, m.fetched)
	return out
}

// Verify MockService implements ConfigService at compile time.
var _ ConfigService = (*MockService)(nil)

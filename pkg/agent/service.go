package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/vocaliq/go-vocaliq/internal/httpc"
)

// ConfigService fetches agent configuration at session start.
type ConfigService interface {
	// Fetch returns the agent configuration for an organization.
	// The returned config is normalized and validated; callers treat
	// it as immutable.
	Fetch(ctx context.Context, orgID string) (*AgentConfig, error)
}

// HTTPService fetches agent configuration from the dashboard backend
// over HTTP.
type HTTPService struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPService creates a config service client.
func NewHTTPService(baseURL string, timeout time.Duration) *HTTPService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPService{
		baseURL: baseURL,
		client:  httpc.NewClient(timeout),
		logger:  slog.Default().With("component", "agent.config"),
	}
}

// configRecord is the service wire format. Durations travel as
// milliseconds.
type configRecord struct {
	AgentConfig
	ReasoningBudgetMs   int64 `json:"reasoning_budget_ms"`
	MinInterruptionMs   int64 `json:"min_interruption_ms"`
	MaxCallDurationSecs int64 `json:"max_call_duration_s"`
}

// Fetch retrieves and normalizes the configuration for an org.
func (s *HTTPService) Fetch(ctx context.Context, orgID string) (*AgentConfig, error) {
	if orgID == "" {
		return nil, ErrNoOrgID
	}

	endpoint := fmt.Sprintf("%s/internal/orgs/%s/agent-config", s.baseURL, url.PathEscape(orgID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("agent: build config request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("config fetch failed", "org_id", orgID, "error", err)
		return nil, fmt.Errorf("agent: %w: %v", ErrConfigUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var rec configRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("agent: decode config: %w", ErrConfigUnavailable)
	}

	cfg := rec.AgentConfig
	if rec.ReasoningBudgetMs > 0 {
		cfg.ReasoningBudget = time.Duration(rec.ReasoningBudgetMs) * time.Millisecond
	}
	if rec.MinInterruptionMs > 0 {
		cfg.Interruption.MinDuration = time.Duration(rec.MinInterruptionMs) * time.Millisecond
	}
	if rec.MaxCallDurationSecs > 0 {
		cfg.MaxCallDuration = time.Duration(rec.MaxCallDurationSecs) * time.Second
	}
	if cfg.OrgID == "" {
		cfg.OrgID = orgID
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.logger.Debug("config fetched", "org_id", orgID, "agent_id", cfg.AgentID)
	return &cfg, nil
}

// Static serves a fixed set of configurations from memory. Used in
// tests and single-tenant deployments.
type Static struct {
	mu      sync.RWMutex
	configs map[string]*AgentConfig
}

// NewStatic creates a static config source.
func NewStatic(configs ...*AgentConfig) *Static {
	s := &Static{configs: make(map[string]*AgentConfig)}
	for _, c := range configs {
		s.configs[c.OrgID] = c
	}
	return s
}

// Put registers or replaces the configuration for an org.
func (s *Static) Put(cfg *AgentConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.OrgID] = cfg
}

// Fetch returns a copy of the registered configuration.
func (s *Static) Fetch(ctx context.Context, orgID string) (*AgentConfig, error) {
	s.mu.RLock()
	cfg, ok := s.configs[orgID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	clone := *cfg
	clone.Normalize()
	if err := clone.Validate(); err != nil {
		return nil, err
	}
	return &clone, nil
}

// Verify interfaces at compile time.
var (
	_ ConfigService = (*HTTPService)(nil)
	_ ConfigService = (*Static)(nil)
)

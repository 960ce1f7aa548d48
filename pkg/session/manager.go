package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vocaliq/go-vocaliq/internal/metrics"
	"github.com/vocaliq/go-vocaliq/pkg/agent"
	"github.com/vocaliq/go-vocaliq/pkg/engine"
	"github.com/vocaliq/go-vocaliq/pkg/event"
	"github.com/vocaliq/go-vocaliq/pkg/stt"
	"github.com/vocaliq/go-vocaliq/pkg/telephony"
	"github.com/vocaliq/go-vocaliq/pkg/tts"
)

// Manager defaults.
const (
	DefaultIdleTimeout   = 30 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

// ManagerConfig wires the manager's collaborators.
type ManagerConfig struct {
	ConfigService agent.ConfigService
	STT           stt.Provider
	TTS           tts.Provider
	Engine        *engine.Engine
	Events        *event.Bus
	Logger        *slog.Logger

	// IdleTimeout ends sessions with no caller or agent activity.
	IdleTimeout time.Duration

	// SweepInterval is how often the idle sweep runs.
	SweepInterval time.Duration

	// FlushBudget is passed to each session; see Params.FlushBudget.
	FlushBudget time.Duration
}

// Manager owns every live session. It is the only component allowed
// to create or destroy a CallSession.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	orgCounts map[string]int
	closed    bool

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewManager creates a session manager and starts its idle sweep.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Manager{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "session.manager"),
		sessions:  make(map[string]*Session),
		orgCounts: make(map[string]int),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go m.sweep()
	return m
}

// emitError reports an admission failure on the event bus so monitors
// see rejected calls, not just admitted ones.
func (m *Manager) emitError(callID, orgID string, payload map[string]any) {
	if m.cfg.Events == nil {
		return
	}
	m.cfg.Events.Publish(event.New(callID, orgID, event.KindError, payload))
}

// GetOrCreate returns the session for callID, creating it if needed.
// Concurrent calls for the same callID yield the same session; the
// losing racer's leg is left untouched for the caller to close.
// Creation is rejected with ErrCapacityExceeded once the org's
// concurrent-call limit is reached.
func (m *Manager) GetOrCreate(ctx context.Context, callID, orgID string, leg telephony.Leg) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[callID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	// Config comes from the external service before admission so the
	// org's own limit applies. Without config the call cannot
	// proceed at all.
	cfg, err := m.cfg.ConfigService.Fetch(ctx, orgID)
	if err != nil {
		m.emitError(callID, orgID, map[string]any{
			"error":  err.Error(),
			"reason": ReasonConfigUnavailable,
		})
		return nil, fmt.Errorf("session: load agent config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[callID]; ok {
		return s, nil
	}

	limit := cfg.MaxConcurrentCalls
	if m.orgCounts[orgID] >= limit {
		metrics.SessionsRejected.WithLabelValues(orgID).Inc()
		m.logger.Warn("session rejected, org at capacity",
			"org_id", orgID,
			"limit", limit,
		)
		m.emitError(callID, orgID, map[string]any{
			"error": "org at concurrent-call limit",
			"limit": limit,
		})
		return nil, fmt.Errorf("session: org %s at %d concurrent calls: %w", orgID, limit, ErrCapacityExceeded)
	}

	s := newSession(Params{
		CallID:      callID,
		OrgID:       orgID,
		Leg:         leg,
		Config:      cfg,
		STT:         m.cfg.STT,
		TTS:         m.cfg.TTS,
		Engine:      m.cfg.Engine,
		Events:      m.cfg.Events,
		Logger:      m.cfg.Logger,
		OnEnd:       m.release,
		FlushBudget: m.cfg.FlushBudget,
	})
	m.sessions[callID] = s
	m.orgCounts[orgID]++
	metrics.ActiveSessions.WithLabelValues(orgID).Inc()

	go s.run()

	m.logger.Info("session created",
		"call_id", callID,
		"org_id", orgID,
		"org_active", m.orgCounts[orgID],
	)
	return s, nil
}

// Get returns the live session for callID, nil if none.
func (m *Manager) Get(callID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[callID]
}

// Terminate forces a session to end from outside the audio path.
// It reports whether a live session was found.
func (m *Manager) Terminate(callID string) bool {
	m.mu.Lock()
	s := m.sessions[callID]
	m.mu.Unlock()
	if s == nil {
		return false
	}
	s.Terminate(ReasonAdminTerminate)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// OrgCount returns the number of live sessions for one org.
func (m *Manager) OrgCount(orgID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orgCounts[orgID]
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.callID] == s {
		delete(m.sessions, s.callID)
		if m.orgCounts[s.orgID] > 0 {
			m.orgCounts[s.orgID]--
		}
		metrics.ActiveSessions.WithLabelValues(s.orgID).Dec()
	}
}

func (m *Manager) sweep() {
	defer close(m.sweepDone)
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-m.cfg.IdleTimeout)
			for _, s := range m.snapshot() {
				if s.LastActivity().Before(cutoff) {
					m.logger.Info("ending idle session",
						"call_id", s.CallID(),
						"idle", time.Since(s.LastActivity()),
					)
					s.Terminate(ReasonIdleTimeout)
				}
			}
		case <-m.stopSweep:
			return
		}
	}
}

// Sessions returns a snapshot of every live session.
func (m *Manager) Sessions() []*Session {
	return m.snapshot()
}

func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Close ends every session and stops the idle sweep. Blocks until
// all sessions have reached their terminal state.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopSweep)
	<-m.sweepDone

	for _, s := range m.snapshot() {
		s.Terminate(ReasonManagerShutdown)
	}
	for _, s := range m.snapshot() {
		<-s.Done()
	}
}

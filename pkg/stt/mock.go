package stt

import (
	"context"
	"sync"

	"github.com/vocaliq/go-vocaliq/pkg/audio"
)

// Mock implements Provider for testing. Sessions created from it are
// scriptable: push transcript events with EmitPartial/EmitFinal and
// inspect submitted frames.
type Mock struct {
	// StartSessionFunc overrides session creation when set.
	StartSessionFunc func(ctx context.Context) (Session, error)

	// HealthFunc overrides Health when set.
	HealthFunc func(ctx context.Context) error

	mu       sync.Mutex
	sessions []*MockSession
}

// NewMock creates a mock transcription provider.
func NewMock() *Mock {
	return &Mock{}
}

// Name returns the vendor identifier.
func (m *Mock) Name() string { return "mock" }

// StartSession returns a scriptable session.
func (m *Mock) StartSession(ctx context.Context) (Session, error) {
	if m.StartSessionFunc != nil {
		return m.StartSessionFunc(ctx)
	}
	s := &MockSession{events: make(chan TranscriptEvent, 32)}
	m.mu.Lock()
	m.sessions = append(m.sessions, s)
	m.mu.Unlock()
	return s, nil
}

// Health calls HealthFunc or reports healthy.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close releases provider resources.
func (m *Mock) Close() error { return nil }

// Sessions returns all sessions the provider has created.
func (m *Mock) Sessions() []*MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockSession, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// LastSession returns the most recently created session, or nil.
func (m *Mock) LastSession() *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) == 0 {
		return nil
	}
	return m.sessions[len(m.sessions)-1]
}

// MockSession is a scriptable transcription session.
type MockSession struct {
	mu        sync.Mutex
	submitted []audio.Frame
	closed    bool
	events    chan TranscriptEvent
}

// Submit records the frame.
func (s *MockSession) Submit(f audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.submitted = append(s.submitted, f)
	return nil
}

// Events returns the scripted event channel.
func (s *MockSession) Events() <-chan TranscriptEvent {
	return s.events
}

// Close marks the session closed and closes the event channel.
func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// EmitPartial scripts a partial transcript event.
func (s *MockSession) EmitPartial(text string) {
	s.emit(TranscriptEvent{Text: text, IsFinal: false, Confidence: 0.5})
}

// EmitFinal scripts a final transcript event.
func (s *MockSession) EmitFinal(text string) {
	s.emit(TranscriptEvent{Text: text, IsFinal: true, Confidence: 0.95})
}

func (s *MockSession) emit(ev TranscriptEvent) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.events <- ev
}

// SubmittedFrames returns every frame submitted so far.
func (s *MockSession) SubmittedFrames() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Frame, len(s.submitted))
	copy(out, s.submitted)
	return out
}

// Verify interfaces at compile time.
var (
	_ Provider = (*Mock)(nil)
	_ Session  = (*MockSession)(nil)
)

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vocaliq/go-vocaliq/pkg/agent"
	"github.com/vocaliq/go-vocaliq/pkg/engine"
	"github.com/vocaliq/go-vocaliq/pkg/event"
	"github.com/vocaliq/go-vocaliq/pkg/reasoning"
	"github.com/vocaliq/go-vocaliq/pkg/stt"
	"github.com/vocaliq/go-vocaliq/pkg/telephony"
	"github.com/vocaliq/go-vocaliq/pkg/tts"
)

func newTestManager(t *testing.T, svc agent.ConfigService, mutate func(*ManagerConfig)) *Manager {
	t.Helper()
	if svc == nil {
		svc = agent.NewMockService()
	}
	cfg := ManagerConfig{
		ConfigService: svc,
		STT:           stt.NewMock(),
		TTS:           tts.NewMock(),
		Engine:        engine.New(reasoning.NewMock()),
		Events:        event.NewBus(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m := NewManager(cfg)
	t.Cleanup(m.Close)
	return m
}

func TestGetOrCreateIdempotent(t *testing.T) {
	m := newTestManager(t, nil, nil)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*Session, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.GetOrCreate(ctx, "CA1", "org-1", telephony.NewMockLeg("CA1", "org-1"))
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			results[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent GetOrCreate produced distinct sessions")
		}
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
}

func TestOrgCapacity(t *testing.T) {
	svc := agent.NewMockService()
	svc.FetchFunc = func(ctx context.Context, orgID string) (*agent.AgentConfig, error) {
		cfg := agent.Default()
		cfg.OrgID = orgID
		cfg.MaxConcurrentCalls = 2
		return cfg, nil
	}
	m := newTestManager(t, svc, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			callID := fmt.Sprintf("CA%d", i)
			_, err := m.GetOrCreate(ctx, callID, "org-1", telephony.NewMockLeg(callID, "org-1"))
			errs[i] = err
		}(i)
	}
	wg.Wait()

	rejected := 0
	for _, err := range errs {
		if errors.Is(err, ErrCapacityExceeded) {
			rejected++
		} else if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if rejected != 1 {
		t.Errorf("rejected = %d of 3, want exactly 1", rejected)
	}
	if m.OrgCount("org-1") != 2 {
		t.Errorf("OrgCount = %d, want 2", m.OrgCount("org-1"))
	}
}

func TestCapacityReleasedOnEnd(t *testing.T) {
	svc := agent.NewMockService()
	svc.FetchFunc = func(ctx context.Context, orgID string) (*agent.AgentConfig, error) {
		cfg := agent.Default()
		cfg.OrgID = orgID
		cfg.MaxConcurrentCalls = 1
		return cfg, nil
	}
	m := newTestManager(t, svc, nil)
	ctx := context.Background()

	s1, err := m.GetOrCreate(ctx, "CA1", "org-1", telephony.NewMockLeg("CA1", "org-1"))
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if _, err := m.GetOrCreate(ctx, "CA2", "org-1", telephony.NewMockLeg("CA2", "org-1")); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("second call error = %v, want ErrCapacityExceeded", err)
	}

	s1.Terminate(ReasonAdminTerminate)
	waitDone(t, s1)

	// The slot frees once the session fully ends.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && m.OrgCount("org-1") > 0 {
		time.Sleep(time.Millisecond)
	}
	if _, err := m.GetOrCreate(ctx, "CA2", "org-1", telephony.NewMockLeg("CA2", "org-1")); err != nil {
		t.Errorf("GetOrCreate() after release error = %v", err)
	}
}

func TestConfigUnavailableFailsCreation(t *testing.T) {
	svc := agent.NewMockService()
	svc.FetchFunc = func(ctx context.Context, orgID string) (*agent.AgentConfig, error) {
		return nil, agent.ErrConfigUnavailable
	}
	m := newTestManager(t, svc, nil)

	_, err := m.GetOrCreate(context.Background(), "CA1", "org-1", telephony.NewMockLeg("CA1", "org-1"))
	if !errors.Is(err, agent.ErrConfigUnavailable) {
		t.Errorf("GetOrCreate() error = %v, want ErrConfigUnavailable", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0 after config failure", m.Count())
	}
}

// waitErrorEvent drains sub until a KindError for callID arrives.
func waitErrorEvent(t *testing.T, sub *event.Subscription, callID string) event.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Kind == event.KindError && ev.CallID == callID {
				return ev
			}
		case <-deadline:
			t.Fatalf("no error event for %s on the bus", callID)
			return event.Event{}
		}
	}
}

func TestCapacityRejectionPublishesError(t *testing.T) {
	svc := agent.NewMockService()
	svc.FetchFunc = func(ctx context.Context, orgID string) (*agent.AgentConfig, error) {
		cfg := agent.Default()
		cfg.OrgID = orgID
		cfg.MaxConcurrentCalls = 1
		return cfg, nil
	}
	bus := event.NewBus()
	sub := bus.Subscribe(16)
	defer sub.Cancel()
	m := newTestManager(t, svc, func(cfg *ManagerConfig) {
		cfg.Events = bus
	})
	ctx := context.Background()

	if _, err := m.GetOrCreate(ctx, "CA1", "org-1", telephony.NewMockLeg("CA1", "org-1")); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if _, err := m.GetOrCreate(ctx, "CA2", "org-1", telephony.NewMockLeg("CA2", "org-1")); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("second call error = %v, want ErrCapacityExceeded", err)
	}

	ev := waitErrorEvent(t, sub, "CA2")
	if ev.OrgID != "org-1" {
		t.Errorf("OrgID = %q, want org-1", ev.OrgID)
	}
	if ev.Payload["limit"] != 1 {
		t.Errorf("Payload[limit] = %v, want 1", ev.Payload["limit"])
	}
}

func TestConfigFailurePublishesError(t *testing.T) {
	svc := agent.NewMockService()
	svc.FetchFunc = func(ctx context.Context, orgID string) (*agent.AgentConfig, error) {
		return nil, agent.ErrConfigUnavailable
	}
	bus := event.NewBus()
	sub := bus.Subscribe(16)
	defer sub.Cancel()
	m := newTestManager(t, svc, func(cfg *ManagerConfig) {
		cfg.Events = bus
	})

	if _, err := m.GetOrCreate(context.Background(), "CA1", "org-1", telephony.NewMockLeg("CA1", "org-1")); err == nil {
		t.Fatal("GetOrCreate() should fail without config")
	}

	ev := waitErrorEvent(t, sub, "CA1")
	if ev.Payload["reason"] != ReasonConfigUnavailable {
		t.Errorf("Payload[reason] = %v, want %q", ev.Payload["reason"], ReasonConfigUnavailable)
	}
}

func TestIdleSweep(t *testing.T) {
	m := newTestManager(t, nil, func(cfg *ManagerConfig) {
		cfg.IdleTimeout = 60 * time.Millisecond
		cfg.SweepInterval = 20 * time.Millisecond
	})

	s, err := m.GetOrCreate(context.Background(), "CA1", "org-1", telephony.NewMockLeg("CA1", "org-1"))
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	waitDone(t, s)
	if s.EndReason() != ReasonIdleTimeout {
		t.Errorf("EndReason = %q, want %q", s.EndReason(), ReasonIdleTimeout)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && m.Count() > 0 {
		time.Sleep(time.Millisecond)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0 after sweep", m.Count())
	}
}

func TestManagerTerminate(t *testing.T) {
	m := newTestManager(t, nil, nil)

	s, err := m.GetOrCreate(context.Background(), "CA1", "org-1", telephony.NewMockLeg("CA1", "org-1"))
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if !m.Terminate("CA1") {
		t.Fatal("Terminate should find the live session")
	}
	waitDone(t, s)
	if s.EndReason() != ReasonAdminTerminate {
		t.Errorf("EndReason = %q", s.EndReason())
	}

	if m.Terminate("CA-unknown") {
		t.Error("Terminate of unknown call should report false")
	}
}

func TestManagerClose(t *testing.T) {
	m := newTestManager(t, nil, nil)
	ctx := context.Background()

	s1, _ := m.GetOrCreate(ctx, "CA1", "org-1", telephony.NewMockLeg("CA1", "org-1"))
	s2, _ := m.GetOrCreate(ctx, "CA2", "org-2", telephony.NewMockLeg("CA2", "org-2"))

	m.Close()

	for _, s := range []*Session{s1, s2} {
		select {
		case <-s.Done():
		default:
			t.Errorf("session %s still live after Close", s.CallID())
		}
	}

	if _, err := m.GetOrCreate(ctx, "CA3", "org-1", telephony.NewMockLeg("CA3", "org-1")); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("GetOrCreate() after Close = %v, want ErrManagerClosed", err)
	}
}

func TestDistinctOrgsIsolated(t *testing.T) {
	svc := agent.NewMockService()
	svc.FetchFunc = func(ctx context.Context, orgID string) (*agent.AgentConfig, error) {
		cfg := agent.Default()
		cfg.OrgID = orgID
		cfg.MaxConcurrentCalls = 1
		return cfg, nil
	}
	m := newTestManager(t, svc, nil)
	ctx := context.Background()

	if _, err := m.GetOrCreate(ctx, "CA1", "org-1", telephony.NewMockLeg("CA1", "org-1")); err != nil {
		t.Fatalf("org-1 error = %v", err)
	}
	// Another org's limit is independent.
	if _, err := m.GetOrCreate(ctx, "CA2", "org-2", telephony.NewMockLeg("CA2", "org-2")); err != nil {
		t.Errorf("org-2 error = %v", err)
	}
}

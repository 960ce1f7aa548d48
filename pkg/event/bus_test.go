package event

import (
	"testing"
	"time"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(8)

	bus.Publish(New("call-1", "org-1", KindStateChanged, map[string]any{"to": "listening"}))
	bus.Publish(New("call-1", "org-1", KindTranscriptFinal, map[string]any{"text": "hello"}))
	bus.Publish(New("call-1", "org-1", KindCallEnded, nil))

	wantKinds := []Kind{KindStateChanged, KindTranscriptFinal, KindCallEnded}
	for i, want := range wantKinds {
		select {
		case ev := <-sub.Events():
			if ev.Kind != want {
				t.Errorf("event %d kind = %q, want %q", i, ev.Kind, want)
			}
			if ev.CallID != "call-1" || ev.ID == "" || ev.Timestamp.IsZero() {
				t.Errorf("event %d missing identity fields: %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// Subscriber with a tiny buffer that never drains.
	bus.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(New("call-1", "org-1", KindStateChanged, nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestSlowSubscriberDoesNotStarveOthers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	slow := bus.Subscribe(1)
	fast := bus.Subscribe(16)
	_ = slow

	for i := 0; i < 10; i++ {
		bus.Publish(New("call-1", "org-1", KindStateChanged, nil))
	}

	received := 0
	for {
		select {
		case <-fast.Events():
			received++
			if received == 10 {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber received %d of 10 events", received)
		}
	}
}

func TestCancel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(4)
	if bus.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", bus.SubscriberCount())
	}

	sub.Cancel()
	sub.Cancel() // idempotent

	if bus.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0", bus.SubscriberCount())
	}
	if _, open := <-sub.Events(); open {
		t.Error("cancelled subscription channel should be closed")
	}

	// Publishing after cancel must not panic.
	bus.Publish(New("call-1", "org-1", KindCallEnded, nil))
}

func TestClose(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(4)

	bus.Close()

	if _, open := <-sub.Events(); open {
		t.Error("subscriber channel should close with the bus")
	}

	// Publish and Subscribe after close are safe no-ops.
	bus.Publish(New("call-1", "org-1", KindCallEnded, nil))
	late := bus.Subscribe(4)
	if _, open := <-late.Events(); open {
		t.Error("post-close subscription should be closed immediately")
	}
	sub.Cancel()
}

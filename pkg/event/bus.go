package event

import (
	"log/slog"
	"sync"

	"github.com/vocaliq/go-vocaliq/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

// Bus fans events out to subscribers. Delivery is best-effort: a
// subscriber that stops draining its channel loses events, never
// stalls a publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
	logger *slog.Logger
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: slog.Default().With("component", "event.bus"),
	}
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	bus  *Bus
	ch   chan Event
	once sync.Once
}

// Events returns the subscriber's channel. The channel is closed when
// the subscription is cancelled or the bus shuts down.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Cancel removes the subscription. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.ch)
		}
		s.bus.mu.Unlock()
	})
}

// Subscribe registers a consumer with the given channel buffer.
// A buffer of zero or less uses DefaultBuffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{bus: b, ch: make(chan Event, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers an event to every subscriber without blocking.
// A subscriber whose buffer is full misses this event.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			metrics.EventsDropped.Inc()
			b.logger.Debug("subscriber buffer full, event dropped",
				"call_id", ev.CallID,
				"kind", ev.Kind,
			)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down and closes every subscriber channel.
// Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

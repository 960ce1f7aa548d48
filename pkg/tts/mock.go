package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// SpeakFunc is called when Speak is invoked. If nil, a stream of
	// silent μ-law chunks paced at ~20ms of audio per character is
	// returned.
	SpeakFunc func(ctx context.Context, text string) (Stream, error)

	// HealthFunc is called when Health is invoked.
	// If nil, returns nil (healthy).
	HealthFunc func(ctx context.Context) error

	// ChunkDelay, when set, paces chunk delivery in real time so
	// tests can interrupt mid-playback.
	ChunkDelay time.Duration

	// Tracking
	mu      sync.Mutex
	calls   []MockCall
	streams []*MockStream
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a new mock provider with sensible defaults.
func NewMock() *Mock {
	return &Mock{}
}

// Name returns the vendor identifier.
func (m *Mock) Name() string { return "mock" }

// Speak calls SpeakFunc and records the call.
func (m *Mock) Speak(ctx context.Context, text string) (Stream, error) {
	m.recordCall("Speak", text)
	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text)
	}

	// One μ-law frame (~20ms) per character gives roughly natural
	// speech pacing for scripted conversations.
	s := NewMockStream(len(text), m.ChunkDelay)
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	go s.run()
	return s, nil
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.recordCall("Health", "")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.recordCall("Close", "")
	return nil
}

func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Streams returns every stream the default SpeakFunc produced.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.streams = nil
}

// WithError returns a mock that always fails with the given error.
func WithError(err error) *Mock {
	return &Mock{
		SpeakFunc: func(ctx context.Context, text string) (Stream, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// MockStream is a cancellable stream of silent μ-law chunks.
type MockStream struct {
	chunks chan []byte
	total  int
	delay  time.Duration

	once      sync.Once
	cancelled chan struct{}

	mu        sync.Mutex
	delivered int
}

// NewMockStream creates a stream that will deliver n silent chunks.
func NewMockStream(n int, delay time.Duration) *MockStream {
	return &MockStream{
		chunks:    make(chan []byte, 16),
		total:     n,
		delay:     delay,
		cancelled: make(chan struct{}),
	}
}

func (s *MockStream) run() {
	defer close(s.chunks)
	// 0xFF is μ-law silence.
	silence := make([]byte, 160)
	for i := range silence {
		silence[i] = 0xFF
	}

	for i := 0; i < s.total; i++ {
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-s.cancelled:
				return
			}
		}
		select {
		case s.chunks <- silence:
			s.mu.Lock()
			s.delivered++
			s.mu.Unlock()
		case <-s.cancelled:
			return
		}
	}
}

// Chunks returns the chunk channel.
func (s *MockStream) Chunks() <-chan []byte { return s.chunks }

// Cancel stops chunk production. Idempotent.
func (s *MockStream) Cancel() {
	s.once.Do(func() {
		close(s.cancelled)
		go func() {
			for range s.chunks {
			}
		}()
	})
}

// Err always reports nil; mock streams do not fail.
func (s *MockStream) Err() error { return nil }

// Delivered returns how many chunks were handed to the consumer.
func (s *MockStream) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// Cancelled reports whether Cancel has been called.
func (s *MockStream) Cancelled() bool {
	select {
	case <-s.cancelled:
		return true
	default:
		return false
	}
}

// Verify interfaces at compile time.
var (
	_ Provider = (*Mock)(nil)
	_ Stream   = (*MockStream)(nil)
)

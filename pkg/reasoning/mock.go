package reasoning

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// CompleteFunc is called when Complete is invoked. If nil, the
	// next scripted response is returned.
	CompleteFunc func(ctx context.Context, req *Request) (*Response, error)

	// HealthFunc is called when Health is invoked.
	// If nil, returns nil (healthy).
	HealthFunc func(ctx context.Context) error

	// Responses are returned in order when CompleteFunc is nil. When
	// exhausted the last entry repeats; when empty a canned reply is
	// used.
	Responses []string

	// Delay, when set, makes Complete block that long (or until the
	// context expires) before answering. Used to exercise timeout
	// policy.
	Delay time.Duration

	// Tracking
	mu       sync.Mutex
	calls    []MockCall
	requests []*Request
	next     int
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a new mock provider with sensible defaults.
func NewMock(responses ...string) *Mock {
	return &Mock{Responses: responses}
}

// Name returns the vendor identifier.
func (m *Mock) Name() string { return "mock" }

// Complete calls CompleteFunc or returns the next scripted response.
func (m *Mock) Complete(ctx context.Context, req *Request) (*Response, error) {
	m.recordCall("Complete")
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, WrapError("mock", ErrUnavailable)
		}
	}

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}

	text := "I can help with that."
	m.mu.Lock()
	if len(m.Responses) > 0 {
		i := m.next
		if i >= len(m.Responses) {
			i = len(m.Responses) - 1
		}
		text = m.Responses[i]
		m.next++
	}
	m.mu.Unlock()

	return &Response{Text: text, Model: "mock", LatencyMs: m.Delay.Milliseconds()}, nil
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.recordCall("Health")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.recordCall("Close")
	return nil
}

func (m *Mock) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
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

// Requests returns every Request passed to Complete.
func (m *Mock) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent Request, or nil.
func (m *Mock) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears all recorded calls and rewinds the script.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.requests = nil
	m.next = 0
}

// WithError returns a mock that always fails with the given error.
func WithError(err error) *Mock {
	return &Mock{
		CompleteFunc: func(ctx context.Context, req *Request) (*Response, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)

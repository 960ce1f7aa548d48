package telephony

import (
	"context"
	"sync"

	"github.com/vocaliq/go-vocaliq/pkg/audio"
)

// MockLeg implements Leg for testing. Tests feed caller audio with
// PushFrame and inspect outbound writes with Written.
type MockLeg struct {
	StartInfo StartInfo

	frames chan audio.Frame
	marks  chan string

	mu         sync.Mutex
	written    [][]byte
	markNames  []string
	clearCount int
	closed     bool
	err        error
}

// NewMockLeg creates a mock leg for the given call identity.
func NewMockLeg(callSID, orgID string) *MockLeg {
	return &MockLeg{
		StartInfo: StartInfo{
			StreamSID: "MS" + callSID,
			CallSID:   callSID,
			OrgID:     orgID,
		},
		frames: make(chan audio.Frame, 256),
		marks:  make(chan string, 16),
	}
}

// Info returns the call identity.
func (m *MockLeg) Info() StartInfo { return m.StartInfo }

// Frames returns the inbound frame channel.
func (m *MockLeg) Frames() <-chan audio.Frame { return m.frames }

// Marks returns the echo channel.
func (m *MockLeg) Marks() <-chan string { return m.marks }

// PushFrame feeds one caller frame into the leg. Frames pushed after
// the leg closed are discarded, as a carrier's would be.
func (m *MockLeg) PushFrame(f audio.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.frames <- f
}

// Hangup simulates the carrier ending the call cleanly.
func (m *MockLeg) Hangup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.frames)
}

// Drop simulates losing the connection mid-call.
func (m *MockLeg) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.err = ErrDropped
	close(m.frames)
}

// EchoMark feeds a mark acknowledgment back, as the carrier would
// after playing out the audio before it.
func (m *MockLeg) EchoMark(name string) {
	select {
	case m.marks <- name:
	default:
	}
}

// Write records outbound audio.
func (m *MockLeg) Write(ctx context.Context, mulaw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrLegClosed
	}
	buf := make([]byte, len(mulaw))
	copy(buf, mulaw)
	m.written = append(m.written, buf)
	return nil
}

// Mark records a checkpoint request.
func (m *MockLeg) Mark(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrLegClosed
	}
	m.markNames = append(m.markNames, name)
	return nil
}

// Clear records a clear request.
func (m *MockLeg) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCount++
	return nil
}

// Err returns the terminal error.
func (m *MockLeg) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close marks the leg closed.
func (m *MockLeg) Close() error {
	m.Hangup()
	return nil
}

// Written returns every outbound audio write.
func (m *MockLeg) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// WrittenBytes returns the total outbound payload size.
func (m *MockLeg) WrittenBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.written {
		n += len(w)
	}
	return n
}

// MarkRequests returns every checkpoint name requested.
func (m *MockLeg) MarkRequests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.markNames))
	copy(out, m.markNames)
	return out
}

// ClearCount returns how many times Clear was called.
func (m *MockLeg) ClearCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCount
}

// Verify MockLeg implements Leg at compile time.
var _ Leg = (*MockLeg)(nil)

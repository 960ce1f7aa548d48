package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/vocaliq/go-vocaliq/internal/metrics"
)

// Sentinel errors for bus operations.
var (
	// ErrBusClosed is returned once the bus is closed and drained.
	ErrBusClosed = errors.New("audio: bus closed")
)

// Default buffer capacities. Inbound holds ~5s of 20ms frames so a
// stalled transcription vendor costs dropped frames, never telephony
// backpressure. Outbound holds ~10s of synthesized audio.
const (
	DefaultInboundCapacity  = 256
	DefaultOutboundCapacity = 512
)

// Stats is a snapshot of bus counters. Drops are metrics, not errors.
type Stats struct {
	InboundFrames   uint64
	InboundDropped  uint64
	InboundGaps     uint64
	OutboundChunks  uint64
	OutboundFlushed uint64
}

// Bus is the per-call audio frame bus. Inbound frames are exposed as
// a broadcast ring that any number of readers consume through
// independent cursors; outbound chunks form an ordered queue with a
// flush-and-discard operation used on barge-in.
type Bus struct {
	in  *inboundRing
	out *outboundQueue
}

// NewBus creates a bus with default capacities.
func NewBus() *Bus {
	return NewBusWithCapacity(DefaultInboundCapacity, DefaultOutboundCapacity)
}

// NewBusWithCapacity creates a bus with explicit ring and queue sizes.
func NewBusWithCapacity(inbound, outbound int) *Bus {
	if inbound < 1 {
		inbound = DefaultInboundCapacity
	}
	if outbound < 1 {
		outbound = DefaultOutboundCapacity
	}
	return &Bus{
		in:  newInboundRing(inbound),
		out: newOutboundQueue(outbound),
	}
}

// PublishInbound appends a caller frame in arrival order. It never
// blocks: if the ring is full the oldest unread frames are dropped
// and counted.
func (b *Bus) PublishInbound(f Frame) {
	b.in.publish(f)
}

// NewReader returns an independent cursor over the inbound stream.
// Readers never consume frames for each other; a slow reader only
// loses its own oldest frames.
func (b *Bus) NewReader() *Reader {
	return b.in.newReader()
}

// PushOutbound enqueues a synthesized audio chunk for the line. The
// gen token must come from OutboundGen at utterance start; chunks
// carrying a stale generation are discarded, so a cancelled synthesis
// goroutine racing a flush can never land audio after it.
func (b *Bus) PushOutbound(chunk []byte, gen uint64) {
	b.out.push(chunk, gen)
}

// OutboundGen returns the current outbound generation. Each flush
// invalidates it.
func (b *Bus) OutboundGen() uint64 {
	return b.out.generation()
}

// NextOutbound blocks until an outbound chunk is available. The
// telephony writer goroutine drains the queue through this.
func (b *Bus) NextOutbound(ctx context.Context) ([]byte, error) {
	return b.out.next(ctx)
}

// FlushOutbound discards every enqueued-but-unsent chunk, advances
// the generation, and returns the number discarded. After it returns,
// no previously enqueued audio will be handed to the telephony
// writer, and late pushes from the flushed utterance are rejected;
// this bounds the flush-to-silence latency to the chunk already on
// the wire.
func (b *Bus) FlushOutbound() int {
	return b.out.flush()
}

// Close wakes all blocked readers and the outbound writer.
func (b *Bus) Close() {
	b.in.close()
	b.out.close()
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	inFrames, inDropped, inGaps := b.in.stats()
	outChunks, outFlushed := b.out.stats()
	return Stats{
		InboundFrames:   inFrames,
		InboundDropped:  inDropped,
		InboundGaps:     inGaps,
		OutboundChunks:  outChunks,
		OutboundFlushed: outFlushed,
	}
}

// inboundRing is a broadcast ring buffer. head is the absolute index
// of the next write; readers each keep their own absolute position.
type inboundRing struct {
	mu      sync.Mutex
	frames  []Frame
	head    uint64
	closed  bool
	notify  chan struct{}
	lastSeq uint64
	total   uint64
	dropped uint64
	gaps    uint64
}

func newInboundRing(capacity int) *inboundRing {
	return &inboundRing{
		frames: make([]Frame, capacity),
		notify: make(chan struct{}),
	}
}

func (r *inboundRing) publish(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.total > 0 && f.Seq > r.lastSeq+1 {
		r.gaps += f.Seq - r.lastSeq - 1
	}
	r.lastSeq = f.Seq
	r.total++
	r.frames[r.head%uint64(len(r.frames))] = f
	r.head++
	close(r.notify)
	r.notify = make(chan struct{})
}

func (r *inboundRing) newReader() *Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Reader{ring: r, next: r.head}
}

func (r *inboundRing) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.notify)
}

func (r *inboundRing) stats() (total, dropped, gaps uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total, r.dropped, r.gaps
}

// Reader is an independent cursor over the inbound frame stream.
// It is not safe for concurrent use; each consumer owns one.
type Reader struct {
	ring *inboundRing
	next uint64
}

// Next returns the next inbound frame, blocking until one arrives.
// Returns ErrBusClosed once the bus is closed and no frames remain.
func (rd *Reader) Next(ctx context.Context) (Frame, error) {
	for {
		rd.ring.mu.Lock()
		r := rd.ring
		capacity := uint64(len(r.frames))

		// The writer lapped us: the oldest unread frames are gone.
		if r.head > capacity && rd.next < r.head-capacity {
			lost := r.head - capacity - rd.next
			r.dropped += lost
			metrics.FramesDropped.Add(float64(lost))
			rd.next = r.head - capacity
		}

		if rd.next < r.head {
			f := r.frames[rd.next%capacity]
			rd.next++
			r.mu.Unlock()
			return f, nil
		}

		if r.closed {
			r.mu.Unlock()
			return Frame{}, ErrBusClosed
		}

		wait := r.notify
		r.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

// outboundQueue is a bounded FIFO of audio chunks with O(1) flush.
// gen is the queue generation: flush advances it, and pushes tagged
// with an older generation are dropped instead of enqueued.
type outboundQueue struct {
	mu       sync.Mutex
	queue    [][]byte
	capacity int
	closed   bool
	notify   chan struct{}
	gen      uint64
	total    uint64
	flushed  uint64
}

func newOutboundQueue(capacity int) *outboundQueue {
	return &outboundQueue{
		capacity: capacity,
		notify:   make(chan struct{}),
	}
}

func (q *outboundQueue) push(chunk []byte, gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if gen != q.gen {
		// Late push from a flushed utterance.
		q.flushed++
		metrics.FramesFlushed.Inc()
		return
	}
	if len(q.queue) >= q.capacity {
		// Synthesis far ahead of the line; drop the oldest chunk.
		q.queue = q.queue[1:]
		q.flushed++
		metrics.FramesFlushed.Inc()
	}
	q.queue = append(q.queue, chunk)
	q.total++
	close(q.notify)
	q.notify = make(chan struct{})
}

func (q *outboundQueue) next(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.queue) > 0 {
			chunk := q.queue[0]
			q.queue = q.queue[1:]
			q.mu.Unlock()
			return chunk, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrBusClosed
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *outboundQueue) generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gen
}

func (q *outboundQueue) flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.queue)
	q.queue = nil
	q.gen++
	q.flushed += uint64(n)
	if n > 0 {
		metrics.FramesFlushed.Add(float64(n))
	}
	return n
}

func (q *outboundQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

func (q *outboundQueue) stats() (total, flushed uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total, q.flushed
}

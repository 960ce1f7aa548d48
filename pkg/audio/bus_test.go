package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testFrame(seq uint64) Frame {
	return Frame{Seq: seq, Direction: Inbound, Samples: make([]int16, SamplesPerFrame)}
}

func TestBus_IndependentReaders(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx := context.Background()

	r1 := bus.NewReader()
	r2 := bus.NewReader()

	for i := uint64(0); i < 5; i++ {
		bus.PublishInbound(testFrame(i))
	}

	// Both readers see all five frames; neither consumes for the other.
	for _, rd := range []*Reader{r1, r2} {
		for i := uint64(0); i < 5; i++ {
			f, err := rd.Next(ctx)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if f.Seq != i {
				t.Errorf("frame seq: got %d, want %d", f.Seq, i)
			}
		}
	}
}

func TestBus_ReaderBlocksUntilPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rd := bus.NewReader()
	got := make(chan Frame, 1)
	go func() {
		f, err := rd.Next(context.Background())
		if err != nil {
			return
		}
		got <- f
	}()

	time.Sleep(10 * time.Millisecond)
	bus.PublishInbound(testFrame(42))

	select {
	case f := <-got:
		if f.Seq != 42 {
			t.Errorf("frame seq: got %d, want 42", f.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("reader did not wake on publish")
	}
}

func TestBus_SlowReaderDropsOldest(t *testing.T) {
	bus := NewBusWithCapacity(4, 4)
	defer bus.Close()
	ctx := context.Background()

	rd := bus.NewReader()
	for i := uint64(0); i < 10; i++ {
		bus.PublishInbound(testFrame(i))
	}

	// Ring holds 4; the reader lost frames 0-5 and resumes at 6.
	f, err := rd.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Seq != 6 {
		t.Errorf("first frame after lap: got seq %d, want 6", f.Seq)
	}

	if stats := bus.Stats(); stats.InboundDropped != 6 {
		t.Errorf("dropped: got %d, want 6", stats.InboundDropped)
	}
}

func TestBus_GapDetection(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.PublishInbound(testFrame(0))
	bus.PublishInbound(testFrame(1))
	bus.PublishInbound(testFrame(5)) // frames 2-4 lost upstream

	if stats := bus.Stats(); stats.InboundGaps != 3 {
		t.Errorf("gaps: got %d, want 3", stats.InboundGaps)
	}
}

func TestBus_ReaderContextCancel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rd := bus.NewReader()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := rd.Next(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader did not observe cancellation")
	}
}

func TestBus_OutboundOrderAndFlush(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx := context.Background()

	gen := bus.OutboundGen()
	bus.PushOutbound([]byte{1}, gen)
	bus.PushOutbound([]byte{2}, gen)

	chunk, err := bus.NextOutbound(ctx)
	if err != nil {
		t.Fatalf("NextOutbound: %v", err)
	}
	if chunk[0] != 1 {
		t.Errorf("chunk order: got %d, want 1", chunk[0])
	}

	bus.PushOutbound([]byte{3}, gen)
	if n := bus.FlushOutbound(); n != 2 {
		t.Errorf("flushed: got %d, want 2", n)
	}

	// Nothing enqueued before the flush may be delivered afterward.
	bus.PushOutbound([]byte{9}, bus.OutboundGen())
	chunk, err = bus.NextOutbound(ctx)
	if err != nil {
		t.Fatalf("NextOutbound after flush: %v", err)
	}
	if chunk[0] != 9 {
		t.Errorf("post-flush chunk: got %d, want 9", chunk[0])
	}
}

func TestBus_FlushRejectsStaleGeneration(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx := context.Background()

	stale := bus.OutboundGen()
	bus.PushOutbound([]byte{1}, stale)
	bus.FlushOutbound()

	// A synthesis goroutine that raced the flush keeps pushing with
	// the old generation; none of it may reach the line.
	bus.PushOutbound([]byte{2}, stale)
	bus.PushOutbound(nil, stale)

	bus.PushOutbound([]byte{7}, bus.OutboundGen())
	chunk, err := bus.NextOutbound(ctx)
	if err != nil {
		t.Fatalf("NextOutbound: %v", err)
	}
	if chunk[0] != 7 {
		t.Errorf("post-flush chunk: got %d, want 7", chunk[0])
	}

	stats := bus.Stats()
	if stats.OutboundFlushed != 3 {
		t.Errorf("OutboundFlushed = %d, want 3", stats.OutboundFlushed)
	}
}

func TestBus_ClosedReturnsErrBusClosed(t *testing.T) {
	bus := NewBus()
	rd := bus.NewReader()
	bus.Close()

	if _, err := rd.Next(context.Background()); !errors.Is(err, ErrBusClosed) {
		t.Errorf("reader: expected ErrBusClosed, got %v", err)
	}
	if _, err := bus.NextOutbound(context.Background()); !errors.Is(err, ErrBusClosed) {
		t.Errorf("outbound: expected ErrBusClosed, got %v", err)
	}
}

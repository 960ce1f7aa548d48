package tts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vocaliq/go-vocaliq/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Speak streams one chunk per character", func(t *testing.T) {
		stream, err := mock.Speak(ctx, "Hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var n int
		for range stream.Chunks() {
			n++
		}
		if n != 5 {
			t.Errorf("chunks: got %d, want 5", n)
		}
		if stream.Err() != nil {
			t.Errorf("unexpected stream error: %v", stream.Err())
		}
	})

	t.Run("Health returns nil", func(t *testing.T) {
		if err := mock.Health(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if mock.CallCount("Speak") != 1 {
			t.Errorf("expected 1 Speak call, got %d", mock.CallCount("Speak"))
		}
		if mock.CallCount("Health") != 1 {
			t.Errorf("expected 1 Health call, got %d", mock.CallCount("Health"))
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockStream_CancelStopsChunks(t *testing.T) {
	mock := tts.NewMock()
	mock.ChunkDelay = 5 * time.Millisecond

	stream, err := mock.Speak(context.Background(), "a long sentence that keeps playing for a while")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}

	// Consume a couple of chunks, then barge in.
	<-stream.Chunks()
	<-stream.Chunks()
	start := time.Now()
	stream.Cancel()
	stream.Cancel() // idempotent

	// The stream must wind down well within the cancel budget.
	deadline := time.After(tts.CancelBudget)
	ms := mock.Streams()[0]
	for !ms.Cancelled() {
		select {
		case <-deadline:
			t.Fatalf("cancel did not take effect within %v", tts.CancelBudget)
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if elapsed := time.Since(start); elapsed > tts.CancelBudget {
		t.Errorf("cancel latency %v exceeds budget %v", elapsed, tts.CancelBudget)
	}
	if stream.Err() != nil {
		t.Errorf("cancelled stream reports error: %v", stream.Err())
	}
}

func TestMockStream_CancelAfterCompletion(t *testing.T) {
	mock := tts.NewMock()
	stream, _ := mock.Speak(context.Background(), "hi")
	for range stream.Chunks() {
	}
	stream.Cancel() // no panic, no error
	if stream.Err() != nil {
		t.Errorf("unexpected error: %v", stream.Err())
	}
}

func TestChain_FallsBackOnFailure(t *testing.T) {
	failing := tts.WithError(tts.ErrUnavailable)
	working := tts.NewMock()

	chain, err := tts.NewChain(failing, working)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	stream, err := chain.Speak(context.Background(), "ok")
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	for range stream.Chunks() {
	}
	if working.CallCount("Speak") != 1 {
		t.Errorf("fallback provider Speak calls: got %d, want 1", working.CallCount("Speak"))
	}
}

func TestChain_AllFail(t *testing.T) {
	chain, _ := tts.NewChain(tts.WithError(tts.ErrUnavailable), tts.WithError(tts.ErrUnavailable))

	_, err := chain.Speak(context.Background(), "ok")
	if err == nil {
		t.Fatal("expected error")
	}
	var chainErr *tts.ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("aggregated errors: got %d, want 2", len(chainErr.Errors))
	}
	if !errors.Is(err, tts.ErrUnavailable) {
		t.Error("expected chain error to match ErrUnavailable")
	}
}

func TestChain_RequiresProviders(t *testing.T) {
	if _, err := tts.NewChain(); !errors.Is(err, tts.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestElevenLabs_Requirescredentials(t *testing.T) {
	if _, err := tts.NewElevenLabs(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	if _, err := tts.NewElevenLabs(tts.WithAPIKey("k")); !errors.Is(err, tts.ErrNoVoiceID) {
		t.Errorf("expected ErrNoVoiceID, got %v", err)
	}
}

func TestStatic_SpeaksClipRegardlessOfText(t *testing.T) {
	clip := make([]byte, 400) // 2 full frames plus a short tail
	static, err := tts.NewStatic(clip)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	stream, err := static.Speak(context.Background(), "this text is ignored")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	var total int
	var chunks int
	for c := range stream.Chunks() {
		total += len(c)
		chunks++
	}
	if total != len(clip) {
		t.Errorf("streamed bytes: got %d, want %d", total, len(clip))
	}
	if chunks != 3 {
		t.Errorf("chunks: got %d, want 3", chunks)
	}
	if stream.Err() != nil {
		t.Errorf("unexpected stream error: %v", stream.Err())
	}
}

func TestStatic_CancelStopsPlayback(t *testing.T) {
	static, _ := tts.NewStatic(make([]byte, 160*50))

	stream, err := static.Speak(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	<-stream.Chunks()
	stream.Cancel()
	stream.Cancel() // idempotent

	deadline := time.After(tts.CancelBudget)
	for {
		select {
		case _, ok := <-stream.Chunks():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("cancel did not close the stream in time")
		}
	}
}

func TestStatic_RequiresClip(t *testing.T) {
	if _, err := tts.NewStatic(nil); !errors.Is(err, tts.ErrNoClip) {
		t.Errorf("expected ErrNoClip, got %v", err)
	}
}

func TestStatic_AsChainFallback(t *testing.T) {
	clip := make([]byte, 160)
	static, _ := tts.NewStatic(clip)
	chain, err := tts.NewChain(tts.WithError(tts.ErrUnavailable), static)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	stream, err := chain.Speak(context.Background(), "anything")
	if err != nil {
		t.Fatalf("expected static fallback to succeed, got %v", err)
	}
	var total int
	for c := range stream.Chunks() {
		total += len(c)
	}
	if total != len(clip) {
		t.Errorf("streamed bytes: got %d, want %d", total, len(clip))
	}
}

func TestAPIError_MatchesErrUnavailable(t *testing.T) {
	e := &tts.APIError{StatusCode: 500, Provider: "elevenlabs"}
	if !errors.Is(e, tts.ErrUnavailable) {
		t.Error("expected APIError to match ErrUnavailable")
	}
	if !e.IsRetryable() {
		t.Error("expected 500 to be retryable")
	}
}

package session

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/vocaliq/go-vocaliq/pkg/agent"
	"github.com/vocaliq/go-vocaliq/pkg/audio"
	"github.com/vocaliq/go-vocaliq/pkg/engine"
	"github.com/vocaliq/go-vocaliq/pkg/event"
	"github.com/vocaliq/go-vocaliq/pkg/reasoning"
	"github.com/vocaliq/go-vocaliq/pkg/stt"
	"github.com/vocaliq/go-vocaliq/pkg/telephony"
	"github.com/vocaliq/go-vocaliq/pkg/tts"
)

type fixture struct {
	session *Session
	leg     *telephony.MockLeg
	sttMock *stt.Mock
	ttsMock *tts.Mock
	bus     *event.Bus
	sub     *event.Subscription
}

func newFixture(t *testing.T, mutate func(*agent.AgentConfig), provider reasoning.Provider) *fixture {
	t.Helper()

	cfg := agent.Default()
	cfg.OrgID = "org-1"
	cfg.SystemPrompt = "You are the receptionist for Acme Dental."
	if mutate != nil {
		mutate(cfg)
	}

	if provider == nil {
		provider = reasoning.NewMock("Sure, what day works?")
	}

	f := &fixture{
		leg:     telephony.NewMockLeg("CA1", "org-1"),
		sttMock: stt.NewMock(),
		ttsMock: tts.NewMock(),
		bus:     event.NewBus(),
	}
	// Pace playback enough that Speaking is observable.
	f.ttsMock.ChunkDelay = 5 * time.Millisecond
	f.sub = f.bus.Subscribe(128)

	f.session = newSession(Params{
		CallID: "CA1",
		OrgID:  "org-1",
		Leg:    f.leg,
		Config: cfg,
		STT:    f.sttMock,
		TTS:    f.ttsMock,
		Engine: engine.New(provider),
		Events: f.bus,
	})
	go f.session.run()

	t.Cleanup(func() {
		f.session.Terminate(ReasonAdminTerminate)
		select {
		case <-f.session.Done():
		case <-time.After(2 * time.Second):
		}
		f.bus.Close()
	})
	return f
}

// waitState polls until the session reaches the wanted state.
func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %q, never reached %q", s.State(), want)
}

// waitTurns waits until the conversation history holds at least n
// turns; state polling alone can miss transient states.
func waitTurns(t *testing.T, s *Session, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.History()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("history = %d turns, never reached %d", len(s.History()), n)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("session never ended (state %q)", s.State())
	}
}

// sttSession waits for the transcription session to come up.
func (f *fixture) sttSession(t *testing.T) *stt.MockSession {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s := f.sttMock.LastSession(); s != nil {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("transcription session never started")
	return nil
}

// speechFrame builds one 20ms frame of loud 400Hz tone.
func speechFrame(seq uint64) audio.Frame {
	samples := make([]int16, audio.SamplesPerFrame)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*400*float64(i)/float64(audio.SampleRate)))
	}
	return audio.Frame{Seq: seq, Direction: audio.Inbound, Samples: samples}
}

// stateChanges drains the subscription and returns the visited states
// in order, stopping once want states have been seen or the timeout
// elapses.
func stateChanges(t *testing.T, sub *event.Subscription, want int) []string {
	t.Helper()
	var states []string
	timeout := time.After(3 * time.Second)
	for len(states) < want {
		select {
		case ev := <-sub.Events():
			if ev.Kind == event.KindStateChanged {
				states = append(states, ev.Payload["to"].(string))
			}
		case <-timeout:
			t.Fatalf("saw %d state changes %v, want %d", len(states), states, want)
		}
	}
	return states
}

func TestScriptedRoundTrip(t *testing.T) {
	f := newFixture(t, nil, reasoning.NewMock("Sure, what day works?"))
	waitState(t, f.session, StateListening)

	f.sttSession(t).EmitFinal("I'd like to book an appointment")

	waitState(t, f.session, StateSpeaking)

	history := f.session.History()
	if len(history) != 2 {
		t.Fatalf("history = %d turns, want 2", len(history))
	}
	if history[0].Speaker != engine.SpeakerCaller || history[0].Text != "I'd like to book an appointment" {
		t.Errorf("caller turn = %+v", history[0])
	}
	if history[0].Intent != engine.IntentAppointment {
		t.Errorf("intent = %q, want appointment", history[0].Intent)
	}
	// The agent turn commits before playback finishes.
	if history[1].Speaker != engine.SpeakerAgent || history[1].Text != "Sure, what day works?" {
		t.Errorf("agent turn = %+v", history[1])
	}

	// Playback completes and the floor returns to the caller.
	waitState(t, f.session, StateListening)
	if f.leg.WrittenBytes() == 0 {
		t.Error("no audio reached the telephony leg")
	}

	states := stateChanges(t, f.sub, 5)
	want := []string{"connecting", "listening", "thinking", "speaking", "listening"}
	for i, w := range want {
		if states[i] != w {
			t.Fatalf("state order = %v, want %v", states, want)
		}
	}
}

func TestTranscriptAndResponseEvents(t *testing.T) {
	f := newFixture(t, nil, nil)
	waitState(t, f.session, StateListening)

	f.sttSession(t).EmitFinal("hello")
	waitState(t, f.session, StateSpeaking)

	var sawTranscript, sawResponse bool
	timeout := time.After(2 * time.Second)
	for !(sawTranscript && sawResponse) {
		select {
		case ev := <-f.sub.Events():
			switch ev.Kind {
			case event.KindTranscriptFinal:
				sawTranscript = true
				if ev.Payload["text"] != "hello" {
					t.Errorf("transcript payload = %v", ev.Payload)
				}
			case event.KindAgentResponded:
				sawResponse = true
			}
		case <-timeout:
			t.Fatalf("transcript=%v response=%v", sawTranscript, sawResponse)
		}
	}
}

func TestPartialTranscriptsIgnored(t *testing.T) {
	f := newFixture(t, nil, nil)
	waitState(t, f.session, StateListening)

	f.sttSession(t).EmitPartial("I'd like")
	f.sttSession(t).EmitPartial("I'd like to book")

	time.Sleep(50 * time.Millisecond)
	if got := f.session.State(); got != StateListening {
		t.Errorf("state = %q after partials, want listening", got)
	}
	if len(f.session.History()) != 0 {
		t.Error("partials must not enter history")
	}
}

func TestBargeIn(t *testing.T) {
	f := newFixture(t, func(cfg *agent.AgentConfig) {
		cfg.Interruption.Enabled = true
		cfg.Interruption.MinDuration = 300 * time.Millisecond
	}, reasoning.NewMock("Let me tell you all about our opening hours and our full range of services"))
	// Pace playback so the session stays in Speaking.
	f.ttsMock.ChunkDelay = 20 * time.Millisecond

	waitState(t, f.session, StateListening)
	f.sttSession(t).EmitFinal("what are your hours?")
	waitState(t, f.session, StateSpeaking)

	// 20 frames = 400ms of sustained speech, past the 300ms policy.
	for i := uint64(0); i < 20; i++ {
		f.leg.PushFrame(speechFrame(i))
	}

	waitState(t, f.session, StateListening)

	if f.session.Interruptions() != 1 {
		t.Errorf("Interruptions = %d, want 1", f.session.Interruptions())
	}
	if f.leg.ClearCount() == 0 {
		t.Error("barge-in should clear carrier-buffered audio")
	}

	history := f.session.History()
	last := history[len(history)-1]
	if last.Speaker != engine.SpeakerAgent || !last.Truncated {
		t.Errorf("agent turn not marked truncated: %+v", last)
	}

	// The interruption path goes through the transient flush state.
	var visited []string
	drain := time.After(500 * time.Millisecond)
loop:
	for {
		select {
		case ev := <-f.sub.Events():
			if ev.Kind == event.KindStateChanged {
				visited = append(visited, ev.Payload["to"].(string))
			}
		case <-drain:
			break loop
		}
	}
	found := false
	for _, v := range visited {
		if v == "interrupting" {
			found = true
		}
	}
	if !found {
		t.Errorf("states %v never visited interrupting", visited)
	}
}

func TestBargeInDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *agent.AgentConfig) {
		cfg.Interruption.Enabled = false
	}, reasoning.NewMock("A response that keeps playing to the end"))
	f.ttsMock.ChunkDelay = 10 * time.Millisecond

	waitState(t, f.session, StateListening)
	f.sttSession(t).EmitFinal("hello")
	waitState(t, f.session, StateSpeaking)

	for i := uint64(0); i < 25; i++ {
		f.leg.PushFrame(speechFrame(i))
	}
	time.Sleep(100 * time.Millisecond)

	if f.session.Interruptions() != 0 {
		t.Errorf("Interruptions = %d, want 0 with barge-in disabled", f.session.Interruptions())
	}
	if f.leg.ClearCount() != 0 {
		t.Error("no clear should be sent with barge-in disabled")
	}

	// Playback still runs to completion.
	waitState(t, f.session, StateListening)
	history := f.session.History()
	if history[len(history)-1].Truncated {
		t.Error("turn must not be truncated without barge-in")
	}
}

func TestReasoningFailureSpeaksApology(t *testing.T) {
	failing := reasoning.WithError(reasoning.ErrUnavailable)
	f := newFixture(t, nil, failing)

	waitState(t, f.session, StateListening)
	f.sttSession(t).EmitFinal("hello")
	waitState(t, f.session, StateSpeaking)

	history := f.session.History()
	last := history[len(history)-1]
	if last.Text != agent.DefaultFallbackMessage {
		t.Errorf("apology turn = %q, want fallback message", last.Text)
	}
}

func TestRepeatedReasoningFailureEndsCall(t *testing.T) {
	failing := reasoning.WithError(reasoning.ErrUnavailable)
	f := newFixture(t, nil, failing)

	waitState(t, f.session, StateListening)
	f.sttSession(t).EmitFinal("hello")

	// First failed turn: apology plays, floor returns.
	waitState(t, f.session, StateSpeaking)
	waitState(t, f.session, StateListening)

	// Second consecutive failure ends the call.
	f.sttSession(t).EmitFinal("are you there?")
	waitDone(t, f.session)

	if f.session.EndReason() != ReasonReasoningFailed {
		t.Errorf("EndReason = %q, want %q", f.session.EndReason(), ReasonReasoningFailed)
	}
}

func TestSynthesisFailureSkipsAudio(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ttsMock.SpeakFunc = func(ctx context.Context, text string) (tts.Stream, error) {
		return nil, tts.ErrUnavailable
	}

	waitState(t, f.session, StateListening)
	f.sttSession(t).EmitFinal("hello")

	// Speaking may be too brief to observe when the synth call fails
	// immediately, so wait on the committed turn instead of the state.
	waitTurns(t, f.session, 2)
	history := f.session.History()
	if history[1].Speaker != engine.SpeakerAgent {
		t.Fatalf("history = %+v, want committed agent turn", history)
	}

	// Audio is skipped and the floor comes back.
	waitState(t, f.session, StateListening)
	if f.leg.WrittenBytes() != 0 {
		t.Error("no audio should reach the leg when synthesis fails")
	}
}

func TestCallerHangup(t *testing.T) {
	f := newFixture(t, nil, nil)
	waitState(t, f.session, StateListening)

	f.leg.Hangup()
	waitDone(t, f.session)

	if f.session.EndReason() != ReasonCallerHangup {
		t.Errorf("EndReason = %q, want %q", f.session.EndReason(), ReasonCallerHangup)
	}
	if f.session.State() != StateEnded {
		t.Errorf("State = %q, want ended", f.session.State())
	}
}

func TestConnectionDrop(t *testing.T) {
	f := newFixture(t, nil, nil)
	waitState(t, f.session, StateListening)

	f.leg.Drop()
	waitDone(t, f.session)

	if f.session.EndReason() != ReasonTelephonyDropped {
		t.Errorf("EndReason = %q, want %q", f.session.EndReason(), ReasonTelephonyDropped)
	}
}

func TestTerminate(t *testing.T) {
	f := newFixture(t, nil, nil)
	waitState(t, f.session, StateListening)

	f.session.Terminate(ReasonAdminTerminate)
	waitDone(t, f.session)

	if f.session.EndReason() != ReasonAdminTerminate {
		t.Errorf("EndReason = %q", f.session.EndReason())
	}
}

func TestStatsSnapshot(t *testing.T) {
	f := newFixture(t, nil, reasoning.NewMock("Hello there."))
	waitState(t, f.session, StateListening)

	f.sttSession(t).EmitFinal("hi")
	waitState(t, f.session, StateSpeaking)
	waitState(t, f.session, StateListening)

	stats := f.session.Stats()
	if stats.Turns != 2 {
		t.Errorf("Turns = %d, want 2", stats.Turns)
	}
	if stats.Interruptions != 0 {
		t.Errorf("Interruptions = %d, want 0", stats.Interruptions)
	}
	if stats.Duration <= 0 {
		t.Errorf("Duration = %v, want positive", stats.Duration)
	}

	f.session.Terminate(ReasonAdminTerminate)
	waitDone(t, f.session)

	frozen := f.session.Stats()
	time.Sleep(20 * time.Millisecond)
	if got := f.session.Stats().Duration; got != frozen.Duration {
		t.Errorf("Duration moved after end: %v then %v", frozen.Duration, got)
	}
}

func TestFinalEventIsCallEnded(t *testing.T) {
	f := newFixture(t, nil, nil)
	waitState(t, f.session, StateListening)

	f.leg.Hangup()
	waitDone(t, f.session)

	var last event.Event
drain:
	for {
		select {
		case ev := <-f.sub.Events():
			last = ev
		case <-time.After(300 * time.Millisecond):
			break drain
		}
	}
	if last.Kind != event.KindCallEnded {
		t.Errorf("last event = %q, want call_ended", last.Kind)
	}
	if last.Payload["reason"] != ReasonCallerHangup {
		t.Errorf("payload = %v", last.Payload)
	}
}

func TestTranscriptionUnavailableEndsCall(t *testing.T) {
	cfg := agent.Default()
	cfg.OrgID = "org-1"

	sttMock := stt.NewMock()
	sttMock.StartSessionFunc = func(ctx context.Context) (stt.Session, error) {
		return nil, stt.ErrUnavailable
	}

	leg := telephony.NewMockLeg("CA9", "org-1")
	s := newSession(Params{
		CallID: "CA9",
		OrgID:  "org-1",
		Leg:    leg,
		Config: cfg,
		STT:    sttMock,
		TTS:    tts.NewMock(),
		Engine: engine.New(reasoning.NewMock()),
		Events: event.NewBus(),
	})
	go s.run()

	waitDone(t, s)
	if s.EndReason() != ReasonTranscriptionDown {
		t.Errorf("EndReason = %q, want %q", s.EndReason(), ReasonTranscriptionDown)
	}
}

// waitSTTSessions waits until the mock provider has created at least
// want transcription sessions and returns the newest.
func waitSTTSessions(t *testing.T, m *stt.Mock, want int) *stt.MockSession {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sessions := m.Sessions(); len(sessions) >= want {
			return sessions[want-1]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("transcription sessions = %d, want %d", len(m.Sessions()), want)
	return nil
}

func TestTranscriptStreamLostRestartsOnce(t *testing.T) {
	f := newFixture(t, nil, reasoning.NewMock("Still here."))
	waitState(t, f.session, StateListening)

	f.sttSession(t).Close()
	replacement := waitSTTSessions(t, f.sttMock, 2)

	// The replacement stream carries the call forward.
	replacement.EmitFinal("can you hear me")
	waitState(t, f.session, StateSpeaking)
	waitState(t, f.session, StateListening)

	if got := len(f.session.History()); got != 2 {
		t.Fatalf("history = %d turns, want 2", got)
	}
	if f.session.State() == StateEnded {
		t.Fatal("session ended after a single stream loss")
	}

	// The loss is reported, never swallowed.
	sawError := false
	timeout := time.After(time.Second)
drain:
	for {
		select {
		case ev := <-f.sub.Events():
			if ev.Kind == event.KindError {
				sawError = true
				break drain
			}
		case <-timeout:
			break drain
		}
	}
	if !sawError {
		t.Error("no error event for the lost transcription stream")
	}
}

func TestTranscriptStreamLostTwiceEndsCall(t *testing.T) {
	f := newFixture(t, nil, nil)
	waitState(t, f.session, StateListening)

	f.sttSession(t).Close()
	replacement := waitSTTSessions(t, f.sttMock, 2)
	replacement.Close()

	// A talkative caller must not keep a deaf session alive.
	for seq := uint64(0); seq < 10; seq++ {
		f.leg.PushFrame(speechFrame(seq))
	}

	waitDone(t, f.session)
	if f.session.EndReason() != ReasonTranscriptionDown {
		t.Errorf("EndReason = %q, want %q", f.session.EndReason(), ReasonTranscriptionDown)
	}
}

func TestStateGraph(t *testing.T) {
	valid := []struct{ from, to State }{
		{StateConnecting, StateListening},
		{StateListening, StateThinking},
		{StateThinking, StateSpeaking},
		{StateSpeaking, StateInterrupting},
		{StateSpeaking, StateListening},
		{StateInterrupting, StateListening},
		{StateConnecting, StateEnded},
		{StateSpeaking, StateEnded},
	}
	for _, tr := range valid {
		if !canTransition(tr.from, tr.to) {
			t.Errorf("canTransition(%s, %s) = false, want true", tr.from, tr.to)
		}
	}

	invalid := []struct{ from, to State }{
		{StateConnecting, StateSpeaking},
		{StateListening, StateSpeaking},
		{StateThinking, StateInterrupting},
		{StateEnded, StateListening},
		{StateEnded, StateEnded},
	}
	for _, tr := range invalid {
		if canTransition(tr.from, tr.to) {
			t.Errorf("canTransition(%s, %s) = true, want false", tr.from, tr.to)
		}
	}
}

// errors.Is sanity for the capacity sentinel used by the manager.
func TestCapacityErrorWrapping(t *testing.T) {
	err := errors.Join(ErrCapacityExceeded)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Error("wrapped capacity error should match sentinel")
	}
}

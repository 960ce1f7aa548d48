// Package session runs live calls. Each CallSession is a single-owner
// actor: every state transition flows through one goroutine consuming
// an event queue, so no locks are held across adapter calls. The
// Manager owns session lifecycles, enforces per-organization
// admission control, and sweeps idle calls.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocaliq/go-vocaliq/internal/log"
	"github.com/vocaliq/go-vocaliq/internal/metrics"
	"github.com/vocaliq/go-vocaliq/pkg/agent"
	"github.com/vocaliq/go-vocaliq/pkg/audio"
	"github.com/vocaliq/go-vocaliq/pkg/engine"
	"github.com/vocaliq/go-vocaliq/pkg/event"
	"github.com/vocaliq/go-vocaliq/pkg/stt"
	"github.com/vocaliq/go-vocaliq/pkg/telephony"
	"github.com/vocaliq/go-vocaliq/pkg/tts"
	"github.com/vocaliq/go-vocaliq/pkg/vad"
)

const (
	inboxSize = 64

	// sttRetryBackoff is the pause before the single retry when the
	// transcription capability fails to start.
	sttRetryBackoff = 500 * time.Millisecond

	// DefaultFlushBudget bounds the carrier-side clear on barge-in.
	// The caller is already speaking over the agent; a slow clear
	// must not hold the session out of listening.
	DefaultFlushBudget = 200 * time.Millisecond

	// maxFailedTurns ends the call after this many consecutive turns
	// where reasoning could not produce a real response.
	maxFailedTurns = 2
)

type cmdKind int

const (
	cmdTranscriptFinal cmdKind = iota
	cmdTranscriptsLost
	cmdInterrupt
	cmdReasoningDone
	cmdSynthFailed
	cmdPlaybackDone
	cmdHangup
	cmdTerminate
)

type command struct {
	kind   cmdKind
	text   string
	turn   engine.Turn
	err    error
	reason string
}

// Params wires one session's collaborators.
type Params struct {
	CallID string
	OrgID  string
	Leg    telephony.Leg
	Config *agent.AgentConfig
	STT    stt.Provider
	TTS    tts.Provider
	Engine *engine.Engine
	Events *event.Bus
	Logger *slog.Logger

	// OnEnd is invoked exactly once after the session reaches its
	// terminal state and has released its resources.
	OnEnd func(*Session)

	// FlushBudget bounds the discard of queued agent audio on
	// barge-in. Zero means DefaultFlushBudget.
	FlushBudget time.Duration
}

// Session is one live call.
type Session struct {
	callID string
	orgID  string
	cfg    *agent.AgentConfig

	leg         telephony.Leg
	sttProv     stt.Provider
	ttsProv     tts.Provider
	engine      *engine.Engine
	events      *event.Bus
	bus         *audio.Bus
	logger      *slog.Logger
	onEnd       func(*Session)
	listener    *vad.Detector
	flushBudget time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan command
	done   chan struct{}

	startedAt    time.Time
	lastActivity atomic.Int64
	state        atomic.Value

	// Guarded by mu: read from outside the actor goroutine.
	mu            sync.Mutex
	history       []engine.Turn
	interruptions int
	failedTurns   int
	endReason     string
	endedAt       time.Time

	// Actor-local speaking context.
	sttSess     stt.Session
	sttRestarts int
	curStream   tts.Stream
	streamMu    sync.Mutex
	thinkingAt  time.Time
	pendingText []string
}

func newSession(p Params) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		callID:      p.CallID,
		orgID:       p.OrgID,
		cfg:         p.Config,
		leg:         p.Leg,
		sttProv:     p.STT,
		ttsProv:     p.TTS,
		engine:      p.Engine,
		events:      p.Events,
		bus:         audio.NewBus(),
		logger:      p.Logger,
		onEnd:       p.OnEnd,
		listener:    vad.New(vad.DefaultConfig()),
		flushBudget: p.FlushBudget,
		ctx:         ctx,
		cancel:      cancel,
		inbox:       make(chan command, inboxSize),
		done:        make(chan struct{}),
		startedAt:   time.Now(),
	}
	if s.flushBudget <= 0 {
		s.flushBudget = DefaultFlushBudget
	}
	if s.logger == nil {
		s.logger = log.ForCall(p.CallID, p.OrgID)
	} else {
		s.logger = s.logger.With("call_id", p.CallID, "org_id", p.OrgID)
	}
	s.state.Store(StateConnecting)
	s.touch()
	return s
}

// CallID returns the call identifier.
func (s *Session) CallID() string { return s.callID }

// OrgID returns the organization identifier.
func (s *Session) OrgID() string { return s.orgID }

// Config returns the immutable agent configuration snapshot.
func (s *Session) Config() *agent.AgentConfig { return s.cfg }

// State returns the current session state.
func (s *Session) State() State { return s.state.Load().(State) }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// LastActivity returns the time of the last caller or agent activity.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Done is closed when the session reaches its terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// History returns a snapshot of the conversation so far.
func (s *Session) History() []engine.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Interruptions returns how many barge-ins this call has had.
func (s *Session) Interruptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interruptions
}

// EndReason returns why the session ended, empty while live.
func (s *Session) EndReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// Stats summarizes one call for monitoring surfaces.
type Stats struct {
	Turns         int           `json:"turns"`
	Interruptions int           `json:"interruptions"`
	FailedTurns   int           `json:"failed_turns"`
	Duration      time.Duration `json:"duration_ms"`
}

// Stats returns the running call counters. Duration is live until the
// session ends, then frozen at the end time.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	return Stats{
		Turns:         len(s.history),
		Interruptions: s.interruptions,
		FailedTurns:   s.failedTurns,
		Duration:      end.Sub(s.startedAt),
	}
}

// Terminate forces the session to end from outside the audio path.
func (s *Session) Terminate(reason string) {
	s.post(command{kind: cmdTerminate, reason: reason})
}

func (s *Session) post(cmd command) {
	select {
	case s.inbox <- cmd:
	case <-s.done:
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) emit(kind event.Kind, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(event.New(s.callID, s.orgID, kind, payload))
}

func (s *Session) transition(to State) {
	from := s.State()
	if !canTransition(from, to) {
		s.logger.Error("invalid state transition", "from", from, "to", to)
		return
	}
	s.state.Store(to)
	s.touch()
	s.logger.Debug("state transition", "from", from, "to", to)
	s.emit(event.KindStateChanged, map[string]any{"from": string(from), "to": string(to)})
}

// run is the actor loop. The manager starts it in its own goroutine.
func (s *Session) run() {
	s.emit(event.KindStateChanged, map[string]any{"from": "", "to": string(StateConnecting)})

	if !s.startTranscription() {
		s.end(ReasonTranscriptionDown)
		return
	}

	go s.ingestLoop()
	go s.bargeInLoop()
	go s.playbackLoop()

	s.transition(StateListening)

	var maxDur <-chan time.Time
	if s.cfg.MaxCallDuration > 0 {
		t := time.NewTimer(s.cfg.MaxCallDuration)
		defer t.Stop()
		maxDur = t.C
	}

	for {
		select {
		case cmd := <-s.inbox:
			if s.handle(cmd) || s.State() == StateEnded {
				return
			}
		case <-maxDur:
			s.end(ReasonMaxDuration)
			return
		}
	}
}

// handle processes one command; true means the session ended.
func (s *Session) handle(cmd command) bool {
	switch cmd.kind {
	case cmdTranscriptFinal:
		s.handleTranscript(cmd.text)
	case cmdTranscriptsLost:
		s.handleTranscriptsLost()
	case cmdInterrupt:
		s.handleInterrupt()
	case cmdReasoningDone:
		s.handleReasoningDone(cmd.turn, cmd.err)
	case cmdSynthFailed:
		s.handleSynthFailed(cmd.err)
	case cmdPlaybackDone:
		s.handlePlaybackDone()
	case cmdHangup:
		reason := ReasonCallerHangup
		if cmd.err != nil {
			reason = ReasonTelephonyDropped
		}
		s.end(reason)
		return true
	case cmdTerminate:
		s.end(cmd.reason)
		return true
	}
	return false
}

func (s *Session) startTranscription() bool {
	sess, err := s.sttProv.StartSession(s.ctx)
	if err != nil {
		s.logger.Warn("transcription start failed, retrying once", "error", err)
		s.emit(event.KindError, map[string]any{"error": err.Error()})

		select {
		case <-time.After(sttRetryBackoff):
		case <-s.ctx.Done():
			return false
		}

		sess, err = s.sttProv.StartSession(s.ctx)
		if err != nil {
			s.logger.Error("transcription unavailable", "error", err)
			return false
		}
	}
	s.sttSess = sess
	go s.sttPump(sess)
	go s.transcriptLoop(sess)
	return true
}

// sttPump feeds bus frames to the vendor from a dedicated reader so
// the barge-in detector is never behind a slow vendor. It exits when
// the session ends or the vendor session stops accepting frames.
func (s *Session) sttPump(sess stt.Session) {
	reader := s.bus.NewReader()
	for {
		f, err := reader.Next(s.ctx)
		if err != nil {
			return
		}
		if err := sess.Submit(f); err != nil {
			return
		}
	}
}

func (s *Session) ingestLoop() {
	for f := range s.leg.Frames() {
		s.bus.PublishInbound(f)
	}
	s.post(command{kind: cmdHangup, err: s.leg.Err()})
}

func (s *Session) transcriptLoop(sess stt.Session) {
	for ev := range sess.Events() {
		if ev.IsFinal && ev.Text != "" {
			s.post(command{kind: cmdTranscriptFinal, text: ev.Text})
		}
	}
	// The vendor stream closed. During teardown that is expected;
	// mid-call it means the session has gone deaf.
	if s.ctx.Err() == nil {
		s.post(command{kind: cmdTranscriptsLost})
	}
}

func (s *Session) bargeInLoop() {
	reader := s.bus.NewReader()
	fired := false
	for {
		f, err := reader.Next(s.ctx)
		if err != nil {
			return
		}
		if s.listener.Process(f) {
			s.touch()
		}

		if s.State() != StateSpeaking {
			fired = false
			continue
		}
		if fired || !s.cfg.Interruption.Enabled {
			continue
		}
		if s.listener.SpeechRun() >= s.cfg.Interruption.MinDuration {
			fired = true
			s.post(command{kind: cmdInterrupt})
		}
	}
}

func (s *Session) playbackLoop() {
	for {
		chunk, err := s.bus.NextOutbound(s.ctx)
		if err != nil {
			return
		}
		if len(chunk) == 0 {
			// End-of-utterance sentinel pushed after synthesis.
			s.post(command{kind: cmdPlaybackDone})
			continue
		}
		if err := s.leg.Write(s.ctx, chunk); err != nil {
			s.logger.Warn("outbound write failed", "error", err)
			return
		}
	}
}

// handleTranscriptsLost reacts to the vendor transcript stream dying
// while the call is live. One restart is attempted; a second loss
// before the replacement proves itself ends the call.
func (s *Session) handleTranscriptsLost() {
	if s.State() == StateEnded {
		return
	}
	s.emit(event.KindError, map[string]any{"error": "transcription stream lost"})

	s.sttRestarts++
	if s.sttRestarts > 1 {
		s.logger.Error("transcription stream lost again, ending call")
		s.end(ReasonTranscriptionDown)
		return
	}

	s.logger.Warn("transcription stream lost, restarting")
	if s.sttSess != nil {
		s.sttSess.Close()
	}
	if !s.startTranscription() {
		s.end(ReasonTranscriptionDown)
	}
}

func (s *Session) handleTranscript(text string) {
	s.touch()
	s.sttRestarts = 0

	if s.State() != StateListening {
		// The floor is busy; the utterance is replayed once the
		// session listens again.
		s.pendingText = append(s.pendingText, text)
		return
	}
	s.startTurn(text)
}

func (s *Session) startTurn(text string) {
	turn := engine.NewTurn(engine.SpeakerCaller, text)
	turn.Intent = engine.DetectIntent(text)
	s.appendTurn(turn)
	s.emit(event.KindTranscriptFinal, map[string]any{
		"text":   text,
		"intent": turn.Intent,
	})

	s.transition(StateThinking)
	s.thinkingAt = time.Now()

	history := s.History()
	go func() {
		reply, err := s.engine.Respond(s.ctx, history, s.cfg)
		if err != nil {
			// One retry with the brief recovery prompt; any further
			// policy belongs to the actor.
			reply, err = s.engine.RespondBrief(s.ctx, history, s.cfg)
		}
		s.post(command{kind: cmdReasoningDone, turn: reply, err: err})
	}()
}

func (s *Session) handleReasoningDone(turn engine.Turn, err error) {
	if s.State() != StateThinking {
		return
	}

	if err != nil {
		s.emit(event.KindError, map[string]any{"error": err.Error()})
		s.mu.Lock()
		s.failedTurns++
		failed := s.failedTurns
		s.mu.Unlock()

		if failed >= maxFailedTurns {
			s.logger.Error("reasoning failed repeatedly, ending call", "failed_turns", failed)
			s.end(ReasonReasoningFailed)
			return
		}

		// Keep the caller informed with the configured apology.
		turn = engine.NewTurn(engine.SpeakerAgent, s.cfg.FallbackMessage)
	} else {
		s.mu.Lock()
		s.failedTurns = 0
		s.mu.Unlock()
	}

	s.appendTurn(turn)
	s.emit(event.KindAgentResponded, map[string]any{"text": turn.Text})
	metrics.TurnLatency.Observe(time.Since(s.thinkingAt).Seconds())

	s.transition(StateSpeaking)
	go s.synthesize(turn.Text, s.bus.OutboundGen())
}

// synthesize streams one utterance to the outbound queue. gen is the
// queue generation read by the actor before spawning this goroutine;
// a barge-in flush advances it, so anything pushed after the flush is
// rejected even if the cancel has not reached the vendor stream yet.
func (s *Session) synthesize(text string, gen uint64) {
	stream, err := s.ttsProv.Speak(s.ctx, text)
	if err != nil {
		s.post(command{kind: cmdSynthFailed, err: err})
		return
	}

	s.streamMu.Lock()
	s.curStream = stream
	s.streamMu.Unlock()

	first := true
	for chunk := range stream.Chunks() {
		if first {
			first = false
			metrics.FirstAudioLatency.Observe(time.Since(s.thinkingAt).Seconds())
		}
		s.bus.PushOutbound(chunk, gen)
	}

	s.streamMu.Lock()
	s.curStream = nil
	s.streamMu.Unlock()

	if err := stream.Err(); err != nil {
		s.post(command{kind: cmdSynthFailed, err: err})
		return
	}
	// Sentinel marks utterance end; playbackLoop reports completion
	// once everything before it has gone to the line.
	s.bus.PushOutbound(nil, gen)
}

func (s *Session) handleSynthFailed(err error) {
	if s.State() != StateSpeaking {
		return
	}
	// The turn text is already committed to history; the caller just
	// never hears it.
	s.logger.Warn("synthesis failed, skipping audio for turn", "error", err)
	s.emit(event.KindError, map[string]any{"error": err.Error()})
	s.transition(StateListening)
	s.drainPending()
}

func (s *Session) handlePlaybackDone() {
	if s.State() != StateSpeaking {
		return
	}
	s.transition(StateListening)
	s.drainPending()
}

func (s *Session) handleInterrupt() {
	if s.State() != StateSpeaking || !s.cfg.Interruption.Enabled {
		return
	}

	s.transition(StateInterrupting)

	s.cancelStream()
	flushed := s.bus.FlushOutbound()
	clearCtx, cancel := context.WithTimeout(s.ctx, s.flushBudget)
	s.leg.Clear(clearCtx)
	cancel()

	s.mu.Lock()
	s.interruptions++
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Speaker == engine.SpeakerAgent {
			s.history[i].Truncated = true
			break
		}
	}
	s.mu.Unlock()
	metrics.Interruptions.Inc()

	s.logger.Info("barge-in", "flushed_chunks", flushed)
	s.transition(StateListening)
	s.drainPending()
}

func (s *Session) drainPending() {
	if len(s.pendingText) == 0 {
		return
	}
	text := s.pendingText[0]
	s.pendingText = s.pendingText[1:]
	s.startTurn(text)
}

func (s *Session) cancelStream() {
	s.streamMu.Lock()
	stream := s.curStream
	s.streamMu.Unlock()
	if stream != nil {
		stream.Cancel()
	}
}

func (s *Session) appendTurn(t engine.Turn) {
	s.mu.Lock()
	s.history = append(s.history, t)
	s.mu.Unlock()
}

func (s *Session) end(reason string) {
	if s.State() == StateEnded {
		return
	}
	s.transition(StateEnded)

	s.mu.Lock()
	s.endReason = reason
	s.endedAt = time.Now()
	turns := len(s.history)
	interruptions := s.interruptions
	s.mu.Unlock()

	s.emit(event.KindCallEnded, map[string]any{
		"reason":        reason,
		"turns":         turns,
		"interruptions": interruptions,
		"duration_ms":   time.Since(s.startedAt).Milliseconds(),
	})

	s.cancel()
	s.cancelStream()
	if s.sttSess != nil {
		s.sttSess.Close()
	}
	s.bus.Close()
	s.leg.Close()
	metrics.SessionsEnded.WithLabelValues(reason).Inc()

	s.logger.Info("session ended",
		"reason", reason,
		"turns", turns,
		"duration", time.Since(s.startedAt),
	)

	close(s.done)
	if s.onEnd != nil {
		s.onEnd(s)
	}
}

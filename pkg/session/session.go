package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxwire-ai/voxwire-session/pkg/audio"
	"github.com/voxwire-ai/voxwire-session/pkg/observe"
)

type eventKind int

const (
	evSpeechStarted eventKind = iota
	evSpeechStopped
	evFinalTranscript
	evResponseReady
	evPlaybackStarted
	evPlaybackDone
	evBargeIn
	evUnhealthy
)

// sessionEvent is the typed message delivered to the single state-machine
// loop. All state transitions happen there and nowhere else.
type sessionEvent struct {
	kind        eventKind
	text        string
	source      FinalSource
	interrupted bool
	err         error
}

// Deps are the external collaborators a session is wired with.
type Deps struct {
	Recognizer  Recognizer
	Synthesizer Synthesizer
	Responder   Responder
	Sink        OutputSink
	Logger      Logger
	Metrics     *observe.Metrics

	// OnTerminal is invoked when the session ends on an unrecoverable
	// backend condition, so the telephony layer can play an apology prompt
	// or hang up. Optional.
	OnTerminal func(err error)
}

// Session orchestrates one phone call: it owns the detector, transcript
// coordinator, synthesis controller, barge-in controller, and timeout
// monitor, and runs the state machine
// Idle→Listening→Processing→Responding→Speaking→{BargeIn→Listening | Idle}.
//
// PushFrame is the audio-ingestion entry point and must be called from a
// single goroutine (the telephony receive loop). It never blocks on network
// I/O.
type Session struct {
	id   string
	cfg  Config
	log  Logger
	mets *observe.Metrics

	vad         *Detector
	transcripts *TranscriptCoordinator
	synth       *SynthesisController
	barge       *BargeInController
	monitor     *TimeoutMonitor
	responder   Responder
	history     *ConversationLog
	onTerminal  func(err error)

	events chan sessionEvent
	state  atomic.Int32

	// Ingestion-owned; PushFrame is single-goroutine by contract.
	preRoll    []int16
	preRollMax int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New wires a session from its collaborators. The returned session is inert
// until Start.
func New(cfg Config, deps Deps) *Session {
	log := deps.Logger
	if log == nil {
		log = &NoOpLogger{}
	}

	id := uuid.NewString()
	echo := NewEchoSuppressor(cfg.RecognitionRate, cfg.EchoBufferWindow, cfg.EchoCorrelationThreshold, cfg.EchoCooldown)
	vad := NewDetector(cfg, log, echo)
	tc := NewTranscriptCoordinator(deps.Recognizer, cfg, log, id)
	synth := NewSynthesisController(deps.Synthesizer, deps.Sink, vad, cfg, log, id)
	barge := NewBargeInController(synth, cfg, log, id)

	s := &Session{
		id:          id,
		cfg:         cfg,
		log:         log,
		mets:        deps.Metrics,
		vad:         vad,
		transcripts: tc,
		synth:       synth,
		barge:       barge,
		responder:   deps.Responder,
		history:     NewConversationLog(cfg.MaxContextMessages),
		onTerminal:  deps.OnTerminal,
		events:      make(chan sessionEvent, 64),
		preRollMax:  audio.FrameSamples(cfg.RecognitionRate, int(cfg.PreRoll.Milliseconds())),
	}

	s.monitor = NewTimeoutMonitor(cfg, log, id, vad, tc, s.State)
	s.monitor.OnFired(func(src FinalSource) {
		s.mets.RecordForcedFinalization(context.Background(), src.String())
	})

	tc.OnFinal(func(text string, src FinalSource) {
		s.emit(sessionEvent{kind: evFinalTranscript, text: text, source: src})
	})
	tc.OnPartial(func(text string) {
		log.Debug("partial transcript", "session_id", id, "length", len(text))
	})
	tc.OnUnhealthy(func(err error) {
		s.emit(sessionEvent{kind: evUnhealthy, err: err})
	})
	tc.OnReconnect(func(attempt int) {
		s.mets.RecordReconnect(context.Background())
	})
	synth.OnStarted(func() {
		s.emit(sessionEvent{kind: evPlaybackStarted})
	})
	barge.OnBargeIn(func() {
		s.mets.RecordBargeIn(context.Background())
		s.emit(sessionEvent{kind: evBargeIn})
	})

	return s
}

// ID returns the session identifier used in logs and metrics.
func (s *Session) ID() string { return s.id }

// State returns the current state machine position.
func (s *Session) State() State { return State(s.state.Load()) }

// History exposes the conversation log, e.g. for seeding a system prompt.
func (s *Session) History() *ConversationLog { return s.history }

// Start opens the recognizer connection and launches the run loop and
// timeout monitor. The context is the session's cancellation scope; call
// ends cancel it.
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel

	if err := s.transcripts.Start(runCtx); err != nil {
		cancel()
		return err
	}

	s.mets.SessionStarted(runCtx)
	s.log.Info("session started", "session_id", s.id)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.runLoop(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.monitor.Run(runCtx)
	}()
	return nil
}

// Stop tears the session down: cancels the shared scope, interrupts any
// playback, closes backend connections, and waits for all tasks to exit.
func (s *Session) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.synth.Interrupt()
	if s.cancel != nil {
		s.cancel()
	}
	s.transcripts.Stop()
	s.wg.Wait()
	s.mets.SessionEnded(context.Background())
	s.log.Info("session stopped", "session_id", s.id)
}

// PushFrame ingests one companded telephony frame (typically 20ms of 8-bit
// μ-law at 8kHz). It decodes, resamples to the recognition rate, runs the
// detector, routes decisions to barge-in during playback, and forwards
// speech audio to the recognizer. Never blocks on network I/O.
func (s *Session) PushFrame(frame []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	pcm := audio.Resample(audio.DecodeMuLaw(frame), s.cfg.TelephonyRate, s.cfg.RecognitionRate)
	d := s.vad.ProcessWindow(pcm)

	if s.synth.Playing() {
		s.barge.Observe(d)
	}

	switch d.Transition {
	case TransitionStarted:
		s.transcripts.BeginUtterance()
		s.flushPreRoll()
		s.emit(sessionEvent{kind: evSpeechStarted})
	case TransitionStopped:
		s.transcripts.EndUtterance()
		s.emit(sessionEvent{kind: evSpeechStopped})
	}

	if d.Active {
		s.transcripts.Send(pcm)
	} else {
		s.bufferPreRoll(pcm)
	}
	return nil
}

// bufferPreRoll keeps a bounded lead-in of recent non-speech audio so the
// recognizer also hears the onset that preceded the debounced speech start.
func (s *Session) bufferPreRoll(pcm []int16) {
	if s.preRollMax <= 0 {
		return
	}
	s.preRoll = append(s.preRoll, pcm...)
	if len(s.preRoll) > s.preRollMax {
		s.preRoll = s.preRoll[len(s.preRoll)-s.preRollMax:]
	}
}

func (s *Session) flushPreRoll() {
	if len(s.preRoll) == 0 {
		return
	}
	lead := make([]int16, len(s.preRoll))
	copy(lead, s.preRoll)
	s.preRoll = s.preRoll[:0]
	s.transcripts.Send(lead)
}

func (s *Session) emit(ev sessionEvent) {
	if s.ctx == nil {
		return
	}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Session) handle(ctx context.Context, ev sessionEvent) {
	switch ev.kind {
	case evSpeechStarted:
		if s.State() == StateIdle {
			s.setState(ctx, StateListening)
		}

	case evSpeechStopped:
		// Progress is driven by the final transcript, not the speech edge.

	case evFinalTranscript:
		if st := s.State(); st != StateListening && st != StateIdle {
			s.log.Debug("final transcript ignored", "session_id", s.id, "state", st.String(), "source", ev.source.String())
			return
		}
		s.setState(ctx, StateProcessing)
		s.wg.Add(1)
		go s.generateResponse(ctx, ev.text)

	case evResponseReady:
		if s.State() != StateProcessing {
			return
		}
		s.setState(ctx, StateResponding)
		// Clear speech history so it cannot bias barge-in detection for
		// the playback that is about to start.
		s.vad.Reset()
		s.barge.Rearm()
		s.wg.Add(1)
		go s.speak(ctx, ev.text)

	case evPlaybackStarted:
		if s.State() == StateResponding {
			s.setState(ctx, StateSpeaking)
		}

	case evBargeIn:
		if st := s.State(); st == StateSpeaking || st == StateResponding {
			s.setState(ctx, StateBargeIn)
		}

	case evPlaybackDone:
		switch {
		case ev.interrupted:
			// Interruption complete, buffers drained; the caller is
			// already talking.
			s.setState(ctx, StateListening)
		case ev.err != nil:
			s.log.Error("synthesis failed", "session_id", s.id, "error", ev.err)
			s.setState(ctx, StateIdle)
		default:
			s.setState(ctx, StateIdle)
		}

	case evUnhealthy:
		s.log.Error("session degraded beyond recovery", "session_id", s.id, "error", ev.err)
		s.setState(ctx, StateIdle)
		if s.onTerminal != nil {
			s.onTerminal(ev.err)
		}
		s.cancel()
	}
}

func (s *Session) generateResponse(ctx context.Context, text string) {
	defer s.wg.Done()

	var response string
	if strings.TrimSpace(text) == "" {
		s.log.Info("empty final transcript, using fallback response", "session_id", s.id)
		response = s.cfg.FallbackResponse
	} else {
		s.history.Add("user", text)
		start := time.Now()
		resp, err := s.responder.Respond(ctx, s.history.Messages())
		s.mets.ObserveResponder(ctx, time.Since(start).Seconds())

		if err != nil || strings.TrimSpace(resp) == "" {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("responder failed, using fallback response", "session_id", s.id, "error", err)
			response = s.cfg.FallbackResponse
		} else {
			response = resp
			s.history.Add("assistant", resp)
		}
	}

	s.emit(sessionEvent{kind: evResponseReady, text: response})
}

func (s *Session) speak(ctx context.Context, text string) {
	defer s.wg.Done()

	start := time.Now()
	err := s.synth.Generate(ctx, text)
	s.mets.ObserveSynthesis(ctx, time.Since(start).Seconds())

	if ctx.Err() != nil {
		return
	}
	if errors.Is(err, ErrInterrupted) {
		s.emit(sessionEvent{kind: evPlaybackDone, interrupted: true})
		return
	}
	s.emit(sessionEvent{kind: evPlaybackDone, err: err})
}

func (s *Session) setState(ctx context.Context, to State) {
	from := s.State()
	if from == to {
		return
	}
	s.state.Store(int32(to))
	s.log.Info("state transition", "session_id", s.id, "from", from.String(), "to", to.String())
	s.mets.RecordTransition(ctx, from.String(), to.String())
}

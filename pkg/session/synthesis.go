package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxwire-ai/voxwire-session/pkg/audio"
)

// SynthesisController owns the streaming connection to the synthesis backend
// and the outbound leg of a playback: resample to the telephony rate, feed
// the echo suppressor, packetize, push to the output sink. Interruption is
// an atomic flag checked before each chunk is processed and before each
// frame is sent, plus a sink drain; it never tears down the session.
type SynthesisController struct {
	tts       Synthesizer
	sink      OutputSink
	vad       *Detector
	cfg       Config
	log       Logger
	sessionID string

	interrupted atomic.Bool
	active      atomic.Bool

	genMu sync.Mutex // one Generate at a time per session

	mu          sync.Mutex
	startedAt   time.Time
	currentText string

	onStarted func()
}

// PlaybackState is a read-only view of the current playback.
type PlaybackState struct {
	Active             bool
	InterruptRequested bool
	StartedAt          time.Time
	CurrentText        string
}

func NewSynthesisController(tts Synthesizer, sink OutputSink, vad *Detector, cfg Config, log Logger, sessionID string) *SynthesisController {
	if log == nil {
		log = &NoOpLogger{}
	}
	return &SynthesisController{
		tts:       tts,
		sink:      sink,
		vad:       vad,
		cfg:       cfg,
		log:       log,
		sessionID: sessionID,
	}
}

// OnStarted registers a callback invoked once a Generate run has acquired
// playback and is about to stream. Call before the first Generate.
func (s *SynthesisController) OnStarted(fn func()) { s.onStarted = fn }

// Generate streams synthesis for text to the output sink. It returns
// ErrInterrupted if barge-in stopped the playback, nil on normal completion.
// Starting a new Generate implicitly interrupts the previous one and waits
// for it to fully stop, so two playbacks never race on the sink.
func (s *SynthesisController) Generate(ctx context.Context, text string) error {
	s.Interrupt()
	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.interrupted.Store(false)
	s.active.Store(true)
	s.mu.Lock()
	s.startedAt = time.Now()
	s.currentText = text
	s.mu.Unlock()

	defer func() {
		s.active.Store(false)
		s.vad.MarkPlaybackEnd()
	}()

	if s.onStarted != nil {
		s.onStarted()
	}
	s.log.Info("playback started", "session_id", s.sessionID, "length", len(text))

	var buf []int16

	req := SynthesisRequest{Text: text, Voice: s.cfg.Voice, SampleRate: s.cfg.SynthesisRate}
	err := s.tts.StreamSynthesize(ctx, req, func(chunk []int16) error {
		if s.interrupted.Load() {
			return ErrInterrupted
		}

		s.vad.RegisterPlayedAudio(audio.Resample(chunk, s.cfg.SynthesisRate, s.cfg.RecognitionRate))

		buf = append(buf, audio.Resample(chunk, s.cfg.SynthesisRate, s.cfg.TelephonyRate)...)
		frames, rem := audio.Packetize(buf, s.cfg.TelephonyRate, s.cfg.FrameMs)
		for _, frame := range frames {
			if s.interrupted.Load() {
				return ErrInterrupted
			}
			if err := s.sink.Push(audio.EncodeMuLaw(frame)); err != nil {
				return err
			}
		}
		buf = rem
		return nil
	})

	if s.interrupted.Load() || errors.Is(err, ErrInterrupted) {
		dropped := s.sink.Drain()
		s.log.Info("playback interrupted", "session_id", s.sessionID, "frames_dropped", dropped)
		return ErrInterrupted
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	// Flush the trailing partial frame padded with silence.
	if len(buf) > 0 {
		frame := audio.PadFrame(buf, s.cfg.TelephonyRate, s.cfg.FrameMs)
		if err := s.sink.Push(audio.EncodeMuLaw(frame)); err != nil && !errors.Is(err, ErrSinkClosed) {
			return fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
		}
	}

	s.log.Info("playback completed", "session_id", s.sessionID)
	return nil
}

// Interrupt stops the active playback: no further chunks are pulled from the
// backend and buffered outbound frames are discarded. Safe to call from any
// goroutine, idempotent, and a no-op when nothing is playing.
func (s *SynthesisController) Interrupt() {
	if !s.active.Load() {
		return
	}
	if s.interrupted.CompareAndSwap(false, true) {
		s.log.Info("interrupt requested", "session_id", s.sessionID)
		if err := s.tts.Abort(); err != nil {
			s.log.Warn("synthesizer abort failed", "session_id", s.sessionID, "error", err)
		}
		s.sink.Drain()
	}
}

// Playing reports whether a playback is currently active.
func (s *SynthesisController) Playing() bool {
	return s.active.Load()
}

// State returns a copy of the playback state.
func (s *SynthesisController) State() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PlaybackState{
		Active:             s.active.Load(),
		InterruptRequested: s.interrupted.Load(),
		StartedAt:          s.startedAt,
		CurrentText:        s.currentText,
	}
}

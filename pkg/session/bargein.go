package session

import (
	"sync"
	"time"
)

// BargeInController watches speech decisions during active playback and
// decides when the caller is genuinely talking over the bot. A sustained-
// speech timer guards against coughs and short noises: the first speech
// start arms it, and only once sustained speech crosses the configured
// threshold does the controller interrupt synthesis, exactly once per
// playback.
type BargeInController struct {
	synth     *SynthesisController
	cfg       Config
	log       Logger
	sessionID string

	onBargeIn func()

	mu          sync.Mutex
	speechSince time.Time
	fired       bool
}

func NewBargeInController(synth *SynthesisController, cfg Config, log Logger, sessionID string) *BargeInController {
	if log == nil {
		log = &NoOpLogger{}
	}
	return &BargeInController{
		synth:     synth,
		cfg:       cfg,
		log:       log,
		sessionID: sessionID,
	}
}

// OnBargeIn registers the callback invoked when an interrupt fires. Call
// before playback starts.
func (b *BargeInController) OnBargeIn(fn func()) { b.onBargeIn = fn }

// Observe consumes one speech decision. Decisions arriving while nothing is
// playing only reset the timer.
func (b *BargeInController) Observe(d SpeechDecision) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.synth.Playing() {
		b.speechSince = time.Time{}
		return
	}
	if b.fired {
		return
	}

	switch d.Transition {
	case TransitionStarted:
		if b.speechSince.IsZero() {
			b.speechSince = d.At
			b.log.Debug("barge-in timer armed", "session_id", b.sessionID)
		}
	case TransitionContinuing:
		if b.speechSince.IsZero() {
			// Playback began mid-utterance; start counting from here.
			b.speechSince = d.At
			return
		}
		if sustained := d.At.Sub(b.speechSince); sustained >= b.cfg.BargeInThreshold {
			b.fired = true
			b.log.Info("barge-in triggered", "session_id", b.sessionID, "sustained", sustained)
			b.synth.Interrupt()
			if b.onBargeIn != nil {
				b.onBargeIn()
			}
		}
	case TransitionStopped:
		if !b.speechSince.IsZero() {
			b.log.Debug("barge-in timer reset before threshold", "session_id", b.sessionID)
			b.speechSince = time.Time{}
		}
	}
}

// Rearm resets the controller for a new playback.
func (b *BargeInController) Rearm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speechSince = time.Time{}
	b.fired = false
}

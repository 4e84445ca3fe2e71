package session

import (
	"context"
	"time"
)

// TimeoutMonitor periodically evaluates the three finalization races against
// the detector and coordinator state while the session is listening or
// processing: speech timeout, silence timeout, and stale-partial timeout.
// Whichever condition is met first forces finalization through the same
// path the backend-final uses; firing one closes the utterance and makes the
// others unreachable.
type TimeoutMonitor struct {
	cfg       Config
	log       Logger
	sessionID string

	vad         *Detector
	transcripts *TranscriptCoordinator
	state       func() State
	onFired     func(src FinalSource)

	lastSeenPartial string
}

func NewTimeoutMonitor(cfg Config, log Logger, sessionID string, vad *Detector, tc *TranscriptCoordinator, state func() State) *TimeoutMonitor {
	if log == nil {
		log = &NoOpLogger{}
	}
	return &TimeoutMonitor{
		cfg:         cfg,
		log:         log,
		sessionID:   sessionID,
		vad:         vad,
		transcripts: tc,
		state:       state,
	}
}

// OnFired registers an observer for forced finalizations. Call before Run.
func (m *TimeoutMonitor) OnFired(fn func(src FinalSource)) { m.onFired = fn }

// Run loops until the context is cancelled.
func (m *TimeoutMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TimeoutInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Check(now)
		}
	}
}

// Check evaluates the races once. Exposed for tests; Run calls it per tick.
func (m *TimeoutMonitor) Check(now time.Time) {
	st := m.state()
	if st != StateListening && st != StateProcessing {
		m.lastSeenPartial = ""
		return
	}

	ts := m.transcripts.Snapshot()
	if ts.FinalPending {
		return
	}
	vs := m.vad.Snapshot()

	switch {
	case vs.SpeechActive && !vs.SpeechStart.IsZero() && now.Sub(vs.SpeechStart) > m.cfg.SpeechTimeout:
		m.fire(FinalFromSpeechTimeout, now.Sub(vs.SpeechStart))

	case vs.UtteranceOpen && !vs.SpeechActive && !vs.LastActivity.IsZero() && now.Sub(vs.LastActivity) > m.cfg.SilenceTimeout:
		m.fire(FinalFromSilenceTimeout, now.Sub(vs.LastActivity))

	case ts.LastPartial != "" && ts.LastPartial == m.lastSeenPartial &&
		!ts.LastPartialAt.IsZero() && now.Sub(ts.LastPartialAt) > m.cfg.StalePartialTimeout:
		m.fire(FinalFromStalePartial, now.Sub(ts.LastPartialAt))
	}

	m.lastSeenPartial = m.transcripts.Snapshot().LastPartial
}

func (m *TimeoutMonitor) fire(src FinalSource, elapsed time.Duration) {
	m.log.Warn("forcing finalization",
		"session_id", m.sessionID,
		"source", src.String(),
		"elapsed", elapsed,
	)
	m.vad.CloseUtterance()
	m.transcripts.ForceFinalize(src)
	m.lastSeenPartial = ""
	if m.onFired != nil {
		m.onFired(src)
	}
}

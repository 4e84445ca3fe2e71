package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

// startBlockedPlayback runs a Generate that parks inside the backend so the
// controller observes an active playback. Returns the synthesizer mock and a
// channel carrying Generate's result.
func startBlockedPlayback(t *testing.T, ctrl *SynthesisController) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- ctrl.Generate(context.Background(), "a very long answer") }()
	waitPlaying(t, ctrl)
	return done
}

func decisionAt(tr Transition, at time.Time) SpeechDecision {
	return SpeechDecision{Speech: true, Active: true, Transition: tr, At: at}
}

func TestBargeInFiresAfterSustainedSpeech(t *testing.T) {
	cfg := testConfig()
	tts := &mockSynthesizer{block: make(chan struct{})}
	ctrl := newTestSynthController(cfg, tts, &mockSink{})
	b := NewBargeInController(ctrl, cfg, &NoOpLogger{}, "test-session")

	fired := 0
	b.OnBargeIn(func() { fired++ })

	done := startBlockedPlayback(t, ctrl)

	t0 := time.Now()
	b.Observe(decisionAt(TransitionStarted, t0))
	b.Observe(decisionAt(TransitionContinuing, t0.Add(cfg.BargeInThreshold/2)))
	if fired != 0 {
		t.Fatal("fired below the sustained-speech threshold")
	}

	b.Observe(decisionAt(TransitionContinuing, t0.Add(cfg.BargeInThreshold)))
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrInterrupted) {
			t.Fatalf("playback ended with %v, want ErrInterrupted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("barge-in did not interrupt playback")
	}

	// Further speech during the same playback must not re-fire.
	b.Observe(decisionAt(TransitionContinuing, t0.Add(2*cfg.BargeInThreshold)))
	if fired != 1 {
		t.Fatalf("re-fired within one playback: %d", fired)
	}
}

func TestBargeInShortBurstResetsTimer(t *testing.T) {
	cfg := testConfig()
	tts := &mockSynthesizer{block: make(chan struct{})}
	ctrl := newTestSynthController(cfg, tts, &mockSink{})
	b := NewBargeInController(ctrl, cfg, &NoOpLogger{}, "test-session")

	fired := 0
	b.OnBargeIn(func() { fired++ })

	done := startBlockedPlayback(t, ctrl)

	// A cough: start, brief continuation, stop before the threshold.
	t0 := time.Now()
	b.Observe(decisionAt(TransitionStarted, t0))
	b.Observe(decisionAt(TransitionContinuing, t0.Add(200*time.Millisecond)))
	b.Observe(SpeechDecision{Transition: TransitionStopped, At: t0.Add(400 * time.Millisecond)})

	// Speech resumes; the old start time must not count toward the new run.
	t1 := t0.Add(time.Second)
	b.Observe(decisionAt(TransitionStarted, t1))
	b.Observe(decisionAt(TransitionContinuing, t1.Add(cfg.BargeInThreshold-time.Millisecond)))
	if fired != 0 {
		t.Fatal("stale timer carried across a reset")
	}

	b.Observe(decisionAt(TransitionContinuing, t1.Add(cfg.BargeInThreshold)))
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}

	ctrl.Interrupt()
	<-done
}

func TestBargeInMidUtterancePlayback(t *testing.T) {
	cfg := testConfig()
	tts := &mockSynthesizer{block: make(chan struct{})}
	ctrl := newTestSynthController(cfg, tts, &mockSink{})
	b := NewBargeInController(ctrl, cfg, &NoOpLogger{}, "test-session")

	fired := 0
	b.OnBargeIn(func() { fired++ })

	done := startBlockedPlayback(t, ctrl)

	// No start edge: playback began while the caller was already talking.
	// The first continuing decision seeds the timer instead of firing.
	t0 := time.Now()
	b.Observe(decisionAt(TransitionContinuing, t0))
	if fired != 0 {
		t.Fatal("fired on the seeding decision")
	}
	b.Observe(decisionAt(TransitionContinuing, t0.Add(cfg.BargeInThreshold)))
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}

	ctrl.Interrupt()
	<-done
}

func TestBargeInIgnoredWhenNotPlaying(t *testing.T) {
	cfg := testConfig()
	ctrl := newTestSynthController(cfg, &mockSynthesizer{}, &mockSink{})
	b := NewBargeInController(ctrl, cfg, &NoOpLogger{}, "test-session")

	fired := 0
	b.OnBargeIn(func() { fired++ })

	t0 := time.Now()
	b.Observe(decisionAt(TransitionStarted, t0))
	b.Observe(decisionAt(TransitionContinuing, t0.Add(2*cfg.BargeInThreshold)))
	if fired != 0 {
		t.Fatal("fired with no active playback")
	}
}

func TestBargeInRearm(t *testing.T) {
	cfg := testConfig()
	tts := &mockSynthesizer{block: make(chan struct{})}
	ctrl := newTestSynthController(cfg, tts, &mockSink{})
	b := NewBargeInController(ctrl, cfg, &NoOpLogger{}, "test-session")

	fired := 0
	b.OnBargeIn(func() { fired++ })

	done := startBlockedPlayback(t, ctrl)
	t0 := time.Now()
	b.Observe(decisionAt(TransitionStarted, t0))
	b.Observe(decisionAt(TransitionContinuing, t0.Add(cfg.BargeInThreshold)))
	if fired != 1 {
		t.Fatalf("setup: fired=%d", fired)
	}
	<-done

	// Next playback starts after Rearm; the controller fires again.
	tts2 := &mockSynthesizer{block: make(chan struct{})}
	ctrl2 := newTestSynthController(cfg, tts2, &mockSink{})
	b.synth = ctrl2
	b.Rearm()

	done2 := startBlockedPlayback(t, ctrl2)
	t1 := time.Now()
	b.Observe(decisionAt(TransitionStarted, t1))
	b.Observe(decisionAt(TransitionContinuing, t1.Add(cfg.BargeInThreshold)))
	if fired != 2 {
		t.Fatalf("fired %d times after rearm, want 2", fired)
	}
	ctrl2.Interrupt()
	<-done2
}

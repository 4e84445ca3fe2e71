package session

import (
	"testing"
	"time"
)

func TestDetectorDebounceTransitions(t *testing.T) {
	cfg := testConfig()
	d := NewDetector(cfg, &NoOpLogger{}, nil)
	win := d.windowSize

	// Two speech windows are not enough to enter speech.
	for i := 0; i < cfg.SpeechDebounce-1; i++ {
		dec := d.ProcessWindow(loudWindow(win))
		if dec.Active {
			t.Fatalf("window %d: active before debounce threshold", i)
		}
		if dec.Transition == TransitionStarted {
			t.Fatalf("window %d: premature start transition", i)
		}
	}

	// The third flips it.
	dec := d.ProcessWindow(loudWindow(win))
	if !dec.Active || dec.Transition != TransitionStarted {
		t.Fatalf("expected start transition, got active=%v transition=%v", dec.Active, dec.Transition)
	}

	// One silence window does not end speech.
	dec = d.ProcessWindow(make([]int16, win))
	if !dec.Active {
		t.Fatal("single silence window ended speech")
	}

	// The second does.
	dec = d.ProcessWindow(make([]int16, win))
	if dec.Active || dec.Transition != TransitionStopped {
		t.Fatalf("expected stop transition, got active=%v transition=%v", dec.Active, dec.Transition)
	}

	snap := d.Snapshot()
	if !snap.UtteranceOpen {
		t.Fatal("utterance should stay open after speech stops")
	}
}

func TestDetectorBuffersPartialWindows(t *testing.T) {
	cfg := testConfig()
	d := NewDetector(cfg, &NoOpLogger{}, nil)
	half := d.windowSize / 2

	dec := d.ProcessWindow(loudWindow(half))
	if dec.Speech || dec.Energy != 0 {
		t.Fatalf("partial window should not classify, got %+v", dec)
	}
	dec = d.ProcessWindow(loudWindow(half))
	if !dec.Speech {
		t.Fatal("completed window should classify as speech")
	}
}

func TestDetectorEchoDiscard(t *testing.T) {
	cfg := testConfig()
	echo := NewEchoSuppressor(cfg.RecognitionRate, cfg.EchoBufferWindow, cfg.EchoCorrelationThreshold, cfg.EchoCooldown)
	d := NewDetector(cfg, &NoOpLogger{}, echo)
	win := d.windowSize

	played := loudWindow(win)
	d.RegisterPlayedAudio(played)

	// The same audio coming back from the line must be discarded as echo
	// without advancing the debounce counters, no matter how many times.
	for i := 0; i < cfg.SpeechDebounce+2; i++ {
		dec := d.ProcessWindow(played)
		if !dec.Echo {
			t.Fatalf("window %d: playback echo not flagged", i)
		}
		if dec.Active || dec.Transition != TransitionNone {
			t.Fatalf("window %d: echo moved the debounce state", i)
		}
	}
}

func TestDetectorCalibrationClampsToFloor(t *testing.T) {
	cfg := testConfig()
	cfg.CalibrationInterval = 0
	d := NewDetector(cfg, &NoOpLogger{}, nil)
	win := d.windowSize

	// Pure silence drives the noise floor to zero; the threshold must clamp
	// at the configured minimum instead of following it down.
	for i := 0; i < 5; i++ {
		d.ProcessWindow(make([]int16, win))
	}
	snap := d.Snapshot()
	if snap.Threshold != cfg.MinVADThreshold {
		t.Fatalf("threshold = %v, want clamp at %v", snap.Threshold, cfg.MinVADThreshold)
	}
}

func TestDetectorResetKeepsCalibration(t *testing.T) {
	cfg := testConfig()
	cfg.CalibrationInterval = 0
	d := NewDetector(cfg, &NoOpLogger{}, nil)
	win := d.windowSize

	for i := 0; i < 3; i++ {
		d.ProcessWindow(make([]int16, win))
	}
	before := d.Snapshot().Threshold

	for i := 0; i < cfg.SpeechDebounce; i++ {
		d.ProcessWindow(loudWindow(win))
	}
	d.Reset()

	snap := d.Snapshot()
	if snap.SpeechActive || snap.UtteranceOpen || !snap.SpeechStart.IsZero() {
		t.Fatalf("reset left speech state behind: %+v", snap)
	}
	if snap.Threshold != before {
		t.Fatalf("reset changed calibrated threshold: %v != %v", snap.Threshold, before)
	}
}

func TestDetectorCloseUtterance(t *testing.T) {
	cfg := testConfig()
	d := NewDetector(cfg, &NoOpLogger{}, nil)
	win := d.windowSize

	for i := 0; i < cfg.SpeechDebounce; i++ {
		d.ProcessWindow(loudWindow(win))
	}
	if !d.Snapshot().SpeechActive {
		t.Fatal("setup: speech not active")
	}

	d.CloseUtterance()
	snap := d.Snapshot()
	if snap.SpeechActive || snap.UtteranceOpen || !snap.LastActivity.IsZero() {
		t.Fatalf("close utterance left timing state behind: %+v", snap)
	}
}

func TestRMSEnergy(t *testing.T) {
	if e := rmsEnergy(nil); e != 0 {
		t.Fatalf("empty chunk energy = %v", e)
	}
	if e := rmsEnergy(make([]int16, 100)); e != 0 {
		t.Fatalf("silence energy = %v", e)
	}
	full := make([]int16, 100)
	for i := range full {
		full[i] = 16384
	}
	if e := rmsEnergy(full); e < 0.49 || e > 0.51 {
		t.Fatalf("half-scale energy = %v, want ~0.5", e)
	}
}

func TestDetectorSnapshotTiming(t *testing.T) {
	cfg := testConfig()
	d := NewDetector(cfg, &NoOpLogger{}, nil)
	win := d.windowSize

	start := time.Now()
	for i := 0; i < cfg.SpeechDebounce; i++ {
		d.ProcessWindow(loudWindow(win))
	}
	snap := d.Snapshot()
	if snap.SpeechStart.Before(start) {
		t.Fatal("speech start predates the audio")
	}
	if snap.LastActivity.Before(snap.SpeechStart) {
		t.Fatal("last activity predates speech start")
	}
}

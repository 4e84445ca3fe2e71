package session

import (
	"math"
	"sync"
	"time"

	"github.com/voxwire-ai/voxwire-session/pkg/audio"
)

// Detector classifies fixed-size PCM windows as speech or silence. Incoming
// audio is buffered until one calibration window is accumulated, then the RMS
// classifier runs once per buffered chunk and debounce counters decide the
// speech-active transitions. While synthesis is playing, a chunk that the
// primary classifier calls speech must also pass the echo suppressor before
// it can move the counters.
type Detector struct {
	cfg  Config
	log  Logger
	echo *EchoSuppressor

	mu         sync.Mutex
	window     []int16
	windowSize int

	speechActive  bool
	consecSpeech  int
	consecSilence int
	speechStart   time.Time
	lastActivity  time.Time
	utteranceOpen bool

	threshold       float64
	noiseFloor      float64
	noiseSeeded     bool
	lastCalibration time.Time
}

// VADSnapshot is a read-only view of speech-timing state for the
// TimeoutMonitor. It is a copy; holding it blocks nothing.
type VADSnapshot struct {
	SpeechActive  bool
	UtteranceOpen bool
	SpeechStart   time.Time
	LastActivity  time.Time
	Threshold     float64
}

func NewDetector(cfg Config, log Logger, echo *EchoSuppressor) *Detector {
	if log == nil {
		log = &NoOpLogger{}
	}
	return &Detector{
		cfg:        cfg,
		log:        log,
		echo:       echo,
		windowSize: audio.FrameSamples(cfg.RecognitionRate, int(cfg.VADWindow.Milliseconds())),
		threshold:  cfg.VADThreshold,
	}
}

// ProcessWindow feeds one frame of recognition-rate PCM into the detector.
// Calls that complete a calibration window return a decision carrying the
// chunk classification and any debounced transition; intermediate calls
// report only the current debounced state.
func (d *Detector) ProcessWindow(pcm []int16) SpeechDecision {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	d.window = append(d.window, pcm...)
	if len(d.window) < d.windowSize {
		return SpeechDecision{Active: d.speechActive, At: now}
	}

	chunk := d.window
	d.window = nil

	rms := rmsEnergy(chunk)
	speech := rms > d.threshold

	if speech && d.echo != nil && d.echo.Active() && d.echo.IsEcho(chunk) {
		// The secondary classifier attributes this window to playback
		// echo; discard it without touching the debounce counters.
		d.log.Debug("vad window discarded as echo", "energy", rms)
		return SpeechDecision{Speech: true, Echo: true, Active: d.speechActive, Energy: rms, At: now}
	}

	transition := TransitionNone
	if speech {
		d.consecSpeech++
		d.consecSilence = 0
		d.lastActivity = now
		if !d.speechActive {
			if d.consecSpeech >= d.cfg.SpeechDebounce {
				d.speechActive = true
				d.speechStart = now
				d.utteranceOpen = true
				transition = TransitionStarted
				d.log.Debug("speech started", "energy", rms, "threshold", d.threshold)
			}
		} else {
			transition = TransitionContinuing
		}
	} else {
		d.consecSpeech = 0
		d.consecSilence++
		d.trackNoise(rms)
		if d.speechActive && d.consecSilence >= d.cfg.SilenceDebounce {
			d.speechActive = false
			transition = TransitionStopped
			d.log.Debug("speech stopped", "energy", rms)
		}
	}

	d.maybeCalibrate(now)

	return SpeechDecision{
		Speech:     speech,
		Active:     d.speechActive,
		Transition: transition,
		Energy:     rms,
		At:         now,
	}
}

// RegisterPlayedAudio records synthesis audio that was just sent to the
// output sink, enabling the echo gate. pcm must be at the recognition rate.
func (d *Detector) RegisterPlayedAudio(pcm []int16) {
	if d.echo != nil {
		d.echo.Record(pcm)
	}
}

// MarkPlaybackEnd starts the echo-suppression cooldown.
func (d *Detector) MarkPlaybackEnd() {
	if d.echo != nil {
		d.echo.MarkPlaybackEnd()
	}
}

// Snapshot returns a copy of the speech-timing state.
func (d *Detector) Snapshot() VADSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return VADSnapshot{
		SpeechActive:  d.speechActive,
		UtteranceOpen: d.utteranceOpen,
		SpeechStart:   d.speechStart,
		LastActivity:  d.lastActivity,
		Threshold:     d.threshold,
	}
}

// Reset clears speech-timing state and counters before playback begins so
// pre-existing speech history cannot bias barge-in detection. Calibration
// (threshold, noise floor) survives.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = nil
	d.speechActive = false
	d.consecSpeech = 0
	d.consecSilence = 0
	d.speechStart = time.Time{}
	d.lastActivity = time.Time{}
	d.utteranceOpen = false
}

// CloseUtterance clears speech-timing fields after a finalization fired,
// making the remaining timeout races unreachable for this utterance.
func (d *Detector) CloseUtterance() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speechActive = false
	d.consecSpeech = 0
	d.consecSilence = 0
	d.speechStart = time.Time{}
	d.lastActivity = time.Time{}
	d.utteranceOpen = false
}

func (d *Detector) trackNoise(rms float64) {
	if !d.noiseSeeded {
		d.noiseFloor = rms
		d.noiseSeeded = true
		return
	}
	d.noiseFloor = 0.9*d.noiseFloor + 0.1*rms
}

func (d *Detector) maybeCalibrate(now time.Time) {
	if !d.noiseSeeded {
		return
	}
	if !d.lastCalibration.IsZero() && now.Sub(d.lastCalibration) < d.cfg.CalibrationInterval {
		return
	}

	target := d.noiseFloor * d.cfg.NoiseFloorFactor
	if target < d.cfg.MinVADThreshold {
		target = d.cfg.MinVADThreshold
	}
	if target > d.cfg.MaxVADThreshold {
		target = d.cfg.MaxVADThreshold
	}

	delta := target - d.threshold
	if math.Abs(delta) > 1e-4 {
		direction := "up"
		if delta < 0 {
			direction = "down"
		}
		d.log.Info("vad threshold calibrated",
			"direction", direction,
			"delta", math.Abs(delta),
			"threshold", target,
			"noise_floor", d.noiseFloor,
		)
		d.threshold = target
	}
	d.lastCalibration = now
}

func rmsEnergy(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, s := range chunk {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(chunk)))
}

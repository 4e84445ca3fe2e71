package session

import (
	"math"
	"sync"
	"time"
)

// EchoSuppressor is the secondary classifier consulted while synthesis audio
// is being played. It keeps a bounded ring of recently played PCM and checks
// incoming microphone windows against it with normalized cross-correlation,
// falling back to an energy-envelope correlation that survives the phase
// scrambling of sibilants. It deliberately shares no logic with the primary
// energy classifier so their false negatives stay uncorrelated.
type EchoSuppressor struct {
	mu         sync.Mutex
	played     []int16 // rolling buffer of played audio, recognition rate
	maxSamples int
	threshold  float64 // correlation above this is attributed to echo
	cooldown   time.Duration

	playing      bool
	playbackEnds time.Time
}

// NewEchoSuppressor creates a suppressor retaining window seconds of played
// audio at the given sample rate. threshold is the disagreement level with
// the primary classifier above which a window is discarded as echo.
func NewEchoSuppressor(sampleRate int, window time.Duration, threshold float64, cooldown time.Duration) *EchoSuppressor {
	max := int(float64(sampleRate) * window.Seconds())
	if max <= 0 {
		max = sampleRate * 2
	}
	return &EchoSuppressor{
		maxSamples: max,
		threshold:  threshold,
		cooldown:   cooldown,
	}
}

// Record appends audio that was just sent toward the caller and marks
// synthesis as active.
func (es *EchoSuppressor) Record(pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	es.playing = true
	es.played = append(es.played, pcm...)
	if len(es.played) > es.maxSamples {
		es.played = es.played[len(es.played)-es.maxSamples:]
	}
}

// MarkPlaybackEnd starts the cooldown tail. The suppressor stays active for
// the cooldown period to cover playback-to-microphone latency.
func (es *EchoSuppressor) MarkPlaybackEnd() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.playing = false
	es.playbackEnds = time.Now()
}

// Active reports whether incoming windows should be checked against the
// played-audio buffer.
func (es *EchoSuppressor) Active() bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.activeLocked()
}

func (es *EchoSuppressor) activeLocked() bool {
	if es.playing {
		return true
	}
	if es.playbackEnds.IsZero() {
		return false
	}
	return time.Since(es.playbackEnds) < es.cooldown
}

// IsEcho reports whether the input window correlates strongly enough with
// recently played audio to be attributed to echo rather than caller speech.
func (es *EchoSuppressor) IsEcho(input []int16) bool {
	if len(input) == 0 {
		return false
	}

	es.mu.Lock()
	if !es.activeLocked() || len(es.played) == 0 {
		es.mu.Unlock()
		return false
	}
	ref := make([]int16, len(es.played))
	copy(ref, es.played)
	threshold := es.threshold
	es.mu.Unlock()

	in := normalize(input)
	refSamples := normalize(ref)

	if maxCorrelation(in, refSamples) > threshold {
		return true
	}
	// Envelope correlation runs slightly hot, so require a bit more.
	return maxEnvelopeCorrelation(in, refSamples, 8) > threshold+0.05
}

// Reset drops the played-audio history, e.g. after an interrupt drained the
// outbound queue and the retained tail was never actually played.
func (es *EchoSuppressor) Reset() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.played = es.played[:0]
	es.playing = false
	es.playbackEnds = time.Time{}
}

func normalize(pcm []int16) []float64 {
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / 32768.0
	}
	return out
}

func energy(samples []float64) float64 {
	var e float64
	for _, s := range samples {
		e += s * s
	}
	return e
}

// maxCorrelation slides the input over the reference with a bounded stride
// and returns the best normalized cross-correlation in [0, 1]. The stride
// keeps cost acceptable on the audio path.
func maxCorrelation(input, ref []float64) float64 {
	compareLen := len(input)
	if compareLen > len(ref) {
		compareLen = len(ref)
	}
	if compareLen == 0 {
		return 0
	}

	in := input[:compareLen]
	inEnergy := energy(in)
	if inEnergy == 0 {
		return 0
	}

	stride := compareLen / 4
	if stride < 8 {
		stride = 8
	}

	maxCorr := 0.0
	for pos := 0; pos+compareLen <= len(ref); pos += stride {
		seg := ref[pos : pos+compareLen]
		segEnergy := energy(seg)
		if segEnergy == 0 {
			continue
		}
		dot := 0.0
		for i := 0; i < compareLen; i++ {
			dot += in[i] * seg[i]
		}
		corr := dot / math.Sqrt(inEnergy*segEnergy)
		if corr > maxCorr {
			maxCorr = corr
			if maxCorr >= 0.999 {
				break
			}
		}
	}

	if maxCorr < 0 {
		return 0
	}
	if maxCorr > 1 {
		return 1
	}
	return maxCorr
}

// maxEnvelopeCorrelation compares downsampled absolute-value envelopes. High
// frequencies arrive phase-shifted through the room and the telephony codec;
// their envelopes still line up.
func maxEnvelopeCorrelation(input, ref []float64, decimation int) float64 {
	inEnv := envelope(input, decimation)
	refEnv := envelope(ref, decimation)

	compareLen := len(inEnv)
	if compareLen > len(refEnv) {
		compareLen = len(refEnv)
	}
	if compareLen == 0 {
		return 0
	}

	inMean := 0.0
	for i := 0; i < compareLen; i++ {
		inMean += inEnv[i]
	}
	inMean /= float64(compareLen)

	inVar := 0.0
	for i := 0; i < compareLen; i++ {
		inEnv[i] -= inMean
		inVar += inEnv[i] * inEnv[i]
	}
	if inVar <= 0 {
		return 0
	}

	stride := compareLen / 4
	if stride < 2 {
		stride = 2
	}

	maxCorr := 0.0
	for pos := 0; pos+compareLen <= len(refEnv); pos += stride {
		refMean := 0.0
		for i := 0; i < compareLen; i++ {
			refMean += refEnv[pos+i]
		}
		refMean /= float64(compareLen)

		dot := 0.0
		refVar := 0.0
		for i := 0; i < compareLen; i++ {
			r := refEnv[pos+i] - refMean
			dot += inEnv[i] * r
			refVar += r * r
		}
		if refVar > 0 {
			corr := dot / math.Sqrt(inVar*refVar)
			if corr > maxCorr {
				maxCorr = corr
			}
		}
	}

	return maxCorr
}

func envelope(samples []float64, decimation int) []float64 {
	env := make([]float64, len(samples)/decimation)
	for i := range env {
		sum := 0.0
		for j := 0; j < decimation; j++ {
			sum += math.Abs(samples[i*decimation+j])
		}
		env[i] = sum
	}
	return env
}

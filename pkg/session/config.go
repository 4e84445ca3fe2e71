package session

import "time"

// Config holds every timeout, threshold, and rate a session needs. It is
// immutable after session construction; components read it, never write it.
type Config struct {
	// Sample rates and framing.
	TelephonyRate   int // companded telephony leg, typically 8000
	RecognitionRate int // PCM rate uploaded to the recognizer, typically 16000
	SynthesisRate   int // synthesis backend's native output rate
	FrameMs         int // telephony frame duration in milliseconds

	// Finalization races.
	SpeechTimeout       time.Duration // force-finalize while still speech-active
	SilenceTimeout      time.Duration // force-finalize after speech goes quiet with no final
	StalePartialTimeout time.Duration // promote an unchanged partial to final
	TimeoutInterval     time.Duration // TimeoutMonitor check period

	// Barge-in.
	BargeInThreshold time.Duration // sustained speech required to interrupt playback

	// VAD classification and debounce.
	VADWindow           time.Duration // classifier chunk size (calibration window)
	SpeechDebounce      int           // consecutive speech chunks to enter speech
	SilenceDebounce     int           // consecutive silence chunks to exit speech
	VADThreshold        float64       // initial RMS threshold, adapted at runtime
	MinVADThreshold     float64
	MaxVADThreshold     float64
	NoiseFloorFactor    float64       // calibrated threshold = noise floor * factor
	CalibrationInterval time.Duration // how often the threshold adapts

	// Echo suppression.
	EchoCorrelationThreshold float64       // secondary classifier disagreement threshold
	EchoCooldown             time.Duration // suppression tail after playback ends
	EchoBufferWindow         time.Duration // how much played audio to retain

	// Recognizer connection.
	PreRoll              time.Duration // lead-in audio flushed on speech start
	SendQueueSize        int           // bounded upload queue, drop-oldest on overflow
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration

	// Response generation.
	MaxContextMessages int
	Voice              string
	FallbackResponse   string
}

func DefaultConfig() Config {
	return Config{
		TelephonyRate:   8000,
		RecognitionRate: 16000,
		SynthesisRate:   22050,
		FrameMs:         20,

		SpeechTimeout:       10 * time.Second,
		SilenceTimeout:      3 * time.Second,
		StalePartialTimeout: 2500 * time.Millisecond,
		TimeoutInterval:     250 * time.Millisecond,

		BargeInThreshold: 1500 * time.Millisecond,

		VADWindow:           600 * time.Millisecond,
		SpeechDebounce:      3,
		SilenceDebounce:     2,
		VADThreshold:        0.02,
		MinVADThreshold:     0.008,
		MaxVADThreshold:     0.15,
		NoiseFloorFactor:    2.5,
		CalibrationInterval: 5 * time.Second,

		EchoCorrelationThreshold: 0.55,
		EchoCooldown:             300 * time.Millisecond,
		EchoBufferWindow:         2 * time.Second,

		PreRoll:              500 * time.Millisecond,
		SendQueueSize:        64,
		ReconnectMaxAttempts: 5,
		ReconnectBaseDelay:   250 * time.Millisecond,

		MaxContextMessages: 20,
		Voice:              "F1",
		FallbackResponse:   "I'm sorry, I didn't catch that. Could you say it again?",
	}
}

// Package session implements the per-call speech session engine: voice
// activity detection with adaptive calibration and echo suppression,
// transcript lifecycle with timeout-driven finalization, streaming synthesis
// playback with barge-in interruption, and the state machine that ties them
// together. One Session per phone call, many sessions concurrently.
package session

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// RecognitionResult is one update from the recognition backend. Exactly one
// of Partial or Text is normally set; a result with neither is malformed and
// gets skipped by the coordinator.
type RecognitionResult struct {
	Partial string `json:"partial,omitempty"`
	Text    string `json:"text,omitempty"`
	Words   []Word `json:"words,omitempty"`
}

// Word is optional word-level detail attached to a final result.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// RecognizerStream is one streaming connection to the recognition backend.
type RecognizerStream interface {
	// Send uploads one frame of 16-bit PCM at the configured recognition rate.
	Send(ctx context.Context, pcm []int16) error

	// EndUtterance signals the backend that the current utterance is over.
	EndUtterance(ctx context.Context) error

	// Recv blocks for the next recognition update. It returns
	// ErrMalformedMessage for messages that decode but carry no usable
	// fields; callers should log and continue.
	Recv(ctx context.Context) (RecognitionResult, error)

	Close() error
}

// Recognizer opens streaming connections to the recognition backend.
type Recognizer interface {
	Open(ctx context.Context) (RecognizerStream, error)
	Name() string
}

// SynthesisRequest describes one streaming synthesis run.
type SynthesisRequest struct {
	Text       string
	Voice      string
	SampleRate int
}

// Synthesizer streams synthesized PCM chunks at the requested sample rate.
type Synthesizer interface {
	// StreamSynthesize invokes onChunk for each received audio chunk until
	// the stream completes or onChunk returns an error.
	StreamSynthesize(ctx context.Context, req SynthesisRequest, onChunk func(pcm []int16) error) error

	// Abort forces any in-progress synthesis to stop immediately.
	// Implementations should unblock StreamSynthesize as quickly as
	// possible (closing connections, cancelling streams, etc.).
	Abort() error

	Name() string
}

// Responder produces response text from the conversation so far. It is an
// opaque collaborator; failures yield the configured fallback response.
type Responder interface {
	Respond(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// Message is one turn of conversation context passed to the Responder.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OutputSink is the call's outbound audio queue. Push enqueues one companded
// telephony frame; Drain discards everything not yet pulled by the telephony
// layer and reports how many frames were dropped.
type OutputSink interface {
	Push(frame []byte) error
	Drain() int
}

// State is the session's position in the call state machine. Only the
// session run loop mutates it.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateResponding
	StateSpeaking
	StateBargeIn
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateResponding:
		return "RESPONDING"
	case StateSpeaking:
		return "SPEAKING"
	case StateBargeIn:
		return "BARGE_IN"
	default:
		return "UNKNOWN"
	}
}

// Transition is the debounced speech edge reported by the detector.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionStarted
	TransitionContinuing
	TransitionStopped
)

func (t Transition) String() string {
	switch t {
	case TransitionStarted:
		return "STARTED"
	case TransitionContinuing:
		return "CONTINUING"
	case TransitionStopped:
		return "STOPPED"
	default:
		return "NONE"
	}
}

// SpeechDecision is the detector's verdict for one processed window: the
// instantaneous classifier output plus the debounced transition, if any.
type SpeechDecision struct {
	Speech     bool
	Active     bool
	Transition Transition
	Echo       bool
	Energy     float64
	At         time.Time
}

// FinalSource records which of the four finalization races produced a final
// transcript. Exactly one fires per utterance.
type FinalSource int

const (
	FinalFromBackend FinalSource = iota
	FinalFromSpeechTimeout
	FinalFromSilenceTimeout
	FinalFromStalePartial
)

func (s FinalSource) String() string {
	switch s {
	case FinalFromBackend:
		return "backend"
	case FinalFromSpeechTimeout:
		return "speech_timeout"
	case FinalFromSilenceTimeout:
		return "silence_timeout"
	case FinalFromStalePartial:
		return "stale_partial"
	default:
		return "unknown"
	}
}

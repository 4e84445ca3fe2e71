package session

import "errors"

// Custom error types for better error discrimination
var (
	// ErrInterrupted is the distinguished result of a synthesis run that was
	// stopped by barge-in. It is not a failure.
	ErrInterrupted = errors.New("synthesis interrupted")

	// ErrMalformedMessage is returned by recognizer streams for messages
	// that decode but carry no usable fields. Logged and skipped, never fatal.
	ErrMalformedMessage = errors.New("malformed recognition message")

	// ErrRecognizerUnavailable is returned once reconnection attempts to the
	// recognition backend are exhausted.
	ErrRecognizerUnavailable = errors.New("recognition backend unavailable")

	// ErrSynthesisFailed is returned when the synthesis backend fails.
	ErrSynthesisFailed = errors.New("text-to-speech synthesis failed")

	// ErrSessionClosed is returned when audio is pushed into a stopped session.
	ErrSessionClosed = errors.New("session closed")

	// ErrSinkClosed is returned when the outbound queue has been closed by
	// the telephony layer.
	ErrSinkClosed = errors.New("output sink closed")
)

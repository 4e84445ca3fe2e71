package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// TranscriptCoordinator owns the streaming connection to the recognition
// backend. It tracks partial and final results, reconnects with bounded
// jittered backoff, and guards finalization so that exactly one of the four
// finalization races produces the final transcript for an utterance.
type TranscriptCoordinator struct {
	rec       Recognizer
	cfg       Config
	log       Logger
	sessionID string

	onPartial   func(text string)
	onFinal     func(text string, src FinalSource)
	onUnhealthy func(err error)
	onReconnect func(attempt int)

	mu            sync.Mutex
	stream        RecognizerStream
	lastPartial   string
	lastPartialAt time.Time
	lastFinal     string
	finalPending  bool
	finalized     bool
	healthy       bool

	sendCh chan sendItem
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type sendItem struct {
	pcm []int16
	eou bool
}

// TranscriptSnapshot is a read-only view of partial state for the
// TimeoutMonitor.
type TranscriptSnapshot struct {
	LastPartial   string
	LastPartialAt time.Time
	FinalPending  bool
}

func NewTranscriptCoordinator(rec Recognizer, cfg Config, log Logger, sessionID string) *TranscriptCoordinator {
	if log == nil {
		log = &NoOpLogger{}
	}
	return &TranscriptCoordinator{
		rec:       rec,
		cfg:       cfg,
		log:       log,
		sessionID: sessionID,
		sendCh:    make(chan sendItem, cfg.SendQueueSize),
		healthy:   true,
	}
}

// OnPartial registers the partial-transcript observer. Call before Start.
func (c *TranscriptCoordinator) OnPartial(fn func(text string)) { c.onPartial = fn }

// OnFinal registers the final-transcript observer. Call before Start.
func (c *TranscriptCoordinator) OnFinal(fn func(text string, src FinalSource)) { c.onFinal = fn }

// OnUnhealthy registers the observer invoked when reconnection attempts are
// exhausted. Call before Start.
func (c *TranscriptCoordinator) OnUnhealthy(fn func(err error)) { c.onUnhealthy = fn }

// OnReconnect registers an observer for reconnection attempts. Call before
// Start.
func (c *TranscriptCoordinator) OnReconnect(fn func(attempt int)) { c.onReconnect = fn }

// Start opens the backend stream and begins the send and receive loops.
func (c *TranscriptCoordinator) Start(ctx context.Context) error {
	stream, err := c.rec.Open(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.stream = stream
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go c.sendLoop(runCtx)
	go c.receiveLoop(runCtx)
	return nil
}

// Stop tears down the connection and waits for the loops to exit.
func (c *TranscriptCoordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	stream := c.stream
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Close()
	}
	c.wg.Wait()
}

// Send enqueues one recognition-rate PCM frame for upload. It never blocks
// the audio path: on overflow the oldest queued frame is dropped with a
// warning.
func (c *TranscriptCoordinator) Send(pcm []int16) {
	c.enqueue(sendItem{pcm: pcm})
}

// EndUtterance queues the explicit end-of-utterance signal.
func (c *TranscriptCoordinator) EndUtterance() {
	c.enqueue(sendItem{eou: true})
}

func (c *TranscriptCoordinator) enqueue(item sendItem) {
	select {
	case c.sendCh <- item:
		return
	default:
	}
	select {
	case <-c.sendCh:
		c.log.Warn("recognizer upload queue full, dropping oldest frame", "session_id", c.sessionID)
	default:
	}
	select {
	case c.sendCh <- item:
	default:
	}
}

// BeginUtterance clears transcript state and re-arms the finalization guard.
// Stale text from a previous turn must never leak into a new turn's decision.
func (c *TranscriptCoordinator) BeginUtterance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPartial = ""
	c.lastPartialAt = time.Time{}
	c.lastFinal = ""
	c.finalPending = false
	c.finalized = false
}

// ForceFinalize promotes whatever partial text exists (or empty) to a final
// transcript. Used by the TimeoutMonitor; a no-op if this utterance already
// finalized.
func (c *TranscriptCoordinator) ForceFinalize(src FinalSource) {
	c.mu.Lock()
	text := c.lastPartial
	c.mu.Unlock()
	c.deliverFinal(text, src)
}

// Snapshot returns a copy of the partial-transcript state.
func (c *TranscriptCoordinator) Snapshot() TranscriptSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TranscriptSnapshot{
		LastPartial:   c.lastPartial,
		LastPartialAt: c.lastPartialAt,
		FinalPending:  c.finalPending,
	}
}

// Healthy reports whether the backend connection is usable. It flips to
// false once reconnection attempts are exhausted.
func (c *TranscriptCoordinator) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

func (c *TranscriptCoordinator) sendLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.sendCh:
			stream := c.currentStream()
			if stream == nil {
				continue
			}
			var err error
			if item.eou {
				err = stream.EndUtterance(ctx)
			} else {
				err = stream.Send(ctx, item.pcm)
			}
			if err != nil && ctx.Err() == nil {
				// The receive loop notices the same connection failure
				// and drives reconnection; just note the loss here.
				c.log.Warn("recognizer send failed", "session_id", c.sessionID, "error", err)
			}
		}
	}
}

func (c *TranscriptCoordinator) receiveLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		stream := c.currentStream()
		if stream == nil {
			return
		}

		res, err := stream.Recv(ctx)
		if errors.Is(err, ErrMalformedMessage) {
			c.log.Warn("skipping malformed recognition message", "session_id", c.sessionID)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		c.handleResult(res)
	}
}

func (c *TranscriptCoordinator) handleResult(res RecognitionResult) {
	now := time.Now()

	if res.Partial != "" {
		c.mu.Lock()
		c.lastPartial = res.Partial
		c.lastPartialAt = now
		cb := c.onPartial
		c.mu.Unlock()
		if cb != nil {
			cb(res.Partial)
		}
		return
	}

	if res.Text != "" {
		c.deliverFinal(res.Text, FinalFromBackend)
	}
}

func (c *TranscriptCoordinator) deliverFinal(text string, src FinalSource) {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return
	}
	c.finalized = true
	c.finalPending = true
	c.lastFinal = text
	c.lastPartial = ""
	c.lastPartialAt = time.Time{}
	cb := c.onFinal
	c.mu.Unlock()

	c.log.Info("final transcript ready", "session_id", c.sessionID, "source", src.String(), "length", len(text))
	if cb != nil {
		cb(text, src)
	}
}

func (c *TranscriptCoordinator) currentStream() RecognizerStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// reconnect retries the backend connection with jittered exponential backoff.
// Returns false once attempts are exhausted; the coordinator then reports
// itself unhealthy and the session degrades instead of retrying forever.
func (c *TranscriptCoordinator) reconnect(ctx context.Context) bool {
	delay := c.cfg.ReconnectBaseDelay
	for attempt := 1; attempt <= c.cfg.ReconnectMaxAttempts; attempt++ {
		if c.onReconnect != nil {
			c.onReconnect(attempt)
		}
		jitter := rand.N(c.cfg.ReconnectBaseDelay)
		c.log.Warn("recognizer connection lost, reconnecting",
			"session_id", c.sessionID,
			"attempt", attempt,
			"delay", delay+jitter,
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay + jitter):
		}

		stream, err := c.rec.Open(ctx)
		if err == nil {
			c.mu.Lock()
			c.stream = stream
			c.mu.Unlock()
			c.log.Info("recognizer reconnected", "session_id", c.sessionID, "attempt", attempt)
			return true
		}

		c.log.Warn("recognizer reconnect failed", "session_id", c.sessionID, "attempt", attempt, "error", err)
		delay *= 2
	}

	c.mu.Lock()
	c.healthy = false
	cb := c.onUnhealthy
	c.mu.Unlock()

	c.log.Error("recognizer reconnect attempts exhausted", "session_id", c.sessionID)
	if cb != nil {
		cb(ErrRecognizerUnavailable)
	}
	return false
}

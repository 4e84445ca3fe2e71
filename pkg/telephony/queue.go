// Package telephony carries the call-leg plumbing between the session engine
// and the media transport: a bounded outbound frame queue with immediate
// drain for barge-in, pulled by the transport at the telephony frame cadence.
package telephony

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push and Pull after Close.
var ErrQueueClosed = errors.New("telephony: frame queue closed")

// FrameQueue is the outbound audio buffer for one call. The session engine
// pushes companded frames as synthesis produces them; the media transport
// pulls them at wire pace. It satisfies the engine's OutputSink: Drain
// discards everything queued so an interrupt silences the line within one
// frame.
type FrameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	max    int
	closed bool

	dropped int
}

// NewFrameQueue creates a queue holding at most max frames. When full, Push
// drops the oldest queued frame; stale audio is worse than a skip.
func NewFrameQueue(max int) *FrameQueue {
	if max <= 0 {
		max = 256
	}
	q := &FrameQueue{max: max}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues one frame without blocking.
func (q *FrameQueue) Push(frame []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if len(q.frames) >= q.max {
		q.frames = q.frames[1:]
		q.dropped++
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	q.frames = append(q.frames, cp)
	q.cond.Signal()
	return nil
}

// Pull blocks until a frame is available or the queue closes.
func (q *FrameQueue) Pull() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.frames) == 0 {
		return nil, ErrQueueClosed
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, nil
}

// TryPull returns the next frame or false when the queue is empty. Transports
// that substitute comfort noise on underrun use this instead of Pull.
func (q *FrameQueue) TryPull() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}

// Drain discards all queued frames and reports how many were dropped.
func (q *FrameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	q.frames = nil
	q.dropped += n
	return n
}

// Len reports the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped reports the total frames discarded by overflow and drains.
func (q *FrameQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close wakes all blocked Pull calls. Subsequent Push and Pull calls fail
// with ErrQueueClosed once the backlog is consumed.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

package session

import "sync"

// ConversationLog is the rolling message history handed to the Responder.
// Bounded to MaxContextMessages; the oldest turns fall off first.
type ConversationLog struct {
	mu   sync.Mutex
	msgs []Message
	max  int
}

func NewConversationLog(max int) *ConversationLog {
	return &ConversationLog{max: max}
}

// Add appends one turn, evicting the oldest if the log is full.
func (l *ConversationLog) Add(role, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, Message{Role: role, Content: content})
	if l.max > 0 && len(l.msgs) > l.max {
		l.msgs = l.msgs[len(l.msgs)-l.max:]
	}
}

// Messages returns a copy of the history.
func (l *ConversationLog) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Clear empties the history.
func (l *ConversationLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
}

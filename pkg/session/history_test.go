package session

import "testing"

func TestConversationLogEvictsOldest(t *testing.T) {
	l := NewConversationLog(3)
	l.Add("system", "be brief")
	l.Add("user", "one")
	l.Add("assistant", "two")
	l.Add("user", "three")

	msgs := l.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Content != "one" {
		t.Fatalf("oldest surviving message = %q, want %q", msgs[0].Content, "one")
	}
}

func TestConversationLogUnbounded(t *testing.T) {
	l := NewConversationLog(0)
	for i := 0; i < 100; i++ {
		l.Add("user", "x")
	}
	if len(l.Messages()) != 100 {
		t.Fatalf("len = %d, want 100", len(l.Messages()))
	}
}

func TestConversationLogMessagesIsCopy(t *testing.T) {
	l := NewConversationLog(10)
	l.Add("user", "original")
	msgs := l.Messages()
	msgs[0].Content = "mutated"
	if l.Messages()[0].Content != "original" {
		t.Fatal("Messages exposed internal storage")
	}
}

func TestConversationLogClear(t *testing.T) {
	l := NewConversationLog(10)
	l.Add("user", "hello")
	l.Clear()
	if len(l.Messages()) != 0 {
		t.Fatal("clear left messages behind")
	}
}

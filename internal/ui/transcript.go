package ui

import (
	"DeepChat/internal/chatbot"
	"DeepChat/internal/export"
	"DeepChat/internal/session"
)

// Transcript is the rendered conversation as the operator saw it. It
// differs from the history store: it is never truncated and keeps messages
// whose request failed.
type Transcript struct {
	entries []export.Entry
}

// Apply records the messages carried by ev and reports whether it added one
func (t *Transcript) Apply(ev chatbot.Event) bool {
	switch ev := ev.(type) {
	case chatbot.UserMessageEvent:
		t.entries = append(t.entries, export.Entry{Speaker: session.RoleUser.Label(), Text: ev.Text})
	case chatbot.ReplyEvent:
		t.entries = append(t.entries, export.Entry{Speaker: session.RoleAssistant.Label(), Text: ev.Text})
	default:
		return false
	}
	return true
}

// Entries returns a copy of the transcript
func (t *Transcript) Entries() []export.Entry {
	return append([]export.Entry(nil), t.entries...)
}

func (t *Transcript) Len() int {
	return len(t.entries)
}

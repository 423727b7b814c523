package session

import "sync"

// DefaultMaxTurns is the number of user/assistant pairs kept as context
const DefaultMaxTurns = 15

// History is an ordered log of messages bounded to 2*maxTurns entries.
// Oldest entries are dropped once the bound is exceeded. It is safe for
// concurrent use.
type History struct {
	mu       sync.Mutex
	messages []Message
	limit    int
}

// NewHistory creates a history that keeps at most maxTurns pairs.
// Non-positive values fall back to DefaultMaxTurns.
func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{limit: 2 * maxTurns}
}

// Append adds a message at the tail and truncates from the head
func (h *History) Append(role Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(Message{Role: role, Content: content})
}

// AppendTurn commits a prompt and its reply together so no other message
// can land between them.
func (h *History) AppendTurn(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(Message{Role: RoleUser, Content: user})
	h.appendLocked(Message{Role: RoleAssistant, Content: assistant})
}

func (h *History) appendLocked(msg Message) {
	h.messages = append(h.messages, msg)
	if over := len(h.messages) - h.limit; over > 0 {
		// copy into a fresh slice so snapshots never share the backing array
		kept := make([]Message, h.limit)
		copy(kept, h.messages[over:])
		h.messages = kept
	}
}

// Snapshot returns a copy of the current messages in order
func (h *History) Snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	copied := make([]Message, len(h.messages))
	copy(copied, h.messages)
	return copied
}

// Len returns the number of stored messages
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Limit returns the maximum number of stored messages
func (h *History) Limit() int {
	return h.limit
}

// HasRole reports whether any message in msgs has the given role
func HasRole(msgs []Message, role Role) bool {
	for _, msg := range msgs {
		if msg.Role == role {
			return true
		}
	}
	return false
}

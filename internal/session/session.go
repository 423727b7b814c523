package session

import (
	"fmt"
	"strings"
)

// Role identifies who authored a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label returns the speaker label used in the transcript
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Message represents a single chat message
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Mode selects the remote model and system preamble used for a request
type Mode int

const (
	ModeChat Mode = iota
	ModeReasoner
)

func (m Mode) String() string {
	switch m {
	case ModeChat:
		return "chat"
	case ModeReasoner:
		return "reasoner"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a user supplied name into a Mode
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "chat":
		return ModeChat, nil
	case "reasoner", "reason", "reasoning":
		return ModeReasoner, nil
	default:
		return ModeChat, fmt.Errorf("unknown mode: %s (chat|reasoner)", name)
	}
}

// Toggle returns the other mode
func (m Mode) Toggle() Mode {
	if m == ModeChat {
		return ModeReasoner
	}
	return ModeChat
}

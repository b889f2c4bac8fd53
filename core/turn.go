// Package core holds the conversation types shared by every subsystem.
package core

import "time"

// Role identifies who produced a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single conversational exchange half: one message from either
// the user or the assistant.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// NewTurn creates a Turn stamped with the current time.
func NewTurn(role Role, text string) Turn {
	return Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

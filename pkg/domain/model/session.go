package model

import (
	"strings"

	"github.com/google/uuid"
)

// Role is the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a session's history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionID identifies a conversation.
type SessionID string

// NewSessionID generates a new UUID v4 SessionID.
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// FormatTranscript renders turns as the transcript given to the model.
func FormatTranscript(turns []Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch t.Role {
		case RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(t.Content)
	}
	return sb.String()
}

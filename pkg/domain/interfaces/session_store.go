package interfaces

import (
	"context"

	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

// SessionStore keeps a bounded conversation history per session.
type SessionStore interface {
	// GetHistory returns up to limit most recent turns, oldest first
	GetHistory(ctx context.Context, sessionID model.SessionID, limit int) ([]model.Turn, error)

	// Append adds turns to the end of the session's history
	Append(ctx context.Context, sessionID model.SessionID, turns ...model.Turn) error

	// Clear drops the session's history
	Clear(ctx context.Context, sessionID model.SessionID) error
}

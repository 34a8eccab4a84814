package interfaces

import (
	"context"

	"switchboard-sdk/pkg/types"
)

// SessionDirectory is the REST collaborator for session discovery and management
// ARCHITECTURAL DISCOVERY: The engine treats discovery as an opaque capability called
// before a socket is opened; it never affects the connection state machine
type SessionDirectory interface {
	// ListSessions returns the active sessions the server knows about.
	ListSessions(ctx context.Context) ([]*types.Session, error)

	// GetSession returns one session including its connection count.
	// A missing session yields an error matching types.ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// CreateSession creates a session owned by instructorID.
	CreateSession(ctx context.Context, name, instructorID string, studentIDs []string) (*types.Session, error)

	// EndSession ends an active session.
	EndSession(ctx context.Context, sessionID string) error
}

package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PresenceEntry is one viewer's membership in one session's presence channel.
// Ephemeral: the presence store is the source of truth and the entry set must
// always be rebuildable from a fresh sync snapshot.
type PresenceEntry struct {
	SessionID uuid.UUID
	ViewerID  string
	JoinedAt  time.Time
}

// PresenceStore tracks which viewers are currently subscribed to a session.
type PresenceStore interface {
	Join(ctx context.Context, sessionID uuid.UUID, viewerID string) error
	Leave(ctx context.Context, sessionID uuid.UUID, viewerID string) error
	// Members returns the full membership snapshot for a session.
	Members(ctx context.Context, sessionID uuid.UUID) ([]string, error)
	Clear(ctx context.Context, sessionID uuid.UUID) error
}

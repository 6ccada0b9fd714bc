package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionState is the broadcaster-side lifecycle state of a stream session.
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateCreating SessionState = "creating"
	StateReady    SessionState = "ready"
	StateLive     SessionState = "live"
	StateEnding   SessionState = "ending"
	StateEnded    SessionState = "ended"
	StateError    SessionState = "error"
)

// Session is one live broadcast, from creation to end.
type Session struct {
	ID                uuid.UUID    `db:"id"`
	BroadcasterID     string       `db:"broadcaster_id"`
	Title             string       `db:"title"`
	State             SessionState `db:"state"`
	ExternalStreamRef string       `db:"external_stream_ref"`
	PlaybackURL       string       `db:"playback_url"`
	ViewerCount       int          `db:"viewer_count"`
	CreatedAt         time.Time    `db:"created_at"`
	EndedAt           *time.Time   `db:"ended_at"`
}

// StreamHandle is the opaque result of creating a session at the streaming provider.
type StreamHandle struct {
	ExternalID        string
	IngestCredentials string
	PlaybackURL       string
}

// StreamProvider is the external streaming collaborator. Failures are never
// retried automatically; callers map them to typed errors.
type StreamProvider interface {
	// Ping verifies the provider is reachable and configured.
	Ping(ctx context.Context) error
	CreateSession(ctx context.Context) (*StreamHandle, error)
	EndSession(ctx context.Context, externalID string) error
}

// SessionRepository abstracts session persistence.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	UpdateState(ctx context.Context, id uuid.UUID, state SessionState) error
	MarkEnded(ctx context.Context, id uuid.UUID, endedAt time.Time) error
	UpdateViewerCount(ctx context.Context, id uuid.UUID, count int) error

	// ListStaleLive returns sessions still marked live whose last update is
	// older than maxAge. Used by orphan cleanup.
	ListStaleLive(ctx context.Context, maxAge time.Duration) ([]uuid.UUID, error)
}

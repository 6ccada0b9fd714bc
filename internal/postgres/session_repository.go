package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, broadcaster_id, title, state, external_stream_ref, playback_url, viewer_count, created_at, ended_at`

// SessionRepo implements domain.SessionRepository backed by PostgreSQL.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, session *domain.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, broadcaster_id, title, state, external_stream_ref, playback_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.BroadcasterID, session.Title, session.State,
		session.ExternalStreamRef, session.PlaybackURL, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (r *SessionRepo) UpdateState(ctx context.Context, id uuid.UUID, state domain.SessionState) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET state = $2, updated_at = now() WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *SessionRepo) MarkEnded(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET state = $2, ended_at = $3, updated_at = now()
		WHERE id = $1 AND ended_at IS NULL`,
		id, domain.StateEnded, endedAt)
	if err != nil {
		return fmt.Errorf("failed to mark session ended: %w", err)
	}
	// Zero rows means the session was already ended; ending twice is safe.
	_ = tag
	return nil
}

func (r *SessionRepo) UpdateViewerCount(ctx context.Context, id uuid.UUID, count int) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET viewer_count = $2, updated_at = now() WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("failed to update viewer count: %w", err)
	}
	return nil
}

func (r *SessionRepo) ListStaleLive(ctx context.Context, maxAge time.Duration) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM sessions
		WHERE state = $1 AND updated_at < now() - $2::interval`,
		domain.StateLive, maxAge.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stale session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.BroadcasterID, &s.Title, &s.State, &s.ExternalStreamRef,
		&s.PlaybackURL, &s.ViewerCount, &s.CreatedAt, &s.EndedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

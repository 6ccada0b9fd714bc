package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// presenceTTL guards against leaked membership sets when a session dies
// without cleanup; every join refreshes it.
const presenceTTLSeconds = 6 * 60 * 60

func presenceKey(sessionID uuid.UUID) string {
	return "session:" + sessionID.String() + ":presence"
}

// joinScript adds the member and refreshes the set TTL atomically.
// ARGV: [1]=viewer_id, [2]=ttl_seconds
var joinScript = goredis.NewScript(`
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return redis.call('SCARD', KEYS[1])
`)

// PresenceStore implements domain.PresenceStore on Redis sets. The set is the
// source of truth for presence membership; aggregators rebuild their local
// view from Members snapshots.
type PresenceStore struct {
	rdb *goredis.Client
}

func NewPresenceStore(client *Client) *PresenceStore {
	return &PresenceStore{rdb: client.rdb}
}

func (s *PresenceStore) Join(ctx context.Context, sessionID uuid.UUID, viewerID string) error {
	if err := joinScript.Run(ctx, s.rdb, []string{presenceKey(sessionID)}, viewerID, presenceTTLSeconds).Err(); err != nil {
		return fmt.Errorf("presence join failed: %w", err)
	}
	return nil
}

func (s *PresenceStore) Leave(ctx context.Context, sessionID uuid.UUID, viewerID string) error {
	if err := s.rdb.SRem(ctx, presenceKey(sessionID), viewerID).Err(); err != nil {
		return fmt.Errorf("presence leave failed: %w", err)
	}
	return nil
}

func (s *PresenceStore) Members(ctx context.Context, sessionID uuid.UUID) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, presenceKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence members failed: %w", err)
	}
	return members, nil
}

func (s *PresenceStore) Clear(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.rdb.Del(ctx, presenceKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("presence clear failed: %w", err)
	}
	return nil
}

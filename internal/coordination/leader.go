// Package coordination provides Redis-backed single-leader election for
// background jobs that must run on exactly one instance at a time.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotLeader is returned by Renew when another instance holds the lease.
var ErrNotLeader = errors.New("not leader")

// Election is a single-leader lease on one Redis key. The leader holds the
// key with a TTL; if the leader dies without releasing, the key expires and
// another instance takes over after at most one TTL.
type Election struct {
	rdb        *goredis.Client
	instanceID string
	key        string
	ttl        time.Duration
}

// renewScript extends the TTL only while this instance still holds the lease,
// so a stolen lock is never refreshed by the old leader.
var renewScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only if this instance still holds it.
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// NewElection creates an election on the given key. instanceID must be unique
// per process (hostname plus PID works).
func NewElection(rdb *goredis.Client, instanceID, key string, ttl time.Duration) *Election {
	return &Election{rdb: rdb, instanceID: instanceID, key: key, ttl: ttl}
}

// TryAcquire attempts to take the lease. Returns true when this instance is
// now the leader.
func (e *Election) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := e.rdb.SetNX(ctx, e.key, e.instanceID, e.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire leader lease %s: %w", e.key, err)
	}
	return ok, nil
}

// Renew extends the lease. Returns ErrNotLeader when the lease expired or was
// taken by another instance.
func (e *Election) Renew(ctx context.Context) error {
	res, err := renewScript.Run(ctx, e.rdb, []string{e.key}, e.instanceID, e.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("renew leader lease %s: %w", e.key, err)
	}
	if res == int64(0) {
		return ErrNotLeader
	}
	return nil
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader(ctx context.Context) (bool, error) {
	holder, err := e.rdb.Get(ctx, e.key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check leader lease %s: %w", e.key, err)
	}
	return holder == e.instanceID, nil
}

// Release gives up the lease voluntarily. Called on graceful shutdown so the
// next instance does not wait for the TTL.
func (e *Election) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, e.rdb, []string{e.key}, e.instanceID).Err(); err != nil {
		return fmt.Errorf("release leader lease %s: %w", e.key, err)
	}
	return nil
}

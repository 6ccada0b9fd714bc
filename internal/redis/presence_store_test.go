package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	testRedisURL   string
	redisContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redisContainer, err = rediscontainer.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	testRedisURL, err = redisContainer.(*rediscontainer.RedisContainer).ConnectionString(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis connection string: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	_ = redisContainer.Terminate(ctx)
	os.Exit(code)
}

func setupTestStore(t *testing.T) *PresenceStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client, err := NewClient(context.Background(), testRedisURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Underlying().FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return NewPresenceStore(client)
}

func TestPresenceStore_JoinAndMembers(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	require.NoError(t, store.Join(ctx, sessionID, "viewer-1"))
	require.NoError(t, store.Join(ctx, sessionID, "viewer-2"))

	members, err := store.Members(ctx, sessionID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"viewer-1", "viewer-2"}, members)
}

func TestPresenceStore_JoinIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	require.NoError(t, store.Join(ctx, sessionID, "viewer-1"))
	require.NoError(t, store.Join(ctx, sessionID, "viewer-1"))

	members, err := store.Members(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"viewer-1"}, members)
}

func TestPresenceStore_Leave(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	require.NoError(t, store.Join(ctx, sessionID, "viewer-1"))
	require.NoError(t, store.Leave(ctx, sessionID, "viewer-1"))

	members, err := store.Members(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, members)

	// Leaving a viewer that never joined is a no-op.
	require.NoError(t, store.Leave(ctx, sessionID, "ghost"))
}

func TestPresenceStore_SessionsAreIsolated(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, store.Join(ctx, first, "viewer-1"))
	require.NoError(t, store.Join(ctx, second, "viewer-2"))

	members, err := store.Members(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []string{"viewer-1"}, members)
}

func TestPresenceStore_Clear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	require.NoError(t, store.Join(ctx, sessionID, "viewer-1"))
	require.NoError(t, store.Join(ctx, sessionID, "viewer-2"))
	require.NoError(t, store.Clear(ctx, sessionID))

	members, err := store.Members(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestPresenceStore_JoinSetsTTL(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	require.NoError(t, store.Join(ctx, sessionID, "viewer-1"))

	client, err := NewClient(ctx, testRedisURL)
	require.NoError(t, err)
	defer client.Close()

	ttl, err := client.Underlying().TTL(ctx, "session:"+sessionID.String()+":presence").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl, "membership set must expire if never cleaned up")
}

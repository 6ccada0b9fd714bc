package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionSuccess(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"external_id":"ext-123","ingest_credentials":"rtmp-key","playback_url":"https://cdn.example/live/ext-123"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	handle, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ext-123", handle.ExternalID)
	assert.Equal(t, "rtmp-key", handle.IngestCredentials)
	assert.Equal(t, "https://cdn.example/live/ext-123", handle.PlaybackURL)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestCreateSessionRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.CreateSession(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderRejected)
}

func TestCreateSessionServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.CreateSession(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestCreateSessionMissingExternalID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"playback_url":"https://cdn.example/live"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.CreateSession(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderRejected)
}

func TestConnectionErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse all connections

	client := NewClient(server.URL, "test-key")
	err := client.Ping(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestEndSessionTreatsNotFoundAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/v1/sessions/ext-123", r.URL.Path)
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	assert.NoError(t, client.EndSession(context.Background(), "ext-123"))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, "test-key")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.Error(t, client.Ping(ctx))
	}

	// The breaker is open now; requests fail fast without dialing.
	err := client.Ping(ctx)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.ErrorContains(t, err, "circuit open")
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		err := client.Ping(ctx)
		require.ErrorIs(t, err, domain.ErrProviderRejected)
		require.NotContains(t, err.Error(), "circuit open")
	}
}

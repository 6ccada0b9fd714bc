// Package provider is the HTTP client for the external streaming provider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
	"github.com/sony/gobreaker"
)

const requestTimeout = 10 * time.Second

// Client talks to the streaming provider's REST API. All calls go through a
// circuit breaker so a dead provider fails fast instead of tying up request
// goroutines; an open breaker surfaces as ErrProviderUnavailable. The client
// never retries on its own.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(baseURL, apiKey string) *Client {
	settings := gobreaker.Settings{
		Name:    "stream-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Provider circuit breaker state changed", "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Rejections are the provider answering; only transport-level
			// failures should trip the breaker.
			return err == nil || errors.Is(err, domain.ErrProviderRejected) || errors.Is(err, domain.ErrNotFound)
		},
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Ping verifies the provider is reachable and the API key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodGet, "/v1/health", nil)
	return err
}

type createSessionResponse struct {
	ExternalID        string `json:"external_id"`
	IngestCredentials string `json:"ingest_credentials"`
	PlaybackURL       string `json:"playback_url"`
}

// CreateSession requests a new external streaming session.
func (c *Client) CreateSession(ctx context.Context) (*domain.StreamHandle, error) {
	body, err := c.do(ctx, "create_session", http.MethodPost, "/v1/sessions", nil)
	if err != nil {
		return nil, err
	}

	var res createSessionResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("malformed create session response: %v: %w", err, domain.ErrProviderRejected)
	}
	if res.ExternalID == "" {
		return nil, fmt.Errorf("create session response missing external id: %w", domain.ErrProviderRejected)
	}
	return &domain.StreamHandle{
		ExternalID:        res.ExternalID,
		IngestCredentials: res.IngestCredentials,
		PlaybackURL:       res.PlaybackURL,
	}, nil
}

// EndSession tears down an external streaming session. Ending an already
// ended session is treated as success.
func (c *Client) EndSession(ctx context.Context, externalID string) error {
	payload, err := json.Marshal(map[string]string{"external_id": externalID})
	if err != nil {
		return fmt.Errorf("failed to marshal end session request: %w", err)
	}
	_, err = c.do(ctx, "end_session", http.MethodDelete, "/v1/sessions/"+externalID, payload)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// do executes one provider request through the breaker and maps the outcome
// onto the domain error taxonomy.
func (c *Client) do(ctx context.Context, operation, method, path string, payload []byte) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if err != nil {
		status := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = "breaker_open"
			err = fmt.Errorf("provider circuit open: %w", domain.ErrProviderUnavailable)
		}
		metrics.ProviderRequestsTotal.WithLabelValues(operation, status).Inc()
		return nil, err
	}
	metrics.ProviderRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return result.([]byte), nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider unreachable: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %v: %w", err, domain.ErrProviderUnavailable)
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return data, nil
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("provider resource not found: %w", domain.ErrNotFound)
	case res.StatusCode >= 500:
		return nil, fmt.Errorf("provider returned %d: %w", res.StatusCode, domain.ErrProviderUnavailable)
	default:
		return nil, fmt.Errorf("provider rejected request with %d: %s: %w", res.StatusCode, truncate(data), domain.ErrProviderRejected)
	}
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

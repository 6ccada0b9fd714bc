// Package session owns the broadcaster-side stream lifecycle state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/platform/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const cleanupRetryBackoff = 2 * time.Second

// Controller drives one broadcaster's session lifecycle:
//
//	Idle → Creating → Ready → Live → Ending → Ended
//
// with Error reachable from any non-terminal state. Single-owner: one
// controller instance per broadcaster, all transitions serialized by the
// internal mutex. A second StartSession while one is in flight fails with
// ErrAlreadyInProgress instead of queueing.
type Controller struct {
	broadcasterID string
	provider      domain.StreamProvider
	repo          domain.SessionRepository
	clock         clockwork.Clock
	createTimeout time.Duration

	mu           sync.Mutex
	state        domain.SessionState
	current      *domain.Session
	cancelCreate context.CancelFunc
}

func NewController(broadcasterID string, provider domain.StreamProvider, repo domain.SessionRepository, clock clockwork.Clock, createTimeout time.Duration) *Controller {
	return &Controller{
		broadcasterID: broadcasterID,
		provider:      provider,
		repo:          repo,
		clock:         clock,
		createTimeout: createTimeout,
		state:         domain.StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns a copy of the current session, or nil before creation.
func (c *Controller) Current() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

func (c *Controller) setState(s domain.SessionState) {
	c.state = s
	metrics.SessionTransitionsTotal.WithLabelValues(string(s)).Inc()
}

type createResult struct {
	session *domain.Session
	err     error
}

// StartSession creates a session at the streaming provider and persists the
// record. Valid only from Idle. The whole operation is bounded by the create
// timeout; on expiry the controller self-cancels, transitions to Error and
// returns ErrTimeout. No partial state is left live: a session created at the
// provider but not persisted is cleaned up best-effort in the background.
func (c *Controller) StartSession(ctx context.Context, title string) (*domain.Session, error) {
	c.mu.Lock()
	switch c.state {
	case domain.StateCreating:
		c.mu.Unlock()
		return nil, domain.ErrAlreadyInProgress
	case domain.StateIdle:
	default:
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("cannot start session from %s: %w", state, domain.ErrInvalidTransition)
	}
	c.setState(domain.StateCreating)
	createCtx, cancel := context.WithCancel(ctx)
	c.cancelCreate = cancel
	c.mu.Unlock()

	resCh := make(chan createResult, 1)
	go func() {
		session, err := c.create(createCtx, title)
		resCh <- createResult{session: session, err: err}
	}()

	select {
	case res := <-resCh:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cancelCreate = nil
		if c.state != domain.StateCreating {
			// Reset() raced with creation; discard the result.
			c.discardLate(res)
			return nil, fmt.Errorf("session creation aborted: %w", domain.ErrInvalidTransition)
		}
		if res.err != nil {
			c.setState(domain.StateError)
			metrics.SessionCreateFailures.WithLabelValues(failureKind(res.err)).Inc()
			return nil, res.err
		}
		c.current = res.session
		c.setState(domain.StateReady)
		return res.session, nil

	case <-c.clock.After(c.createTimeout):
		cancel()
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cancelCreate = nil
		if c.state == domain.StateCreating {
			c.setState(domain.StateError)
		}
		metrics.SessionCreateFailures.WithLabelValues("timeout").Inc()
		// The provider call may still complete after cancellation; make sure a
		// late success does not leave an orphaned external session behind.
		go func() {
			c.discardLate(<-resCh)
		}()
		return nil, fmt.Errorf("session creation exceeded %s: %w", c.createTimeout, domain.ErrTimeout)
	}
}

func (c *Controller) create(ctx context.Context, title string) (*domain.Session, error) {
	// Fail fast on a misconfigured or unreachable provider instead of
	// crashing deep in the call chain.
	if err := c.provider.Ping(ctx); err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("provider ping failed: %v: %w", err, domain.ErrProviderUnavailable)
	}

	handle, err := c.provider.CreateSession(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrProviderRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("provider create failed: %v: %w", err, domain.ErrProviderRejected)
	}

	session := &domain.Session{
		ID:                uuid.New(),
		BroadcasterID:     c.broadcasterID,
		Title:             title,
		State:             domain.StateReady,
		ExternalStreamRef: handle.ExternalID,
		PlaybackURL:       handle.PlaybackURL,
		CreatedAt:         c.clock.Now(),
	}
	if err := c.repo.Create(ctx, session); err != nil {
		// The external session exists but the record does not. Surface the
		// failure; cleanup of the orphan is best-effort, never blocking.
		c.cleanupExternal(handle.ExternalID)
		return nil, fmt.Errorf("session record create failed: %v: %w", err, domain.ErrPersistenceFailed)
	}

	return session, nil
}

func (c *Controller) discardLate(res createResult) {
	if res.err != nil || res.session == nil {
		return
	}
	slog.Warn("Discarding session created after cancellation",
		"session_id", res.session.ID.String(),
		"external_ref", res.session.ExternalStreamRef)
	c.cleanupExternal(res.session.ExternalStreamRef)
}

func (c *Controller) cleanupExternal(externalID string) {
	if externalID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		policy := retry.Policy{MaxAttempts: 3, InitialBackoff: cleanupRetryBackoff}
		err := retry.DoVoid(ctx, policy, func(err error) bool {
			return errors.Is(err, domain.ErrProviderRejected)
		}, func() error {
			return c.provider.EndSession(ctx, externalID)
		})
		if err != nil {
			slog.Error("Failed to clean up orphaned external session", "external_ref", externalID, "error", err)
		}
	}()
}

// GoLive transitions Ready → Live. Any other source state is a typed error.
func (c *Controller) GoLive(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.StateReady {
		return fmt.Errorf("cannot go live from %s: %w", c.state, domain.ErrInvalidTransition)
	}
	if err := c.repo.UpdateState(ctx, c.current.ID, domain.StateLive); err != nil {
		return fmt.Errorf("failed to persist live state: %v: %w", err, domain.ErrPersistenceFailed)
	}
	c.current.State = domain.StateLive
	c.setState(domain.StateLive)
	metrics.SessionsActive.Inc()
	slog.InfoContext(ctx, "Session live", "session_id", c.current.ID.String(), "broadcaster_id", c.broadcasterID)
	return nil
}

// EndSession transitions Live|Ready → Ending → Ended. Idempotent: ending an
// already ended session is a no-op returning success. When persist is false
// the database record is left untouched (client-side recovery path).
func (c *Controller) EndSession(ctx context.Context, persist bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case domain.StateEnded:
		return nil
	case domain.StateLive, domain.StateReady:
	default:
		return fmt.Errorf("cannot end session from %s: %w", c.state, domain.ErrInvalidTransition)
	}

	wasLive := c.state == domain.StateLive
	c.setState(domain.StateEnding)

	endedAt := c.clock.Now()
	if persist {
		if err := c.repo.MarkEnded(ctx, c.current.ID, endedAt); err != nil {
			c.setState(domain.StateError)
			return fmt.Errorf("failed to mark session ended: %v: %w", err, domain.ErrPersistenceFailed)
		}
	}

	c.cleanupExternal(c.current.ExternalStreamRef)

	c.current.State = domain.StateEnded
	c.current.EndedAt = &endedAt
	c.setState(domain.StateEnded)
	if wasLive {
		metrics.SessionsActive.Dec()
	}
	slog.InfoContext(ctx, "Session ended", "session_id", c.current.ID.String(), "persisted", persist)
	return nil
}

// Reset forces the controller back to Idle, cancelling any in-flight creation
// and discarding local state. Used for explicit recovery after Error; never
// triggered implicitly.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelCreate != nil {
		c.cancelCreate()
		c.cancelCreate = nil
	}
	if c.state == domain.StateLive {
		metrics.SessionsActive.Dec()
	}
	c.current = nil
	c.setState(domain.StateIdle)
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, domain.ErrProviderRejected):
		return "provider_rejected"
	case errors.Is(err, domain.ErrPersistenceFailed):
		return "persistence_failed"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	default:
		return "unknown"
	}
}

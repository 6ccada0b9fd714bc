// Package presence maintains the live viewer set per session and emits
// de-duplicated viewer counts.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// --- Command types ---

type aggCmd interface{ aggCmd() }

type cmdJoin struct {
	sessionID uuid.UUID
	viewerID  string
}

func (cmdJoin) aggCmd() {}

type cmdLeave struct {
	sessionID uuid.UUID
	viewerID  string
}

func (cmdLeave) aggCmd() {}

type cmdSync struct {
	sessionID uuid.UUID
	members   []string
}

func (cmdSync) aggCmd() {}

type cmdViewerCount struct {
	sessionID uuid.UUID
	replyCh   chan int
}

func (cmdViewerCount) aggCmd() {}

type cmdDisplayMembers struct {
	sessionID uuid.UUID
	replyCh   chan []string
}

func (cmdDisplayMembers) aggCmd() {}

type cmdClearSession struct {
	sessionID uuid.UUID
}

func (cmdClearSession) aggCmd() {}

type cmdStop struct {
	doneCh chan struct{}
}

func (cmdStop) aggCmd() {}

// --- Aggregator ---

// sessionPresence is one session's presence view. The authoritative set is
// rebuilt wholesale on every sync snapshot; the advisory set additionally
// applies incremental join/leave events for low-latency display. Counts come
// exclusively from the authoritative set: at-least-once or reordered
// join/leave delivery can double-count or leak entries, a snapshot cannot.
type sessionPresence struct {
	authoritative map[string]domain.PresenceEntry
	advisory      map[string]domain.PresenceEntry
	lastSyncAt    time.Time
}

// Aggregator is a single-threaded actor over all sessions' presence state.
// All mutation happens on the run loop; public methods enqueue commands.
type Aggregator struct {
	cmdCh     chan aggCmd
	publisher domain.EventPublisher
	clock     clockwork.Clock
	sessions  map[uuid.UUID]*sessionPresence
}

func NewAggregator(publisher domain.EventPublisher, clock clockwork.Clock) *Aggregator {
	return &Aggregator{
		cmdCh:     make(chan aggCmd, 512),
		publisher: publisher,
		clock:     clock,
		sessions:  make(map[uuid.UUID]*sessionPresence),
	}
}

// Start begins the aggregator's actor goroutine.
func (a *Aggregator) Start() {
	go a.run()
}

// Stop drains the actor goroutine. Pending commands enqueued before Stop are
// processed first.
func (a *Aggregator) Stop() {
	doneCh := make(chan struct{})
	a.cmdCh <- cmdStop{doneCh: doneCh}
	<-doneCh
}

// Apply routes one bus event into the aggregator. Non-presence events are
// ignored so the caller can feed it a session's whole event stream.
func (a *Aggregator) Apply(ev domain.Event) {
	switch ev.Kind {
	case domain.EventPresenceJoin:
		a.cmdCh <- cmdJoin{sessionID: ev.SessionID, viewerID: ev.ViewerID}
	case domain.EventPresenceLeave:
		a.cmdCh <- cmdLeave{sessionID: ev.SessionID, viewerID: ev.ViewerID}
	case domain.EventPresenceSync:
		a.cmdCh <- cmdSync{sessionID: ev.SessionID, members: ev.Members}
	}
}

// ViewerCount returns the count derived from the most recent sync snapshot.
// Zero before the first sync.
func (a *Aggregator) ViewerCount(sessionID uuid.UUID) int {
	replyCh := make(chan int, 1)
	a.cmdCh <- cmdViewerCount{sessionID: sessionID, replyCh: replyCh}
	return <-replyCh
}

// DisplayMembers returns the advisory member list (snapshot plus incremental
// join/leave noise), suitable for low-latency UI only.
func (a *Aggregator) DisplayMembers(sessionID uuid.UUID) []string {
	replyCh := make(chan []string, 1)
	a.cmdCh <- cmdDisplayMembers{sessionID: sessionID, replyCh: replyCh}
	return <-replyCh
}

// ClearSession drops all presence state for an ended session.
func (a *Aggregator) ClearSession(sessionID uuid.UUID) {
	a.cmdCh <- cmdClearSession{sessionID: sessionID}
}

func (a *Aggregator) run() {
	ctx := context.Background()
	for cmd := range a.cmdCh {
		switch c := cmd.(type) {
		case cmdJoin:
			a.handleJoin(c)

		case cmdLeave:
			a.handleLeave(c)

		case cmdSync:
			a.handleSync(ctx, c)

		case cmdViewerCount:
			sp, ok := a.sessions[c.sessionID]
			if !ok {
				c.replyCh <- 0
				break
			}
			c.replyCh <- len(sp.authoritative)

		case cmdDisplayMembers:
			sp, ok := a.sessions[c.sessionID]
			if !ok {
				c.replyCh <- nil
				break
			}
			members := make([]string, 0, len(sp.advisory))
			for viewerID := range sp.advisory {
				members = append(members, viewerID)
			}
			c.replyCh <- members

		case cmdClearSession:
			if sp, ok := a.sessions[c.sessionID]; ok {
				metrics.PresenceViewers.Sub(float64(len(sp.authoritative)))
				delete(a.sessions, c.sessionID)
			}

		case cmdStop:
			close(c.doneCh)
			return
		}
	}
}

func (a *Aggregator) session(sessionID uuid.UUID) *sessionPresence {
	sp, ok := a.sessions[sessionID]
	if !ok {
		sp = &sessionPresence{
			authoritative: make(map[string]domain.PresenceEntry),
			advisory:      make(map[string]domain.PresenceEntry),
		}
		a.sessions[sessionID] = sp
	}
	return sp
}

func (a *Aggregator) handleJoin(c cmdJoin) {
	sp := a.session(c.sessionID)
	if _, exists := sp.advisory[c.viewerID]; exists {
		return
	}
	sp.advisory[c.viewerID] = domain.PresenceEntry{
		SessionID: c.sessionID,
		ViewerID:  c.viewerID,
		JoinedAt:  a.clock.Now(),
	}
}

func (a *Aggregator) handleLeave(c cmdLeave) {
	sp, ok := a.sessions[c.sessionID]
	if !ok {
		return
	}
	delete(sp.advisory, c.viewerID)
}

// handleSync is the reconciliation point: the snapshot replaces both sets.
// JoinedAt is carried over for viewers retained across syncs.
func (a *Aggregator) handleSync(ctx context.Context, c cmdSync) {
	sp := a.session(c.sessionID)
	now := a.clock.Now()

	oldCount := len(sp.authoritative)
	fresh := make(map[string]domain.PresenceEntry, len(c.members))
	for _, viewerID := range c.members {
		entry, ok := sp.authoritative[viewerID]
		if !ok {
			entry = domain.PresenceEntry{SessionID: c.sessionID, ViewerID: viewerID, JoinedAt: now}
		}
		fresh[viewerID] = entry
	}
	sp.authoritative = fresh

	sp.advisory = make(map[string]domain.PresenceEntry, len(fresh))
	for viewerID, entry := range fresh {
		sp.advisory[viewerID] = entry
	}
	sp.lastSyncAt = now

	count := len(fresh)
	metrics.PresenceSyncsTotal.Inc()
	metrics.PresenceViewers.Add(float64(count - oldCount))

	if err := a.publisher.PublishViewerCount(ctx, c.sessionID, count); err != nil {
		slog.Error("Failed to publish viewer count", "session_id", c.sessionID.String(), "error", err)
	}
}

// Package app is the application layer. It is the only package that wires
// multiple engines together and owns the per-session event pump.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/momentum"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/platform/correlation"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/presence"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/ranking"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/session"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const cleanupScanTimeout = 30 * time.Second

// Broadcaster fans one event out to every websocket client of a session.
type Broadcaster interface {
	Broadcast(sessionID uuid.UUID, ev domain.Event)
}

// Options carries the tunables the service needs from configuration.
type Options struct {
	SeasonID             string
	SessionCreateTimeout time.Duration
	OrphanSessionMaxAge  time.Duration
}

// Service orchestrates the realtime core: session lifecycle, the per-session
// event pump from the bus to the engines and websocket clients, and the
// leader-run background jobs. One instance per process.
type Service struct {
	opts     Options
	provider domain.StreamProvider
	repo     domain.SessionRepository
	bus      domain.EventBus
	pub      domain.EventPublisher
	presence *presence.Aggregator
	prStore  domain.PresenceStore
	momentum *momentum.Engine
	ranking  *ranking.Engine
	hub      Broadcaster
	clock    clockwork.Clock

	mu          sync.Mutex
	controllers map[string]*session.Controller
	watches     map[uuid.UUID]*sessionWatch
	seasonSub   domain.Subscription
	stopped     bool

	stopOnce sync.Once
	wg       sync.WaitGroup
}

type sessionWatch struct {
	sub    domain.Subscription
	cancel context.CancelFunc
}

func NewService(
	opts Options,
	provider domain.StreamProvider,
	repo domain.SessionRepository,
	bus domain.EventBus,
	pub domain.EventPublisher,
	agg *presence.Aggregator,
	prStore domain.PresenceStore,
	momentumEngine *momentum.Engine,
	rankingEngine *ranking.Engine,
	hub Broadcaster,
	clock clockwork.Clock,
) *Service {
	return &Service{
		opts:        opts,
		provider:    provider,
		repo:        repo,
		bus:         bus,
		pub:         pub,
		presence:    agg,
		prStore:     prStore,
		momentum:    momentumEngine,
		ranking:     rankingEngine,
		hub:         hub,
		clock:       clock,
		controllers: make(map[string]*session.Controller),
		watches:     make(map[uuid.UUID]*sessionWatch),
	}
}

// controller returns the lifecycle controller for a broadcaster, creating it
// on first use. One controller per broadcaster, for the life of the process.
func (s *Service) controller(broadcasterID string) *session.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.controllers[broadcasterID]
	if !ok {
		c = session.NewController(broadcasterID, s.provider, s.repo, s.clock, s.opts.SessionCreateTimeout)
		s.controllers[broadcasterID] = c
	}
	return c
}

// StartSession creates a session for the broadcaster and begins pumping its
// bus channel.
func (s *Service) StartSession(ctx context.Context, broadcasterID, title string) (*domain.Session, error) {
	sess, err := s.controller(broadcasterID).StartSession(ctx, title)
	if err != nil {
		return nil, err
	}
	if err := s.startWatch(sess.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to start session event pump", "session_id", sess.ID.String(), "error", err)
	}
	s.publishSessionChanged(ctx, sess.ID, "insert")
	return sess, nil
}

// GoLive transitions the broadcaster's session from ready to live.
func (s *Service) GoLive(ctx context.Context, broadcasterID string) error {
	ctrl := s.controller(broadcasterID)
	if err := ctrl.GoLive(ctx); err != nil {
		return err
	}
	if current := ctrl.Current(); current != nil {
		s.publishSessionChanged(ctx, current.ID, "update")
	}
	return nil
}

// EndSession ends the broadcaster's session and tears down its realtime
// state: event pump, presence membership, combo window.
func (s *Service) EndSession(ctx context.Context, broadcasterID string) error {
	ctrl := s.controller(broadcasterID)
	current := ctrl.Current()
	if err := ctrl.EndSession(ctx, true); err != nil {
		return err
	}
	if current != nil {
		s.publishSessionChanged(ctx, current.ID, "update")
		s.teardownSession(ctx, current.ID)
	}
	return nil
}

// ResetSession forces the broadcaster's controller back to idle. Explicit
// recovery after an error state; discards any current session state locally.
func (s *Service) ResetSession(ctx context.Context, broadcasterID string) {
	ctrl := s.controller(broadcasterID)
	if current := ctrl.Current(); current != nil {
		s.teardownSession(ctx, current.ID)
	}
	ctrl.Reset()
}

// SessionState returns the broadcaster's lifecycle state and current session.
func (s *Service) SessionState(broadcasterID string) (domain.SessionState, *domain.Session) {
	ctrl := s.controller(broadcasterID)
	return ctrl.State(), ctrl.Current()
}

// GetSession loads one session record.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return s.repo.Get(ctx, id)
}

// SendGift processes one gift: the combo window advances, the creator's
// season score is credited with the hype-scaled amount, and the gift plus the
// fresh combo state go out on the session channel.
func (s *Service) SendGift(ctx context.Context, sessionID uuid.UUID, gift domain.GiftPayload) (domain.ComboPayload, error) {
	if gift.Amount <= 0 {
		return domain.ComboPayload{}, fmt.Errorf("gift amount must be positive, got %d", gift.Amount)
	}
	if gift.CreatorID == "" {
		return domain.ComboPayload{}, fmt.Errorf("gift creator id is required")
	}

	combo, err := s.momentum.ApplyGift(ctx, sessionID)
	if err != nil {
		return domain.ComboPayload{}, fmt.Errorf("combo update failed: %w", err)
	}

	if _, err := s.ranking.ApplyGift(ctx, s.opts.SeasonID, gift, combo.HypeMultiplier); err != nil {
		return domain.ComboPayload{}, err
	}

	ev := domain.Event{
		Kind:      domain.EventGiftSent,
		SessionID: sessionID,
		At:        s.clock.Now(),
		Gift:      &gift,
	}
	if err := s.bus.Publish(ctx, domain.SessionChannel(sessionID), ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish gift event", "session_id", sessionID.String(), "error", err)
	}
	return combo, nil
}

// ReportBattle records a battle outcome. The winner's award is scaled by the
// session's current hype multiplier at the moment the result lands.
func (s *Service) ReportBattle(ctx context.Context, sessionID uuid.UUID, battle domain.BattlePayload) (*domain.CreatorSeasonScore, error) {
	multiplier := s.momentum.Current(sessionID).HypeMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	row, err := s.ranking.ApplyBattleResult(ctx, s.opts.SeasonID, battle, multiplier)
	if err != nil {
		return nil, err
	}

	ev := domain.Event{
		Kind:      domain.EventBattleResult,
		SessionID: sessionID,
		At:        s.clock.Now(),
		Battle:    &battle,
	}
	if err := s.bus.Publish(ctx, domain.SessionChannel(sessionID), ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish battle event", "session_id", sessionID.String(), "error", err)
	}
	return row, nil
}

// RecordWatchTime credits accumulated watch-time points to a creator.
func (s *Service) RecordWatchTime(ctx context.Context, creatorID string, points int64) (*domain.CreatorSeasonScore, error) {
	return s.ranking.ApplyWatchTime(ctx, s.opts.SeasonID, creatorID, points)
}

// CorrectScore applies a moderation score correction with its audit entry.
func (s *Service) CorrectScore(ctx context.Context, c domain.Correction) (*domain.AuditEntry, error) {
	c.SeasonID = s.opts.SeasonID
	return s.ranking.ApplyModerationCorrection(ctx, c)
}

// Progress returns one creator's season standing.
func (s *Service) Progress(ctx context.Context, creatorID string) (*ranking.Progress, error) {
	return s.ranking.ProgressFor(ctx, s.opts.SeasonID, creatorID)
}

// Leaderboard returns the season leaderboard, best first.
func (s *Service) Leaderboard(ctx context.Context) ([]domain.RankedScore, error) {
	return s.ranking.Leaderboard(ctx, s.opts.SeasonID)
}

// AuditTrail returns the moderation ledger for one creator, oldest first.
func (s *Service) AuditTrail(ctx context.Context, creatorID string) ([]domain.AuditEntry, error) {
	return s.ranking.AuditTrail(ctx, s.opts.SeasonID, creatorID)
}

// OnViewerJoin records transport-level membership and announces the join.
// Wired as the websocket hub's join hook.
func (s *Service) OnViewerJoin(sessionID uuid.UUID, viewerID string) {
	ctx := correlation.WithID(context.Background(), correlation.NewID())
	if err := s.prStore.Join(ctx, sessionID, viewerID); err != nil {
		slog.ErrorContext(ctx, "Presence join failed", "session_id", sessionID.String(), "viewer_id", viewerID, "error", err)
		return
	}
	s.publishPresence(ctx, domain.EventPresenceJoin, sessionID, viewerID)
}

// OnViewerLeave is the websocket hub's leave hook.
func (s *Service) OnViewerLeave(sessionID uuid.UUID, viewerID string) {
	ctx := correlation.WithID(context.Background(), correlation.NewID())
	if err := s.prStore.Leave(ctx, sessionID, viewerID); err != nil {
		slog.ErrorContext(ctx, "Presence leave failed", "session_id", sessionID.String(), "viewer_id", viewerID, "error", err)
		return
	}
	s.publishPresence(ctx, domain.EventPresenceLeave, sessionID, viewerID)
}

// publishSessionChanged notifies the session channel of a persisted row
// mutation so remote instances and clients can refresh their view.
func (s *Service) publishSessionChanged(ctx context.Context, sessionID uuid.UUID, op string) {
	ev := domain.Event{
		Kind:      domain.EventSessionChanged,
		SessionID: sessionID,
		At:        s.clock.Now(),
		Change:    &domain.ChangePayload{Table: "sessions", Op: op},
	}
	if err := s.bus.Publish(ctx, domain.SessionChannel(sessionID), ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish session change", "session_id", sessionID.String(), "error", err)
	}
}

func (s *Service) publishPresence(ctx context.Context, kind domain.EventKind, sessionID uuid.UUID, viewerID string) {
	ev := domain.Event{
		Kind:      kind,
		SessionID: sessionID,
		At:        s.clock.Now(),
		ViewerID:  viewerID,
	}
	if err := s.bus.Publish(ctx, domain.SessionChannel(sessionID), ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish presence event", "kind", string(kind), "error", err)
	}
}

// SyncPresence publishes an authoritative membership snapshot for every
// watched session. The snapshot, not the join/leave stream, is what moves the
// advertised viewer count.
func (s *Service) SyncPresence(ctx context.Context) {
	for _, sessionID := range s.watchedSessions() {
		members, err := s.prStore.Members(ctx, sessionID)
		if err != nil {
			slog.WarnContext(ctx, "Presence snapshot failed", "session_id", sessionID.String(), "error", err)
			continue
		}
		ev := domain.Event{
			Kind:      domain.EventPresenceSync,
			SessionID: sessionID,
			At:        s.clock.Now(),
			Members:   members,
		}
		if err := s.bus.Publish(ctx, domain.SessionChannel(sessionID), ev); err != nil {
			slog.WarnContext(ctx, "Failed to publish presence sync", "session_id", sessionID.String(), "error", err)
		}
	}
}

// CleanupOrphanSessions force-ends sessions still marked live whose record
// has not been touched recently. Run by the elected leader only.
func (s *Service) CleanupOrphanSessions(ctx context.Context) {
	defer metrics.OrphanCleanupScansTotal.Inc()

	scanCtx, cancel := context.WithTimeout(ctx, cleanupScanTimeout)
	defer cancel()

	stale, err := s.repo.ListStaleLive(scanCtx, s.opts.OrphanSessionMaxAge)
	if err != nil {
		slog.ErrorContext(ctx, "Orphan session scan failed", "error", err)
		return
	}

	for _, id := range stale {
		if err := s.repo.MarkEnded(ctx, id, s.clock.Now()); err != nil {
			slog.ErrorContext(ctx, "Failed to end orphan session", "session_id", id.String(), "error", err)
			continue
		}
		s.teardownSession(ctx, id)
		metrics.OrphanSessionsEndedTotal.Inc()
		slog.InfoContext(ctx, "Ended orphan session", "session_id", id.String())
	}
}

// RefreshRanks recomputes leaderboard ranks for the active season. Run by the
// elected leader only.
func (s *Service) RefreshRanks(ctx context.Context) {
	if err := s.ranking.RefreshRanks(ctx, s.opts.SeasonID); err != nil {
		slog.ErrorContext(ctx, "Rank refresh failed", "season_id", s.opts.SeasonID, "error", err)
	}
}

// WatchSeason subscribes to the active season's bus channel and fans rank,
// tier and correction events out to every watched session. Runs until Stop.
func (s *Service) WatchSeason(ctx context.Context) error {
	sub, err := s.bus.Subscribe(ctx, domain.SeasonChannel(s.opts.SeasonID))
	if err != nil {
		return fmt.Errorf("subscribe to season channel: %w", err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = sub.Close()
		return fmt.Errorf("service stopped")
	}
	s.seasonSub = sub
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				for _, sessionID := range s.watchedSessions() {
					s.hub.Broadcast(sessionID, ev)
				}
			}
		}
	}()
	return nil
}

// startWatch subscribes to the session's bus channel and pumps events until
// the watch is stopped.
func (s *Service) startWatch(sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("service stopped")
	}
	if _, exists := s.watches[sessionID]; exists {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := s.bus.Subscribe(ctx, domain.SessionChannel(sessionID))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to session channel: %w", err)
	}
	s.watches[sessionID] = &sessionWatch{sub: sub, cancel: cancel}

	s.wg.Add(1)
	go s.pump(ctx, sessionID, sub)
	return nil
}

func (s *Service) stopWatch(sessionID uuid.UUID) {
	s.mu.Lock()
	watch, exists := s.watches[sessionID]
	if exists {
		delete(s.watches, sessionID)
	}
	s.mu.Unlock()
	if !exists {
		return
	}
	watch.cancel()
	_ = watch.sub.Close()
}

func (s *Service) watchedSessions() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.watches))
	for id := range s.watches {
		ids = append(ids, id)
	}
	return ids
}

// pump routes one session's bus events: presence events feed the aggregator,
// everything except raw join/leave noise fans out to websocket clients, and
// viewer counts are persisted best-effort.
func (s *Service) pump(ctx context.Context, sessionID uuid.UUID, sub domain.Subscription) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			s.presence.Apply(ev)

			switch ev.Kind {
			case domain.EventPresenceJoin, domain.EventPresenceLeave:
				// Advisory only; clients get the periodic sync instead.
			case domain.EventViewerCount:
				if err := s.repo.UpdateViewerCount(ctx, sessionID, ev.Count); err != nil {
					slog.WarnContext(ctx, "Failed to persist viewer count", "session_id", sessionID.String(), "error", err)
				}
				s.hub.Broadcast(sessionID, ev)
			default:
				s.hub.Broadcast(sessionID, ev)
			}
		}
	}
}

// teardownSession drops all realtime state bound to a session after it ends.
func (s *Service) teardownSession(ctx context.Context, sessionID uuid.UUID) {
	s.stopWatch(sessionID)
	s.momentum.ClearSession(sessionID)
	s.presence.ClearSession(sessionID)
	if err := s.prStore.Clear(ctx, sessionID); err != nil {
		slog.WarnContext(ctx, "Failed to clear presence set", "session_id", sessionID.String(), "error", err)
	}
}

// Stop tears down all watches and waits for the pumps to drain.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		watches := make(map[uuid.UUID]*sessionWatch, len(s.watches))
		for id, w := range s.watches {
			watches[id] = w
		}
		s.watches = make(map[uuid.UUID]*sessionWatch)
		seasonSub := s.seasonSub
		s.seasonSub = nil
		s.mu.Unlock()

		for _, w := range watches {
			w.cancel()
			_ = w.sub.Close()
		}
		if seasonSub != nil {
			_ = seasonSub.Close()
		}
		s.wg.Wait()
	})
}

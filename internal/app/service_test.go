package app

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/eventbus"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/momentum"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/presence"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/ranking"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockProvider struct{}

func (mockProvider) Ping(context.Context) error { return nil }
func (mockProvider) CreateSession(context.Context) (*domain.StreamHandle, error) {
	return &domain.StreamHandle{ExternalID: "ext-1", PlaybackURL: "https://cdn.example/live/1"}, nil
}
func (mockProvider) EndSession(context.Context, string) error { return nil }

type mockSessionRepo struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]*domain.Session
	ended        []uuid.UUID
	viewerCounts map[uuid.UUID]int
	staleLive    []uuid.UUID
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions:     make(map[uuid.UUID]*domain.Session),
		viewerCounts: make(map[uuid.UUID]int),
	}
}

func (m *mockSessionRepo) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) Get(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) UpdateState(_ context.Context, id uuid.UUID, state domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.State = state
	return nil
}

func (m *mockSessionRepo) MarkEnded(_ context.Context, id uuid.UUID, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, id)
	if s, ok := m.sessions[id]; ok {
		s.State = domain.StateEnded
		s.EndedAt = &endedAt
	}
	return nil
}

func (m *mockSessionRepo) UpdateViewerCount(_ context.Context, id uuid.UUID, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewerCounts[id] = count
	return nil
}

func (m *mockSessionRepo) ListStaleLive(context.Context, time.Duration) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.staleLive...), nil
}

func (m *mockSessionRepo) endedIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.ended...)
}

func (m *mockSessionRepo) viewerCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewerCounts[id]
}

type mockPresenceStore struct {
	mu      sync.Mutex
	members map[uuid.UUID]map[string]struct{}
}

func newMockPresenceStore() *mockPresenceStore {
	return &mockPresenceStore{members: make(map[uuid.UUID]map[string]struct{})}
}

func (m *mockPresenceStore) Join(_ context.Context, sessionID uuid.UUID, viewerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[sessionID] == nil {
		m.members[sessionID] = make(map[string]struct{})
	}
	m.members[sessionID][viewerID] = struct{}{}
	return nil
}

func (m *mockPresenceStore) Leave(_ context.Context, sessionID uuid.UUID, viewerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[sessionID], viewerID)
	return nil
}

func (m *mockPresenceStore) Members(_ context.Context, sessionID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.members[sessionID]))
	for v := range m.members[sessionID] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockPresenceStore) Clear(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, sessionID)
	return nil
}

type broadcastCall struct {
	sessionID uuid.UUID
	ev        domain.Event
}

type mockHub struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (m *mockHub) Broadcast(sessionID uuid.UUID, ev domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{sessionID: sessionID, ev: ev})
}

func (m *mockHub) received(sessionID uuid.UUID, kind domain.EventKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.sessionID == sessionID && c.ev.Kind == kind {
			return true
		}
	}
	return false
}

func (m *mockHub) lastOfKind(kind domain.EventKind) (domain.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].ev.Kind == kind {
			return m.calls[i].ev, true
		}
	}
	return domain.Event{}, false
}

// --- Fixture ---

type fixture struct {
	svc     *Service
	repo    *mockSessionRepo
	hub     *mockHub
	prStore *mockPresenceStore
	bus     *eventbus.MemoryBus
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClock()
	bus := eventbus.NewMemoryBus()
	pub := eventbus.NewPublisher(bus, clock)
	repo := newMockSessionRepo()
	prStore := newMockPresenceStore()
	hub := &mockHub{}

	agg := presence.NewAggregator(pub, clock)
	agg.Start()
	t.Cleanup(agg.Stop)

	momentumEngine := momentum.NewEngine(pub, clock, 5*time.Second)
	t.Cleanup(momentumEngine.Stop)

	rankingEngine := ranking.NewEngine(ranking.NewMemoryScoreStore(clock), pub, clock)

	svc := NewService(
		Options{SeasonID: "season-2026-3", SessionCreateTimeout: 10 * time.Second, OrphanSessionMaxAge: 5 * time.Minute},
		mockProvider{}, repo, bus, pub, agg, prStore, momentumEngine, rankingEngine, hub, clock,
	)
	t.Cleanup(svc.Stop)

	return &fixture{svc: svc, repo: repo, hub: hub, prStore: prStore, bus: bus, clock: clock}
}

func (f *fixture) startedSession(t *testing.T) *domain.Session {
	t.Helper()
	sess, err := f.svc.StartSession(context.Background(), "broadcaster-1", "friday roast")
	require.NoError(t, err)
	require.NoError(t, f.svc.GoLive(context.Background(), "broadcaster-1"))
	return sess
}

// --- Tests ---

func TestSendGift_ScoresAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	sess := f.startedSession(t)
	ctx := context.Background()

	combo, err := f.svc.SendGift(ctx, sess.ID, domain.GiftPayload{
		SenderID: "viewer-1", CreatorID: "creator-a", GiftID: "rose", Amount: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, combo.ComboCount)
	assert.InDelta(t, 1.1, combo.HypeMultiplier, 1e-9)

	progress, err := f.svc.Progress(ctx, "creator-a")
	require.NoError(t, err)
	assert.Equal(t, int64(110), progress.CompositeScore, "100 scaled by the 1.1 multiplier")

	require.Eventually(t, func() bool {
		return f.hub.received(sess.ID, domain.EventGiftSent)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendGift_ComboCompoundsWithinWindow(t *testing.T) {
	f := newFixture(t)
	sess := f.startedSession(t)
	ctx := context.Background()

	gift := domain.GiftPayload{SenderID: "viewer-1", CreatorID: "creator-a", GiftID: "rose", Amount: 100}

	_, err := f.svc.SendGift(ctx, sess.ID, gift)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	combo, err := f.svc.SendGift(ctx, sess.ID, gift)
	require.NoError(t, err)
	assert.Equal(t, 2, combo.ComboCount)

	progress, err := f.svc.Progress(ctx, "creator-a")
	require.NoError(t, err)
	assert.Equal(t, int64(230), progress.CompositeScore, "110 + 120 across the combo")
}

func TestSendGift_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	sess := f.startedSession(t)
	ctx := context.Background()

	_, err := f.svc.SendGift(ctx, sess.ID, domain.GiftPayload{CreatorID: "creator-a", Amount: 0})
	assert.Error(t, err)

	_, err = f.svc.SendGift(ctx, sess.ID, domain.GiftPayload{Amount: 50})
	assert.Error(t, err, "creator id is required")
}

func TestReportBattle_UsesCurrentHype(t *testing.T) {
	f := newFixture(t)
	sess := f.startedSession(t)
	ctx := context.Background()

	gift := domain.GiftPayload{SenderID: "viewer-1", CreatorID: "creator-a", GiftID: "rose", Amount: 10}
	_, err := f.svc.SendGift(ctx, sess.ID, gift)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.svc.SendGift(ctx, sess.ID, gift)
	require.NoError(t, err)

	// Multiplier is 1.2 after a two-gift combo.
	row, err := f.svc.ReportBattle(ctx, sess.ID, domain.BattlePayload{WinnerID: "creator-b", LoserID: "creator-c"})
	require.NoError(t, err)
	assert.Equal(t, int64(120), row.CompositeScore)
	assert.Equal(t, 1, row.BattleWinStreak)

	require.Eventually(t, func() bool {
		return f.hub.received(sess.ID, domain.EventBattleResult)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresence_SyncDrivesViewerCount(t *testing.T) {
	f := newFixture(t)
	sess := f.startedSession(t)
	ctx := context.Background()

	f.svc.OnViewerJoin(sess.ID, "viewer-1")
	f.svc.OnViewerJoin(sess.ID, "viewer-2")
	f.svc.OnViewerJoin(sess.ID, "viewer-3")

	f.svc.SyncPresence(ctx)

	require.Eventually(t, func() bool {
		ev, ok := f.hub.lastOfKind(domain.EventViewerCount)
		return ok && ev.Count == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.repo.viewerCount(sess.ID) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresence_LeaveShowsUpOnNextSync(t *testing.T) {
	f := newFixture(t)
	sess := f.startedSession(t)
	ctx := context.Background()

	f.svc.OnViewerJoin(sess.ID, "viewer-1")
	f.svc.OnViewerJoin(sess.ID, "viewer-2")
	f.svc.SyncPresence(ctx)
	require.Eventually(t, func() bool {
		ev, ok := f.hub.lastOfKind(domain.EventViewerCount)
		return ok && ev.Count == 2
	}, 2*time.Second, 10*time.Millisecond)

	f.svc.OnViewerLeave(sess.ID, "viewer-2")
	f.svc.SyncPresence(ctx)
	require.Eventually(t, func() bool {
		ev, ok := f.hub.lastOfKind(domain.EventViewerCount)
		return ok && ev.Count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionLifecycleEmitsChangeNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.StartSession(ctx, "broadcaster-1", "friday roast")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.hub.received(sess.ID, domain.EventSessionChanged)
	}, 2*time.Second, 10*time.Millisecond)
	ev, ok := f.hub.lastOfKind(domain.EventSessionChanged)
	require.True(t, ok)
	require.NotNil(t, ev.Change)
	assert.Equal(t, "sessions", ev.Change.Table)
	assert.Equal(t, "insert", ev.Change.Op)

	require.NoError(t, f.svc.GoLive(ctx, "broadcaster-1"))
	require.Eventually(t, func() bool {
		ev, ok := f.hub.lastOfKind(domain.EventSessionChanged)
		return ok && ev.Change != nil && ev.Change.Op == "update"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEndSession_TearsDownRealtimeState(t *testing.T) {
	f := newFixture(t)
	sess := f.startedSession(t)
	ctx := context.Background()

	f.svc.OnViewerJoin(sess.ID, "viewer-1")
	_, err := f.svc.SendGift(ctx, sess.ID, domain.GiftPayload{CreatorID: "creator-a", Amount: 10})
	require.NoError(t, err)

	require.NoError(t, f.svc.EndSession(ctx, "broadcaster-1"))

	assert.Empty(t, f.svc.watchedSessions())
	members, err := f.prStore.Members(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Contains(t, f.repo.endedIDs(), sess.ID)
}

func TestCleanupOrphanSessions_EndsStaleLive(t *testing.T) {
	f := newFixture(t)
	stale := uuid.New()
	f.repo.staleLive = []uuid.UUID{stale}

	f.svc.CleanupOrphanSessions(context.Background())

	assert.Equal(t, []uuid.UUID{stale}, f.repo.endedIDs())
}

func TestWatchSeason_ForwardsRankEventsToSessions(t *testing.T) {
	f := newFixture(t)
	sess := f.startedSession(t)
	ctx := context.Background()

	require.NoError(t, f.svc.WatchSeason(ctx))

	pub := eventbus.NewPublisher(f.bus, f.clock)
	require.NoError(t, pub.PublishTierUp(ctx, "season-2026-3", domain.RankPayload{
		CreatorID: "creator-a", OldTier: "bronze", NewTier: "silver",
	}))

	require.Eventually(t, func() bool {
		return f.hub.received(sess.ID, domain.EventTierUp)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResetSession_AllowsRestartAfterEnd(t *testing.T) {
	f := newFixture(t)
	sess := f.startedSession(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EndSession(ctx, "broadcaster-1"))
	f.svc.ResetSession(ctx, "broadcaster-1")

	state, current := f.svc.SessionState("broadcaster-1")
	assert.Equal(t, domain.StateIdle, state)
	assert.Nil(t, current)

	again, err := f.svc.StartSession(ctx, "broadcaster-1", "round two")
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, again.ID)
}

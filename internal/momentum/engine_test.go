package momentum

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type comboCall struct {
	sessionID uuid.UUID
	payload   domain.ComboPayload
}

type mockPublisher struct {
	mu     sync.Mutex
	combos []comboCall
}

func (m *mockPublisher) PublishComboUpdate(_ context.Context, sessionID uuid.UUID, combo domain.ComboPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.combos = append(m.combos, comboCall{sessionID: sessionID, payload: combo})
	return nil
}

func (m *mockPublisher) PublishViewerCount(context.Context, uuid.UUID, int) error { return nil }
func (m *mockPublisher) PublishRankUp(context.Context, string, domain.RankPayload) error {
	return nil
}
func (m *mockPublisher) PublishTierUp(context.Context, string, domain.RankPayload) error {
	return nil
}
func (m *mockPublisher) PublishScoreCorrected(context.Context, string, string) error { return nil }

func (m *mockPublisher) comboCalls() []comboCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]comboCall, len(m.combos))
	copy(out, m.combos)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *mockPublisher, *clockwork.FakeClock) {
	t.Helper()
	pub := &mockPublisher{}
	clock := clockwork.NewFakeClock()
	engine := NewEngine(pub, clock, DefaultComboWindow)
	t.Cleanup(engine.Stop)
	return engine, pub, clock
}

func TestComboSequenceAcrossGaps(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	sessionID := uuid.New()
	ctx := context.Background()

	gaps := []time.Duration{time.Second, 2 * time.Second, time.Second, 6 * time.Second, time.Second}
	wantCombos := []int{1, 2, 3, 1, 2}
	wantMultipliers := []float64{1.1, 1.2, 1.3, 1.1, 1.2}

	for i, gap := range gaps {
		clock.Advance(gap)
		payload, err := engine.ApplyGift(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, wantCombos[i], payload.ComboCount, "gift %d", i)
		assert.InDelta(t, wantMultipliers[i], payload.HypeMultiplier, 1e-9, "gift %d", i)
	}
}

func TestMultiplierNeverExceedsCap(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	sessionID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		clock.Advance(time.Second)
		payload, err := engine.ApplyGift(ctx, sessionID)
		require.NoError(t, err)
		assert.LessOrEqual(t, payload.HypeMultiplier, 3.0)
	}

	payload := engine.Current(sessionID)
	assert.Equal(t, 100, payload.ComboCount)
	assert.InDelta(t, 3.0, payload.HypeMultiplier, 1e-9)
}

func TestGapEqualToWindowResets(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	sessionID := uuid.New()
	ctx := context.Background()

	_, err := engine.ApplyGift(ctx, sessionID)
	require.NoError(t, err)

	// The combo window is exclusive: a gap of exactly 5s does not extend.
	clock.Advance(DefaultComboWindow)
	payload, err := engine.ApplyGift(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.ComboCount)
	assert.InDelta(t, 1.1, payload.HypeMultiplier, 1e-9)
}

func TestSessionsProcessIndependently(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	first := uuid.New()
	second := uuid.New()
	ctx := context.Background()

	clock.Advance(time.Second)
	_, err := engine.ApplyGift(ctx, first)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = engine.ApplyGift(ctx, first)
	require.NoError(t, err)

	clock.Advance(time.Second)
	payload, err := engine.ApplyGift(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.ComboCount, "a fresh session starts its own combo")

	payload, err = engine.ApplyGift(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 3, payload.ComboCount, "other sessions' gifts do not interleave")
}

func TestPublishesComboUpdates(t *testing.T) {
	engine, pub, clock := newTestEngine(t)
	sessionID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		clock.Advance(time.Second)
		_, err := engine.ApplyGift(ctx, sessionID)
		require.NoError(t, err)
	}

	calls := pub.comboCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, sessionID, calls[0].sessionID)
	assert.Equal(t, 1, calls[0].payload.ComboCount)
	assert.Equal(t, 2, calls[1].payload.ComboCount)
}

func TestClearSessionResetsCombo(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	sessionID := uuid.New()
	ctx := context.Background()

	clock.Advance(time.Second)
	_, err := engine.ApplyGift(ctx, sessionID)
	require.NoError(t, err)
	clock.Advance(time.Second)
	payload, err := engine.ApplyGift(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, 2, payload.ComboCount)

	engine.ClearSession(sessionID)
	assert.Equal(t, domain.ComboPayload{}, engine.Current(sessionID))

	// A new gift inside what would have been the old window starts fresh.
	clock.Advance(time.Second)
	payload, err = engine.ApplyGift(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.ComboCount)
}

func TestClearSessionDuringConcurrentGifts(t *testing.T) {
	pub := &mockPublisher{}
	engine := NewEngine(pub, clockwork.NewRealClock(), DefaultComboWindow)
	t.Cleanup(engine.Stop)

	sessionID := uuid.New()
	ctx := context.Background()

	// Gifts keep arriving while the session is torn down over and over, the
	// same shape as EndSession or the orphan sweep racing in-flight requests.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, err := engine.ApplyGift(ctx, sessionID)
				assert.NoError(t, err)
			}
		}()
	}

	for i := 0; i < 500; i++ {
		engine.ClearSession(sessionID)
	}
	close(stop)
	wg.Wait()

	engine.ClearSession(sessionID)
	payload, err := engine.ApplyGift(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.ComboCount, "a gift after teardown starts a fresh combo")
}

func TestApplyGiftAfterStopFails(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.Stop()

	_, err := engine.ApplyGift(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestCurrentBeforeFirstGiftIsZero(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	assert.Equal(t, domain.ComboPayload{}, engine.Current(uuid.New()))
}

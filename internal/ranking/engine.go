// Package ranking maintains creator season scores, tiers and ranks, and the
// moderation audit ledger.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	// battleBaseAward is the score credited for winning one battle, before
	// hype scaling and streak bonus.
	battleBaseAward = 100

	// battleStreakBonus is the extra score per consecutive win beyond the
	// first. A streak only counts wins with no loss in between.
	battleStreakBonus = 25
)

// Progress is one creator's standing as exposed to the UI layer.
type Progress struct {
	SeasonID       string  `json:"season_id"`
	CreatorID      string  `json:"creator_id"`
	CompositeScore int64   `json:"composite_score"`
	Tier           string  `json:"tier"`
	NextTier       string  `json:"next_tier,omitempty"`
	Percent        float64 `json:"percent"`
	Rank           int     `json:"rank,omitempty"`
	WinStreak      int     `json:"win_streak"`
}

// Engine applies score-changing events to the store and emits tier-up and
// rank-up notifications. Gameplay increments and moderation corrections for
// the same (season, creator) go through the same per-key lock, so the two
// paths can never interleave and lose updates. Ranks are recomputed
// periodically via RefreshRanks, not per event.
type Engine struct {
	store     domain.ScoreStore
	publisher domain.EventPublisher
	clock     clockwork.Clock

	lockMu sync.Mutex
	locks  map[scoreKey]*sync.Mutex

	rankMu sync.Mutex
	ranks  map[scoreKey]int

	refreshGroup singleflight.Group
}

func NewEngine(store domain.ScoreStore, publisher domain.EventPublisher, clock clockwork.Clock) *Engine {
	return &Engine{
		store:     store,
		publisher: publisher,
		clock:     clock,
		locks:     make(map[scoreKey]*sync.Mutex),
		ranks:     make(map[scoreKey]int),
	}
}

// keyLock returns the mutex serializing all mutations for one
// (season, creator). Locks are never freed; the key space is bounded by the
// number of creators active in a season.
func (e *Engine) keyLock(key scoreKey) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// ApplyGift credits a gift to the creator's season score. The hype multiplier
// scales the increment, never the stored score.
func (e *Engine) ApplyGift(ctx context.Context, seasonID string, gift domain.GiftPayload, hypeMultiplier float64) (*domain.CreatorSeasonScore, error) {
	if gift.Amount < 0 {
		return nil, fmt.Errorf("gift amount must be non-negative, got %d", gift.Amount)
	}
	if hypeMultiplier < 1.0 {
		hypeMultiplier = 1.0
	}
	delta := int64(math.Round(float64(gift.Amount) * hypeMultiplier))

	key := scoreKey{seasonID: seasonID, creatorID: gift.CreatorID}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	before := e.currentTier(ctx, key)
	row, err := e.store.Increment(ctx, seasonID, gift.CreatorID, delta)
	if err != nil {
		return nil, fmt.Errorf("gift increment failed: %v: %w", err, domain.ErrPersistenceFailed)
	}
	metrics.ScoreIncrementsTotal.WithLabelValues("gift").Inc()

	e.notifyTierChange(ctx, seasonID, gift.CreatorID, before, row.RankTier)
	return row, nil
}

// ApplyBattleResult credits the winner and maintains both creators' win
// streaks: the winner's streak extends by one, the loser's resets to zero.
// The award is the base amount scaled by hype plus a bonus per consecutive
// win beyond the first.
func (e *Engine) ApplyBattleResult(ctx context.Context, seasonID string, battle domain.BattlePayload, hypeMultiplier float64) (*domain.CreatorSeasonScore, error) {
	if battle.WinnerID == battle.LoserID {
		return nil, fmt.Errorf("battle winner and loser must differ")
	}
	if hypeMultiplier < 1.0 {
		hypeMultiplier = 1.0
	}

	winnerKey := scoreKey{seasonID: seasonID, creatorID: battle.WinnerID}
	loserKey := scoreKey{seasonID: seasonID, creatorID: battle.LoserID}
	// Both rows change; take the locks in a deterministic order.
	first, second := winnerKey, loserKey
	if second.creatorID < first.creatorID {
		first, second = second, first
	}
	firstLock, secondLock := e.keyLock(first), e.keyLock(second)
	firstLock.Lock()
	defer firstLock.Unlock()
	secondLock.Lock()
	defer secondLock.Unlock()

	streak := 1
	if winner, err := e.store.Get(ctx, seasonID, battle.WinnerID); err == nil {
		streak = winner.BattleWinStreak + 1
	}

	award := int64(math.Round(battleBaseAward*hypeMultiplier)) + int64(battleStreakBonus*(streak-1))
	before := e.currentTier(ctx, winnerKey)
	row, err := e.store.RecordBattleOutcome(ctx, seasonID, battle.WinnerID, battle.LoserID, award, streak)
	if err != nil {
		return nil, fmt.Errorf("battle outcome write failed: %v: %w", err, domain.ErrPersistenceFailed)
	}
	metrics.ScoreIncrementsTotal.WithLabelValues("battle").Inc()

	e.notifyTierChange(ctx, seasonID, battle.WinnerID, before, row.RankTier)
	return row, nil
}

// ApplyWatchTime credits accumulated watch-time points to a creator.
func (e *Engine) ApplyWatchTime(ctx context.Context, seasonID, creatorID string, points int64) (*domain.CreatorSeasonScore, error) {
	if points < 0 {
		return nil, fmt.Errorf("watch-time points must be non-negative, got %d", points)
	}

	key := scoreKey{seasonID: seasonID, creatorID: creatorID}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	before := e.currentTier(ctx, key)
	row, err := e.store.Increment(ctx, seasonID, creatorID, points)
	if err != nil {
		return nil, fmt.Errorf("watch-time increment failed: %v: %w", err, domain.ErrPersistenceFailed)
	}
	metrics.ScoreIncrementsTotal.WithLabelValues("watch_time").Inc()

	e.notifyTierChange(ctx, seasonID, creatorID, before, row.RankTier)
	return row, nil
}

// ApplyModerationCorrection overwrites a creator's score on behalf of a
// moderator. The audit entry and the score update land atomically: on any
// failure the prior state is fully intact and the error is surfaced
// synchronously, never queued for retry. Authorization is the caller's job.
func (e *Engine) ApplyModerationCorrection(ctx context.Context, c domain.Correction) (*domain.AuditEntry, error) {
	if c.Reason == "" {
		return nil, fmt.Errorf("correction requires a reason")
	}
	if c.ActorID == "" {
		return nil, fmt.Errorf("correction requires an actor id")
	}
	if c.NewScore < 0 {
		return nil, fmt.Errorf("corrected score must be non-negative, got %d", c.NewScore)
	}

	key := scoreKey{seasonID: c.SeasonID, creatorID: c.CreatorID}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	newTier := TierForScore(c.NewScore)
	entry, err := e.store.ApplyCorrection(ctx, c, newTier, e.clock.Now())
	if err != nil {
		metrics.ModerationCorrectionsTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("correction write failed: %v: %w", err, domain.ErrPersistenceFailed)
	}
	metrics.ModerationCorrectionsTotal.WithLabelValues("applied").Inc()

	slog.InfoContext(ctx, "Moderation correction applied",
		"season_id", c.SeasonID,
		"creator_id", c.CreatorID,
		"old_score", entry.OldScore,
		"new_score", entry.NewScore,
		"actor_id", c.ActorID)

	if err := e.publisher.PublishScoreCorrected(ctx, c.SeasonID, c.CreatorID); err != nil {
		slog.Error("Failed to publish score correction", "creator_id", c.CreatorID, "error", err)
	}
	e.notifyTierChange(ctx, c.SeasonID, c.CreatorID, entry.OldTier, entry.NewTier)
	return entry, nil
}

// ProgressFor returns a creator's current standing, including percent
// progress to the next tier and the last computed rank.
func (e *Engine) ProgressFor(ctx context.Context, seasonID, creatorID string) (*Progress, error) {
	row, err := e.store.Get(ctx, seasonID, creatorID)
	if err != nil {
		return nil, err
	}

	p := &Progress{
		SeasonID:       seasonID,
		CreatorID:      creatorID,
		CompositeScore: row.CompositeScore,
		Tier:           row.RankTier,
		Percent:        ProgressToNextTier(row.CompositeScore),
		WinStreak:      row.BattleWinStreak,
	}
	if next, ok := NextTier(row.RankTier); ok {
		p.NextTier = next.Name
	}

	e.rankMu.Lock()
	p.Rank = e.ranks[scoreKey{seasonID: seasonID, creatorID: creatorID}]
	e.rankMu.Unlock()
	return p, nil
}

// AuditTrail returns the creator's correction ledger, oldest first.
func (e *Engine) AuditTrail(ctx context.Context, seasonID, creatorID string) ([]domain.AuditEntry, error) {
	return e.store.AuditTrail(ctx, seasonID, creatorID)
}

// Leaderboard returns the season's current ordering.
func (e *Engine) Leaderboard(ctx context.Context, seasonID string) ([]domain.RankedScore, error) {
	return e.store.Leaderboard(ctx, seasonID)
}

// RefreshRanks recomputes the season's global ordering and emits a rank-up
// event for every creator whose numeric rank improved. Concurrent calls for
// the same season collapse into one recompute.
func (e *Engine) RefreshRanks(ctx context.Context, seasonID string) error {
	_, err, _ := e.refreshGroup.Do(seasonID, func() (any, error) {
		timer := e.clock.Now()
		rows, err := e.store.Leaderboard(ctx, seasonID)
		if err != nil {
			return nil, fmt.Errorf("leaderboard read failed: %v: %w", err, domain.ErrPersistenceFailed)
		}

		type rankChange struct {
			creatorID string
			oldRank   int
			newRank   int
		}
		var ups []rankChange

		e.rankMu.Lock()
		for _, row := range rows {
			key := scoreKey{seasonID: seasonID, creatorID: row.CreatorID}
			old := e.ranks[key]
			if old != 0 && row.Rank < old {
				ups = append(ups, rankChange{creatorID: row.CreatorID, oldRank: old, newRank: row.Rank})
			}
			e.ranks[key] = row.Rank
		}
		e.rankMu.Unlock()

		for _, up := range ups {
			payload := domain.RankPayload{CreatorID: up.creatorID, OldRank: up.oldRank, NewRank: up.newRank}
			if err := e.publisher.PublishRankUp(ctx, seasonID, payload); err != nil {
				slog.Error("Failed to publish rank up", "creator_id", up.creatorID, "error", err)
			}
		}

		metrics.RankRefreshDuration.Observe(e.clock.Since(timer).Seconds())
		return nil, nil
	})
	return err
}

// currentTier reads the creator's tier before a mutation. A missing row means
// the creator starts at the bottom of the ladder.
func (e *Engine) currentTier(ctx context.Context, key scoreKey) string {
	row, err := e.store.Get(ctx, key.seasonID, key.creatorID)
	if err != nil {
		return tierTable[0].Name
	}
	return row.RankTier
}

func (e *Engine) notifyTierChange(ctx context.Context, seasonID, creatorID, oldTier, newTier string) {
	if oldTier == newTier {
		return
	}
	payload := domain.RankPayload{CreatorID: creatorID, OldTier: oldTier, NewTier: newTier}
	if err := e.publisher.PublishTierUp(ctx, seasonID, payload); err != nil {
		slog.Error("Failed to publish tier change", "creator_id", creatorID, "error", err)
	}
}

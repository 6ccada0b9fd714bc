package ranking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type scoreKey struct {
	seasonID  string
	creatorID string
}

// MemoryScoreStore provides in-memory score state for single-instance mode
// and tests. The single mutex makes every operation atomic, including the
// two-row correction write.
type MemoryScoreStore struct {
	clock clockwork.Clock

	mu     sync.Mutex
	scores map[scoreKey]*domain.CreatorSeasonScore
	audits map[scoreKey][]domain.AuditEntry
}

func NewMemoryScoreStore(clock clockwork.Clock) *MemoryScoreStore {
	return &MemoryScoreStore{
		clock:  clock,
		scores: make(map[scoreKey]*domain.CreatorSeasonScore),
		audits: make(map[scoreKey][]domain.AuditEntry),
	}
}

func (s *MemoryScoreStore) Get(_ context.Context, seasonID, creatorID string) (*domain.CreatorSeasonScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.scores[scoreKey{seasonID: seasonID, creatorID: creatorID}]
	if !ok {
		return nil, fmt.Errorf("no score for creator %s in season %s: %w", creatorID, seasonID, domain.ErrNotFound)
	}
	cp := *row
	return &cp, nil
}

func (s *MemoryScoreStore) Increment(_ context.Context, seasonID, creatorID string, delta int64) (*domain.CreatorSeasonScore, error) {
	if delta < 0 {
		return nil, fmt.Errorf("gameplay delta must be non-negative, got %d", delta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.row(seasonID, creatorID)
	row.CompositeScore += delta
	row.RankTier = TierForScore(row.CompositeScore)
	row.UpdatedAt = s.clock.Now()
	cp := *row
	return &cp, nil
}

func (s *MemoryScoreStore) RecordBattleOutcome(_ context.Context, seasonID, winnerID, loserID string, delta int64, winnerStreak int) (*domain.CreatorSeasonScore, error) {
	if delta < 0 {
		return nil, fmt.Errorf("battle award must be non-negative, got %d", delta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	winner := s.row(seasonID, winnerID)
	winner.CompositeScore += delta
	winner.RankTier = TierForScore(winner.CompositeScore)
	winner.BattleWinStreak = winnerStreak
	winner.UpdatedAt = now

	loser := s.row(seasonID, loserID)
	loser.BattleWinStreak = 0
	loser.UpdatedAt = now

	cp := *winner
	return &cp, nil
}

func (s *MemoryScoreStore) ApplyCorrection(_ context.Context, c domain.Correction, newTier string, now time.Time) (*domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scoreKey{seasonID: c.SeasonID, creatorID: c.CreatorID}
	row, ok := s.scores[key]
	if !ok {
		return nil, fmt.Errorf("no score for creator %s in season %s: %w", c.CreatorID, c.SeasonID, domain.ErrNotFound)
	}

	entry := domain.AuditEntry{
		ID:        uuid.New(),
		SeasonID:  c.SeasonID,
		CreatorID: c.CreatorID,
		OldScore:  row.CompositeScore,
		NewScore:  c.NewScore,
		OldTier:   row.RankTier,
		NewTier:   newTier,
		Reason:    c.Reason,
		ActorID:   c.ActorID,
		CreatedAt: now,
	}
	s.audits[key] = append(s.audits[key], entry)

	row.CompositeScore = c.NewScore
	row.RankTier = newTier
	row.UpdatedAt = now

	cp := entry
	return &cp, nil
}

func (s *MemoryScoreStore) AuditTrail(_ context.Context, seasonID, creatorID string) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trail := s.audits[scoreKey{seasonID: seasonID, creatorID: creatorID}]
	out := make([]domain.AuditEntry, len(trail))
	copy(out, trail)
	return out, nil
}

func (s *MemoryScoreStore) Leaderboard(_ context.Context, seasonID string) ([]domain.RankedScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []domain.RankedScore
	for key, row := range s.scores {
		if key.seasonID != seasonID {
			continue
		}
		rows = append(rows, domain.RankedScore{CreatorID: key.creatorID, CompositeScore: row.CompositeScore})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CompositeScore != rows[j].CompositeScore {
			return rows[i].CompositeScore > rows[j].CompositeScore
		}
		return rows[i].CreatorID < rows[j].CreatorID
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

// row returns the live row for a key, creating it on first touch.
func (s *MemoryScoreStore) row(seasonID, creatorID string) *domain.CreatorSeasonScore {
	key := scoreKey{seasonID: seasonID, creatorID: creatorID}
	row, ok := s.scores[key]
	if !ok {
		row = &domain.CreatorSeasonScore{
			SeasonID:  seasonID,
			CreatorID: creatorID,
			RankTier:  tierTable[0].Name,
			UpdatedAt: s.clock.Now(),
		}
		s.scores[key] = row
	}
	return row
}

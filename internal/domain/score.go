package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreatorSeasonScore is one creator's standing in one season. CompositeScore
// only decreases through moderation corrections; every correction leaves an
// AuditEntry behind.
type CreatorSeasonScore struct {
	SeasonID        string    `db:"season_id"`
	CreatorID       string    `db:"creator_id"`
	CompositeScore  int64     `db:"composite_score"`
	RankTier        string    `db:"rank_tier"`
	Rank            int       `db:"rank"`
	BattleWinStreak int       `db:"battle_win_streak"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// AuditEntry is one immutable row of the moderation audit ledger.
type AuditEntry struct {
	ID        uuid.UUID `db:"id"`
	SeasonID  string    `db:"season_id"`
	CreatorID string    `db:"creator_id"`
	OldScore  int64     `db:"old_score"`
	NewScore  int64     `db:"new_score"`
	OldTier   string    `db:"old_tier"`
	NewTier   string    `db:"new_tier"`
	Reason    string    `db:"reason"`
	ActorID   string    `db:"actor_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Correction is a moderation request to overwrite a creator's score.
type Correction struct {
	SeasonID  string
	CreatorID string
	NewScore  int64
	Reason    string
	ActorID   string
}

// RankedScore is one leaderboard row, rank starting at 1.
type RankedScore struct {
	CreatorID      string
	CompositeScore int64
	Rank           int
}

// ScoreStore abstracts season score persistence. ApplyCorrection must write
// the audit entry and the new score atomically: either both land or neither.
type ScoreStore interface {
	Get(ctx context.Context, seasonID, creatorID string) (*CreatorSeasonScore, error)

	// Increment adds a non-negative delta to the composite score, creating the
	// row on first touch. Returns the updated row.
	Increment(ctx context.Context, seasonID, creatorID string, delta int64) (*CreatorSeasonScore, error)

	// RecordBattleOutcome credits the winner with delta points and the given
	// streak value, and resets the loser's streak to zero.
	RecordBattleOutcome(ctx context.Context, seasonID, winnerID, loserID string, delta int64, winnerStreak int) (*CreatorSeasonScore, error)

	// ApplyCorrection transactionally writes one audit entry and the new score.
	// Returns ErrNotFound when the creator has no score row this season.
	ApplyCorrection(ctx context.Context, c Correction, newTier string, now time.Time) (*AuditEntry, error)

	AuditTrail(ctx context.Context, seasonID, creatorID string) ([]AuditEntry, error)
	Leaderboard(ctx context.Context, seasonID string) ([]RankedScore, error)
}

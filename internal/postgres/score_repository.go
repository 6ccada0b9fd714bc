package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/ranking"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const scoreColumns = `season_id, creator_id, composite_score, rank_tier, battle_win_streak, updated_at`

// ScoreRepo implements domain.ScoreStore backed by PostgreSQL. The moderation
// correction path writes the audit entry and the score in one transaction.
type ScoreRepo struct {
	pool *pgxpool.Pool
}

func NewScoreRepo(pool *pgxpool.Pool) *ScoreRepo {
	return &ScoreRepo{pool: pool}
}

func (r *ScoreRepo) Get(ctx context.Context, seasonID, creatorID string) (*domain.CreatorSeasonScore, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scoreColumns+` FROM season_scores
		WHERE season_id = $1 AND creator_id = $2`,
		seasonID, creatorID)
	score, err := scanScore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no score for creator %s in season %s: %w", creatorID, seasonID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get season score: %w", err)
	}
	return score, nil
}

func (r *ScoreRepo) Increment(ctx context.Context, seasonID, creatorID string, delta int64) (*domain.CreatorSeasonScore, error) {
	if delta < 0 {
		return nil, fmt.Errorf("gameplay delta must be non-negative, got %d", delta)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO season_scores (season_id, creator_id, composite_score, rank_tier, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (season_id, creator_id) DO UPDATE
		SET composite_score = season_scores.composite_score + EXCLUDED.composite_score,
		    updated_at = now()
		RETURNING `+scoreColumns,
		seasonID, creatorID, delta, ranking.TierForScore(delta))
	score, err := scanScore(row)
	if err != nil {
		return nil, fmt.Errorf("failed to increment season score: %w", err)
	}
	return r.retier(ctx, score)
}

func (r *ScoreRepo) RecordBattleOutcome(ctx context.Context, seasonID, winnerID, loserID string, delta int64, winnerStreak int) (*domain.CreatorSeasonScore, error) {
	if delta < 0 {
		return nil, fmt.Errorf("battle award must be non-negative, got %d", delta)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin battle transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO season_scores (season_id, creator_id, composite_score, rank_tier, battle_win_streak, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (season_id, creator_id) DO UPDATE
		SET composite_score = season_scores.composite_score + EXCLUDED.composite_score,
		    battle_win_streak = EXCLUDED.battle_win_streak,
		    updated_at = now()
		RETURNING `+scoreColumns,
		seasonID, winnerID, delta, ranking.TierForScore(delta), winnerStreak)
	winner, err := scanScore(row)
	if err != nil {
		return nil, fmt.Errorf("failed to credit battle winner: %w", err)
	}

	winner.RankTier = ranking.TierForScore(winner.CompositeScore)
	if _, err := tx.Exec(ctx, `
		UPDATE season_scores SET rank_tier = $3 WHERE season_id = $1 AND creator_id = $2`,
		seasonID, winnerID, winner.RankTier); err != nil {
		return nil, fmt.Errorf("failed to retier battle winner: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO season_scores (season_id, creator_id, battle_win_streak, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (season_id, creator_id) DO UPDATE
		SET battle_win_streak = 0, updated_at = now()`,
		seasonID, loserID); err != nil {
		return nil, fmt.Errorf("failed to reset loser streak: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit battle transaction: %w", err)
	}
	return winner, nil
}

// ApplyCorrection writes the audit entry and the corrected score in one
// transaction: either both land or neither does.
func (r *ScoreRepo) ApplyCorrection(ctx context.Context, c domain.Correction, newTier string, now time.Time) (*domain.AuditEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin correction transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT composite_score, rank_tier FROM season_scores
		WHERE season_id = $1 AND creator_id = $2
		FOR UPDATE`,
		c.SeasonID, c.CreatorID)

	var oldScore int64
	var oldTier string
	if err := row.Scan(&oldScore, &oldTier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no score for creator %s in season %s: %w", c.CreatorID, c.SeasonID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read score for correction: %w", err)
	}

	entry := &domain.AuditEntry{
		ID:        uuid.New(),
		SeasonID:  c.SeasonID,
		CreatorID: c.CreatorID,
		OldScore:  oldScore,
		NewScore:  c.NewScore,
		OldTier:   oldTier,
		NewTier:   newTier,
		Reason:    c.Reason,
		ActorID:   c.ActorID,
		CreatedAt: now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_entries (id, season_id, creator_id, old_score, new_score, old_tier, new_tier, reason, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.SeasonID, entry.CreatorID, entry.OldScore, entry.NewScore,
		entry.OldTier, entry.NewTier, entry.Reason, entry.ActorID, entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert audit entry: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE season_scores SET composite_score = $3, rank_tier = $4, updated_at = $5
		WHERE season_id = $1 AND creator_id = $2`,
		c.SeasonID, c.CreatorID, c.NewScore, newTier, now); err != nil {
		return nil, fmt.Errorf("failed to apply corrected score: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit correction: %w", err)
	}
	return entry, nil
}

func (r *ScoreRepo) AuditTrail(ctx context.Context, seasonID, creatorID string) ([]domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, season_id, creator_id, old_score, new_score, old_tier, new_tier, reason, actor_id, created_at
		FROM audit_entries
		WHERE season_id = $1 AND creator_id = $2
		ORDER BY created_at, id`,
		seasonID, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var trail []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.SeasonID, &e.CreatorID, &e.OldScore, &e.NewScore,
			&e.OldTier, &e.NewTier, &e.Reason, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		trail = append(trail, e)
	}
	return trail, rows.Err()
}

func (r *ScoreRepo) Leaderboard(ctx context.Context, seasonID string) ([]domain.RankedScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT creator_id, composite_score,
		       RANK() OVER (ORDER BY composite_score DESC, creator_id) AS rank
		FROM season_scores
		WHERE season_id = $1
		ORDER BY rank`,
		seasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var board []domain.RankedScore
	for rows.Next() {
		var rs domain.RankedScore
		if err := rows.Scan(&rs.CreatorID, &rs.CompositeScore, &rs.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		board = append(board, rs)
	}
	return board, rows.Err()
}

// retier recomputes the stored tier after an increment. Kept as a separate
// statement so the increment stays a single upsert.
func (r *ScoreRepo) retier(ctx context.Context, score *domain.CreatorSeasonScore) (*domain.CreatorSeasonScore, error) {
	tier := ranking.TierForScore(score.CompositeScore)
	if tier == score.RankTier {
		return score, nil
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE season_scores SET rank_tier = $3 WHERE season_id = $1 AND creator_id = $2`,
		score.SeasonID, score.CreatorID, tier); err != nil {
		return nil, fmt.Errorf("failed to update rank tier: %w", err)
	}
	score.RankTier = tier
	return score, nil
}

func scanScore(row pgx.Row) (*domain.CreatorSeasonScore, error) {
	var s domain.CreatorSeasonScore
	err := row.Scan(&s.SeasonID, &s.CreatorID, &s.CompositeScore, &s.RankTier, &s.BattleWinStreak, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

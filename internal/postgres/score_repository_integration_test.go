package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeason = "season-2026-3"

func TestScoreRepo_IncrementCreatesRow(t *testing.T) {
	repo := NewScoreRepo(setupTestDB(t))
	ctx := context.Background()

	row, err := repo.Increment(ctx, testSeason, "creator-a", 150)
	require.NoError(t, err)
	assert.Equal(t, int64(150), row.CompositeScore)
	assert.Equal(t, "bronze", row.RankTier)

	row, err = repo.Increment(ctx, testSeason, "creator-a", 900)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), row.CompositeScore)
	assert.Equal(t, "silver", row.RankTier, "crossing 1000 promotes to silver")
}

func TestScoreRepo_GetMissing(t *testing.T) {
	repo := NewScoreRepo(setupTestDB(t))
	_, err := repo.Get(context.Background(), testSeason, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScoreRepo_BattleOutcome(t *testing.T) {
	repo := NewScoreRepo(setupTestDB(t))
	ctx := context.Background()

	winner, err := repo.RecordBattleOutcome(ctx, testSeason, "creator-a", "creator-b", 100, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), winner.CompositeScore)
	assert.Equal(t, 1, winner.BattleWinStreak)

	winner, err = repo.RecordBattleOutcome(ctx, testSeason, "creator-a", "creator-b", 125, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(225), winner.CompositeScore)
	assert.Equal(t, 2, winner.BattleWinStreak)

	// The loser's row exists with streak zero and no score.
	loser, err := repo.Get(ctx, testSeason, "creator-b")
	require.NoError(t, err)
	assert.Equal(t, int64(0), loser.CompositeScore)
	assert.Equal(t, 0, loser.BattleWinStreak)

	// Losing resets the former winner's streak.
	_, err = repo.RecordBattleOutcome(ctx, testSeason, "creator-b", "creator-a", 100, 1)
	require.NoError(t, err)
	former, err := repo.Get(ctx, testSeason, "creator-a")
	require.NoError(t, err)
	assert.Equal(t, 0, former.BattleWinStreak)
}

func TestScoreRepo_ApplyCorrection(t *testing.T) {
	repo := NewScoreRepo(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.Increment(ctx, testSeason, "creator-a", 1500)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	entry, err := repo.ApplyCorrection(ctx, domain.Correction{
		SeasonID:  testSeason,
		CreatorID: "creator-a",
		NewScore:  0,
		Reason:    "fraudulent gifting",
		ActorID:   "moderator-7",
	}, "bronze", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), entry.OldScore)
	assert.Equal(t, int64(0), entry.NewScore)
	assert.Equal(t, "silver", entry.OldTier)
	assert.Equal(t, "bronze", entry.NewTier)

	row, err := repo.Get(ctx, testSeason, "creator-a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), row.CompositeScore)
	assert.Equal(t, "bronze", row.RankTier)

	trail, err := repo.AuditTrail(ctx, testSeason, "creator-a")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, entry.ID, trail[0].ID)
	assert.Equal(t, "moderator-7", trail[0].ActorID)
}

func TestScoreRepo_ApplyCorrectionUnknownCreator(t *testing.T) {
	repo := NewScoreRepo(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.ApplyCorrection(ctx, domain.Correction{
		SeasonID:  testSeason,
		CreatorID: "nobody",
		NewScore:  0,
		Reason:    "fraud",
		ActorID:   "moderator-7",
	}, "bronze", time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Nothing was written.
	trail, err := repo.AuditTrail(ctx, testSeason, "nobody")
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestScoreRepo_Leaderboard(t *testing.T) {
	repo := NewScoreRepo(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.Increment(ctx, testSeason, "creator-a", 100)
	require.NoError(t, err)
	_, err = repo.Increment(ctx, testSeason, "creator-b", 300)
	require.NoError(t, err)
	_, err = repo.Increment(ctx, "other-season", "creator-c", 999)
	require.NoError(t, err)

	board, err := repo.Leaderboard(ctx, testSeason)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "creator-b", board[0].CreatorID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "creator-a", board[1].CreatorID)
	assert.Equal(t, 2, board[1].Rank)
}

package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForScore(t *testing.T) {
	tests := []struct {
		score int64
		want  string
	}{
		{0, "bronze"},
		{999, "bronze"},
		{1_000, "silver"},
		{4_999, "silver"},
		{5_000, "gold"},
		{19_999, "gold"},
		{20_000, "platinum"},
		{49_999, "platinum"},
		{50_000, "diamond"},
		{1_000_000, "diamond"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForScore(tt.score), "score %d", tt.score)
	}
}

func TestNextTier(t *testing.T) {
	next, ok := NextTier("bronze")
	assert.True(t, ok)
	assert.Equal(t, "silver", next.Name)

	_, ok = NextTier("diamond")
	assert.False(t, ok, "diamond is the top of the ladder")

	_, ok = NextTier("mythril")
	assert.False(t, ok)
}

func TestProgressToNextTier(t *testing.T) {
	tests := []struct {
		score int64
		want  float64
	}{
		{0, 0},
		{500, 50},
		{1_000, 0},    // silver floor
		{3_000, 50},   // halfway silver → gold
		{5_000, 0},    // gold floor
		{12_500, 50},  // halfway gold → platinum
		{50_000, 100}, // top tier
		{90_000, 100},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ProgressToNextTier(tt.score), 1e-9, "score %d", tt.score)
	}
}

func TestProgressMonotonicWithinTier(t *testing.T) {
	prev := ProgressToNextTier(1_000)
	for score := int64(1_001); score < 5_000; score += 13 {
		p := ProgressToNextTier(score)
		assert.GreaterOrEqual(t, p, prev, "score %d", score)
		assert.LessOrEqual(t, p, 100.0)
		prev = p
	}
}

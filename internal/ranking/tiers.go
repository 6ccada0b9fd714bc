package ranking

// Tier is one row of the season tier table.
type Tier struct {
	Name     string
	MinScore int64
}

// tierTable is the static season tier ladder, ordered ascending by MinScore.
var tierTable = []Tier{
	{Name: "bronze", MinScore: 0},
	{Name: "silver", MinScore: 1_000},
	{Name: "gold", MinScore: 5_000},
	{Name: "platinum", MinScore: 20_000},
	{Name: "diamond", MinScore: 50_000},
}

// TierForScore maps a composite score onto the tier ladder.
func TierForScore(score int64) string {
	tier := tierTable[0].Name
	for _, t := range tierTable {
		if score >= t.MinScore {
			tier = t.Name
		}
	}
	return tier
}

// NextTier returns the tier above the given one. ok is false at the top of
// the ladder or for an unknown tier name.
func NextTier(name string) (Tier, bool) {
	for i, t := range tierTable {
		if t.Name == name && i+1 < len(tierTable) {
			return tierTable[i+1], true
		}
	}
	return Tier{}, false
}

// ProgressToNextTier returns percent progress from the current tier floor to
// the next tier floor, clamped to [0, 100]. At the top tier progress is
// defined as 100.
func ProgressToNextTier(score int64) float64 {
	current := tierTable[0]
	for _, t := range tierTable {
		if score >= t.MinScore {
			current = t
		}
	}
	next, ok := NextTier(current.Name)
	if !ok {
		return 100
	}

	progress := float64(score-current.MinScore) / float64(next.MinScore-current.MinScore) * 100
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

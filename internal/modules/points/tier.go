package points

import "math"

// TierStatus is the display form of a user's tier.
// Tiers are based on all-time points and never demote.
type TierStatus struct {
	Tier          string  `json:"tier"`
	NextTier      string  `json:"next_tier"`      // Next tier to reach, or "max"
	CurrentPoints int     `json:"current_points"` // All-time total points
	TargetPoints  int     `json:"target_points"`  // Points needed for the next tier
	Progress      float64 `json:"progress"`       // Percentage towards the next tier (0-100)
	Level         int     `json:"level"`

	// Weekly activity context
	WeeklyPoints int    `json:"weekly_points"`
	WeeklyLabel  string `json:"weekly_label"`
}

const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
	TierDiamond  = "diamond"
)

// Tier thresholds (all-time)
const (
	PointsDiamond  = 10000
	PointsPlatinum = 5000
	PointsGold     = 2500
	PointsSilver   = 1000
	PointsBronze   = 0
)

// Weekly activity thresholds, from points earned since the week started.
const (
	WeeklyOnFire   = 300
	WeeklyTrending = 150
	WeeklyActive   = 50
)

// PointsPerLevel is the width of one level band.
const PointsPerLevel = 250

type tierBand struct {
	name      string
	threshold int
}

// ordered high to low
var tierBands = []tierBand{
	{TierDiamond, PointsDiamond},
	{TierPlatinum, PointsPlatinum},
	{TierGold, PointsGold},
	{TierSilver, PointsSilver},
	{TierBronze, PointsBronze},
}

// TierFor returns the highest tier whose threshold is <= total.
func TierFor(total int) string {
	for _, b := range tierBands {
		if total >= b.threshold {
			return b.name
		}
	}
	return TierBronze
}

// TierRank orders tiers; higher is better. Unknown names rank below bronze.
func TierRank(tier string) int {
	for i, b := range tierBands {
		if b.name == tier {
			return len(tierBands) - i
		}
	}
	return 0
}

func LevelFor(total int) int {
	if total < 0 {
		total = 0
	}
	return 1 + total/PointsPerLevel
}

// TierStatusFor calculates the tier status from all-time points only.
func TierStatusFor(total int) TierStatus {
	return TierStatusWithWeekly(total, 0)
}

// TierStatusWithWeekly calculates the complete status.
// - total: all-time points (for the tier)
// - weeklyPoints: points earned this week (for the activity label)
func TierStatusWithWeekly(total, weeklyPoints int) TierStatus {
	status := TierStatus{
		Tier:          TierFor(total),
		CurrentPoints: total,
		Level:         LevelFor(total),
		WeeklyPoints:  weeklyPoints,
	}

	switch status.Tier {
	case TierDiamond:
		status.NextTier = "max"
		status.TargetPoints = PointsDiamond
		status.Progress = 100
	case TierPlatinum:
		status.NextTier = TierDiamond
		status.TargetPoints = PointsDiamond
	case TierGold:
		status.NextTier = TierPlatinum
		status.TargetPoints = PointsPlatinum
	case TierSilver:
		status.NextTier = TierGold
		status.TargetPoints = PointsGold
	default:
		status.NextTier = TierSilver
		status.TargetPoints = PointsSilver
	}
	if status.Tier != TierDiamond && total > 0 {
		status.Progress = (float64(total) / float64(status.TargetPoints)) * 100
	}

	switch {
	case weeklyPoints >= WeeklyOnFire:
		status.WeeklyLabel = "on_fire"
	case weeklyPoints >= WeeklyTrending:
		status.WeeklyLabel = "trending"
	case weeklyPoints >= WeeklyActive:
		status.WeeklyLabel = "active"
	}

	// Round progress to 2 decimal places
	status.Progress = math.Round(status.Progress*100) / 100

	return status
}

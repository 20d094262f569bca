package dto

import (
	"anoa.com/gamiledger/internal/modules/points"
	"github.com/google/uuid"
)

const (
	TimeframeAllTime = "all_time"
	TimeframeWeekly  = "weekly"
	TimeframeMonthly = "monthly"
)

type LeaderboardQuery struct {
	Timeframe string `form:"timeframe" binding:"omitempty,oneof=all_time weekly monthly"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=50"`
}

// LeaderboardEntry represents a single user entry in the leaderboard.
// Position is 1-based. Points is the score for the requested timeframe;
// the tier status is always based on all-time points.
type LeaderboardEntry struct {
	UserID     uuid.UUID         `json:"user_id"`
	Username   string            `json:"username"`
	Position   int               `json:"position"`
	Points     int               `json:"points"`
	TierStatus points.TierStatus `json:"tier_status"`
}

type LeaderboardResponse struct {
	Timeframe string             `json:"timeframe"`
	Entries   []LeaderboardEntry `json:"entries"`
}

package dto

import (
	"time"

	"anoa.com/gamiledger/internal/modules/points"
	"github.com/google/uuid"
)

// AwardRequest is one credit to a user's ledger.
// SourceType/SourceID form the idempotency key; leave both empty for awards
// that may legitimately repeat.
type AwardRequest struct {
	UserID        uuid.UUID `json:"user_id" binding:"required"`
	Amount        int       `json:"amount" binding:"required,gt=0"`
	ActivityType  string    `json:"activity_type" binding:"required"`
	Description   string    `json:"description" binding:"max=500"`
	SourceType    string    `json:"source_type" binding:"omitempty,max=50"`
	SourceID      string    `json:"source_id" binding:"omitempty,max=100"`
	SkipGoalCheck bool      `json:"skip_goal_check"`
}

type AwardResult struct {
	UserID      uuid.UUID `json:"user_id"`
	NewTotal    int       `json:"new_total"`
	TierChanged bool      `json:"tier_changed"`
	OldTier     string    `json:"old_tier"`
	NewTier     string    `json:"new_tier"`
	Level       int       `json:"level"`
	StreakDays  int       `json:"streak_days"`
	Duplicate   bool      `json:"duplicate"`
}

type QuizResultRequest struct {
	UserID    uuid.UUID `json:"user_id" binding:"required"`
	AttemptID string    `json:"attempt_id" binding:"required,max=100"`
	Score     int       `json:"score" binding:"min=0,max=100"`
}

type ActivityResponse struct {
	ID           uint      `json:"id"`
	Amount       int       `json:"amount"`
	ActivityType string    `json:"activity_type"`
	Description  string    `json:"description"`
	TierAtAward  string    `json:"tier_at_award"`
	CreatedAt    time.Time `json:"created_at"`
}

type SnapshotResponse struct {
	UserID            uuid.UUID          `json:"user_id"`
	TotalPoints       int                `json:"total_points"`
	Status            points.TierStatus  `json:"status"`
	CurrentStreakDays int                `json:"current_streak_days"`
	LongestStreakDays int                `json:"longest_streak_days"`
	LastActivityDate  *time.Time         `json:"last_activity_date,omitempty"`
	Lifetime          LifetimeCounts     `json:"lifetime"`
	RecentActivities  []ActivityResponse `json:"recent_activities"`
}

type LifetimeCounts struct {
	Quizzes  int `json:"quizzes"`
	Comments int `json:"comments"`
	Projects int `json:"projects"`
	Quests   int `json:"quests"`
}

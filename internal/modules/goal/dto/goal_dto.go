package dto

import (
	"time"

	"github.com/google/uuid"
)

type GoalResponse struct {
	ID              uuid.UUID  `json:"id"`
	GoalType        string     `json:"goal_type"`
	Title           string     `json:"title"`
	WeekStart       string     `json:"week_start"`
	WeekEnd         string     `json:"week_end"`
	CurrentProgress int        `json:"current_progress"`
	TargetProgress  int        `json:"target_progress"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	PointsReward    int        `json:"points_reward"`
}

type WeekResponse struct {
	WeekStart string         `json:"week_start"`
	WeekEnd   string         `json:"week_end"`
	Goals     []GoalResponse `json:"goals"`
}

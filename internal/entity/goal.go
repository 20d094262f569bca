package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WeeklyGoal is one user's target for one goal type in one Monday-based week.
type WeeklyGoal struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_weekly_goal_week,priority:1" json:"user_id"`
	GoalType        string         `gorm:"size:50;not null;uniqueIndex:idx_weekly_goal_week,priority:2" json:"goal_type"`
	WeekStart       datatypes.Date `gorm:"not null;uniqueIndex:idx_weekly_goal_week,priority:3" json:"week_start"`
	WeekEnd         datatypes.Date `gorm:"not null" json:"week_end"`
	CurrentProgress int            `gorm:"not null;default:0" json:"current_progress"`
	TargetProgress  int            `gorm:"not null" json:"target_progress"`
	IsCompleted     bool           `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	PointsReward    int            `gorm:"not null" json:"points_reward"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (WeeklyGoal) TableName() string {
	return "weekly_goals"
}

func (g *WeeklyGoal) BeforeCreate(tx *gorm.DB) (err error) {
	if g.ID == uuid.Nil {
		g.ID, err = uuid.NewV7()
	}
	return
}

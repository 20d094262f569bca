package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserProgress is the per-user aggregate. Only the ledger writes it, and only
// through atomic increments or compare-and-set updates.
type UserProgress struct {
	UserID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"user_id"`
	TotalPoints          int             `gorm:"not null;default:0" json:"total_points"`
	Tier                 string          `gorm:"size:20;not null;default:bronze" json:"tier"`
	Level                int             `gorm:"not null;default:1" json:"level"`
	CurrentStreakDays    int             `gorm:"not null;default:0" json:"current_streak_days"`
	LongestStreakDays    int             `gorm:"not null;default:0" json:"longest_streak_days"`
	LastActivityDate     *datatypes.Date `json:"last_activity_date"`
	LifetimeQuizCount    int             `gorm:"not null;default:0" json:"lifetime_quiz_count"`
	LifetimeCommentCount int             `gorm:"not null;default:0" json:"lifetime_comment_count"`
	LifetimeProjectCount int             `gorm:"not null;default:0" json:"lifetime_project_count"`
	LifetimeQuestCount   int             `gorm:"not null;default:0" json:"lifetime_quest_count"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}

// LastActivity returns the stored calendar day, or nil when the user never acted.
func (p *UserProgress) LastActivity() *time.Time {
	if p.LastActivityDate == nil {
		return nil
	}
	t := time.Time(*p.LastActivityDate)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &day
}

// PointActivity is the append-only audit log of awards.
// Rows with a source are unique per (user_id, source_type, source_id); rows
// without one never collide because NULLs are distinct in unique indexes.
type PointActivity struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index:idx_activity_user_date,priority:1;uniqueIndex:idx_activity_source,priority:1" json:"user_id"`
	Amount       int       `gorm:"not null" json:"amount"`
	ActivityType string    `gorm:"size:50;not null" json:"activity_type"`
	Description  string    `gorm:"type:text" json:"description"`
	TierAtAward  string    `gorm:"size:20;not null" json:"tier_at_award"`
	SourceType   *string   `gorm:"size:50;uniqueIndex:idx_activity_source,priority:2" json:"source_type,omitempty"`
	SourceID     *string   `gorm:"size:100;uniqueIndex:idx_activity_source,priority:3" json:"source_id,omitempty"`
	CreatedAt    time.Time `gorm:"index:idx_activity_user_date,priority:2;index:idx_activity_date" json:"created_at"`
}

func (PointActivity) TableName() string {
	return "point_activities"
}

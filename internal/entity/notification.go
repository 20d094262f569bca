package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotificationTierUp         = "tier_up"
	NotificationQuestCompleted = "quest_completed"
	NotificationGoalCompleted  = "goal_completed"
)

type Notification struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"` // User who receives the notification
	EntityID   *uuid.UUID `gorm:"type:uuid" json:"entity_id,omitempty"`   // Quest, quest progress or goal
	EntityType string     `gorm:"type:varchar(50);not null" json:"entity_type"`
	Type       string     `gorm:"type:varchar(50);not null" json:"type"`
	Message    string     `gorm:"type:text" json:"message"`
	IsRead     bool       `gorm:"default:false" json:"is_read"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}

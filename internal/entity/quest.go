package entity

import (
	"fmt"
	"time"

	"anoa.com/gamiledger/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestCategory struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Slug        string    `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (QuestCategory) TableName() string {
	return "quest_categories"
}

func (c *QuestCategory) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID, err = uuid.NewV7()
	}
	return
}

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"

	TimeframeDaily  = "daily"
	TimeframeWeekly = "weekly"
)

// QuestRequirements are the predicates an action must satisfy to count.
// Zero values mean "no constraint".
type QuestRequirements struct {
	Action      string `json:"action,omitempty"`
	TargetCount int    `json:"target_count"`
	MinScore    *int   `json:"min_score,omitempty"`
	Timeframe   string `json:"timeframe,omitempty"`
	Topic       string `json:"topic,omitempty"`
	// UniqueItems counts each item id once. Only the last MaxTrackedItems ids
	// are remembered, so TargetCount may not exceed it.
	UniqueItems bool `json:"unique_items,omitempty"`
}

// QuestStep is one entry of a guided quest. Trigger names the action that advances past it.
type QuestStep struct {
	Title   string `json:"title"`
	Trigger string `json:"trigger"`
}

type Quest struct {
	ID                  uuid.UUID                             `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID          *uuid.UUID                            `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Category            *QuestCategory                        `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Slug                string                                `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	Title               string                                `gorm:"size:200;not null" json:"title"`
	Description         string                                `gorm:"type:text" json:"description"`
	QuestType           string                                `gorm:"size:50;not null;index" json:"quest_type"`
	Difficulty          string                                `gorm:"size:20;not null;default:easy" json:"difficulty"`
	Requirements        datatypes.JSONType[QuestRequirements] `json:"requirements"`
	PointsReward        int                                   `gorm:"not null" json:"points_reward"`
	IsDaily             bool                                  `gorm:"not null;default:false" json:"is_daily"`
	IsRepeatable        bool                                  `gorm:"not null;default:false" json:"is_repeatable"`
	RepeatCooldownHours int                                   `gorm:"not null;default:0" json:"repeat_cooldown_hours"`
	IsGuided            bool                                  `gorm:"not null;default:false" json:"is_guided"`
	Steps               datatypes.JSONSlice[QuestStep]        `json:"steps"`
	IsActive            bool                                  `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time                             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time                             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Quest) TableName() string {
	return "quests"
}

func (q *Quest) BeforeCreate(tx *gorm.DB) (err error) {
	if q.ID == uuid.Nil {
		q.ID, err = uuid.NewV7()
	}
	return
}

// Target is the number of counted actions (or steps, when guided) needed to complete.
func (q *Quest) Target() int {
	if q.IsGuided {
		if n := len(q.Steps); n > 0 {
			return n
		}
	}
	if t := q.Requirements.Data().TargetCount; t > 0 {
		return t
	}
	return 1
}

// Validate rejects definitions the engine cannot track faithfully.
func (q *Quest) Validate() error {
	req := q.Requirements.Data()
	if req.TargetCount < 0 {
		return fmt.Errorf("quest %s: negative target_count: %w", q.Slug, apperror.ErrInvalidInput)
	}
	if req.UniqueItems && req.TargetCount > MaxTrackedItems {
		return fmt.Errorf("quest %s: unique_items target_count %d exceeds %d: %w",
			q.Slug, req.TargetCount, MaxTrackedItems, apperror.ErrInvalidInput)
	}
	return nil
}

const (
	QuestStatusNotStarted = "not_started"
	QuestStatusInProgress = "in_progress"
	QuestStatusCompleted  = "completed"
	QuestStatusExpired    = "expired"
)

// MaxTrackedItems bounds ProgressData.Items.
const MaxTrackedItems = 50

// ProgressData is the bounded per-instance tracking blob.
type ProgressData struct {
	Items          []string       `json:"items,omitempty"`
	Actions        map[string]int `json:"actions,omitempty"`
	LastActivityAt *time.Time     `json:"last_activity_at,omitempty"`
}

// HasItem reports whether the item id was already counted.
func (d ProgressData) HasItem(id string) bool {
	for _, it := range d.Items {
		if it == id {
			return true
		}
	}
	return false
}

// Record returns a copy with the action counted and the item remembered.
// Only the most recent MaxTrackedItems ids are kept.
func (d ProgressData) Record(action, itemID string, at time.Time) ProgressData {
	out := ProgressData{
		Actions: make(map[string]int, len(d.Actions)+1),
	}
	for k, v := range d.Actions {
		out.Actions[k] = v
	}
	out.Actions[action]++
	out.Items = append(out.Items, d.Items...)
	if itemID != "" && !d.HasItem(itemID) {
		out.Items = append(out.Items, itemID)
	}
	if n := len(out.Items); n > MaxTrackedItems {
		out.Items = out.Items[n-MaxTrackedItems:]
	}
	at = at.UTC()
	out.LastActivityAt = &at
	return out
}

// QuestProgress is one user's instance of a quest. Attempt is the window key:
// the calendar day for daily quests, a sequence number for repeatable ones.
type QuestProgress struct {
	ID               uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID                        `gorm:"type:uuid;not null;uniqueIndex:idx_quest_progress_window,priority:1;index:idx_quest_progress_status,priority:1" json:"user_id"`
	QuestID          uuid.UUID                        `gorm:"type:uuid;not null;uniqueIndex:idx_quest_progress_window,priority:2" json:"quest_id"`
	Quest            *Quest                           `gorm:"foreignKey:QuestID" json:"quest,omitempty"`
	Attempt          int                              `gorm:"not null;default:0;uniqueIndex:idx_quest_progress_window,priority:3" json:"attempt"`
	Status           string                           `gorm:"size:20;not null;default:not_started;index:idx_quest_progress_status,priority:2" json:"status"`
	CurrentProgress  int                              `gorm:"not null;default:0" json:"current_progress"`
	TargetProgress   int                              `gorm:"not null" json:"target_progress"`
	ProgressData     datatypes.JSONType[ProgressData] `json:"progress_data"`
	CurrentStepIndex int                              `gorm:"not null;default:0" json:"current_step_index"`
	IsCompleted      bool                             `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt      *time.Time                       `json:"completed_at,omitempty"`
	PointsAwarded    int                              `gorm:"not null;default:0" json:"points_awarded"`
	StartedAt        *time.Time                       `json:"started_at,omitempty"`
	ExpiresAt        *time.Time                       `gorm:"index" json:"expires_at,omitempty"`
	Version          int                              `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QuestProgress) TableName() string {
	return "quest_progress"
}

func (p *QuestProgress) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID, err = uuid.NewV7()
	}
	return
}

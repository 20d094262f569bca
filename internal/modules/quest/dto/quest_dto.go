package dto

import (
	"time"

	"anoa.com/gamiledger/internal/entity"
	commonDto "anoa.com/gamiledger/pkg/dto"
	"github.com/google/uuid"
)

type CategoryResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
}

type CategoryFilter struct {
	Search string `form:"search"`
}

type QuestFilter struct {
	commonDto.Pagination
	Category   string `form:"category"`
	QuestType  string `form:"quest_type"`
	Difficulty string `form:"difficulty" binding:"omitempty,oneof=easy medium hard"`
}

type SearchQuery struct {
	Query string `form:"q" binding:"required,max=100"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=50"`
}

type QuestResponse struct {
	ID                  uuid.UUID                `json:"id"`
	Slug                string                   `json:"slug"`
	Title               string                   `json:"title"`
	Description         string                   `json:"description"`
	QuestType           string                   `json:"quest_type"`
	Difficulty          string                   `json:"difficulty"`
	Requirements        entity.QuestRequirements `json:"requirements"`
	PointsReward        int                      `json:"points_reward"`
	IsDaily             bool                     `json:"is_daily"`
	IsRepeatable        bool                     `json:"is_repeatable"`
	RepeatCooldownHours int                      `json:"repeat_cooldown_hours"`
	IsGuided            bool                     `json:"is_guided"`
	Steps               []entity.QuestStep       `json:"steps,omitempty"`
	Target              int                      `json:"target"`
	Category            *CategoryResponse        `json:"category,omitempty"`
}

type PaginatedQuestResponse struct {
	Data []QuestResponse         `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

type ProgressFilter struct {
	commonDto.Pagination
	Status string `form:"status" binding:"omitempty,oneof=not_started in_progress completed expired"`
}

type ProgressResponse struct {
	ID               uuid.UUID      `json:"id"`
	QuestID          uuid.UUID      `json:"quest_id"`
	Quest            *QuestResponse `json:"quest,omitempty"`
	Attempt          int            `json:"attempt"`
	Status           string         `json:"status"`
	CurrentProgress  int            `json:"current_progress"`
	TargetProgress   int            `json:"target_progress"`
	CurrentStepIndex int            `json:"current_step_index"`
	IsCompleted      bool           `json:"is_completed"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	PointsAwarded    int            `json:"points_awarded"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
}

type PaginatedProgressResponse struct {
	Data []ProgressResponse       `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

// TrackActionRequest is how a collaborator service reports one action a
// user performed.
type TrackActionRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Action string    `json:"action" binding:"required,max=50"`
	Score  *int      `json:"score" binding:"omitempty,min=0,max=100"`
	Topic  string    `json:"topic" binding:"max=100"`
	ItemID string    `json:"item_id" binding:"max=100"`
}

type TrackActionResponse struct {
	CompletedQuestIDs []uuid.UUID `json:"completed_quest_ids"`
}

type CompleteRequest struct {
	Force bool `json:"force"`
}

type CompletionResult struct {
	ProgressID       uuid.UUID `json:"progress_id"`
	QuestID          uuid.UUID `json:"quest_id"`
	AlreadyCompleted bool      `json:"already_completed"`
	PointsAwarded    int       `json:"points_awarded"`
	NewTotal         int       `json:"new_total"`
	TierChanged      bool      `json:"tier_changed"`
	NewTier          string    `json:"new_tier,omitempty"`
}

type CanCompleteResponse struct {
	CanComplete bool   `json:"can_complete"`
	Reason      string `json:"reason,omitempty"`
}

func NewQuestResponse(q *entity.Quest) QuestResponse {
	res := QuestResponse{
		ID:                  q.ID,
		Slug:                q.Slug,
		Title:               q.Title,
		Description:         q.Description,
		QuestType:           q.QuestType,
		Difficulty:          q.Difficulty,
		Requirements:        q.Requirements.Data(),
		PointsReward:        q.PointsReward,
		IsDaily:             q.IsDaily,
		IsRepeatable:        q.IsRepeatable,
		RepeatCooldownHours: q.RepeatCooldownHours,
		IsGuided:            q.IsGuided,
		Steps:               q.Steps,
		Target:              q.Target(),
	}
	if q.Category != nil {
		res.Category = &CategoryResponse{
			ID:          q.Category.ID,
			Name:        q.Category.Name,
			Slug:        q.Category.Slug,
			Description: q.Category.Description,
		}
	}
	return res
}

func NewProgressResponse(p *entity.QuestProgress) ProgressResponse {
	res := ProgressResponse{
		ID:               p.ID,
		QuestID:          p.QuestID,
		Attempt:          p.Attempt,
		Status:           p.Status,
		CurrentProgress:  p.CurrentProgress,
		TargetProgress:   p.TargetProgress,
		CurrentStepIndex: p.CurrentStepIndex,
		IsCompleted:      p.IsCompleted,
		CompletedAt:      p.CompletedAt,
		PointsAwarded:    p.PointsAwarded,
		StartedAt:        p.StartedAt,
		ExpiresAt:        p.ExpiresAt,
	}
	if p.Quest != nil {
		q := NewQuestResponse(p.Quest)
		res.Quest = &q
	}
	return res
}

package repository

import (
	"context"
	"time"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/pkg/dbctx"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressUpdate is the new state written by a successful compare-and-set.
type ProgressUpdate struct {
	CurrentProgress  int
	CurrentStepIndex int
	Data             entity.ProgressData
}

type ProgressRepository interface {
	// Create inserts the instance unless its (user, quest, attempt) window
	// already exists. It reports whether a row was inserted.
	Create(dbc dbctx.Context, progress *entity.QuestProgress) (bool, error)
	FindByID(dbc dbctx.Context, id uuid.UUID) (*entity.QuestProgress, error)
	FindByWindow(dbc dbctx.Context, userID, questID uuid.UUID, attempt int) (*entity.QuestProgress, error)
	LatestAttempt(dbc dbctx.Context, userID, questID uuid.UUID) (*entity.QuestProgress, error)
	FindInProgressByTypes(dbc dbctx.Context, userID uuid.UUID, types []string) ([]entity.QuestProgress, error)
	FindByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]entity.QuestProgress, int64, error)

	// UpdateCAS applies update only while the row still carries version.
	UpdateCAS(dbc dbctx.Context, id uuid.UUID, version int, update ProgressUpdate) (bool, error)
	// MarkCompleted flips an open instance to completed. False means another
	// writer completed it first.
	MarkCompleted(dbc dbctx.Context, id uuid.UUID, at time.Time, pointsAwarded int) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type progressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) Create(dbc dbctx.Context, progress *entity.QuestProgress) (bool, error) {
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "quest_id"}, {Name: "attempt"}},
			DoNothing: true,
		}).
		Create(progress)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *progressRepository) FindByID(dbc dbctx.Context, id uuid.UUID) (*entity.QuestProgress, error) {
	var p entity.QuestProgress
	if err := dbc.DB(r.db).Preload("Quest").First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *progressRepository) FindByWindow(dbc dbctx.Context, userID, questID uuid.UUID, attempt int) (*entity.QuestProgress, error) {
	var p entity.QuestProgress
	err := dbc.DB(r.db).
		Preload("Quest").
		Where("user_id = ? AND quest_id = ? AND attempt = ?", userID, questID, attempt).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *progressRepository) LatestAttempt(dbc dbctx.Context, userID, questID uuid.UUID) (*entity.QuestProgress, error) {
	var p entity.QuestProgress
	err := dbc.DB(r.db).
		Where("user_id = ? AND quest_id = ?", userID, questID).
		Order("attempt DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *progressRepository) FindInProgressByTypes(dbc dbctx.Context, userID uuid.UUID, types []string) ([]entity.QuestProgress, error) {
	var rows []entity.QuestProgress
	err := dbc.DB(r.db).
		Joins("JOIN quests ON quests.id = quest_progress.quest_id").
		Where("quest_progress.user_id = ? AND quest_progress.status = ? AND quest_progress.is_completed = ?",
			userID, entity.QuestStatusInProgress, false).
		Where("quests.is_active = ? AND quests.quest_type IN ?", true, types).
		Preload("Quest").
		Order("quest_progress.created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *progressRepository) FindByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]entity.QuestProgress, int64, error) {
	var (
		rows  []entity.QuestProgress
		total int64
	)
	query := r.db.WithContext(ctx).Model(&entity.QuestProgress{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Quest").
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *progressRepository) UpdateCAS(dbc dbctx.Context, id uuid.UUID, version int, update ProgressUpdate) (bool, error) {
	res := dbc.DB(r.db).
		Model(&entity.QuestProgress{}).
		Where("id = ? AND version = ? AND is_completed = ?", id, version, false).
		Updates(map[string]any{
			"current_progress":   update.CurrentProgress,
			"current_step_index": update.CurrentStepIndex,
			"progress_data":      datatypes.NewJSONType(update.Data),
			"version":            gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *progressRepository) MarkCompleted(dbc dbctx.Context, id uuid.UUID, at time.Time, pointsAwarded int) (bool, error) {
	at = at.UTC()
	res := dbc.DB(r.db).
		Model(&entity.QuestProgress{}).
		Where("id = ? AND is_completed = ?", id, false).
		Updates(map[string]any{
			"status":         entity.QuestStatusCompleted,
			"is_completed":   true,
			"completed_at":   &at,
			"points_awarded": pointsAwarded,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *progressRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.QuestProgress{}).
		Where("status = ? AND is_completed = ? AND expires_at IS NOT NULL AND expires_at < ?",
			entity.QuestStatusInProgress, false, now.UTC()).
		Updates(map[string]any{
			"status":  entity.QuestStatusExpired,
			"version": gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

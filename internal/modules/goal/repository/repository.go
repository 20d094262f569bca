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

const insertBatchSize = 200

// IncrementedGoal is the state of a goal right after an increment.
type IncrementedGoal struct {
	ID              uuid.UUID
	CurrentProgress int
	TargetProgress  int
	PointsReward    int
}

type GoalRepository interface {
	// CreateMissing inserts the goals whose (user, type, week) does not exist yet.
	CreateMissing(ctx context.Context, goals []entity.WeeklyGoal) (int64, error)
	// Increment counts one activity on open goals of the type and returns
	// their new state. Progress stops at the target; a goal left open at its
	// target is still returned so its close can be retried.
	Increment(dbc dbctx.Context, userID uuid.UUID, goalType string, weekStart time.Time) ([]IncrementedGoal, error)
	// MarkCompleted closes a goal that has reached its target. False means
	// another writer closed it first.
	MarkCompleted(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
	FindByUserWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) ([]entity.WeeklyGoal, error)
}

type goalRepository struct {
	db *gorm.DB
}

func NewGoalRepository(db *gorm.DB) GoalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) CreateMissing(ctx context.Context, goals []entity.WeeklyGoal) (int64, error) {
	if len(goals) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "goal_type"}, {Name: "week_start"}},
			DoNothing: true,
		}).
		CreateInBatches(&goals, insertBatchSize)
	return res.RowsAffected, res.Error
}

func (r *goalRepository) Increment(dbc dbctx.Context, userID uuid.UUID, goalType string, weekStart time.Time) ([]IncrementedGoal, error) {
	var rows []IncrementedGoal
	err := dbc.DB(r.db).Raw(
		`UPDATE weekly_goals SET current_progress = CASE
			WHEN current_progress < target_progress THEN current_progress + 1
			ELSE current_progress END
		WHERE user_id = ? AND goal_type = ? AND week_start = ? AND is_completed = ?
		RETURNING id, current_progress, target_progress, points_reward`,
		userID, goalType, datatypes.Date(weekStart), false,
	).Scan(&rows).Error
	return rows, err
}

func (r *goalRepository) MarkCompleted(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	at = at.UTC()
	res := dbc.DB(r.db).Model(&entity.WeeklyGoal{}).
		Where("id = ? AND is_completed = ? AND current_progress >= target_progress", id, false).
		Updates(map[string]interface{}{
			"is_completed": true,
			"completed_at": &at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *goalRepository) FindByUserWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) ([]entity.WeeklyGoal, error) {
	var goals []entity.WeeklyGoal
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND week_start = ?", userID, datatypes.Date(weekStart)).
		Order("goal_type").
		Find(&goals).Error
	return goals, err
}

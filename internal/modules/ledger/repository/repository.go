package repository

import (
	"fmt"
	"time"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/internal/modules/points"
	"anoa.com/gamiledger/pkg/dbctx"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository exposes only atomic primitives on user_progress. Totals,
// streaks and counters change through these statements and nothing else.
type LedgerRepository interface {
	UserExists(dbc dbctx.Context, userID uuid.UUID) (bool, error)
	EnsureProgress(dbc dbctx.Context, userID uuid.UUID) error
	GetProgress(dbc dbctx.Context, userID uuid.UUID) (*entity.UserProgress, error)
	IncrementTotal(dbc dbctx.Context, userID uuid.UUID, amount int) (int, error)

	// Streak compare-and-set. Each returns false when last_activity_date no
	// longer equals observed (nil meaning "never active").
	StartStreak(dbc dbctx.Context, userID uuid.UUID, observed *time.Time, today time.Time) (bool, error)
	ExtendStreak(dbc dbctx.Context, userID uuid.UUID, observed, today time.Time) (bool, error)

	UpdateTierLevel(dbc dbctx.Context, userID uuid.UUID, tier string, level int) error
	IncrementCounter(dbc dbctx.Context, userID uuid.UUID, column string) error

	InsertActivity(dbc dbctx.Context, activity *entity.PointActivity) (bool, error)
	ListActivities(dbc dbctx.Context, userID uuid.UUID, limit int) ([]entity.PointActivity, error)
	ListActiveOn(dbc dbctx.Context, day time.Time) ([]entity.UserProgress, error)
	SumSince(dbc dbctx.Context, userID uuid.UUID, since time.Time) (int, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) UserExists(dbc dbctx.Context, userID uuid.UUID) (bool, error) {
	var n int64
	if err := dbc.DB(r.db).Model(&entity.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ledgerRepository) EnsureProgress(dbc dbctx.Context, userID uuid.UUID) error {
	row := &entity.UserProgress{
		UserID: userID,
		Tier:   points.TierBronze,
		Level:  1,
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(row).Error
}

func (r *ledgerRepository) GetProgress(dbc dbctx.Context, userID uuid.UUID) (*entity.UserProgress, error) {
	var p entity.UserProgress
	if err := dbc.DB(r.db).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ledgerRepository) IncrementTotal(dbc dbctx.Context, userID uuid.UUID, amount int) (int, error) {
	var totals []int
	err := dbc.DB(r.db).Raw(
		`UPDATE user_progress SET total_points = total_points + ?, updated_at = ? WHERE user_id = ? RETURNING total_points`,
		amount, time.Now().UTC(), userID,
	).Scan(&totals).Error
	if err != nil {
		return 0, err
	}
	if len(totals) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return totals[0], nil
}

func (r *ledgerRepository) StartStreak(dbc dbctx.Context, userID uuid.UUID, observed *time.Time, today time.Time) (bool, error) {
	q := dbc.DB(r.db).Model(&entity.UserProgress{}).Where("user_id = ?", userID)
	if observed == nil {
		q = q.Where("last_activity_date IS NULL")
	} else {
		q = q.Where("last_activity_date = ?", datatypes.Date(*observed))
	}
	res := q.Updates(map[string]interface{}{
		"current_streak_days": 1,
		"longest_streak_days": gorm.Expr("CASE WHEN longest_streak_days < 1 THEN 1 ELSE longest_streak_days END"),
		"last_activity_date":  datatypes.Date(today),
	})
	return res.RowsAffected == 1, res.Error
}

func (r *ledgerRepository) ExtendStreak(dbc dbctx.Context, userID uuid.UUID, observed, today time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&entity.UserProgress{}).
		Where("user_id = ? AND last_activity_date = ?", userID, datatypes.Date(observed)).
		Updates(map[string]interface{}{
			"current_streak_days": gorm.Expr("current_streak_days + 1"),
			"longest_streak_days": gorm.Expr("CASE WHEN current_streak_days + 1 > longest_streak_days THEN current_streak_days + 1 ELSE longest_streak_days END"),
			"last_activity_date":  datatypes.Date(today),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *ledgerRepository) UpdateTierLevel(dbc dbctx.Context, userID uuid.UUID, tier string, level int) error {
	return dbc.DB(r.db).Model(&entity.UserProgress{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"tier": tier, "level": level}).Error
}

var counterColumns = map[string]bool{
	points.CounterQuiz:    true,
	points.CounterComment: true,
	points.CounterProject: true,
	points.CounterQuest:   true,
}

func (r *ledgerRepository) IncrementCounter(dbc dbctx.Context, userID uuid.UUID, column string) error {
	if !counterColumns[column] {
		return fmt.Errorf("unknown lifetime counter %q", column)
	}
	return dbc.DB(r.db).Model(&entity.UserProgress{}).
		Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + 1")).Error
}

// InsertActivity appends to the audit log. It reports false when the
// idempotency key already exists.
func (r *ledgerRepository) InsertActivity(dbc dbctx.Context, activity *entity.PointActivity) (bool, error) {
	res := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(activity)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ledgerRepository) ListActivities(dbc dbctx.Context, userID uuid.UUID, limit int) ([]entity.PointActivity, error) {
	var rows []entity.PointActivity
	err := dbc.DB(r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *ledgerRepository) ListActiveOn(dbc dbctx.Context, day time.Time) ([]entity.UserProgress, error) {
	var rows []entity.UserProgress
	err := dbc.DB(r.db).
		Where("last_activity_date = ?", datatypes.Date(day)).
		Order("user_id").
		Find(&rows).Error
	return rows, err
}

func (r *ledgerRepository) SumSince(dbc dbctx.Context, userID uuid.UUID, since time.Time) (int, error) {
	var total int
	err := dbc.DB(r.db).Model(&entity.PointActivity{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Scan(&total).Error
	return total, err
}

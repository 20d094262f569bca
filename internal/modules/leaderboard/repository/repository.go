package repository

import (
	"context"
	"time"

	"anoa.com/gamiledger/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Standing is one row of a board. Points is the score the board is ordered
// by; TotalPoints is always the all-time total.
type Standing struct {
	UserID      uuid.UUID
	Points      int
	TotalPoints int
}

type LeaderboardRepository interface {
	TopAllTime(ctx context.Context, limit int) ([]Standing, error)
	// TopSince ranks users by points earned at or after since.
	TopSince(ctx context.Context, since time.Time, limit int) ([]Standing, error)
	PointsSince(ctx context.Context, userIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int, error)
	TotalsFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

type leaderboardRepository struct {
	db *gorm.DB
}

func NewLeaderboardRepository(db *gorm.DB) LeaderboardRepository {
	return &leaderboardRepository{db: db}
}

func (r *leaderboardRepository) TopAllTime(ctx context.Context, limit int) ([]Standing, error) {
	var rows []Standing
	err := r.db.WithContext(ctx).Model(&entity.UserProgress{}).
		Select("user_progress.user_id, user_progress.total_points AS points, user_progress.total_points").
		Joins("JOIN users ON users.id = user_progress.user_id").
		Where("users.is_active = ? AND user_progress.total_points > 0", true).
		Order("user_progress.total_points DESC, user_progress.user_id").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *leaderboardRepository) TopSince(ctx context.Context, since time.Time, limit int) ([]Standing, error) {
	var rows []Standing
	err := r.db.WithContext(ctx).Model(&entity.PointActivity{}).
		Select("point_activities.user_id, SUM(point_activities.amount) AS points, user_progress.total_points").
		Joins("JOIN user_progress ON user_progress.user_id = point_activities.user_id").
		Joins("JOIN users ON users.id = point_activities.user_id").
		Where("users.is_active = ? AND point_activities.created_at >= ?", true, since.UTC()).
		Group("point_activities.user_id, user_progress.total_points").
		Having("SUM(point_activities.amount) > 0").
		Order("points DESC, point_activities.user_id").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *leaderboardRepository) PointsSince(ctx context.Context, userIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	type sum struct {
		UserID uuid.UUID
		Score  int
	}
	var sums []sum
	err := r.db.WithContext(ctx).Model(&entity.PointActivity{}).
		Select("user_id, SUM(amount) AS score").
		Where("user_id IN ? AND created_at >= ?", userIDs, since.UTC()).
		Group("user_id").
		Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	for _, s := range sums {
		out[s.UserID] = s.Score
	}
	return out, nil
}

func (r *leaderboardRepository) TotalsFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []entity.UserProgress
	if err := r.db.WithContext(ctx).Select("user_id", "total_points").Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.UserID] = p.TotalPoints
	}
	return out, nil
}

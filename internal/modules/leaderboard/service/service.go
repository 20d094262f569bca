package service

import (
	"context"
	"sync/atomic"
	"time"

	leaderboardDto "anoa.com/gamiledger/internal/modules/leaderboard/dto"
	leaderboardRepo "anoa.com/gamiledger/internal/modules/leaderboard/repository"
	"anoa.com/gamiledger/internal/modules/points"
	userRepo "anoa.com/gamiledger/internal/modules/user/repository"
	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// AllTimeKey is the sorted set mirroring user_progress.total_points.
	AllTimeKey = "leaderboard:all_time"

	defaultLimit = 10
	warmSize     = 1000
)

type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, query leaderboardDto.LeaderboardQuery) (*leaderboardDto.LeaderboardResponse, error)
	// RecordScore mirrors a committed total into the sorted set.
	RecordScore(ctx context.Context, userID uuid.UUID, total int) error
	// Warm loads the top all-time totals into the sorted set. Until it
	// succeeds the all-time board is read from the database.
	Warm(ctx context.Context) (int, error)
}

type leaderboardService struct {
	repo     leaderboardRepo.LeaderboardRepository
	userRepo userRepo.UserRepository
	rdb      *redis.Client
	clock    clock.Clock
	loc      *time.Location
	log      *logger.Logger
	warmed   atomic.Bool
}

func NewLeaderboardService(repo leaderboardRepo.LeaderboardRepository, userRepo userRepo.UserRepository, rdb *redis.Client, clk clock.Clock, loc *time.Location, log *logger.Logger) LeaderboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &leaderboardService{
		repo:     repo,
		userRepo: userRepo,
		rdb:      rdb,
		clock:    clk,
		loc:      loc,
		log:      log.With("component", "leaderboard"),
	}
}

func (s *leaderboardService) RecordScore(ctx context.Context, userID uuid.UUID, total int) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.ZAdd(ctx, AllTimeKey, redis.Z{Score: float64(total), Member: userID.String()}).Err()
}

func (s *leaderboardService) Warm(ctx context.Context) (int, error) {
	if s.rdb == nil {
		return 0, nil
	}
	rows, err := s.repo.TopAllTime(ctx, warmSize)
	if err != nil {
		return 0, apperror.FromStore("leaderboard.warm", err)
	}
	if len(rows) > 0 {
		members := make([]redis.Z, 0, len(rows))
		for _, r := range rows {
			members = append(members, redis.Z{Score: float64(r.TotalPoints), Member: r.UserID.String()})
		}
		if err := s.rdb.ZAdd(ctx, AllTimeKey, members...).Err(); err != nil {
			return 0, err
		}
	}
	s.warmed.Store(true)
	return len(rows), nil
}

func (s *leaderboardService) GetLeaderboard(ctx context.Context, query leaderboardDto.LeaderboardQuery) (*leaderboardDto.LeaderboardResponse, error) {
	timeframe := query.Timeframe
	if timeframe == "" {
		timeframe = leaderboardDto.TimeframeAllTime
	}
	limit := query.Limit
	if limit < 1 {
		limit = defaultLimit
	}

	now := s.clock.Now()
	weekStart := clock.StartOf(clock.WeekStart(now, s.loc), s.loc)

	var (
		rows []leaderboardRepo.Standing
		err  error
	)
	switch timeframe {
	case leaderboardDto.TimeframeWeekly:
		rows, err = s.repo.TopSince(ctx, weekStart, limit)
	case leaderboardDto.TimeframeMonthly:
		rows, err = s.repo.TopSince(ctx, s.monthStart(now), limit)
	default:
		rows, err = s.topAllTime(ctx, limit)
	}
	if err != nil {
		return nil, apperror.FromStore("leaderboard.top", err)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	names, err := s.userRepo.FindUsernames(ctx, ids)
	if err != nil {
		return nil, apperror.FromStore("leaderboard.usernames", err)
	}
	weekly, err := s.repo.PointsSince(ctx, ids, weekStart)
	if err != nil {
		return nil, apperror.FromStore("leaderboard.weekly", err)
	}

	entries := make([]leaderboardDto.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		// users removed upstream drop off the board
		name, ok := names[r.UserID]
		if !ok {
			continue
		}
		entries = append(entries, leaderboardDto.LeaderboardEntry{
			UserID:     r.UserID,
			Username:   name,
			Position:   len(entries) + 1,
			Points:     r.Points,
			TierStatus: points.TierStatusWithWeekly(r.TotalPoints, weekly[r.UserID]),
		})
	}

	return &leaderboardDto.LeaderboardResponse{Timeframe: timeframe, Entries: entries}, nil
}

// topAllTime reads the sorted set once it is warm, and the database otherwise.
func (s *leaderboardService) topAllTime(ctx context.Context, limit int) ([]leaderboardRepo.Standing, error) {
	if s.rdb == nil || !s.warmed.Load() {
		return s.repo.TopAllTime(ctx, limit)
	}

	zs, err := s.rdb.ZRevRangeWithScores(ctx, AllTimeKey, 0, int64(limit-1)).Result()
	if err != nil {
		s.log.Warn("sorted set unavailable, reading totals from the database", "error", err)
		return s.repo.TopAllTime(ctx, limit)
	}

	rows := make([]leaderboardRepo.Standing, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		total := int(z.Score)
		rows = append(rows, leaderboardRepo.Standing{UserID: id, Points: total, TotalPoints: total})
	}
	return rows, nil
}

func (s *leaderboardService) monthStart(now time.Time) time.Time {
	y, m, _ := now.In(s.loc).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, s.loc)
}

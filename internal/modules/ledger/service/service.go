package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anoa.com/gamiledger/internal/entity"
	ledgerDto "anoa.com/gamiledger/internal/modules/ledger/dto"
	ledgerRepo "anoa.com/gamiledger/internal/modules/ledger/repository"
	"anoa.com/gamiledger/internal/modules/points"
	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/database"
	"anoa.com/gamiledger/pkg/dbctx"
	"anoa.com/gamiledger/pkg/logger"
	"anoa.com/gamiledger/pkg/marker"
	"github.com/google/uuid"
)

// ErrDuplicateAward is returned by AwardInTx when the idempotency key was
// already used. The caller's transaction must be rolled back.
var ErrDuplicateAward = errors.New("award already recorded")

const (
	SourceQuizAttempt   = "quiz_attempt"
	SourceDailyLogin    = "daily_login"
	SourceQuestProgress = "quest_progress"
	SourceWeeklyGoal    = "weekly_goal"
	SourceStreakBonus   = "streak_bonus"

	recentActivityLimit = 20
	maxStreakAttempts   = 5
)

// GoalChecker is notified after a committed award.
type GoalChecker interface {
	CheckGoals(ctx context.Context, userID uuid.UUID, activityType string) error
}

type TierNotifier interface {
	NotifyTierUp(ctx context.Context, userID uuid.UUID, oldTier, newTier string, total int) error
}

type ScoreBoard interface {
	RecordScore(ctx context.Context, userID uuid.UUID, total int) error
}

// LedgerService is the surface used by HTTP handlers and collaborators.
type LedgerService interface {
	Award(ctx context.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error)
	AwardExternal(ctx context.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error)
	AwardQuizResult(ctx context.Context, userID uuid.UUID, attemptID string, score int) (*ledgerDto.AwardResult, error)
	AwardDailyLogin(ctx context.Context, userID uuid.UUID) (*ledgerDto.AwardResult, error)
	Snapshot(ctx context.Context, userID uuid.UUID) (*ledgerDto.SnapshotResponse, error)
}

type Options struct {
	// Timeout bounds one award end to end. Zero means no bound.
	Timeout          time.Duration
	DailyLoginPoints int
}

// Ledger is the only writer of user_progress.
type Ledger struct {
	repo    ledgerRepo.LedgerRepository
	tx      database.TxRunner
	clock   clock.Clock
	loc     *time.Location
	markers *marker.Store
	log     *logger.Logger
	opts    Options

	goals    GoalChecker
	notifier TierNotifier
	board    ScoreBoard
}

var _ LedgerService = (*Ledger)(nil)

func NewLedger(repo ledgerRepo.LedgerRepository, tx database.TxRunner, clk clock.Clock, loc *time.Location, markers *marker.Store, log *logger.Logger, opts Options) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	if opts.DailyLoginPoints <= 0 {
		opts.DailyLoginPoints = 5
	}
	return &Ledger{
		repo:    repo,
		tx:      tx,
		clock:   clk,
		loc:     loc,
		markers: markers,
		log:     log.With("component", "ledger"),
		opts:    opts,
	}
}

// SetGoalChecker wires the weekly goal tracker. It is set after construction
// because the tracker pays its bonuses through this ledger.
func (s *Ledger) SetGoalChecker(g GoalChecker) { s.goals = g }

func (s *Ledger) SetNotifier(n TierNotifier) { s.notifier = n }

func (s *Ledger) SetScoreBoard(b ScoreBoard) { s.board = b }

// Award credits a user and, after commit, runs the weekly goal check unless
// the request opts out.
func (s *Ledger) Award(ctx context.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error) {
	return s.award(ctx, req, !req.SkipGoalCheck)
}

// AwardExternal is Award for collaborators; engine-only activity types are refused.
func (s *Ledger) AwardExternal(ctx context.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error) {
	if err := points.ValidateExternalAward(req.Amount, req.ActivityType); err != nil {
		return nil, err
	}
	return s.Award(ctx, req)
}

// AwardBonus pays a bonus. It never reaches the goal checker, so a goal
// completion cannot trigger another goal check.
func (s *Ledger) AwardBonus(ctx context.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error) {
	return s.award(ctx, req, false)
}

func (s *Ledger) award(ctx context.Context, req ledgerDto.AwardRequest, checkGoals bool) (*ledgerDto.AwardResult, error) {
	if err := points.ValidateAward(req.Amount, req.ActivityType); err != nil {
		return nil, err
	}

	txCtx, cancel := s.bound(ctx)
	defer cancel()

	var res *ledgerDto.AwardResult
	err := s.tx.InTx(txCtx, func(dbc dbctx.Context) error {
		r, err := s.AwardInTx(dbc, req)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if errors.Is(err, ErrDuplicateAward) {
		s.log.Debug("duplicate award ignored", "user_id", req.UserID, "source_type", req.SourceType, "source_id", req.SourceID)
		return s.duplicateResult(txCtx, req.UserID)
	}
	if err != nil {
		return nil, apperror.FromStore("ledger.award", err)
	}

	after, cancelAfter := s.bound(ctx)
	defer cancelAfter()

	s.Publish(after, res)
	if checkGoals && s.goals != nil {
		if err := s.goals.CheckGoals(after, req.UserID, req.ActivityType); err != nil {
			s.log.Warn("weekly goal check failed", "user_id", req.UserID, "activity_type", req.ActivityType, "error", err)
		}
	}
	return res, nil
}

// AwardInTx applies an award inside the caller's transaction. It performs no
// post-commit work; callers run Publish once their transaction commits.
func (s *Ledger) AwardInTx(dbc dbctx.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error) {
	if err := points.ValidateAward(req.Amount, req.ActivityType); err != nil {
		return nil, err
	}

	known, err := s.repo.UserExists(dbc, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !known {
		return nil, fmt.Errorf("user %s: %w", req.UserID, apperror.ErrNotFound)
	}
	if err := s.repo.EnsureProgress(dbc, req.UserID); err != nil {
		return nil, fmt.Errorf("ensure progress: %w", err)
	}
	newTotal, err := s.repo.IncrementTotal(dbc, req.UserID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("increment total: %w", err)
	}
	oldTier := points.TierFor(newTotal - req.Amount)

	today := clock.DayOf(s.clock.Now(), s.loc)
	if err := s.touchStreak(dbc, req.UserID, today); err != nil {
		return nil, err
	}

	activity := &entity.PointActivity{
		UserID:       req.UserID,
		Amount:       req.Amount,
		ActivityType: req.ActivityType,
		Description:  req.Description,
		TierAtAward:  oldTier,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if req.SourceType != "" && req.SourceID != "" {
		activity.SourceType = &req.SourceType
		activity.SourceID = &req.SourceID
	}
	inserted, err := s.repo.InsertActivity(dbc, activity)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	if !inserted {
		return nil, ErrDuplicateAward
	}

	progress, err := s.repo.GetProgress(dbc, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("reload progress: %w", err)
	}
	newTier := points.TierFor(newTotal)
	level := points.LevelFor(newTotal)
	if progress.Tier != newTier || progress.Level != level {
		if err := s.repo.UpdateTierLevel(dbc, req.UserID, newTier, level); err != nil {
			return nil, fmt.Errorf("update tier: %w", err)
		}
	}

	if column := points.LifetimeCounter(req.ActivityType); column != "" {
		if err := s.repo.IncrementCounter(dbc, req.UserID, column); err != nil {
			return nil, fmt.Errorf("increment %s: %w", column, err)
		}
	}

	if req.Amount >= points.LargeAwardWarning {
		s.log.Warn("large award", "user_id", req.UserID, "amount", req.Amount, "activity_type", req.ActivityType)
	}

	return &ledgerDto.AwardResult{
		UserID:      req.UserID,
		NewTotal:    newTotal,
		TierChanged: newTier != oldTier,
		OldTier:     oldTier,
		NewTier:     newTier,
		Level:       level,
		StreakDays:  progress.CurrentStreakDays,
	}, nil
}

// touchStreak records activity on today. Every write is conditional on the
// last_activity_date it was decided from; a miss re-reads and decides again.
func (s *Ledger) touchStreak(dbc dbctx.Context, userID uuid.UUID, today time.Time) error {
	for attempt := 0; attempt < maxStreakAttempts; attempt++ {
		p, err := s.repo.GetProgress(dbc, userID)
		if err != nil {
			return fmt.Errorf("read streak: %w", err)
		}

		last := p.LastActivity()
		var ok bool
		switch {
		case last == nil:
			ok, err = s.repo.StartStreak(dbc, userID, nil, today)
		case !last.Before(today):
			// same day, or a writer with a later clock already moved it
			return nil
		case last.AddDate(0, 0, 1).Equal(today):
			ok, err = s.repo.ExtendStreak(dbc, userID, *last, today)
		default:
			ok, err = s.repo.StartStreak(dbc, userID, last, today)
		}
		if err != nil {
			return fmt.Errorf("update streak: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("streak update for %s kept conflicting: %w", userID, apperror.ErrTransientStore)
}

// Publish runs the best-effort effects of a committed award.
func (s *Ledger) Publish(ctx context.Context, res *ledgerDto.AwardResult) {
	if res == nil || res.Duplicate {
		return
	}
	if res.TierChanged && points.TierRank(res.NewTier) > points.TierRank(res.OldTier) && s.notifier != nil {
		if err := s.notifier.NotifyTierUp(ctx, res.UserID, res.OldTier, res.NewTier, res.NewTotal); err != nil {
			s.log.Warn("tier-up notification failed", "user_id", res.UserID, "error", err)
		}
	}
	if s.board != nil {
		if err := s.board.RecordScore(ctx, res.UserID, res.NewTotal); err != nil {
			s.log.Warn("leaderboard refresh failed", "user_id", res.UserID, "error", err)
		}
	}
}

// AwardOnce consults a short-lived marker before awarding. The marker only
// saves a transaction; the audit log key still decides.
func (s *Ledger) AwardOnce(ctx context.Context, key string, ttl time.Duration, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error) {
	fresh, err := s.markers.SetOnce(ctx, key, ttl)
	if err != nil {
		s.log.Warn("marker unavailable, relying on audit log", "key", key, "error", err)
		fresh = true
	}
	if !fresh {
		return s.duplicateResult(ctx, req.UserID)
	}

	res, err := s.Award(ctx, req)
	if err != nil {
		if clearErr := s.markers.Clear(ctx, key); clearErr != nil {
			s.log.Warn("failed to clear marker", "key", key, "error", clearErr)
		}
		return nil, err
	}
	return res, nil
}

func (s *Ledger) AwardQuizResult(ctx context.Context, userID uuid.UUID, attemptID string, score int) (*ledgerDto.AwardResult, error) {
	if attemptID == "" {
		return nil, fmt.Errorf("attempt id is required: %w", apperror.ErrInvalidInput)
	}
	pts, err := points.QuizPoints(score)
	if err != nil {
		return nil, err
	}
	return s.Award(ctx, ledgerDto.AwardRequest{
		UserID:       userID,
		Amount:       pts,
		ActivityType: points.ActivityQuizCompleted,
		Description:  fmt.Sprintf("Quiz completed with score %d", score),
		SourceType:   SourceQuizAttempt,
		SourceID:     attemptID,
	})
}

// AwardDailyLogin pays the login bonus at most once per calendar day.
func (s *Ledger) AwardDailyLogin(ctx context.Context, userID uuid.UUID) (*ledgerDto.AwardResult, error) {
	now := s.clock.Now()
	day := clock.DayOf(now, s.loc)
	ttl := clock.EndOfDay(now, s.loc).Sub(now)
	return s.AwardOnce(ctx, marker.DailyLoginKey(userID, day), ttl, ledgerDto.AwardRequest{
		UserID:       userID,
		Amount:       s.opts.DailyLoginPoints,
		ActivityType: points.ActivityDailyLogin,
		Description:  "Daily login",
		SourceType:   SourceDailyLogin,
		SourceID:     day.Format("2006-01-02"),
	})
}

func (s *Ledger) Snapshot(ctx context.Context, userID uuid.UUID) (*ledgerDto.SnapshotResponse, error) {
	dbc := dbctx.Context{Ctx: ctx}
	snap := &ledgerDto.SnapshotResponse{
		UserID:           userID,
		Status:           points.TierStatusFor(0),
		RecentActivities: []ledgerDto.ActivityResponse{},
	}

	progress, err := s.repo.GetProgress(dbc, userID)
	if err != nil {
		err = apperror.FromStore("ledger.snapshot", err)
		if errors.Is(err, apperror.ErrNotFound) {
			return snap, nil
		}
		return nil, err
	}

	weekStart := clock.StartOf(clock.WeekStart(s.clock.Now(), s.loc), s.loc)
	weekly, err := s.repo.SumSince(dbc, userID, weekStart)
	if err != nil {
		return nil, apperror.FromStore("ledger.snapshot", err)
	}

	activities, err := s.repo.ListActivities(dbc, userID, recentActivityLimit)
	if err != nil {
		return nil, apperror.FromStore("ledger.snapshot", err)
	}

	snap.TotalPoints = progress.TotalPoints
	snap.Status = points.TierStatusWithWeekly(progress.TotalPoints, weekly)
	snap.CurrentStreakDays = progress.CurrentStreakDays
	snap.LongestStreakDays = progress.LongestStreakDays
	snap.LastActivityDate = progress.LastActivity()
	snap.Lifetime = ledgerDto.LifetimeCounts{
		Quizzes:  progress.LifetimeQuizCount,
		Comments: progress.LifetimeCommentCount,
		Projects: progress.LifetimeProjectCount,
		Quests:   progress.LifetimeQuestCount,
	}
	for _, a := range activities {
		snap.RecentActivities = append(snap.RecentActivities, ledgerDto.ActivityResponse{
			ID:           a.ID,
			Amount:       a.Amount,
			ActivityType: a.ActivityType,
			Description:  a.Description,
			TierAtAward:  a.TierAtAward,
			CreatedAt:    a.CreatedAt,
		})
	}
	return snap, nil
}

// ListActiveOn returns the progress rows whose last activity falls on day.
func (s *Ledger) ListActiveOn(ctx context.Context, day time.Time) ([]entity.UserProgress, error) {
	rows, err := s.repo.ListActiveOn(dbctx.Context{Ctx: ctx}, day)
	if err != nil {
		return nil, apperror.FromStore("ledger.list_active", err)
	}
	return rows, nil
}

// Today is the ledger's current calendar day.
func (s *Ledger) Today() time.Time {
	return clock.DayOf(s.clock.Now(), s.loc)
}

func (s *Ledger) duplicateResult(ctx context.Context, userID uuid.UUID) (*ledgerDto.AwardResult, error) {
	res := &ledgerDto.AwardResult{UserID: userID, Duplicate: true, OldTier: points.TierBronze, NewTier: points.TierBronze, Level: 1}
	p, err := s.repo.GetProgress(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		err = apperror.FromStore("ledger.award", err)
		if errors.Is(err, apperror.ErrNotFound) {
			return res, nil
		}
		return nil, err
	}
	res.NewTotal = p.TotalPoints
	res.OldTier = p.Tier
	res.NewTier = p.Tier
	res.Level = p.Level
	res.StreakDays = p.CurrentStreakDays
	return res, nil
}

func (s *Ledger) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	// callers cannot abort a write halfway; only the store timeout can
	ctx = context.WithoutCancel(ctx)
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return ctx, func() {}
}

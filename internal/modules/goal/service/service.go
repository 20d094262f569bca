package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/internal/modules/goal/dto"
	"anoa.com/gamiledger/internal/modules/goal/repository"
	ledgerDto "anoa.com/gamiledger/internal/modules/ledger/dto"
	ledger "anoa.com/gamiledger/internal/modules/ledger/service"
	"anoa.com/gamiledger/internal/modules/points"
	userRepo "anoa.com/gamiledger/internal/modules/user/repository"
	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/database"
	"anoa.com/gamiledger/pkg/dbctx"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const (
	GoalActivities = "activities_3"
	GoalHelp       = "help_5"
	GoalLogin      = "login_5"

	userPageSize  = 500
	insertWorkers = 4
	bonusWorkers  = 8
)

type Definition struct {
	Type   string
	Title  string
	Target int
	Reward int
}

// Goals opened for every eligible user each week.
var Definitions = []Definition{
	{Type: GoalActivities, Title: "Complete 3 learning activities", Target: 3, Reward: 50},
	{Type: GoalHelp, Title: "Help others with 5 comments", Target: 5, Reward: 75},
	{Type: GoalLogin, Title: "Log in on 5 days", Target: 5, Reward: 40},
}

var activityGoals = map[string]string{
	points.ActivityQuizCompleted:  GoalActivities,
	points.ActivityProjectCreated: GoalActivities,
	points.ActivityQuestCompleted: GoalActivities,
	points.ActivityCommentPosted:  GoalHelp,
	points.ActivityDailyLogin:     GoalLogin,
}

// GoalFor returns the goal type an activity counts toward, or "".
func GoalFor(activityType string) string {
	return activityGoals[activityType]
}

func definitionOf(goalType string) (Definition, bool) {
	for _, d := range Definitions {
		if d.Type == goalType {
			return d, true
		}
	}
	return Definition{}, false
}

// Ledger is what the tracker needs from the ledger engine. Bonuses only go
// through AwardInTx and AwardBonus, neither of which runs goal checks.
type Ledger interface {
	AwardInTx(dbc dbctx.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error)
	AwardBonus(ctx context.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error)
	Publish(ctx context.Context, res *ledgerDto.AwardResult)
	ListActiveOn(ctx context.Context, day time.Time) ([]entity.UserProgress, error)
}

type Notifier interface {
	NotifyGoalCompleted(ctx context.Context, userID, goalID uuid.UUID, title string, reward int) error
}

type GoalService interface {
	CreateWeeklyGoals(ctx context.Context) (int64, error)
	CheckGoals(ctx context.Context, userID uuid.UUID, activityType string) error
	CheckStreakBonuses(ctx context.Context) (int, error)
	CurrentWeek(ctx context.Context, userID uuid.UUID) (*dto.WeekResponse, error)
}

type Options struct {
	Timeout time.Duration
}

type goalService struct {
	repo     repository.GoalRepository
	users    userRepo.UserRepository
	tx       database.TxRunner
	ledger   Ledger
	notifier Notifier
	clock    clock.Clock
	loc      *time.Location
	log      *logger.Logger
	opts     Options
}

func NewGoalService(
	repo repository.GoalRepository,
	users userRepo.UserRepository,
	tx database.TxRunner,
	l Ledger,
	notifier Notifier,
	clk clock.Clock,
	loc *time.Location,
	log *logger.Logger,
	opts Options,
) GoalService {
	if loc == nil {
		loc = time.UTC
	}
	return &goalService{
		repo:     repo,
		users:    users,
		tx:       tx,
		ledger:   l,
		notifier: notifier,
		clock:    clk,
		loc:      loc,
		log:      log.With("component", "weekly_goals"),
		opts:     opts,
	}
}

// CreateWeeklyGoals opens this week's goals for every active member. Running
// it again in the same week inserts nothing.
func (s *goalService) CreateWeeklyGoals(ctx context.Context) (int64, error) {
	weekStart := clock.WeekStart(s.clock.Now(), s.loc)
	weekEnd := clock.WeekEnd(weekStart)

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(insertWorkers)

	after := uuid.Nil
	for {
		ids, err := s.users.ListEligibleIDs(ctx, after, userPageSize)
		if err != nil {
			_ = g.Wait()
			return created.Load(), apperror.FromStore("goal.create_weekly", err)
		}
		if len(ids) == 0 {
			break
		}
		after = ids[len(ids)-1]

		goals := make([]entity.WeeklyGoal, 0, len(ids)*len(Definitions))
		for _, id := range ids {
			for _, d := range Definitions {
				goals = append(goals, entity.WeeklyGoal{
					UserID:         id,
					GoalType:       d.Type,
					WeekStart:      datatypes.Date(weekStart),
					WeekEnd:        datatypes.Date(weekEnd),
					TargetProgress: d.Target,
					PointsReward:   d.Reward,
				})
			}
		}
		g.Go(func() error {
			n, err := s.repo.CreateMissing(gctx, goals)
			if err != nil {
				return apperror.FromStore("goal.create_weekly", err)
			}
			created.Add(n)
			return nil
		})

		if len(ids) < userPageSize {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return created.Load(), err
	}
	s.log.Info("weekly goals created", "week_start", weekStart.Format(time.DateOnly), "count", created.Load())
	return created.Load(), nil
}

type goalCompletion struct {
	goalID uuid.UUID
	title  string
	reward int
	award  *ledgerDto.AwardResult
}

// CheckGoals counts one activity toward the user's open goal for this week.
// Reaching the target closes the goal and pays its bonus in the same
// transaction. When the bonus fails the count is still kept and the goal stays
// open at its target, so the next activity retries the close.
func (s *goalService) CheckGoals(ctx context.Context, userID uuid.UUID, activityType string) error {
	goalType := GoalFor(activityType)
	if goalType == "" {
		return nil
	}

	txCtx, cancel := s.bound(ctx)
	defer cancel()

	weekStart := clock.WeekStart(s.clock.Now(), s.loc)
	done, err := s.checkTx(txCtx, userID, goalType, weekStart)
	if err != nil {
		return apperror.FromStore("goal.check", err)
	}

	for _, c := range done {
		s.log.Info("weekly goal completed", "user_id", userID, "goal_id", c.goalID, "reward", c.reward)
		s.ledger.Publish(txCtx, c.award)
		if s.notifier != nil {
			if err := s.notifier.NotifyGoalCompleted(txCtx, userID, c.goalID, c.title, c.reward); err != nil {
				s.log.Warn("goal notification failed", "user_id", userID, "error", err)
			}
		}
	}
	return nil
}

func (s *goalService) checkTx(ctx context.Context, userID uuid.UUID, goalType string, weekStart time.Time) ([]goalCompletion, error) {
	var done []goalCompletion
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		done = done[:0]
		rows, err := s.repo.Increment(dbc, userID, goalType, weekStart)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if row.CurrentProgress < row.TargetProgress {
				continue
			}
			c, closed, err := s.closeGoal(dbc, userID, goalType, row)
			if err != nil {
				s.log.Warn("weekly goal left open", "user_id", userID, "goal_id", row.ID, "error", err)
				continue
			}
			if closed {
				done = append(done, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// closeGoal marks row completed and pays its bonus under a savepoint, so a
// failure undoes only the close. A bonus the ledger already holds closes the
// goal without paying again.
func (s *goalService) closeGoal(dbc dbctx.Context, userID uuid.UUID, goalType string, row repository.IncrementedGoal) (goalCompletion, bool, error) {
	c := goalCompletion{goalID: row.ID, reward: row.PointsReward, title: goalType}
	if d, found := definitionOf(goalType); found {
		c.title = d.Title
	}

	var closed bool
	attempt := func(pay bool) error {
		return database.Savepoint(dbc, func(sp dbctx.Context) error {
			c.award = nil
			ok, err := s.repo.MarkCompleted(sp, row.ID, s.clock.Now())
			if err != nil {
				return err
			}
			closed = ok
			if !ok || !pay || row.PointsReward <= 0 {
				return nil
			}
			award, err := s.ledger.AwardInTx(sp, ledgerDto.AwardRequest{
				UserID:       userID,
				Amount:       row.PointsReward,
				ActivityType: points.ActivityWeeklyGoalBonus,
				Description:  fmt.Sprintf("Weekly goal completed: %s", c.title),
				SourceType:   ledger.SourceWeeklyGoal,
				SourceID:     row.ID.String(),
			})
			if err != nil {
				return err
			}
			c.award = award
			return nil
		})
	}

	err := attempt(true)
	if errors.Is(err, ledger.ErrDuplicateAward) {
		s.log.Warn("goal bonus already recorded, closing goal without award", "user_id", userID, "goal_id", row.ID)
		err = attempt(false)
	}
	if err != nil {
		return c, false, err
	}
	return c, closed, nil
}

// CheckStreakBonuses pays today's streak bonus to everyone active today.
// A failure for one user is logged and does not stop the others.
func (s *goalService) CheckStreakBonuses(ctx context.Context) (int, error) {
	today := clock.DayOf(s.clock.Now(), s.loc)
	active, err := s.ledger.ListActiveOn(ctx, today)
	if err != nil {
		return 0, err
	}

	var paid atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(bonusWorkers)
	for _, p := range active {
		bonus := points.StreakBonus(p.CurrentStreakDays)
		if bonus == 0 {
			continue
		}
		userID, days := p.UserID, p.CurrentStreakDays
		g.Go(func() error {
			res, err := s.ledger.AwardBonus(ctx, ledgerDto.AwardRequest{
				UserID:       userID,
				Amount:       bonus,
				ActivityType: points.ActivityStreakBonus,
				Description:  fmt.Sprintf("%d-day streak bonus", days),
				SourceType:   ledger.SourceStreakBonus,
				SourceID:     today.Format(time.DateOnly),
			})
			if err != nil {
				s.log.Warn("streak bonus failed", "user_id", userID, "error", err)
				return nil
			}
			if !res.Duplicate {
				paid.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("streak bonuses paid", "day", today.Format(time.DateOnly), "active", len(active), "paid", paid.Load())
	return int(paid.Load()), nil
}

func (s *goalService) CurrentWeek(ctx context.Context, userID uuid.UUID) (*dto.WeekResponse, error) {
	weekStart := clock.WeekStart(s.clock.Now(), s.loc)
	goals, err := s.repo.FindByUserWeek(ctx, userID, weekStart)
	if err != nil {
		return nil, apperror.FromStore("goal.current_week", err)
	}

	res := &dto.WeekResponse{
		WeekStart: weekStart.Format(time.DateOnly),
		WeekEnd:   clock.WeekEnd(weekStart).Format(time.DateOnly),
		Goals:     make([]dto.GoalResponse, 0, len(goals)),
	}
	for _, g := range goals {
		title := g.GoalType
		if d, ok := definitionOf(g.GoalType); ok {
			title = d.Title
		}
		res.Goals = append(res.Goals, dto.GoalResponse{
			ID:              g.ID,
			GoalType:        g.GoalType,
			Title:           title,
			WeekStart:       time.Time(g.WeekStart).Format(time.DateOnly),
			WeekEnd:         time.Time(g.WeekEnd).Format(time.DateOnly),
			CurrentProgress: g.CurrentProgress,
			TargetProgress:  g.TargetProgress,
			IsCompleted:     g.IsCompleted,
			CompletedAt:     g.CompletedAt,
			PointsReward:    g.PointsReward,
		})
	}
	return res, nil
}

func (s *goalService) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return ctx, func() {}
}

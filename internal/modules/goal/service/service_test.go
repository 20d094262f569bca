package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/internal/modules/goal/repository"
	ledgerDto "anoa.com/gamiledger/internal/modules/ledger/dto"
	ledgerRepo "anoa.com/gamiledger/internal/modules/ledger/repository"
	ledger "anoa.com/gamiledger/internal/modules/ledger/service"
	"anoa.com/gamiledger/internal/modules/points"
	userRepo "anoa.com/gamiledger/internal/modules/user/repository"
	"anoa.com/gamiledger/internal/testutil"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/database"
	"anoa.com/gamiledger/pkg/dbctx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// countingChecker records how often the ledger asks for a goal check.
type countingChecker struct {
	inner GoalService
	mu    sync.Mutex
	calls int
}

func (c *countingChecker) CheckGoals(ctx context.Context, userID uuid.UUID, activityType string) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.CheckGoals(ctx, userID, activityType)
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingNotifier) NotifyGoalCompleted(ctx context.Context, userID, goalID uuid.UUID, title string, reward int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return nil
}

// flakyBonus fails bonuses after the ledger has written them while failing is set.
type flakyBonus struct {
	*ledger.Ledger
	failing atomic.Bool
}

func (f *flakyBonus) AwardInTx(dbc dbctx.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error) {
	res, err := f.Ledger.AwardInTx(dbc, req)
	if err == nil && f.failing.Load() {
		return nil, errors.New("bonus store unavailable")
	}
	return res, err
}

type fixture struct {
	db       *gorm.DB
	clock    *clock.Manual
	ledger   *ledger.Ledger
	goals    GoalService
	checker  *countingChecker
	notifier *recordingNotifier
	user     uuid.UUID
}

func newFixture(t *testing.T, start time.Time) *fixture {
	return newFixtureWith(t, start, nil)
}

func newFixtureWith(t *testing.T, start time.Time, wrap func(*ledger.Ledger) Ledger) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	clk := clock.NewManual(start)
	tx := database.NewTxRunner(db)

	l := ledger.NewLedger(ledgerRepo.NewLedgerRepository(db), tx, clk, time.UTC, nil, log, ledger.Options{})
	var bonuses Ledger = l
	if wrap != nil {
		bonuses = wrap(l)
	}
	notifier := &recordingNotifier{}
	goals := NewGoalService(repository.NewGoalRepository(db), userRepo.NewUserRepository(db), tx, bonuses, notifier, clk, time.UTC, log, Options{})
	checker := &countingChecker{inner: goals}
	l.SetGoalChecker(checker)

	return &fixture{
		db:       db,
		clock:    clk,
		ledger:   l,
		goals:    goals,
		checker:  checker,
		notifier: notifier,
		user:     testutil.SeedUser(t, db, "ayu").ID,
	}
}

var wednesday = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func (f *fixture) award(t *testing.T, userID uuid.UUID, amount int, kind string) {
	t.Helper()
	_, err := f.ledger.Award(context.Background(), ledgerDto.AwardRequest{UserID: userID, Amount: amount, ActivityType: kind})
	require.NoError(t, err)
}

func (f *fixture) goal(t *testing.T, goalType string) entity.WeeklyGoal {
	t.Helper()
	var g entity.WeeklyGoal
	require.NoError(t, f.db.Where("user_id = ? AND goal_type = ?", f.user, goalType).First(&g).Error)
	return g
}

func (f *fixture) total(t *testing.T, userID uuid.UUID) int {
	t.Helper()
	var p entity.UserProgress
	err := f.db.Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return p.TotalPoints
}

func TestCreateWeeklyGoalsIsIdempotent(t *testing.T) {
	f := newFixture(t, wednesday)
	testutil.SeedUser(t, f.db, "budi")
	testutil.SeedGuest(t, f.db, "guest")
	inactive := testutil.SeedUser(t, f.db, "gone")
	require.NoError(t, f.db.Model(inactive).Update("is_active", false).Error)

	n, err := f.goals.CreateWeeklyGoals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2*len(Definitions)), n)

	n, err = f.goals.CreateWeeklyGoals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	var count int64
	require.NoError(t, f.db.Model(&entity.WeeklyGoal{}).Count(&count).Error)
	assert.Equal(t, int64(2*len(Definitions)), count)

	g := f.goal(t, GoalHelp)
	assert.Equal(t, "2026-10-12", time.Time(g.WeekStart).Format(time.DateOnly))
	assert.Equal(t, "2026-10-18", time.Time(g.WeekEnd).Format(time.DateOnly))
	assert.Equal(t, 5, g.TargetProgress)
}

func TestGoalBonusDoesNotRecurse(t *testing.T) {
	f := newFixture(t, wednesday)
	_, err := f.goals.CreateWeeklyGoals(context.Background())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		f.award(t, f.user, 10, points.ActivityCommentPosted)
	}

	help := f.goal(t, GoalHelp)
	assert.True(t, help.IsCompleted)
	assert.NotNil(t, help.CompletedAt)
	assert.Equal(t, 5, help.CurrentProgress)
	assert.Equal(t, 50+75, f.total(t, f.user))

	// five plain awards, five checks; the bonus award asked for none
	assert.Equal(t, 5, f.checker.calls)
	assert.Zero(t, f.goal(t, GoalActivities).CurrentProgress)

	var bonuses int64
	require.NoError(t, f.db.Model(&entity.PointActivity{}).Where("activity_type = ?", points.ActivityWeeklyGoalBonus).Count(&bonuses).Error)
	assert.Equal(t, int64(1), bonuses)
	assert.Equal(t, []string{"Help others with 5 comments"}, f.notifier.titles)

	// a completed goal is terminal
	f.award(t, f.user, 10, points.ActivityCommentPosted)
	assert.Equal(t, 5, f.goal(t, GoalHelp).CurrentProgress)
	assert.Equal(t, 60+75, f.total(t, f.user))
}

func TestGoalStaysOpenWhenBonusFails(t *testing.T) {
	var flaky *flakyBonus
	f := newFixtureWith(t, wednesday, func(l *ledger.Ledger) Ledger {
		flaky = &flakyBonus{Ledger: l}
		flaky.failing.Store(true)
		return flaky
	})
	ctx := context.Background()
	_, err := f.goals.CreateWeeklyGoals(ctx)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, f.goals.CheckGoals(ctx, f.user, points.ActivityQuizCompleted))
	}
	g := f.goal(t, GoalActivities)
	assert.Equal(t, 3, g.CurrentProgress)
	assert.False(t, g.IsCompleted)
	assert.Nil(t, g.CompletedAt)
	assert.Zero(t, f.total(t, f.user))
	assert.Empty(t, f.notifier.titles)

	flaky.failing.Store(false)
	require.NoError(t, f.goals.CheckGoals(ctx, f.user, points.ActivityProjectCreated))

	g = f.goal(t, GoalActivities)
	assert.Equal(t, 3, g.CurrentProgress)
	assert.True(t, g.IsCompleted)
	assert.Equal(t, 50, f.total(t, f.user))
	assert.Equal(t, []string{"Complete 3 learning activities"}, f.notifier.titles)

	var bonuses int64
	require.NoError(t, f.db.Model(&entity.PointActivity{}).Where("activity_type = ?", points.ActivityWeeklyGoalBonus).Count(&bonuses).Error)
	assert.Equal(t, int64(1), bonuses)
}

func TestCheckGoalsIgnoresUnmappedActivity(t *testing.T) {
	f := newFixture(t, wednesday)
	_, err := f.goals.CreateWeeklyGoals(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.goals.CheckGoals(context.Background(), f.user, points.ActivityStreakBonus))
	for _, d := range Definitions {
		assert.Zero(t, f.goal(t, d.Type).CurrentProgress, d.Type)
	}
}

func TestCheckGoalsOnlyTouchesCurrentWeek(t *testing.T) {
	f := newFixture(t, wednesday)
	_, err := f.goals.CreateWeeklyGoals(context.Background())
	require.NoError(t, err)

	f.clock.AddDays(7)
	require.NoError(t, f.goals.CheckGoals(context.Background(), f.user, points.ActivityQuizCompleted))
	assert.Zero(t, f.goal(t, GoalActivities).CurrentProgress)

	f.clock.AddDays(-7)
	require.NoError(t, f.goals.CheckGoals(context.Background(), f.user, points.ActivityQuizCompleted))
	assert.Equal(t, 1, f.goal(t, GoalActivities).CurrentProgress)
}

func TestCheckStreakBonuses(t *testing.T) {
	f := newFixture(t, wednesday.AddDate(0, 0, -2))
	casual := testutil.SeedUser(t, f.db, "budi").ID

	for day := 0; day < 3; day++ {
		f.award(t, f.user, 5, points.ActivityProjectCreated)
		if day < 2 {
			f.clock.AddDays(1)
		}
	}
	f.award(t, casual, 5, points.ActivityProjectCreated)
	before := f.total(t, f.user)

	paid, err := f.goals.CheckStreakBonuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, paid)
	assert.Equal(t, before+points.StreakBonus(3), f.total(t, f.user))
	assert.Equal(t, 5, f.total(t, casual))

	paid, err = f.goals.CheckStreakBonuses(context.Background())
	require.NoError(t, err)
	assert.Zero(t, paid)
	assert.Equal(t, before+points.StreakBonus(3), f.total(t, f.user))
}

func TestCurrentWeek(t *testing.T) {
	f := newFixture(t, wednesday)
	_, err := f.goals.CreateWeeklyGoals(context.Background())
	require.NoError(t, err)
	f.award(t, f.user, 5, points.ActivityDailyLogin)

	week, err := f.goals.CurrentWeek(context.Background(), f.user)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-12", week.WeekStart)
	assert.Equal(t, "2026-10-18", week.WeekEnd)
	require.Len(t, week.Goals, 3)
	assert.Equal(t, GoalActivities, week.Goals[0].GoalType)
	assert.Equal(t, GoalLogin, week.Goals[2].GoalType)
	assert.Equal(t, 1, week.Goals[2].CurrentProgress)
	assert.Equal(t, "Log in on 5 days", week.Goals[2].Title)
}

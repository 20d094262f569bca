package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"anoa.com/gamiledger/internal/entity"
	ledgerDto "anoa.com/gamiledger/internal/modules/ledger/dto"
	ledgerRepo "anoa.com/gamiledger/internal/modules/ledger/repository"
	"anoa.com/gamiledger/internal/modules/points"
	"anoa.com/gamiledger/internal/testutil"
	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/database"
	"anoa.com/gamiledger/pkg/marker"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingGoals struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingGoals) CheckGoals(ctx context.Context, userID uuid.UUID, activityType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, activityType)
	return r.err
}

type recordingNotifier struct {
	tiers [][2]string
}

func (r *recordingNotifier) NotifyTierUp(ctx context.Context, userID uuid.UUID, oldTier, newTier string, total int) error {
	r.tiers = append(r.tiers, [2]string{oldTier, newTier})
	return nil
}

type fixture struct {
	db     *gorm.DB
	ledger *Ledger
	clock  *clock.Manual
	user   uuid.UUID
}

func newFixture(t *testing.T, markers *marker.Store) *fixture {
	t.Helper()
	db := testutil.DB(t)
	clk := clock.NewManual(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	l := NewLedger(ledgerRepo.NewLedgerRepository(db), database.NewTxRunner(db), clk, time.UTC, markers, testutil.Logger(t), Options{DailyLoginPoints: 5})
	user := testutil.SeedUser(t, db, "ayu")
	return &fixture{db: db, ledger: l, clock: clk, user: user.ID}
}

func (f *fixture) progress(t *testing.T) entity.UserProgress {
	t.Helper()
	var p entity.UserProgress
	require.NoError(t, f.db.Where("user_id = ?", f.user).First(&p).Error)
	return p
}

func (f *fixture) activityCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&entity.PointActivity{}).Where("user_id = ?", f.user).Count(&n).Error)
	return n
}

func (f *fixture) award(t *testing.T, amount int, kind string) *ledgerDto.AwardResult {
	t.Helper()
	res, err := f.ledger.Award(context.Background(), ledgerDto.AwardRequest{UserID: f.user, Amount: amount, ActivityType: kind})
	require.NoError(t, err)
	return res
}

func TestAwardCreatesProgressLazily(t *testing.T) {
	f := newFixture(t, nil)

	res := f.award(t, 15, points.ActivityCommentPosted)

	assert.Equal(t, 15, res.NewTotal)
	assert.False(t, res.Duplicate)
	p := f.progress(t)
	assert.Equal(t, 15, p.TotalPoints)
	assert.Equal(t, points.TierBronze, p.Tier)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 1, p.CurrentStreakDays)
	assert.Equal(t, 1, p.LifetimeCommentCount)
	assert.Equal(t, int64(1), f.activityCount(t))
}

func TestAwardToUnknownUserIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	stranger := uuid.New()

	_, err := f.ledger.Award(context.Background(), ledgerDto.AwardRequest{UserID: stranger, Amount: 10, ActivityType: points.ActivityCommentPosted})
	require.ErrorIs(t, err, apperror.ErrNotFound)

	var rows, activities int64
	require.NoError(t, f.db.Model(&entity.UserProgress{}).Where("user_id = ?", stranger).Count(&rows).Error)
	require.NoError(t, f.db.Model(&entity.PointActivity{}).Where("user_id = ?", stranger).Count(&activities).Error)
	assert.Zero(t, rows)
	assert.Zero(t, activities)
}

func TestAwardIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	prev := 0
	for _, amt := range []int{10, 1, 250, 40} {
		res := f.award(t, amt, points.ActivityProjectCreated)
		assert.Equal(t, prev+amt, res.NewTotal)
		prev = res.NewTotal
	}
	assert.Equal(t, 4, f.progress(t).LifetimeProjectCount)
	assert.Equal(t, points.LevelFor(301), f.progress(t).Level)
}

func TestConcurrentAwardsAreAllCounted(t *testing.T) {
	f := newFixture(t, nil)
	const workers = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Award(context.Background(), ledgerDto.AwardRequest{
				UserID: f.user, Amount: 4, ActivityType: points.ActivityCommentPosted,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p := f.progress(t)
	assert.Equal(t, workers*4, p.TotalPoints)
	assert.Equal(t, workers, p.LifetimeCommentCount)
	assert.Equal(t, int64(workers), f.activityCount(t))
	assert.Equal(t, 1, p.CurrentStreakDays)
}

func TestInvalidAwardHasNoEffect(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, req := range []ledgerDto.AwardRequest{
		{UserID: f.user, Amount: 0, ActivityType: points.ActivityCommentPosted},
		{UserID: f.user, Amount: -5, ActivityType: points.ActivityCommentPosted},
		{UserID: f.user, Amount: points.MaxSingleAward + 1, ActivityType: points.ActivityCommentPosted},
		{UserID: f.user, Amount: 5, ActivityType: "unknown"},
	} {
		_, err := f.ledger.Award(ctx, req)
		assert.ErrorIs(t, err, apperror.ErrInvalidAward)
	}

	var n int64
	require.NoError(t, f.db.Model(&entity.UserProgress{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Zero(t, f.activityCount(t))
}

func TestStreakSameDayIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.award(t, 5, points.ActivityCommentPosted)
	f.clock.Advance(6 * time.Hour)
	f.award(t, 5, points.ActivityCommentPosted)

	p := f.progress(t)
	assert.Equal(t, 1, p.CurrentStreakDays)
	assert.Equal(t, 1, p.LongestStreakDays)
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), *p.LastActivity())
}

func TestStreakLaw(t *testing.T) {
	f := newFixture(t, nil)

	f.award(t, 5, points.ActivityDailyLogin)
	f.clock.AddDays(1)
	res := f.award(t, 5, points.ActivityDailyLogin)
	assert.Equal(t, 2, res.StreakDays)

	p := f.progress(t)
	assert.Equal(t, 2, p.CurrentStreakDays)
	assert.Equal(t, 2, p.LongestStreakDays)

	f.clock.AddDays(2)
	f.award(t, 5, points.ActivityDailyLogin)

	p = f.progress(t)
	assert.Equal(t, 1, p.CurrentStreakDays)
	assert.Equal(t, 2, p.LongestStreakDays)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), *p.LastActivity())
}

func TestStreakHonoursLocation(t *testing.T) {
	db := testutil.DB(t)
	jakarta := time.FixedZone("WIB", 7*3600)
	// 23:00 local on Oct 14
	clk := clock.NewManual(time.Date(2026, 10, 14, 16, 0, 0, 0, time.UTC))
	l := NewLedger(ledgerRepo.NewLedgerRepository(db), database.NewTxRunner(db), clk, jakarta, nil, testutil.Logger(t), Options{})
	user := testutil.SeedUser(t, db, "bima")
	ctx := context.Background()

	_, err := l.Award(ctx, ledgerDto.AwardRequest{UserID: user.ID, Amount: 5, ActivityType: points.ActivityDailyLogin})
	require.NoError(t, err)
	// two hours later it is already Oct 15 in Jakarta
	clk.Advance(2 * time.Hour)
	res, err := l.Award(ctx, ledgerDto.AwardRequest{UserID: user.ID, Amount: 5, ActivityType: points.ActivityDailyLogin})
	require.NoError(t, err)
	assert.Equal(t, 2, res.StreakDays)
}

func TestQuizResultPaysOncePerAttempt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.ledger.AwardQuizResult(ctx, f.user, "attempt-1", 100)
	require.NoError(t, err)
	assert.Equal(t, 60, res.NewTotal)
	assert.Equal(t, points.TierBronze, res.NewTier)
	assert.False(t, res.Duplicate)

	again, err := f.ledger.AwardQuizResult(ctx, f.user, "attempt-1", 100)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 60, again.NewTotal)

	p := f.progress(t)
	assert.Equal(t, 60, p.TotalPoints)
	assert.Equal(t, 1, p.LifetimeQuizCount)
	assert.Equal(t, int64(1), f.activityCount(t))

	_, err = f.ledger.AwardQuizResult(ctx, f.user, "attempt-2", 101)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestAwardsWithoutSourceNeverCollide(t *testing.T) {
	f := newFixture(t, nil)
	f.award(t, 5, points.ActivityCommentPosted)
	f.award(t, 5, points.ActivityCommentPosted)
	assert.Equal(t, int64(2), f.activityCount(t))
}

func TestTierChangeRecordsPreAwardTier(t *testing.T) {
	f := newFixture(t, nil)
	notifier := &recordingNotifier{}
	f.ledger.SetNotifier(notifier)

	f.award(t, 990, points.ActivityProjectCreated)
	res := f.award(t, 20, points.ActivityProjectCreated)

	assert.True(t, res.TierChanged)
	assert.Equal(t, points.TierBronze, res.OldTier)
	assert.Equal(t, points.TierSilver, res.NewTier)
	assert.Equal(t, [][2]string{{points.TierBronze, points.TierSilver}}, notifier.tiers)

	p := f.progress(t)
	assert.Equal(t, points.TierSilver, p.Tier)
	assert.Equal(t, points.LevelFor(1010), p.Level)

	var last entity.PointActivity
	require.NoError(t, f.db.Where("user_id = ?", f.user).Order("id DESC").First(&last).Error)
	assert.Equal(t, points.TierBronze, last.TierAtAward)
}

func TestGoalCheckRunsOnlyOnPlainAwards(t *testing.T) {
	f := newFixture(t, nil)
	goals := &recordingGoals{}
	f.ledger.SetGoalChecker(goals)
	ctx := context.Background()

	f.award(t, 5, points.ActivityCommentPosted)

	_, err := f.ledger.Award(ctx, ledgerDto.AwardRequest{UserID: f.user, Amount: 5, ActivityType: points.ActivityCommentPosted, SkipGoalCheck: true})
	require.NoError(t, err)

	_, err = f.ledger.AwardBonus(ctx, ledgerDto.AwardRequest{UserID: f.user, Amount: 50, ActivityType: points.ActivityWeeklyGoalBonus})
	require.NoError(t, err)

	assert.Equal(t, []string{points.ActivityCommentPosted}, goals.calls)
}

func TestGoalCheckFailureDoesNotFailAward(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.SetGoalChecker(&recordingGoals{err: errors.New("goal table gone")})

	res := f.award(t, 5, points.ActivityCommentPosted)
	assert.Equal(t, 5, res.NewTotal)
	assert.Equal(t, 5, f.progress(t).TotalPoints)
}

func TestAwardExternalRejectsSystemTypes(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.ledger.AwardExternal(context.Background(), ledgerDto.AwardRequest{UserID: f.user, Amount: 50, ActivityType: points.ActivityWeeklyGoalBonus})
	assert.ErrorIs(t, err, apperror.ErrInvalidAward)
	assert.Zero(t, f.activityCount(t))
}

func TestDuplicateRollsBackWholeAward(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := ledgerDto.AwardRequest{UserID: f.user, Amount: 30, ActivityType: points.ActivityProjectCreated, SourceType: "project", SourceID: "p-1"}

	_, err := f.ledger.Award(ctx, req)
	require.NoError(t, err)
	f.clock.AddDays(1)
	res, err := f.ledger.Award(ctx, req)
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	p := f.progress(t)
	assert.Equal(t, 30, p.TotalPoints)
	assert.Equal(t, 1, p.LifetimeProjectCount)
	// the duplicate must not have touched the streak either
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), *p.LastActivity())
}

func TestAwardDailyLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f := newFixture(t, marker.New(rdb))
	ctx := context.Background()

	first, err := f.ledger.AwardDailyLogin(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 5, first.NewTotal)

	second, err := f.ledger.AwardDailyLogin(ctx, f.user)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	// marker gone (e.g. redis flushed): the audit log still refuses
	mr.FlushAll()
	third, err := f.ledger.AwardDailyLogin(ctx, f.user)
	require.NoError(t, err)
	assert.True(t, third.Duplicate)

	f.clock.AddDays(1)
	next, err := f.ledger.AwardDailyLogin(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 10, next.NewTotal)
	assert.Equal(t, 2, next.StreakDays)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	empty, err := f.ledger.Snapshot(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalPoints)
	assert.Equal(t, points.TierBronze, empty.Status.Tier)

	_, err = f.ledger.AwardQuizResult(ctx, f.user, "a1", 80)
	require.NoError(t, err)
	f.award(t, 5, points.ActivityCommentPosted)

	snap, err := f.ledger.Snapshot(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 47, snap.TotalPoints)
	assert.Equal(t, 47, snap.Status.WeeklyPoints)
	assert.Equal(t, 1, snap.Lifetime.Quizzes)
	assert.Equal(t, 1, snap.Lifetime.Comments)
	require.Len(t, snap.RecentActivities, 2)
	assert.Equal(t, points.ActivityCommentPosted, snap.RecentActivities[0].ActivityType)
}

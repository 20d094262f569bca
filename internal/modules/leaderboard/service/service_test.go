package service

import (
	"context"
	"testing"
	"time"

	leaderboardDto "anoa.com/gamiledger/internal/modules/leaderboard/dto"
	leaderboardRepo "anoa.com/gamiledger/internal/modules/leaderboard/repository"
	ledgerDto "anoa.com/gamiledger/internal/modules/ledger/dto"
	ledgerRepo "anoa.com/gamiledger/internal/modules/ledger/repository"
	ledger "anoa.com/gamiledger/internal/modules/ledger/service"
	"anoa.com/gamiledger/internal/modules/points"
	userRepo "anoa.com/gamiledger/internal/modules/user/repository"
	"anoa.com/gamiledger/internal/testutil"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/database"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var wednesday = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	clock  *clock.Manual
	ledger *ledger.Ledger
	board  LeaderboardService
	mr     *miniredis.Miniredis
	ayu    uuid.UUID
	budi   uuid.UUID
	citra  uuid.UUID
}

// newFixture leaves ayu 30, budi 110 and citra 550 points:
// citra earned 500 in September, budi 100 last week, and this week
// ayu 30, citra 50 and budi 10.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := clock.NewManual(time.Date(2026, 9, 20, 12, 0, 0, 0, time.UTC))
	l := ledger.NewLedger(ledgerRepo.NewLedgerRepository(db), database.NewTxRunner(db), clk, time.UTC, nil, log, ledger.Options{})
	board := NewLeaderboardService(leaderboardRepo.NewLeaderboardRepository(db), userRepo.NewUserRepository(db), rdb, clk, time.UTC, log)
	l.SetScoreBoard(board)

	f := &fixture{
		db:     db,
		clock:  clk,
		ledger: l,
		board:  board,
		mr:     mr,
		ayu:    testutil.SeedUser(t, db, "ayu").ID,
		budi:   testutil.SeedUser(t, db, "budi").ID,
		citra:  testutil.SeedUser(t, db, "citra").ID,
	}

	f.award(t, f.citra, 500)
	clk.Set(time.Date(2026, 10, 5, 12, 0, 0, 0, time.UTC))
	f.award(t, f.budi, 100)
	clk.Set(wednesday)
	f.award(t, f.ayu, 30)
	f.award(t, f.citra, 50)
	f.award(t, f.budi, 10)
	return f
}

func (f *fixture) award(t *testing.T, userID uuid.UUID, amount int) {
	t.Helper()
	_, err := f.ledger.Award(context.Background(), ledgerDto.AwardRequest{UserID: userID, Amount: amount, ActivityType: points.ActivityProjectCreated})
	require.NoError(t, err)
}

func usernames(entries []leaderboardDto.LeaderboardEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Username)
	}
	return out
}

func TestLeaderboardTimeframes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		timeframe string
		names     []string
		points    []int
	}{
		{"", []string{"citra", "budi", "ayu"}, []int{550, 110, 30}},
		{leaderboardDto.TimeframeMonthly, []string{"budi", "citra", "ayu"}, []int{110, 50, 30}},
		{leaderboardDto.TimeframeWeekly, []string{"citra", "ayu", "budi"}, []int{50, 30, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.timeframe, func(t *testing.T) {
			res, err := f.board.GetLeaderboard(ctx, leaderboardDto.LeaderboardQuery{Timeframe: tt.timeframe})
			require.NoError(t, err)
			assert.Equal(t, tt.names, usernames(res.Entries))
			for i, e := range res.Entries {
				assert.Equal(t, i+1, e.Position)
				assert.Equal(t, tt.points[i], e.Points)
			}
		})
	}
}

func TestLeaderboardTierStatusUsesAllTimePoints(t *testing.T) {
	f := newFixture(t)

	res, err := f.board.GetLeaderboard(context.Background(), leaderboardDto.LeaderboardQuery{Timeframe: leaderboardDto.TimeframeWeekly, Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	top := res.Entries[0]
	assert.Equal(t, "citra", top.Username)
	assert.Equal(t, 550, top.TierStatus.CurrentPoints)
	assert.Equal(t, 50, top.TierStatus.WeeklyPoints)
	assert.Equal(t, "active", top.TierStatus.WeeklyLabel)
}

func TestLeaderboardSkipsInactiveUsers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Exec("UPDATE users SET is_active = ? WHERE id = ?", false, f.citra).Error)

	res, err := f.board.GetLeaderboard(context.Background(), leaderboardDto.LeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"budi", "ayu"}, usernames(res.Entries))
}

func TestScoresAreMirroredIntoSortedSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	score, err := f.mr.ZScore(AllTimeKey, f.citra.String())
	require.NoError(t, err)
	assert.Equal(t, float64(550), score)

	f.mr.FlushAll()
	n, err := f.board.Warm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f.award(t, f.ayu, 600)
	res, err := f.board.GetLeaderboard(ctx, leaderboardDto.LeaderboardQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"ayu", "citra"}, usernames(res.Entries))
	assert.Equal(t, 630, res.Entries[0].Points)
}

func TestLeaderboardWithoutRedis(t *testing.T) {
	db := testutil.DB(t)
	board := NewLeaderboardService(leaderboardRepo.NewLeaderboardRepository(db), userRepo.NewUserRepository(db), nil, clock.NewManual(wednesday), time.UTC, testutil.Logger(t))

	require.NoError(t, board.RecordScore(context.Background(), uuid.New(), 10))
	n, err := board.Warm(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := board.GetLeaderboard(context.Background(), leaderboardDto.LeaderboardQuery{})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Equal(t, leaderboardDto.TimeframeAllTime, res.Timeframe)
}

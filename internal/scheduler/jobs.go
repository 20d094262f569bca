package scheduler

import (
	"context"

	"anoa.com/gamiledger/pkg/logger"
)

const (
	JobWeeklyGoals   = "weekly_goals"
	JobStreakBonus   = "streak_bonus"
	JobQuestExpiry   = "quest_expiry"
	JobLeaderboard   = "leaderboard_warm"
	JobSearchReindex = "search_reindex"
)

type GoalJobs interface {
	CreateWeeklyGoals(ctx context.Context) (int64, error)
	CheckStreakBonuses(ctx context.Context) (int, error)
}

type QuestExpirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

type LeaderboardWarmer interface {
	Warm(ctx context.Context) (int, error)
}

type Reindexer interface {
	Reindex(ctx context.Context) error
}

// Schedules holds the cron expressions; an empty one makes its job on-demand.
type Schedules struct {
	WeeklyGoals string
	StreakBonus string
	QuestExpiry string
}

type funcJob struct {
	name     string
	schedule string
	fn       func(ctx context.Context) error
}

// NewJob adapts a function into a Job.
func NewJob(name, schedule string, fn func(ctx context.Context) error) Job {
	return &funcJob{name: name, schedule: schedule, fn: fn}
}

func (j *funcJob) Name() string                      { return j.name }
func (j *funcJob) Schedule() string                  { return j.schedule }
func (j *funcJob) Execute(ctx context.Context) error { return j.fn(ctx) }

// LedgerJobs builds the standard job set.
func LedgerJobs(schedules Schedules, goals GoalJobs, quests QuestExpirer, board LeaderboardWarmer, index Reindexer, log *logger.Logger) []Job {
	return []Job{
		NewJob(JobWeeklyGoals, schedules.WeeklyGoals, func(ctx context.Context) error {
			_, err := goals.CreateWeeklyGoals(ctx)
			return err
		}),
		NewJob(JobStreakBonus, schedules.StreakBonus, func(ctx context.Context) error {
			_, err := goals.CheckStreakBonuses(ctx)
			return err
		}),
		NewJob(JobQuestExpiry, schedules.QuestExpiry, func(ctx context.Context) error {
			_, err := quests.ExpireOverdue(ctx)
			return err
		}),
		NewJob(JobLeaderboard, "", func(ctx context.Context) error {
			n, err := board.Warm(ctx)
			if err != nil {
				return err
			}
			log.Info("leaderboard warmed", "count", n)
			return nil
		}),
		NewJob(JobSearchReindex, "", index.Reindex),
	}
}

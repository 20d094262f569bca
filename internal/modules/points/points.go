// Package points holds the pure scoring rules: quiz points, streak bonuses,
// tiers, levels and award validation. Nothing here touches storage.
package points

import (
	"fmt"

	"anoa.com/gamiledger/pkg/apperror"
)

// Activity types accepted by the ledger.
const (
	ActivityQuizCompleted  = "quiz_completed"
	ActivityCommentPosted  = "comment_posted"
	ActivityProjectCreated = "project_created"
	ActivityDailyLogin     = "daily_login"

	// System-only: produced by the engine itself, never by collaborators.
	ActivityQuestCompleted  = "quest_completed"
	ActivityWeeklyGoalBonus = "weekly_goal_bonus"
	ActivityStreakBonus     = "streak_bonus"
	ActivityAdminGrant      = "admin_grant"
)

const (
	QuizBasePoints    = 10
	QuizScoreFactor   = 0.4
	QuizPerfectBonus  = 10
	MaxSingleAward    = 1000
	LargeAwardWarning = 500

	StreakBonusPerDay = 5
	MaxStreakBonus    = 50
)

var activityTypes = map[string]bool{
	ActivityQuizCompleted:   false,
	ActivityCommentPosted:   false,
	ActivityProjectCreated:  false,
	ActivityDailyLogin:      false,
	ActivityQuestCompleted:  true,
	ActivityWeeklyGoalBonus: true,
	ActivityStreakBonus:     true,
	ActivityAdminGrant:      true,
}

// IsKnownActivity reports whether the ledger accepts the type at all.
func IsKnownActivity(activityType string) bool {
	_, ok := activityTypes[activityType]
	return ok
}

// IsSystemActivity reports whether the type is reserved for the engine.
func IsSystemActivity(activityType string) bool {
	return activityTypes[activityType]
}

// QuizPoints = base + floor(score * factor) + perfect bonus, capped at MaxSingleAward.
func QuizPoints(score int) (int, error) {
	if score < 0 || score > 100 {
		return 0, fmt.Errorf("quiz score %d outside 0..100: %w", score, apperror.ErrInvalidInput)
	}
	pts := QuizBasePoints + score*4/10
	if score == 100 {
		pts += QuizPerfectBonus
	}
	if pts > MaxSingleAward {
		pts = MaxSingleAward
	}
	return pts, nil
}

// StreakBonus pays for every day after the first, capped.
func StreakBonus(days int) int {
	if days <= 1 {
		return 0
	}
	bonus := (days - 1) * StreakBonusPerDay
	if bonus > MaxStreakBonus {
		return MaxStreakBonus
	}
	return bonus
}

func ValidateAward(amount int, activityType string) error {
	if amount <= 0 {
		return fmt.Errorf("amount %d must be positive: %w", amount, apperror.ErrInvalidAward)
	}
	if amount > MaxSingleAward {
		return fmt.Errorf("amount %d exceeds max single award %d: %w", amount, MaxSingleAward, apperror.ErrInvalidAward)
	}
	if !IsKnownActivity(activityType) {
		return fmt.Errorf("unknown activity type %q: %w", activityType, apperror.ErrInvalidAward)
	}
	return nil
}

// ValidateExternalAward is ValidateAward for callers outside the engine.
func ValidateExternalAward(amount int, activityType string) error {
	if err := ValidateAward(amount, activityType); err != nil {
		return err
	}
	if IsSystemActivity(activityType) {
		return fmt.Errorf("activity type %q is system-only: %w", activityType, apperror.ErrInvalidAward)
	}
	return nil
}

// Lifetime counter columns on user_progress.
const (
	CounterQuiz    = "lifetime_quiz_count"
	CounterComment = "lifetime_comment_count"
	CounterProject = "lifetime_project_count"
	CounterQuest   = "lifetime_quest_count"
)

// LifetimeCounter returns the user_progress column bumped by an activity, or "".
func LifetimeCounter(activityType string) string {
	switch activityType {
	case ActivityQuizCompleted:
		return CounterQuiz
	case ActivityCommentPosted:
		return CounterComment
	case ActivityProjectCreated:
		return CounterProject
	case ActivityQuestCompleted:
		return CounterQuest
	}
	return ""
}

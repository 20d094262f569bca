package service

import (
	"context"
	"time"

	ledgerDto "anoa.com/gamiledger/internal/modules/ledger/dto"
	"anoa.com/gamiledger/pkg/dbctx"
	"github.com/google/uuid"
)

// Actions reported by collaborators.
const (
	ActionCommentCreated = "comment_created"
	ActionQuizCompleted  = "quiz_completed"
	ActionQuizPerfect    = "quiz_perfect"
	ActionProjectCreated = "project_created"
	ActionDailyLogin     = "daily_login"
	ActionSearchUsed     = "search_used"
	ActionProfileViewed  = "profile_viewed"
)

// Quest types, the routing key between actions and quests.
const (
	TypeCommentPost     = "comment_post"
	TypeDailyEngagement = "daily_engagement"
	TypeQuizCompletion  = "quiz_completion"
	TypeQuizPerfection  = "quiz_perfection"
	TypeProjectCreation = "project_creation"
	TypeDailyLogin      = "daily_login"
	TypeExploration     = "exploration"
	TypeSocial          = "social"
	TypeOnboarding      = "onboarding"
)

var actionQuestTypes = map[string][]string{
	ActionCommentCreated: {TypeCommentPost, TypeDailyEngagement},
	ActionQuizCompleted:  {TypeQuizCompletion, TypeDailyEngagement},
	ActionQuizPerfect:    {TypeQuizPerfection},
	ActionProjectCreated: {TypeProjectCreation, TypeDailyEngagement},
	ActionDailyLogin:     {TypeDailyLogin},
	ActionSearchUsed:     {TypeExploration},
	ActionProfileViewed:  {TypeExploration, TypeSocial},
}

// Guided quests advance on step triggers rather than on their quest type.
var guidedQuestTypes = []string{TypeOnboarding}

// QuestTypesFor returns the quest types an action can progress.
func QuestTypesFor(action string) []string {
	return actionQuestTypes[action]
}

// Awarder is the slice of the ledger that quest completion pays through.
type Awarder interface {
	AwardInTx(dbc dbctx.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error)
	Publish(ctx context.Context, res *ledgerDto.AwardResult)
}

type GoalChecker interface {
	CheckGoals(ctx context.Context, userID uuid.UUID, activityType string) error
}

type Notifier interface {
	NotifyQuestCompleted(ctx context.Context, userID, progressID uuid.UUID, title string, points int) error
}

type Options struct {
	// Timeout bounds one operation end to end. Zero means no bound.
	Timeout time.Duration
}

func bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

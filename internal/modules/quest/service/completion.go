package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anoa.com/gamiledger/internal/entity"
	ledgerDto "anoa.com/gamiledger/internal/modules/ledger/dto"
	ledger "anoa.com/gamiledger/internal/modules/ledger/service"
	"anoa.com/gamiledger/internal/modules/points"
	"anoa.com/gamiledger/internal/modules/quest/dto"
	"anoa.com/gamiledger/internal/modules/quest/repository"
	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/database"
	"anoa.com/gamiledger/pkg/dbctx"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/google/uuid"
)

// CompletionService owns the instance state machine:
// not_started -> in_progress -> completed, in_progress -> expired.
type CompletionService interface {
	// Complete finishes an instance and pays its reward. force skips the
	// progress and expiry checks.
	Complete(ctx context.Context, progressID uuid.UUID, force bool) (*dto.CompletionResult, error)
	// CompleteForUser is Complete without force, restricted to the owner.
	CompleteForUser(ctx context.Context, userID, progressID uuid.UUID) (*dto.CompletionResult, error)
	// CompleteInTx is Complete without force inside the caller's transaction.
	// The returned func runs the post-commit effects; call it once the
	// transaction has committed.
	CompleteInTx(dbc dbctx.Context, progressID uuid.UUID) (*dto.CompletionResult, func(ctx context.Context), error)
	CanComplete(ctx context.Context, userID, progressID uuid.UUID) (*dto.CanCompleteResponse, error)
	StartQuest(ctx context.Context, userID, questID uuid.UUID) (*dto.ProgressResponse, error)
	ExpireOverdue(ctx context.Context) (int64, error)
}

type completionService struct {
	quests   repository.QuestRepository
	progress repository.ProgressRepository
	tx       database.TxRunner
	ledger   Awarder
	goals    GoalChecker
	notifier Notifier
	starter  *instanceStarter
	clock    clock.Clock
	log      *logger.Logger
	opts     Options
}

func NewCompletionService(
	quests repository.QuestRepository,
	progress repository.ProgressRepository,
	tx database.TxRunner,
	awarder Awarder,
	goals GoalChecker,
	notifier Notifier,
	clk clock.Clock,
	loc *time.Location,
	log *logger.Logger,
	opts Options,
) CompletionService {
	if loc == nil {
		loc = time.UTC
	}
	return &completionService{
		quests:   quests,
		progress: progress,
		tx:       tx,
		ledger:   awarder,
		goals:    goals,
		notifier: notifier,
		starter:  &instanceStarter{progress: progress, clock: clk, loc: loc},
		clock:    clk,
		log:      log.With("component", "quest_completion"),
		opts:     opts,
	}
}

func (s *completionService) Complete(ctx context.Context, progressID uuid.UUID, force bool) (*dto.CompletionResult, error) {
	return s.complete(ctx, progressID, uuid.Nil, force)
}

func (s *completionService) CompleteForUser(ctx context.Context, userID, progressID uuid.UUID) (*dto.CompletionResult, error) {
	return s.complete(ctx, progressID, userID, false)
}

type completion struct {
	result   dto.CompletionResult
	userID   uuid.UUID
	title    string
	award    *ledgerDto.AwardResult
	finished bool
}

// complete runs the completion CAS and the reward in one transaction.
// owner, when not nil, must match the instance's user.
func (s *completionService) complete(ctx context.Context, progressID, owner uuid.UUID, force bool) (*dto.CompletionResult, error) {
	txCtx, cancel := bound(ctx, s.opts.Timeout)
	defer cancel()

	var done *completion
	err := s.tx.InTx(txCtx, func(dbc dbctx.Context) error {
		var err error
		done, err = s.completeWithin(dbc, progressID, owner, force)
		return err
	})
	if err != nil {
		return nil, apperror.FromStore("quest.complete", err)
	}

	if done.finished {
		after, cancelAfter := bound(ctx, s.opts.Timeout)
		defer cancelAfter()
		s.afterCompletion(after, done)
	}
	return &done.result, nil
}

func (s *completionService) CompleteInTx(dbc dbctx.Context, progressID uuid.UUID) (*dto.CompletionResult, func(ctx context.Context), error) {
	done, err := s.completeWithin(dbc, progressID, uuid.Nil, false)
	if err != nil {
		return nil, nil, err
	}
	after := func(ctx context.Context) {
		if done.finished {
			s.afterCompletion(ctx, done)
		}
	}
	return &done.result, after, nil
}

// completeWithin runs one completion attempt under a savepoint of dbc's
// transaction. A reward that is already in the audit log means an earlier
// attempt paid it; the instance is then closed without paying again.
func (s *completionService) completeWithin(dbc dbctx.Context, progressID, owner uuid.UUID, force bool) (*completion, error) {
	var done *completion
	attempt := func(pay bool) error {
		return database.Savepoint(dbc, func(sp dbctx.Context) error {
			var err error
			done, err = s.completeStep(sp, progressID, owner, force, pay)
			return err
		})
	}

	err := attempt(true)
	if errors.Is(err, ledger.ErrDuplicateAward) {
		s.log.Warn("quest reward already recorded, completing without award", "progress_id", progressID)
		err = attempt(false)
	}
	if err != nil {
		return nil, err
	}
	return done, nil
}

func (s *completionService) completeStep(dbc dbctx.Context, progressID, owner uuid.UUID, force, pay bool) (*completion, error) {
	now := s.clock.Now()
	done := &completion{}

	p, err := s.progress.FindByID(dbc, progressID)
	if err != nil {
		return nil, err
	}
	if owner != uuid.Nil && p.UserID != owner {
		return nil, fmt.Errorf("quest progress %s: %w", progressID, apperror.ErrNotFound)
	}
	if p.Quest == nil {
		return nil, fmt.Errorf("quest %s: %w", p.QuestID, apperror.ErrNotFound)
	}

	done.result = dto.CompletionResult{ProgressID: p.ID, QuestID: p.QuestID}
	done.userID = p.UserID
	done.title = p.Quest.Title

	if p.IsCompleted {
		done.result.AlreadyCompleted = true
		done.result.PointsAwarded = p.PointsAwarded
		return done, nil
	}
	if !force {
		if err := checkCompletable(p, now); err != nil {
			return nil, err
		}
	}

	reward := max(p.Quest.PointsReward, 0)
	ok, err := s.progress.MarkCompleted(dbc, p.ID, now, reward)
	if err != nil {
		return nil, err
	}
	if !ok {
		done.result.AlreadyCompleted = true
		return done, nil
	}
	done.finished = true
	done.result.PointsAwarded = reward

	if !pay || reward == 0 {
		return done, nil
	}
	award, err := s.ledger.AwardInTx(dbc, ledgerDto.AwardRequest{
		UserID:       p.UserID,
		Amount:       reward,
		ActivityType: points.ActivityQuestCompleted,
		Description:  fmt.Sprintf("Quest completed: %s", p.Quest.Title),
		SourceType:   ledger.SourceQuestProgress,
		SourceID:     p.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	done.award = award
	done.result.NewTotal = award.NewTotal
	done.result.TierChanged = award.TierChanged
	done.result.NewTier = award.NewTier
	return done, nil
}

func (s *completionService) afterCompletion(ctx context.Context, done *completion) {
	s.log.Info("quest completed", "user_id", done.userID, "quest_id", done.result.QuestID, "points", done.result.PointsAwarded)

	s.ledger.Publish(ctx, done.award)
	if s.goals != nil {
		if err := s.goals.CheckGoals(ctx, done.userID, points.ActivityQuestCompleted); err != nil {
			s.log.Warn("weekly goal check failed", "user_id", done.userID, "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyQuestCompleted(ctx, done.userID, done.result.ProgressID, done.title, done.result.PointsAwarded); err != nil {
			s.log.Warn("quest notification failed", "user_id", done.userID, "error", err)
		}
	}
}

// checkCompletable reports why an open instance cannot complete yet.
func checkCompletable(p *entity.QuestProgress, now time.Time) error {
	if isExpired(p, now) {
		return fmt.Errorf("quest instance has expired: %w", apperror.ErrRequirementsNotMet)
	}
	if p.Status != entity.QuestStatusInProgress {
		return fmt.Errorf("quest has not been started: %w", apperror.ErrRequirementsNotMet)
	}
	if p.Quest.IsGuided && len(p.Quest.Steps) > 0 {
		if remaining := len(p.Quest.Steps) - p.CurrentStepIndex; remaining > 0 {
			return fmt.Errorf("%d steps remaining: %w", remaining, apperror.ErrRequirementsNotMet)
		}
		return nil
	}
	if remaining := p.TargetProgress - p.CurrentProgress; remaining > 0 {
		return fmt.Errorf("%d more actions required: %w", remaining, apperror.ErrRequirementsNotMet)
	}
	return nil
}

func (s *completionService) CanComplete(ctx context.Context, userID, progressID uuid.UUID) (*dto.CanCompleteResponse, error) {
	p, err := s.progress.FindByID(dbctx.Context{Ctx: ctx}, progressID)
	if err != nil {
		return nil, apperror.FromStore("quest.can_complete", err)
	}
	if p.UserID != userID || p.Quest == nil {
		return nil, fmt.Errorf("quest progress %s: %w", progressID, apperror.ErrNotFound)
	}
	if p.IsCompleted {
		return &dto.CanCompleteResponse{CanComplete: false, Reason: "quest already completed"}, nil
	}
	if err := checkCompletable(p, s.clock.Now()); err != nil {
		return &dto.CanCompleteResponse{CanComplete: false, Reason: err.Error()}, nil
	}
	return &dto.CanCompleteResponse{CanComplete: true}, nil
}

func (s *completionService) StartQuest(ctx context.Context, userID, questID uuid.UUID) (*dto.ProgressResponse, error) {
	dbc := dbctx.Context{Ctx: ctx}
	q, err := s.quests.FindByID(dbc, questID)
	if err != nil {
		return nil, apperror.FromStore("quest.start", err)
	}
	if !q.IsActive {
		return nil, fmt.Errorf("quest %s is not active: %w", q.Slug, apperror.ErrNotFound)
	}

	p, err := s.starter.start(dbc, userID, q)
	if err != nil {
		return nil, apperror.FromStore("quest.start", err)
	}
	if p.Quest == nil {
		p.Quest = q
	}
	res := dto.NewProgressResponse(p)
	return &res, nil
}

func (s *completionService) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.progress.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, apperror.FromStore("quest.expire", err)
	}
	if n > 0 {
		s.log.Info("quest instances expired", "count", n)
	}
	return n, nil
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/internal/modules/quest/repository"
	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/database"
	"anoa.com/gamiledger/pkg/dbctx"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/google/uuid"
)

const maxProgressAttempts = 5

// ActionContext carries what the collaborator knows about an action.
type ActionContext struct {
	Score      *int
	Topic      string
	ItemID     string
	OccurredAt time.Time
}

type TrackerService interface {
	// TrackAction counts one action against the user's open quests and
	// returns the quests it completed. All of it commits or none of it does,
	// so a caller may retry after an error.
	TrackAction(ctx context.Context, userID uuid.UUID, action string, actx ActionContext) ([]uuid.UUID, error)
}

type trackerService struct {
	quests     repository.QuestRepository
	progress   repository.ProgressRepository
	tx         database.TxRunner
	completion CompletionService
	starter    *instanceStarter
	clock      clock.Clock
	loc        *time.Location
	log        *logger.Logger
	opts       Options
}

func NewTrackerService(
	quests repository.QuestRepository,
	progress repository.ProgressRepository,
	tx database.TxRunner,
	completion CompletionService,
	clk clock.Clock,
	loc *time.Location,
	log *logger.Logger,
	opts Options,
) TrackerService {
	if loc == nil {
		loc = time.UTC
	}
	return &trackerService{
		quests:     quests,
		progress:   progress,
		tx:         tx,
		completion: completion,
		starter:    &instanceStarter{progress: progress, clock: clk, loc: loc},
		clock:      clk,
		loc:        loc,
		log:        log.With("component", "quest_tracker"),
		opts:       opts,
	}
}

func (s *trackerService) TrackAction(ctx context.Context, userID uuid.UUID, action string, actx ActionContext) ([]uuid.UUID, error) {
	mapped := QuestTypesFor(action)
	if len(mapped) == 0 {
		return nil, nil
	}
	types := append(append([]string{}, mapped...), guidedQuestTypes...)

	txCtx, cancel := bound(ctx, s.opts.Timeout)
	defer cancel()

	now := s.clock.Now()
	if actx.OccurredAt.IsZero() {
		actx.OccurredAt = now
	}

	var (
		completed []uuid.UUID
		effects   []func(context.Context)
	)
	err := s.tx.InTx(txCtx, func(dbc dbctx.Context) error {
		completed, effects = nil, nil

		if err := s.startDaily(dbc, userID, mapped); err != nil {
			return err
		}
		open, err := s.progress.FindInProgressByTypes(dbc, userID, types)
		if err != nil {
			return err
		}

		for i := range open {
			p := &open[i]
			if p.Quest == nil || isExpired(p, now) {
				continue
			}

			reached, err := s.advance(dbc, p, action, actx, now)
			if err != nil {
				return fmt.Errorf("advance quest %s: %w", p.QuestID, err)
			}
			if !reached {
				continue
			}

			res, after, err := s.completion.CompleteInTx(dbc, p.ID)
			if err != nil {
				return fmt.Errorf("complete quest %s: %w", p.QuestID, err)
			}
			if !res.AlreadyCompleted {
				completed = append(completed, p.QuestID)
				effects = append(effects, after)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("quest action not recorded", "user_id", userID, "action", action, "error", err)
		return nil, apperror.FromStore("quest.track", err)
	}

	afterCtx, cancelAfter := bound(ctx, s.opts.Timeout)
	defer cancelAfter()
	for _, fn := range effects {
		fn(afterCtx)
	}
	return completed, nil
}

// startDaily opens today's instance of every daily quest the action can progress.
func (s *trackerService) startDaily(dbc dbctx.Context, userID uuid.UUID, types []string) error {
	daily, err := s.quests.FindActiveDailyByTypes(dbc, types)
	if err != nil {
		return err
	}
	for i := range daily {
		if _, err := s.starter.start(dbc, userID, &daily[i]); err != nil {
			return err
		}
	}
	return nil
}

// advance counts the action on p with a compare-and-set on version,
// re-reading and re-deciding when another writer got there first. It reports
// whether the instance has reached its target.
func (s *trackerService) advance(dbc dbctx.Context, p *entity.QuestProgress, action string, actx ActionContext, now time.Time) (bool, error) {
	for attempt := 0; attempt < maxProgressAttempts; attempt++ {
		if p.IsCompleted || p.Status != entity.QuestStatusInProgress {
			return false, nil
		}

		data := p.ProgressData.Data()
		if !s.matches(p.Quest, data, action, actx, now) {
			return false, nil
		}

		update, counted, reached := nextState(p, data, action, actx, now)
		if !counted {
			return reached, nil
		}

		ok, err := s.progress.UpdateCAS(dbc, p.ID, p.Version, update)
		if err != nil {
			return false, err
		}
		if ok {
			return reached, nil
		}

		fresh, err := s.progress.FindByID(dbc, p.ID)
		if err != nil {
			return false, err
		}
		*p = *fresh
	}
	return false, fmt.Errorf("quest progress %s kept conflicting: %w", p.ID, apperror.ErrTransientStore)
}

// nextState computes the instance after counting action. counted is false
// when the action does not move this instance; reached reports whether the
// resulting state meets the target.
func nextState(p *entity.QuestProgress, data entity.ProgressData, action string, actx ActionContext, now time.Time) (update repository.ProgressUpdate, counted, reached bool) {
	if p.Quest.IsGuided && len(p.Quest.Steps) > 0 {
		steps := p.Quest.Steps
		idx := p.CurrentStepIndex
		if idx >= len(steps) {
			return update, false, true
		}
		if steps[idx].Trigger != action {
			return update, false, false
		}
		idx++
		return repository.ProgressUpdate{
			CurrentProgress:  idx,
			CurrentStepIndex: idx,
			Data:             data.Record(action, actx.ItemID, now),
		}, true, idx >= len(steps)
	}

	if p.CurrentProgress >= p.TargetProgress {
		return update, false, true
	}
	current := min(p.CurrentProgress+1, p.TargetProgress)
	return repository.ProgressUpdate{
		CurrentProgress:  current,
		CurrentStepIndex: p.CurrentStepIndex,
		Data:             data.Record(action, actx.ItemID, now),
	}, true, current >= p.TargetProgress
}

// matches applies the quest's requirement predicates. Every set predicate must hold.
func (s *trackerService) matches(q *entity.Quest, data entity.ProgressData, action string, actx ActionContext, now time.Time) bool {
	req := q.Requirements.Data()

	if req.Action != "" && req.Action != action {
		return false
	}

	switch req.Timeframe {
	case entity.TimeframeDaily:
		if !clock.DayOf(actx.OccurredAt, s.loc).Equal(clock.DayOf(now, s.loc)) {
			return false
		}
	case entity.TimeframeWeekly:
		if !clock.WeekStart(actx.OccurredAt, s.loc).Equal(clock.WeekStart(now, s.loc)) {
			return false
		}
	}

	if req.MinScore != nil && (actx.Score == nil || *actx.Score < *req.MinScore) {
		return false
	}

	if req.Topic != "" && !strings.EqualFold(req.Topic, actx.Topic) {
		return false
	}

	if req.UniqueItems && (actx.ItemID == "" || data.HasItem(actx.ItemID)) {
		return false
	}
	return true
}

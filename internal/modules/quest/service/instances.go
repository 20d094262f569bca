package service

import (
	"errors"
	"fmt"
	"time"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/internal/modules/quest/repository"
	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/dbctx"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// instanceStarter opens quest instances. The (user, quest, attempt) unique
// key makes concurrent starts of the same window collapse into one row.
type instanceStarter struct {
	progress repository.ProgressRepository
	clock    clock.Clock
	loc      *time.Location
}

// start returns the instance for the quest's current window, creating it
// when absent. Repeatable quests open a new attempt once the previous one is
// finished and its cooldown has passed.
func (s *instanceStarter) start(dbc dbctx.Context, userID uuid.UUID, q *entity.Quest) (*entity.QuestProgress, error) {
	now := s.clock.Now()

	attempt := 0
	switch {
	case q.IsDaily:
		attempt = clock.DayKey(clock.DayOf(now, s.loc))
	case q.IsRepeatable:
		latest, err := s.progress.LatestAttempt(dbc, userID, q.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first attempt
		case err != nil:
			return nil, err
		case latest.Status == entity.QuestStatusInProgress && !isExpired(latest, now):
			latest.Quest = q
			return latest, nil
		case latest.IsCompleted && latest.CompletedAt != nil && q.RepeatCooldownHours > 0:
			ready := latest.CompletedAt.Add(time.Duration(q.RepeatCooldownHours) * time.Hour)
			if now.Before(ready) {
				return nil, fmt.Errorf("quest %s can be repeated after %s: %w", q.Slug, ready.UTC().Format(time.RFC3339), apperror.ErrConflict)
			}
			attempt = latest.Attempt + 1
		default:
			attempt = latest.Attempt + 1
		}
	}

	startedAt := now.UTC()
	p := &entity.QuestProgress{
		UserID:         userID,
		QuestID:        q.ID,
		Attempt:        attempt,
		Status:         entity.QuestStatusInProgress,
		TargetProgress: q.Target(),
		ProgressData:   datatypes.NewJSONType(entity.ProgressData{}),
		StartedAt:      &startedAt,
		ExpiresAt:      s.expiry(q, now),
		Version:        1,
	}
	created, err := s.progress.Create(dbc, p)
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := s.progress.FindByWindow(dbc, userID, q.ID, attempt)
		if err != nil {
			return nil, err
		}
		return existing, nil
	}
	p.Quest = q
	return p, nil
}

func (s *instanceStarter) expiry(q *entity.Quest, now time.Time) *time.Time {
	var at time.Time
	switch {
	case q.IsDaily, q.Requirements.Data().Timeframe == entity.TimeframeDaily:
		at = clock.EndOfDay(now, s.loc)
	case q.Requirements.Data().Timeframe == entity.TimeframeWeekly:
		at = clock.StartOf(clock.WeekStart(now, s.loc).AddDate(0, 0, 7), s.loc)
	default:
		return nil
	}
	at = at.UTC()
	return &at
}

func isExpired(p *entity.QuestProgress, now time.Time) bool {
	if p.Status == entity.QuestStatusExpired {
		return true
	}
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

package testutil

import (
	"testing"

	"anoa.com/gamiledger/internal/entity"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedUser(tb testing.TB, db *gorm.DB, username string) *entity.User {
	tb.Helper()
	u := &entity.User{ID: uuid.New(), Username: username, Role: entity.RoleMember, IsActive: true}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedGuest(tb testing.TB, db *gorm.DB, username string) *entity.User {
	tb.Helper()
	u := SeedUser(tb, db, username)
	if err := db.Model(u).Update("is_guest", true).Error; err != nil {
		tb.Fatalf("seed guest: %v", err)
	}
	u.IsGuest = true
	return u
}

// QuestOption tweaks a quest before it is inserted.
type QuestOption func(*entity.Quest)

func SeedQuest(tb testing.TB, db *gorm.DB, slug, questType string, target, reward int, opts ...QuestOption) *entity.Quest {
	tb.Helper()
	q := &entity.Quest{
		Slug:         slug,
		Title:        slug,
		QuestType:    questType,
		Difficulty:   entity.DifficultyEasy,
		Requirements: datatypes.NewJSONType(entity.QuestRequirements{TargetCount: target}),
		PointsReward: reward,
		IsActive:     true,
	}
	for _, opt := range opts {
		opt(q)
	}
	if err := db.Create(q).Error; err != nil {
		tb.Fatalf("seed quest: %v", err)
	}
	return q
}

func WithRequirements(r entity.QuestRequirements) QuestOption {
	return func(q *entity.Quest) { q.Requirements = datatypes.NewJSONType(r) }
}

func Daily() QuestOption {
	return func(q *entity.Quest) { q.IsDaily = true }
}

func Repeatable(cooldownHours int) QuestOption {
	return func(q *entity.Quest) {
		q.IsRepeatable = true
		q.RepeatCooldownHours = cooldownHours
	}
}

func Guided(steps ...entity.QuestStep) QuestOption {
	return func(q *entity.Quest) {
		q.IsGuided = true
		q.Steps = datatypes.JSONSlice[entity.QuestStep](steps)
	}
}

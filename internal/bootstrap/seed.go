package bootstrap

import (
	"context"
	"fmt"

	"anoa.com/gamiledger/internal/entity"
	questRepo "anoa.com/gamiledger/internal/modules/quest/repository"
	quest "anoa.com/gamiledger/internal/modules/quest/service"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DevAdminID is the fixed id of the development admin, so local tokens
// survive a database reset.
var DevAdminID = uuid.MustParse("00000000-0000-7000-8000-000000000001")

// SeedDevAdmin creates the development admin account if it is missing.
func SeedDevAdmin(ctx context.Context, db *gorm.DB, log *logger.Logger) error {
	admin := &entity.User{ID: DevAdminID, Username: "admin", Role: entity.RoleAdmin, IsActive: true}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(admin)
	if res.Error != nil {
		return fmt.Errorf("seed admin user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		log.Info("admin user already exists, skipping seed")
		return nil
	}
	log.Info("admin user seeded", "user_id", DevAdminID)
	return nil
}

type categorySeed struct {
	Slug        string
	Name        string
	Description string
}

type questSeed struct {
	Slug         string
	Category     string
	Title        string
	Description  string
	QuestType    string
	Difficulty   string
	Requirements entity.QuestRequirements
	PointsReward int
	IsDaily      bool
	Repeatable   bool
	CooldownHrs  int
	Steps        []entity.QuestStep
}

func intPtr(v int) *int { return &v }

var defaultCategories = []categorySeed{
	{Slug: "getting-started", Name: "Getting Started", Description: "Find your way around"},
	{Slug: "community", Name: "Community", Description: "Help others and join the conversation"},
	{Slug: "learning", Name: "Learning", Description: "Quizzes and practice"},
	{Slug: "building", Name: "Building", Description: "Ship projects"},
	{Slug: "daily", Name: "Daily", Description: "Small things to do every day"},
}

var defaultQuests = []questSeed{
	{
		Slug: "welcome-tour", Category: "getting-started",
		Title: "Welcome tour", Description: "Look around: view a profile, run a search and post your first comment.",
		QuestType: quest.TypeOnboarding, Difficulty: entity.DifficultyEasy, PointsReward: 50,
		Steps: []entity.QuestStep{
			{Title: "View a profile", Trigger: quest.ActionProfileViewed},
			{Title: "Search for something", Trigger: quest.ActionSearchUsed},
			{Title: "Post a comment", Trigger: quest.ActionCommentCreated},
		},
	},
	{
		Slug: "first-comments", Category: "community",
		Title: "Join the conversation", Description: "Post three comments.",
		QuestType: quest.TypeCommentPost, Difficulty: entity.DifficultyEasy, PointsReward: 30,
		Requirements: entity.QuestRequirements{TargetCount: 3},
	},
	{
		Slug: "helpful-week", Category: "community",
		Title: "Helpful week", Description: "Comment on ten different posts this week.",
		QuestType: quest.TypeCommentPost, Difficulty: entity.DifficultyMedium, PointsReward: 80,
		Requirements: entity.QuestRequirements{TargetCount: 10, Timeframe: entity.TimeframeWeekly, UniqueItems: true},
		Repeatable: true, CooldownHrs: 24,
	},
	{
		Slug: "quiz-starter", Category: "learning",
		Title: "Quiz starter", Description: "Complete five quizzes.",
		QuestType: quest.TypeQuizCompletion, Difficulty: entity.DifficultyEasy, PointsReward: 40,
		Requirements: entity.QuestRequirements{TargetCount: 5},
	},
	{
		Slug: "quiz-high-scorer", Category: "learning",
		Title: "High scorer", Description: "Score at least 80 on three quizzes.",
		QuestType: quest.TypeQuizCompletion, Difficulty: entity.DifficultyMedium, PointsReward: 60,
		Requirements: entity.QuestRequirements{TargetCount: 3, MinScore: intPtr(80)},
	},
	{
		Slug: "perfectionist", Category: "learning",
		Title: "Perfectionist", Description: "Get a perfect score on a quiz.",
		QuestType: quest.TypeQuizPerfection, Difficulty: entity.DifficultyHard, PointsReward: 100,
		Requirements: entity.QuestRequirements{TargetCount: 1},
		Repeatable: true, CooldownHrs: 168,
	},
	{
		Slug: "first-project", Category: "building",
		Title: "First project", Description: "Create your first project.",
		QuestType: quest.TypeProjectCreation, Difficulty: entity.DifficultyMedium, PointsReward: 75,
		Requirements: entity.QuestRequirements{TargetCount: 1},
	},
	{
		Slug: "daily-login", Category: "daily",
		Title: "Show up", Description: "Log in today.",
		QuestType: quest.TypeDailyLogin, Difficulty: entity.DifficultyEasy, PointsReward: 5,
		Requirements: entity.QuestRequirements{TargetCount: 1},
		IsDaily: true,
	},
	{
		Slug: "daily-engagement", Category: "daily",
		Title: "Busy day", Description: "Comment, take a quiz or create a project three times today.",
		QuestType: quest.TypeDailyEngagement, Difficulty: entity.DifficultyEasy, PointsReward: 15,
		Requirements: entity.QuestRequirements{TargetCount: 3, Timeframe: entity.TimeframeDaily},
		IsDaily: true,
	},
	{
		Slug: "explorer", Category: "getting-started",
		Title: "Explorer", Description: "Run searches or view profiles five times.",
		QuestType: quest.TypeExploration, Difficulty: entity.DifficultyEasy, PointsReward: 20,
		Requirements: entity.QuestRequirements{TargetCount: 5},
	},
}

// SeedCatalog upserts the default categories and quests by slug. It is safe
// to run on every boot; edits to the definitions are applied in place.
func SeedCatalog(ctx context.Context, categories questRepo.CategoryRepository, quests questRepo.QuestRepository, log *logger.Logger) error {
	ids := make(map[string]*entity.QuestCategory, len(defaultCategories))
	for _, c := range defaultCategories {
		category := &entity.QuestCategory{Slug: c.Slug, Name: c.Name, Description: c.Description}
		if err := categories.Upsert(ctx, category); err != nil {
			return fmt.Errorf("seed category %s: %w", c.Slug, err)
		}
		ids[c.Slug] = category
	}

	for _, s := range defaultQuests {
		q := &entity.Quest{
			Slug:                s.Slug,
			Title:               s.Title,
			Description:         s.Description,
			QuestType:           s.QuestType,
			Difficulty:          s.Difficulty,
			Requirements:        datatypes.NewJSONType(s.Requirements),
			PointsReward:        s.PointsReward,
			IsDaily:             s.IsDaily,
			IsRepeatable:        s.Repeatable,
			RepeatCooldownHours: s.CooldownHrs,
			IsGuided:            len(s.Steps) > 0,
			Steps:               datatypes.JSONSlice[entity.QuestStep](s.Steps),
			IsActive:            true,
		}
		if c, ok := ids[s.Category]; ok {
			q.CategoryID = &c.ID
		}
		if err := quests.UpsertBySlug(ctx, q); err != nil {
			return fmt.Errorf("seed quest %s: %w", s.Slug, err)
		}
	}

	log.Info("quest catalog seeded", "categories", len(defaultCategories), "quests", len(defaultQuests))
	return nil
}

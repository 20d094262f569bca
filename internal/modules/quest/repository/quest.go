package repository

import (
	"context"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/pkg/dbctx"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuestFilter struct {
	CategorySlug string
	QuestType    string
	Difficulty   string
	Limit        int
	Offset       int
}

type QuestRepository interface {
	UpsertBySlug(ctx context.Context, quest *entity.Quest) error
	FindByID(dbc dbctx.Context, id uuid.UUID) (*entity.Quest, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.Quest, error)
	FindActive(ctx context.Context, filter QuestFilter) ([]entity.Quest, int64, error)
	FindAllActive(ctx context.Context) ([]entity.Quest, error)
	FindActiveDailyByTypes(dbc dbctx.Context, types []string) ([]entity.Quest, error)
	Search(ctx context.Context, query string, limit int) ([]entity.Quest, error)
}

type questRepository struct {
	db *gorm.DB
}

func NewQuestRepository(db *gorm.DB) QuestRepository {
	return &questRepository{db: db}
}

// UpsertBySlug keeps catalog definitions in sync with the seed set.
func (r *questRepository) UpsertBySlug(ctx context.Context, quest *entity.Quest) error {
	if err := quest.Validate(); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"category_id", "title", "description", "quest_type", "difficulty",
				"requirements", "points_reward", "is_daily", "is_repeatable",
				"repeat_cooldown_hours", "is_guided", "steps", "is_active", "updated_at",
			}),
		}).
		Create(quest).Error
	if err != nil {
		return err
	}
	var stored entity.Quest
	if err := r.db.WithContext(ctx).Select("id").Where("slug = ?", quest.Slug).First(&stored).Error; err != nil {
		return err
	}
	quest.ID = stored.ID
	return nil
}

func (r *questRepository) FindByID(dbc dbctx.Context, id uuid.UUID) (*entity.Quest, error) {
	var quest entity.Quest
	if err := dbc.DB(r.db).Preload("Category").First(&quest, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quest, nil
}

func (r *questRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.Quest, error) {
	var quests []entity.Quest
	if len(ids) == 0 {
		return quests, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&quests).Error
	return quests, err
}

func (r *questRepository) FindActive(ctx context.Context, filter QuestFilter) ([]entity.Quest, int64, error) {
	var (
		quests []entity.Quest
		total  int64
	)

	query := r.db.WithContext(ctx).Model(&entity.Quest{}).Where("quests.is_active = ?", true)
	if filter.CategorySlug != "" {
		query = query.Joins("JOIN quest_categories ON quest_categories.id = quests.category_id").
			Where("quest_categories.slug = ?", filter.CategorySlug)
	}
	if filter.QuestType != "" {
		query = query.Where("quests.quest_type = ?", filter.QuestType)
	}
	if filter.Difficulty != "" {
		query = query.Where("quests.difficulty = ?", filter.Difficulty)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("Category").
		Order("quests.points_reward ASC, quests.slug ASC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&quests).Error
	if err != nil {
		return nil, 0, err
	}
	return quests, total, nil
}

func (r *questRepository) FindAllActive(ctx context.Context) ([]entity.Quest, error) {
	var quests []entity.Quest
	err := r.db.WithContext(ctx).Preload("Category").Where("is_active = ?", true).Find(&quests).Error
	return quests, err
}

func (r *questRepository) FindActiveDailyByTypes(dbc dbctx.Context, types []string) ([]entity.Quest, error) {
	var quests []entity.Quest
	err := dbc.DB(r.db).
		Where("is_active = ? AND is_daily = ? AND quest_type IN ?", true, true, types).
		Find(&quests).Error
	return quests, err
}

// Search is the database fallback used while the search index is unavailable.
func (r *questRepository) Search(ctx context.Context, query string, limit int) ([]entity.Quest, error) {
	var quests []entity.Quest
	pattern := "%" + query + "%"
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("is_active = ?", true).
		Where("LOWER(title) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?)", pattern, pattern).
		Order("slug ASC").
		Limit(limit).
		Find(&quests).Error
	return quests, err
}

package repository

import (
	"context"

	"anoa.com/gamiledger/internal/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CategoryRepository interface {
	Upsert(ctx context.Context, category *entity.QuestCategory) error
	FindBySlug(ctx context.Context, slug string) (*entity.QuestCategory, error)
	FindAll(ctx context.Context, filter string) ([]*entity.QuestCategory, error)
}

type categoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// Upsert inserts the category or refreshes name and description of the one
// already holding its slug. category.ID is set to the stored row's id.
func (r *categoryRepository) Upsert(ctx context.Context, category *entity.QuestCategory) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description"}),
		}).
		Create(category).Error
	if err != nil {
		return err
	}
	stored, err := r.FindBySlug(ctx, category.Slug)
	if err != nil {
		return err
	}
	category.ID = stored.ID
	return nil
}

func (r *categoryRepository) FindBySlug(ctx context.Context, slug string) (*entity.QuestCategory, error) {
	var category entity.QuestCategory
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) FindAll(ctx context.Context, filter string) ([]*entity.QuestCategory, error) {
	var categories []*entity.QuestCategory
	query := r.db.WithContext(ctx)

	if filter != "" {
		query = query.Where("LOWER(name) LIKE LOWER(?)", "%"+filter+"%")
	}

	if err := query.Order("name ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

package repository

import (
	"context"

	"anoa.com/gamiledger/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository reads users owned by the auth service.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	// ListEligibleIDs pages through active non-guest users ordered by id,
	// starting after the given id.
	ListEligibleIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	FindUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	var user entity.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListEligibleIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).Model(&entity.User{}).
		Where("is_active = ? AND is_guest = ?", true, false)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	if err := query.Order("id").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *userRepository) FindUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []entity.User
	if err := r.db.WithContext(ctx).Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.Username
	}
	return out, nil
}

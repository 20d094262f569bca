package repository

import (
	"context"
	"testing"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/internal/testutil"
	"anoa.com/gamiledger/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestUpsertBySlugRejectsUntrackableUniqueTarget(t *testing.T) {
	db := testutil.DB(t)
	quests := NewQuestRepository(db)

	q := &entity.Quest{
		Slug:         "read-everything",
		Title:        "Read everything",
		QuestType:    "exploration",
		Requirements: datatypes.NewJSONType(entity.QuestRequirements{TargetCount: entity.MaxTrackedItems + 1, UniqueItems: true}),
		PointsReward: 10,
		IsActive:     true,
	}
	require.ErrorIs(t, quests.UpsertBySlug(context.Background(), q), apperror.ErrInvalidInput)

	var n int64
	require.NoError(t, db.Model(&entity.Quest{}).Count(&n).Error)
	assert.Zero(t, n)

	q.Requirements = datatypes.NewJSONType(entity.QuestRequirements{TargetCount: entity.MaxTrackedItems, UniqueItems: true})
	require.NoError(t, quests.UpsertBySlug(context.Background(), q))
	assert.NotEqual(t, uuid.Nil, q.ID)
}

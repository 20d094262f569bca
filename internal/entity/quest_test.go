package entity

import (
	"fmt"
	"testing"
	"time"

	"anoa.com/gamiledger/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestProgressDataRecord(t *testing.T) {
	at := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	var d ProgressData

	d = d.Record("quiz_completed", "q1", at)
	d = d.Record("quiz_completed", "q1", at)
	d = d.Record("comment_created", "", at)

	assert.Equal(t, []string{"q1"}, d.Items)
	assert.Equal(t, 2, d.Actions["quiz_completed"])
	assert.Equal(t, 1, d.Actions["comment_created"])
	assert.Equal(t, at, *d.LastActivityAt)
}

func TestProgressDataRecordIsBounded(t *testing.T) {
	var d ProgressData
	for i := 0; i < MaxTrackedItems+10; i++ {
		d = d.Record("search_used", fmt.Sprintf("item-%d", i), time.Now())
	}
	assert.Len(t, d.Items, MaxTrackedItems)
	assert.Equal(t, "item-10", d.Items[0])
	assert.True(t, d.HasItem(fmt.Sprintf("item-%d", MaxTrackedItems+9)))
	assert.False(t, d.HasItem("item-0"))
}

func TestProgressDataRecordDoesNotAlias(t *testing.T) {
	orig := ProgressData{Items: []string{"a"}, Actions: map[string]int{"x": 1}}
	_ = orig.Record("x", "b", time.Now())
	assert.Equal(t, []string{"a"}, orig.Items)
	assert.Equal(t, 1, orig.Actions["x"])
}

func TestQuestTarget(t *testing.T) {
	guided := Quest{IsGuided: true, Steps: datatypes.JSONSlice[QuestStep]{{Trigger: "a"}, {Trigger: "b"}}}
	assert.Equal(t, 2, guided.Target())

	counted := Quest{Requirements: datatypes.NewJSONType(QuestRequirements{TargetCount: 3})}
	assert.Equal(t, 3, counted.Target())

	assert.Equal(t, 1, (&Quest{}).Target())
}

func TestQuestValidate(t *testing.T) {
	quest := func(req QuestRequirements) *Quest {
		return &Quest{Slug: "q", Requirements: datatypes.NewJSONType(req)}
	}

	assert.NoError(t, quest(QuestRequirements{TargetCount: 500}).Validate())
	assert.NoError(t, quest(QuestRequirements{TargetCount: MaxTrackedItems, UniqueItems: true}).Validate())
	assert.ErrorIs(t, quest(QuestRequirements{TargetCount: MaxTrackedItems + 1, UniqueItems: true}).Validate(), apperror.ErrInvalidInput)
	assert.ErrorIs(t, quest(QuestRequirements{TargetCount: -1}).Validate(), apperror.ErrInvalidInput)
}

package service

import (
	"testing"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDocStripsMarkup(t *testing.T) {
	s := &meiliSearchService{sanitizer: bluemonday.StrictPolicy(), log: logger.NewNop()}
	q := entity.Quest{
		ID:          uuid.New(),
		Slug:        "first-comment",
		Title:       "First <b>comment</b>",
		Description: "<p>Say hello</p><p>to the &amp; community</p><script>alert(1)</script>",
		QuestType:   "comment_post",
		Category:    &entity.QuestCategory{Slug: "social", Name: "Social"},
	}

	doc := s.toDoc(q)
	assert.Equal(t, "First comment", doc.Title)
	assert.Equal(t, "Say hello to the & community", doc.Description)
	assert.Equal(t, "social", doc.CategorySlug)
	assert.Equal(t, q.ID.String(), doc.ID)
}

func TestDecodeHitIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	raw := []byte(`{"hits":[{"id":"` + a.String() + `"},{"id":"junk"},{"id":"` + b.String() + `"}],"query":"x"}`)

	ids, err := decodeHitIDs(raw)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	_, err = decodeHitIDs([]byte("not json"))
	assert.Error(t, err)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
)

const questIndex = "quests"

// QuestIndex keeps the quest catalog searchable.
type QuestIndex interface {
	IndexQuests(ctx context.Context, quests []entity.Quest) error
	DeleteQuest(ctx context.Context, id uuid.UUID) error
	SearchQuestIDs(ctx context.Context, query string, limit int) ([]uuid.UUID, error)
}

type meiliSearchService struct {
	client    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
	log       *logger.Logger
}

func NewMeiliSearchService(client meilisearch.ServiceManager, log *logger.Logger) QuestIndex {
	s := &meiliSearchService{
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
		log:       log.With("component", "search"),
	}
	s.initIndexes()
	return s
}

func (s *meiliSearchService) initIndexes() {
	filterableAttrs := []string{"quest_type", "category_slug", "difficulty", "is_daily"}
	filterableInterface := make([]any, len(filterableAttrs))
	for i, v := range filterableAttrs {
		filterableInterface[i] = v
	}
	if _, err := s.client.Index(questIndex).UpdateFilterableAttributes(&filterableInterface); err != nil {
		s.log.Warn("failed to update quest filterable attributes", "error", err)
	}

	sortableAttrs := []string{"points_reward"}
	if _, err := s.client.Index(questIndex).UpdateSortableAttributes(&sortableAttrs); err != nil {
		s.log.Warn("failed to update quest sortable attributes", "error", err)
	}
}

type meiliQuestDoc struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	QuestType    string `json:"quest_type"`
	Difficulty   string `json:"difficulty"`
	PointsReward int    `json:"points_reward"`
	IsDaily      bool   `json:"is_daily"`
	CategorySlug string `json:"category_slug"`
	CategoryName string `json:"category_name"`
}

// cleanText strips markup so only readable text is indexed.
func (s *meiliSearchService) cleanText(content string) string {
	// Replace block tags with spaces to prevent text merging
	content = strings.ReplaceAll(content, "</p>", " ")
	content = strings.ReplaceAll(content, "<br>", " ")
	content = strings.ReplaceAll(content, "</div>", " ")

	sanitized := s.sanitizer.Sanitize(content)
	cleanText := html.UnescapeString(sanitized)
	return strings.Join(strings.Fields(cleanText), " ")
}

func (s *meiliSearchService) toDoc(q entity.Quest) meiliQuestDoc {
	doc := meiliQuestDoc{
		ID:           q.ID.String(),
		Slug:         q.Slug,
		Title:        s.cleanText(q.Title),
		Description:  s.cleanText(q.Description),
		QuestType:    q.QuestType,
		Difficulty:   q.Difficulty,
		PointsReward: q.PointsReward,
		IsDaily:      q.IsDaily,
	}
	if q.Category != nil {
		doc.CategorySlug = q.Category.Slug
		doc.CategoryName = q.Category.Name
	}
	return doc
}

func (s *meiliSearchService) IndexQuests(ctx context.Context, quests []entity.Quest) error {
	if len(quests) == 0 {
		return nil
	}
	docs := make([]meiliQuestDoc, 0, len(quests))
	for _, q := range quests {
		if !q.IsActive {
			continue
		}
		docs = append(docs, s.toDoc(q))
	}

	task, err := s.client.Index(questIndex).AddDocuments(docs, strPtr("id"))
	if err != nil {
		return fmt.Errorf("index quests: %w", err)
	}
	s.log.Info("quests indexed", "count", len(docs), "task_uid", task.TaskUID)
	return nil
}

func (s *meiliSearchService) DeleteQuest(ctx context.Context, id uuid.UUID) error {
	_, err := s.client.Index(questIndex).DeleteDocument(id.String())
	return err
}

type rawHits struct {
	Hits []struct {
		ID string `json:"id"`
	} `json:"hits"`
}

func (s *meiliSearchService) SearchQuestIDs(ctx context.Context, query string, limit int) ([]uuid.UUID, error) {
	raw, err := s.client.Index(questIndex).SearchRaw(query, &meilisearch.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, fmt.Errorf("search quests: %w", err)
	}
	return decodeHitIDs(*raw)
}

func decodeHitIDs(raw []byte) ([]uuid.UUID, error) {
	var hits rawHits
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, fmt.Errorf("decode search hits: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(hits.Hits))
	for _, h := range hits.Hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func strPtr(s string) *string {
	return &s
}

package service

import (
	"context"

	"anoa.com/gamiledger/internal/modules/quest/dto"
	"anoa.com/gamiledger/internal/modules/quest/repository"
	searchService "anoa.com/gamiledger/internal/modules/search/service"
	"anoa.com/gamiledger/pkg/apperror"
	commonDto "anoa.com/gamiledger/pkg/dto"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/google/uuid"
)

const defaultSearchLimit = 10

type CatalogService interface {
	ListQuests(ctx context.Context, filter dto.QuestFilter) (*dto.PaginatedQuestResponse, error)
	ListCategories(ctx context.Context, filter dto.CategoryFilter) ([]dto.CategoryResponse, error)
	Search(ctx context.Context, query dto.SearchQuery) ([]dto.QuestResponse, error)
	ListMine(ctx context.Context, userID uuid.UUID, filter dto.ProgressFilter) (*dto.PaginatedProgressResponse, error)
	Reindex(ctx context.Context) error
}

type catalogService struct {
	quests     repository.QuestRepository
	categories repository.CategoryRepository
	progress   repository.ProgressRepository
	index      searchService.QuestIndex
	log        *logger.Logger
}

// NewCatalogService builds the read side of the quest catalog. index may be
// nil, in which case search runs against the database.
func NewCatalogService(
	quests repository.QuestRepository,
	categories repository.CategoryRepository,
	progress repository.ProgressRepository,
	index searchService.QuestIndex,
	log *logger.Logger,
) CatalogService {
	return &catalogService{
		quests:     quests,
		categories: categories,
		progress:   progress,
		index:      index,
		log:        log.With("component", "quest_catalog"),
	}
}

func (s *catalogService) ListQuests(ctx context.Context, filter dto.QuestFilter) (*dto.PaginatedQuestResponse, error) {
	offset := filter.Normalize()
	quests, total, err := s.quests.FindActive(ctx, repository.QuestFilter{
		CategorySlug: filter.Category,
		QuestType:    filter.QuestType,
		Difficulty:   filter.Difficulty,
		Limit:        filter.Limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, apperror.FromStore("quest.list", err)
	}

	data := make([]dto.QuestResponse, 0, len(quests))
	for i := range quests {
		data = append(data, dto.NewQuestResponse(&quests[i]))
	}
	return &dto.PaginatedQuestResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(filter.Pagination, total),
	}, nil
}

func (s *catalogService) ListCategories(ctx context.Context, filter dto.CategoryFilter) ([]dto.CategoryResponse, error) {
	categories, err := s.categories.FindAll(ctx, filter.Search)
	if err != nil {
		return nil, apperror.FromStore("quest.categories", err)
	}

	res := make([]dto.CategoryResponse, 0, len(categories))
	for _, cat := range categories {
		res = append(res, dto.CategoryResponse{
			ID:          cat.ID,
			Name:        cat.Name,
			Slug:        cat.Slug,
			Description: cat.Description,
		})
	}
	return res, nil
}

func (s *catalogService) Search(ctx context.Context, query dto.SearchQuery) ([]dto.QuestResponse, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	if s.index != nil {
		res, err := s.searchIndex(ctx, query.Query, limit)
		if err == nil {
			return res, nil
		}
		s.log.Warn("search index unavailable, falling back to database", "error", err)
	}

	quests, err := s.quests.Search(ctx, query.Query, limit)
	if err != nil {
		return nil, apperror.FromStore("quest.search", err)
	}
	res := make([]dto.QuestResponse, 0, len(quests))
	for i := range quests {
		res = append(res, dto.NewQuestResponse(&quests[i]))
	}
	return res, nil
}

// searchIndex resolves index hits against the catalog, keeping the index's ranking.
func (s *catalogService) searchIndex(ctx context.Context, query string, limit int) ([]dto.QuestResponse, error) {
	ids, err := s.index.SearchQuestIDs(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	quests, err := s.quests.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]int, len(quests))
	for i, q := range quests {
		byID[q.ID] = i
	}
	res := make([]dto.QuestResponse, 0, len(quests))
	for _, id := range ids {
		if i, ok := byID[id]; ok {
			res = append(res, dto.NewQuestResponse(&quests[i]))
		}
	}
	return res, nil
}

func (s *catalogService) ListMine(ctx context.Context, userID uuid.UUID, filter dto.ProgressFilter) (*dto.PaginatedProgressResponse, error) {
	offset := filter.Normalize()
	rows, total, err := s.progress.FindByUser(ctx, userID, filter.Status, filter.Limit, offset)
	if err != nil {
		return nil, apperror.FromStore("quest.list_mine", err)
	}

	data := make([]dto.ProgressResponse, 0, len(rows))
	for i := range rows {
		data = append(data, dto.NewProgressResponse(&rows[i]))
	}
	return &dto.PaginatedProgressResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(filter.Pagination, total),
	}, nil
}

// Reindex pushes every active quest to the search index.
func (s *catalogService) Reindex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	quests, err := s.quests.FindAllActive(ctx)
	if err != nil {
		return apperror.FromStore("quest.reindex", err)
	}
	return s.index.IndexQuests(ctx, quests)
}

package handler

import (
	"net/http"

	"anoa.com/gamiledger/internal/modules/quest/dto"
	quest "anoa.com/gamiledger/internal/modules/quest/service"
	commonDto "anoa.com/gamiledger/pkg/dto"
	"anoa.com/gamiledger/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type QuestHandler struct {
	catalog    quest.CatalogService
	tracker    quest.TrackerService
	completion quest.CompletionService
}

func NewQuestHandler(catalog quest.CatalogService, tracker quest.TrackerService, completion quest.CompletionService) *QuestHandler {
	return &QuestHandler{catalog: catalog, tracker: tracker, completion: completion}
}

func (h *QuestHandler) ListQuests(c *gin.Context) {
	var filter dto.QuestFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BindError(c, err)
		return
	}

	res, err := h.catalog.ListQuests(c.Request.Context(), filter)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *QuestHandler) ListCategories(c *gin.Context) {
	var filter dto.CategoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BindError(c, err)
		return
	}

	categories, err := h.catalog.ListCategories(c.Request.Context(), filter)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	response.OK(c, categories)
}

func (h *QuestHandler) Search(c *gin.Context) {
	var query dto.SearchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	quests, err := h.catalog.Search(c.Request.Context(), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	response.OK(c, quests)
}

func (h *QuestHandler) ListMine(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var filter dto.ProgressFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BindError(c, err)
		return
	}

	res, err := h.catalog.ListMine(c.Request.Context(), userID, filter)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// TrackAction is called by collaborator services on behalf of the acting user.
func (h *QuestHandler) TrackAction(c *gin.Context) {
	var req dto.TrackActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	completed, err := h.tracker.TrackAction(c.Request.Context(), req.UserID, req.Action, quest.ActionContext{
		Score:  req.Score,
		Topic:  req.Topic,
		ItemID: req.ItemID,
	})
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if completed == nil {
		completed = []uuid.UUID{}
	}
	response.OK(c, dto.TrackActionResponse{CompletedQuestIDs: completed})
}

type questIDParam struct {
	QuestID string `uri:"quest_id" binding:"required,uuid"`
}

func (h *QuestHandler) StartQuest(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var param questIDParam
	if err := c.ShouldBindUri(&param); err != nil {
		response.BindError(c, err)
		return
	}

	progress, err := h.completion.StartQuest(c.Request.Context(), userID, uuid.MustParse(param.QuestID))
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": progress})
}

func (h *QuestHandler) CanComplete(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var param commonDto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		response.BindError(c, err)
		return
	}

	res, err := h.completion.CanComplete(c.Request.Context(), userID, uuid.MustParse(param.ID))
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	response.OK(c, res)
}

// Complete finishes the caller's own quest instance. A force flag in the body is ignored.
func (h *QuestHandler) Complete(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var param commonDto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		response.BindError(c, err)
		return
	}

	res, err := h.completion.CompleteForUser(c.Request.Context(), userID, uuid.MustParse(param.ID))
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	response.OK(c, res)
}

// AdminComplete finishes any instance and honours force.
func (h *QuestHandler) AdminComplete(c *gin.Context) {
	var param commonDto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		response.BindError(c, err)
		return
	}

	var req dto.CompleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BindError(c, err)
			return
		}
	}

	res, err := h.completion.Complete(c.Request.Context(), uuid.MustParse(param.ID), req.Force && response.IsAdmin(c))
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	response.OK(c, res)
}

func (h *QuestHandler) Reindex(c *gin.Context) {
	if err := h.catalog.Reindex(c.Request.Context()); err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "reindex started"})
}

package handler

import (
	goal "anoa.com/gamiledger/internal/modules/goal/service"
	"anoa.com/gamiledger/pkg/response"
	"github.com/gin-gonic/gin"
)

type GoalHandler struct {
	service goal.GoalService
}

func NewGoalHandler(service goal.GoalService) *GoalHandler {
	return &GoalHandler{service: service}
}

func (h *GoalHandler) GetMine(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	week, err := h.service.CurrentWeek(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	response.OK(c, week)
}

package handler

import (
	"net/http"

	leaderboardDto "anoa.com/gamiledger/internal/modules/leaderboard/dto"
	leaderboardService "anoa.com/gamiledger/internal/modules/leaderboard/service"
	"anoa.com/gamiledger/pkg/response"
	"github.com/gin-gonic/gin"
)

type LeaderboardHandler struct {
	service leaderboardService.LeaderboardService
}

func NewLeaderboardHandler(service leaderboardService.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

// GetLeaderboard serves ?timeframe=all_time|weekly|monthly&limit=1..50.
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	var query leaderboardDto.LeaderboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	res, err := h.service.GetLeaderboard(c.Request.Context(), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

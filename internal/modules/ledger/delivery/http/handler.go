package handler

import (
	"net/http"

	ledgerDto "anoa.com/gamiledger/internal/modules/ledger/dto"
	ledger "anoa.com/gamiledger/internal/modules/ledger/service"
	"anoa.com/gamiledger/pkg/response"
	"github.com/gin-gonic/gin"
)

type LedgerHandler struct {
	service ledger.LedgerService
}

func NewLedgerHandler(service ledger.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// Award credits points on behalf of a collaborator service.
func (h *LedgerHandler) Award(c *gin.Context) {
	var req ledgerDto.AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	res, err := h.service.AwardExternal(c.Request.Context(), req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": res})
}

func (h *LedgerHandler) QuizResult(c *gin.Context) {
	var req ledgerDto.QuizResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	res, err := h.service.AwardQuizResult(c.Request.Context(), req.UserID, req.AttemptID, req.Score)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": res})
}

func (h *LedgerHandler) DailyLogin(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	res, err := h.service.AwardDailyLogin(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	response.OK(c, res)
}

func (h *LedgerHandler) GetMine(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	snap, err := h.service.Snapshot(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	response.OK(c, snap)
}

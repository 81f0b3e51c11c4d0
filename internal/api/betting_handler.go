package api

import (
	"net/http"

	"MeetSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BettingHandler 押注接口
type BettingHandler struct {
	bettingService *service.BettingService
	logger         *logrus.Logger
}

// NewBettingHandler 创建 BettingHandler
func NewBettingHandler(bettingService *service.BettingService, logger *logrus.Logger) *BettingHandler {
	return &BettingHandler{bettingService: bettingService, logger: logger}
}

// AddBettingRequest 下注 body
type AddBettingRequest struct {
	BeteeMemberID uint64 `json:"betee_member_id" binding:"required"`
	PointAmount   int    `json:"point_amount" binding:"required,gt=0"`
}

// AddBetting 下注 POST /api/schedules/:schedule_id/bettings
func (h *BettingHandler) AddBetting(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	var req AddBettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	id, err := h.bettingService.AddBetting(c.Request.Context(), mid, sid, req.BeteeMemberID, req.PointAmount)
	if err != nil {
		h.logger.WithError(err).Error("AddBetting failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"betting_id": id})
}

// CancelBetting 取消下注 DELETE /api/schedules/:schedule_id/bettings/:betting_id
func (h *BettingHandler) CancelBetting(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	bid, ok := pathID(c, "betting_id")
	if !ok {
		return
	}
	if err := h.bettingService.CancelBetting(c.Request.Context(), mid, sid, bid); err != nil {
		h.logger.WithError(err).Error("CancelBetting failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "押注已取消"})
}

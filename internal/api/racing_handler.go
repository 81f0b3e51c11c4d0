package api

import (
	"net/http"

	"MeetSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RacingHandler 竞速对决接口
type RacingHandler struct {
	racingService *service.RacingService
	logger        *logrus.Logger
}

// NewRacingHandler 创建 RacingHandler
func NewRacingHandler(racingService *service.RacingService, logger *logrus.Logger) *RacingHandler {
	return &RacingHandler{racingService: racingService, logger: logger}
}

// MakeRacingRequest 发起对决 body
type MakeRacingRequest struct {
	SecondMemberID uint64 `json:"second_member_id" binding:"required"`
	PointAmount    int    `json:"point_amount" binding:"required,gt=0"`
}

// MakeRacing 发起对决 POST /api/schedules/:schedule_id/racings
func (h *RacingHandler) MakeRacing(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	var req MakeRacingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	id, err := h.racingService.MakeRacing(c.Request.Context(), mid, sid, req.SecondMemberID, req.PointAmount)
	if err != nil {
		h.logger.WithError(err).Error("MakeRacing failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"racing_id": id})
}

// ListRacings 对决列表 GET /api/schedules/:schedule_id/racings
func (h *RacingHandler) ListRacings(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	racings, err := h.racingService.ListRacings(c.Request.Context(), mid, sid)
	if err != nil {
		h.logger.WithError(err).Error("ListRacings failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"racings": racings})
}

// AcceptRacing 接受对决 POST /api/schedules/:schedule_id/racings/:racing_id/accept
func (h *RacingHandler) AcceptRacing(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	rid, ok := pathID(c, "racing_id")
	if !ok {
		return
	}
	if err := h.racingService.AcceptRacing(c.Request.Context(), mid, sid, rid); err != nil {
		h.logger.WithError(err).Error("AcceptRacing failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "对决已接受"})
}

// DenyRacing 拒绝对决 POST /api/schedules/:schedule_id/racings/:racing_id/deny
func (h *RacingHandler) DenyRacing(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	rid, ok := pathID(c, "racing_id")
	if !ok {
		return
	}
	if err := h.racingService.DenyRacing(c.Request.Context(), mid, sid, rid); err != nil {
		h.logger.WithError(err).Error("DenyRacing failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "对决已拒绝"})
}

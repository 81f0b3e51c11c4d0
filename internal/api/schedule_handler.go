package api

import (
	"net/http"
	"time"

	"MeetSync/internal/model"
	"MeetSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ScheduleHandler 约定生命周期接口
type ScheduleHandler struct {
	scheduleService *service.ScheduleService
	logger          *logrus.Logger
}

// NewScheduleHandler 创建 ScheduleHandler
func NewScheduleHandler(scheduleService *service.ScheduleService, logger *logrus.Logger) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService, logger: logger}
}

// ScheduleRequest 创建/修改约定 body
type ScheduleRequest struct {
	ScheduleName string    `json:"schedule_name" binding:"required"`
	ScheduleTime time.Time `json:"schedule_time" binding:"required"`
	LocationName string    `json:"location_name"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	PointAmount  int       `json:"point_amount"`
}

func (r *ScheduleRequest) location() model.Location {
	return model.Location{
		LocationName: r.LocationName,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
	}
}

// OpenSchedule 创建约定 POST /api/schedules
func (h *ScheduleHandler) OpenSchedule(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	id, err := h.scheduleService.OpenSchedule(c.Request.Context(), mid, req.ScheduleName, req.ScheduleTime, req.location(), req.PointAmount)
	if err != nil {
		h.logger.WithError(err).Error("OpenSchedule failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule_id": id})
}

// UpdateSchedule 修改约定 PATCH /api/schedules/:schedule_id（仅组织者，开始前）
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.scheduleService.UpdateSchedule(c.Request.Context(), mid, sid, req.ScheduleName, req.ScheduleTime, req.location()); err != nil {
		h.logger.WithError(err).Error("UpdateSchedule failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "约定已更新"})
}

// JoinRequest 加入约定 body
type JoinRequest struct {
	PointAmount int `json:"point_amount"`
}

// JoinSchedule 加入约定 POST /api/schedules/:schedule_id/join
func (h *ScheduleHandler) JoinSchedule(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.scheduleService.JoinSchedule(c.Request.Context(), mid, sid, req.PointAmount); err != nil {
		h.logger.WithError(err).Error("JoinSchedule failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已加入约定"})
}

// ExitSchedule 退出约定 POST /api/schedules/:schedule_id/exit
func (h *ScheduleHandler) ExitSchedule(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	if err := h.scheduleService.ExitSchedule(c.Request.Context(), mid, sid); err != nil {
		h.logger.WithError(err).Error("ExitSchedule failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已退出约定"})
}

// RunSchedule 手动开始约定 POST /api/schedules/:schedule_id/run
func (h *ScheduleHandler) RunSchedule(c *gin.Context) {
	if _, ok := memberID(c); !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	if err := h.scheduleService.RunSchedule(c.Request.Context(), sid); err != nil {
		h.logger.WithError(err).Error("RunSchedule failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "约定已开始"})
}

// MakeMemberArrive 上报到达 POST /api/schedules/:schedule_id/arrival
func (h *ScheduleHandler) MakeMemberArrive(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	if err := h.scheduleService.MakeMemberArrive(c.Request.Context(), mid, sid); err != nil {
		h.logger.WithError(err).Error("MakeMemberArrive failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "到达已记录"})
}

// CloseSchedule 手动关闭约定 POST /api/schedules/:schedule_id/close
func (h *ScheduleHandler) CloseSchedule(c *gin.Context) {
	if _, ok := memberID(c); !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	if err := h.scheduleService.CloseSchedule(c.Request.Context(), sid); err != nil {
		h.logger.WithError(err).Error("CloseSchedule failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "约定已关闭"})
}

// ErrorSchedule 异常终止约定 POST /api/schedules/:schedule_id/error（仅组织者）
func (h *ScheduleHandler) ErrorSchedule(c *gin.Context) {
	mid, ok := memberID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	if err := h.scheduleService.ErrorSchedule(c.Request.Context(), mid, sid); err != nil {
		h.logger.WithError(err).Error("ErrorSchedule failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "约定已异常终止"})
}

// GetSchedule 约定详情 GET /api/schedules/:schedule_id（已关闭时附带结果快照）
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	if _, ok := memberID(c); !ok {
		return
	}
	sid, ok := pathID(c, "schedule_id")
	if !ok {
		return
	}
	schedule, members, err := h.scheduleService.GetScheduleDetail(c.Request.Context(), sid)
	if err != nil {
		h.logger.WithError(err).Error("GetSchedule failed")
		writeError(c, err)
		return
	}
	resp := gin.H{"schedule": schedule, "members": members}
	if schedule.ScheduleStatus == model.ExecTerm {
		if result, err := h.scheduleService.GetScheduleResult(c.Request.Context(), sid); err == nil {
			resp["result"] = result
		}
	}
	c.JSON(http.StatusOK, resp)
}

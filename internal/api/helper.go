package api

import (
	"errors"
	"net/http"
	"strconv"

	"MeetSync/internal/service"

	"github.com/gin-gonic/gin"
)

// memberID 从 X-Member-Id 头取调用方成员ID（网关已完成认证）
func memberID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.GetHeader("X-Member-Id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Member-Id is required"})
		return 0, false
	}
	return id, true
}

// pathID 解析路径参数里的数字ID
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is invalid"})
		return 0, false
	}
	return id, true
}

// writeError 业务错误映射到 HTTP 状态码，未识别的一律 500
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidScheduleTime),
		errors.Is(err, service.ErrInsufficientPoints):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotOwner),
		errors.Is(err, service.ErrNotBettor),
		errors.Is(err, service.ErrNotSecondRacer),
		errors.Is(err, service.ErrNotPaidMember),
		errors.Is(err, service.ErrNotInSchedule):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNoSuchSchedule),
		errors.Is(err, service.ErrNoSuchBetting),
		errors.Is(err, service.ErrNoSuchRacing):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotWaiting),
		errors.Is(err, service.ErrNotRunning),
		errors.Is(err, service.ErrAlreadyJoined),
		errors.Is(err, service.ErrAlreadyBetting),
		errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrDuplicateRacing),
		errors.Is(err, service.ErrInvalidRacingState):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

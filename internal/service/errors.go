package service

import (
	"errors"
)

// 业务规则错误，API 层用 errors.Is 映射到 HTTP 状态码
// 前置条件类错误同步返回调用方，从不自动重试
var (
	ErrInvalidScheduleTime = errors.New("约定时间距现在过近")
	ErrNotWaiting          = errors.New("约定不在等待状态")
	ErrNotRunning          = errors.New("约定不在进行状态")
	ErrAlreadyJoined       = errors.New("已加入该约定")
	ErrNotInSchedule       = errors.New("不是该约定的成员")
	ErrNotOwner            = errors.New("不是该约定的组织者")
	ErrNoSuchSchedule      = errors.New("约定不存在")

	ErrInsufficientPoints = errors.New("积分余额不足")

	ErrAlreadyBetting   = errors.New("该约定中已有未结算押注")
	ErrNotBettor        = errors.New("不是该押注的下注人")
	ErrAlreadyCancelled = errors.New("押注已取消")
	ErrNoSuchBetting    = errors.New("押注不存在")

	ErrNotPaidMember      = errors.New("免押金成员不能参与对决")
	ErrDuplicateRacing    = errors.New("同一对成员已有进行中的对决")
	ErrInvalidRacingState = errors.New("对决状态不允许该操作")
	ErrNotSecondRacer     = errors.New("不是该对决的应战方")
	ErrNoSuchRacing       = errors.New("对决不存在")
)

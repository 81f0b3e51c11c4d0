package interfaces

import (
	"context"

	"MeetSync/internal/model"
)

// PointLedger 外部积分账本
// CheckBalance 为同步预检（join/bet/propose/accept 前调用）
// Apply 由后台任务异步调用，至少一次投递，账本侧按 intent_uuid 幂等
type PointLedger interface {
	CheckBalance(ctx context.Context, memberID uint64) (int, error)
	Apply(ctx context.Context, intent *model.PointChangeIntent) error
}

// AlarmPublisher 推送通知网关，发完即忘，失败只记日志不影响业务
type AlarmPublisher interface {
	Publish(ctx context.Context, message interface{}) error
	Close() error
}

package ledger

import (
	"context"

	"MeetSync/internal/model"

	"github.com/sirupsen/logrus"
)

// NoopLedger 占位实现：余额恒为 math 上限的近似值，投递只记日志（未配置账本时使用）
type NoopLedger struct {
	logger *logrus.Logger
}

// NewNoopLedger 创建占位账本
func NewNoopLedger(logger *logrus.Logger) *NoopLedger {
	return &NoopLedger{logger: logger}
}

func (n *NoopLedger) CheckBalance(ctx context.Context, memberID uint64) (int, error) {
	_ = ctx
	return 1 << 30, nil
}

func (n *NoopLedger) Apply(ctx context.Context, intent *model.PointChangeIntent) error {
	_ = ctx
	n.logger.WithFields(logrus.Fields{
		"intent_uuid": intent.IntentUUID,
		"member_id":   intent.MemberID,
		"change_type": intent.ChangeType,
		"amount":      intent.Amount,
		"reason":      intent.Reason,
	}).Info("占位账本：积分指令仅记日志")
	return nil
}

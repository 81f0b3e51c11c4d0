package service

import (
	"context"

	"MeetSync/internal/interfaces"
	"MeetSync/internal/model"
	"MeetSync/internal/repository"

	"github.com/google/uuid"
)

// newPointIntent 生成一条积分变动指令，UUID 为幂等键
func newPointIntent(memberID uint64, changeType model.PointChangeType, amount int, reason model.PointChangeReason, reasonID uint64) *model.PointChangeIntent {
	return &model.PointChangeIntent{
		IntentUUID: uuid.NewString(),
		MemberID:   memberID,
		ChangeType: changeType,
		Amount:     amount,
		Reason:     reason,
		ReasonID:   reasonID,
	}
}

// checkEnoughPoints 余额预检：账本余额减去本服务尚未投递的扣款后仍须 ≥ amount
// 消耗积分的操作（加入/押注/发起与接受对决）成功前必须通过该同步检查
func checkEnoughPoints(ctx context.Context, pointLedger interfaces.PointLedger, points repository.PointIntentRepository, memberID uint64, amount int) error {
	if amount <= 0 {
		return nil
	}
	balance, err := pointLedger.CheckBalance(ctx, memberID)
	if err != nil {
		return err
	}
	pending, err := points.SumPendingMinusByMember(ctx, memberID)
	if err != nil {
		return err
	}
	if balance-pending < amount {
		return ErrInsufficientPoints
	}
	return nil
}

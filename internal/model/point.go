package model

import (
	"time"
)

// PointChangeIntent 对应 point_change_intents 表，积分变动指令（outbox）
// 与触发它的业务变更在同一事务内落库，由后台任务异步投递到外部积分账本
// IntentUUID 为幂等键：至少一次投递 + 账本侧按 UUID 去重 = 恰好一次生效
type PointChangeIntent struct {
	ID         uint64            `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	IntentUUID string            `gorm:"column:intent_uuid;type:varchar(64);uniqueIndex;not null;comment:幂等键"`
	MemberID   uint64            `gorm:"column:member_id;type:bigint;not null;index;comment:成员ID"`
	ChangeType PointChangeType   `gorm:"column:change_type;type:varchar(8);not null;comment:PLUS/MINUS"`
	Amount     int               `gorm:"column:amount;type:int;not null;comment:变动数额（非负）"`
	Reason     PointChangeReason `gorm:"column:reason;type:varchar(32);not null;comment:变动原因"`
	ReasonID   uint64            `gorm:"column:reason_id;type:bigint;not null;comment:触发实体ID（约定/押注/竞速）"`
	Applied    bool              `gorm:"column:applied;type:boolean;default:false;index;comment:是否已投递生效"`
	AppliedAt  *time.Time        `gorm:"column:applied_at;type:timestamp;comment:生效时间"`
	CreatedAt  time.Time         `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
}

func (PointChangeIntent) TableName() string { return "point_change_intents" }

// SignedAmount 带符号数额（MINUS 为负）
func (p *PointChangeIntent) SignedAmount() int {
	if p.ChangeType == PointMinus {
		return -p.Amount
	}
	return p.Amount
}

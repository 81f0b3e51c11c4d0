package model

import (
	"time"
)

// Betting 对应 bettings 表，押注"谁最后到"
// bettor 押 betee 是本次约定最后到达的人；约定 WAIT 期间创建，关闭时一次性结算
// 平局（无人迟到）表示为 is_winner=false + 全额退款
type Betting struct {
	ID                uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	ScheduleID        uint64     `gorm:"column:schedule_id;type:bigint;not null;index;comment:关联约定ID"`
	BettorScheduleMemberID uint64 `gorm:"column:bettor_schedule_member_id;type:bigint;not null;index;comment:下注人（约定成员ID）"`
	BeteeScheduleMemberID  uint64 `gorm:"column:betee_schedule_member_id;type:bigint;not null;index;comment:被押对象（约定成员ID）"`
	PointAmount       int        `gorm:"column:point_amount;type:int;not null;comment:押注数额"`
	BettingStatus     ExecStatus `gorm:"column:betting_status;type:varchar(8);not null;default:WAIT;comment:WAIT=未结算 TERM=已结算"`
	IsWinner          bool       `gorm:"column:is_winner;type:boolean;default:false;comment:是否押中"`
	RewardPointAmount int        `gorm:"column:reward_point_amount;type:int;not null;default:0;comment:派彩数额"`
	Status            Status     `gorm:"column:status;type:varchar(8);not null;default:ALIVE;comment:软删除标记（取消）"`
	CreatedAt         time.Time  `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

func (Betting) TableName() string { return "bettings" }

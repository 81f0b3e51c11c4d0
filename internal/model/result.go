package model

import (
	"time"

	"gorm.io/datatypes"
)

// ScheduleResult 对应 schedule_results 表，约定关闭后的结果快照
// 三列分别存到达/押注/竞速结果的 JSON，各写入一次，供历史查询用
type ScheduleResult struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	ScheduleID    uint64         `gorm:"column:schedule_id;type:bigint;uniqueIndex;not null;comment:关联约定ID"`
	ArrivalResult datatypes.JSON `gorm:"column:arrival_result;type:jsonb;comment:到达结果快照"`
	BettingResult datatypes.JSON `gorm:"column:betting_result;type:jsonb;comment:押注结果快照"`
	RacingResult  datatypes.JSON `gorm:"column:racing_result;type:jsonb;comment:竞速结果快照"`
	CreatedAt     time.Time      `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

func (ScheduleResult) TableName() string { return "schedule_results" }

// ArrivalResultEntry 到达结果快照条目
type ArrivalResultEntry struct {
	MemberID        uint64     `json:"member_id"`
	ArrivalTime     *time.Time `json:"arrival_time"`
	ArrivalTimeDiff int        `json:"arrival_time_diff"`
	PointAmount     int        `json:"point_amount"`
	RewardPoint     int        `json:"reward_point"`
}

// BettingResultEntry 押注结果快照条目
type BettingResultEntry struct {
	BettorMemberID uint64 `json:"bettor_member_id"`
	BeteeMemberID  uint64 `json:"betee_member_id"`
	PointAmount    int    `json:"point_amount"`
	IsWinner       bool   `json:"is_winner"`
	RewardPoint    int    `json:"reward_point"`
}

// RacingResultEntry 竞速结果快照条目
type RacingResultEntry struct {
	FirstMemberID  uint64  `json:"first_member_id"`
	SecondMemberID uint64  `json:"second_member_id"`
	WinnerMemberID *uint64 `json:"winner_member_id"`
	PointAmount    int     `json:"point_amount"`
}

package model

import (
	"time"
)

// Schedule 对应 schedules 表，一次线下约定
// 生命周期：WAIT →(run)→ RUN →(close)→ TERM；WAIT →(error)→ ERROR
// 物理上从不删除，最后一名成员退出时置 status=DELETE（软删除）
type Schedule struct {
	ID               uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	ScheduleName     string     `gorm:"column:schedule_name;type:varchar(128);not null;comment:约定名称"`
	ScheduleTime     time.Time  `gorm:"column:schedule_time;type:timestamp;not null;comment:约定时间"`
	Location         Location   `gorm:"embedded;comment:约定地点"`
	ScheduleStatus   ExecStatus `gorm:"column:schedule_status;type:varchar(8);not null;default:WAIT;index;comment:生命周期状态"`
	OwnerMemberID    uint64     `gorm:"column:owner_member_id;type:bigint;not null;comment:组织者成员ID"`
	RewardedAt       *time.Time `gorm:"column:rewarded_at;type:timestamp;comment:准时奖励已发放时间（幂等标记）"`
	BettingSettledAt *time.Time `gorm:"column:betting_settled_at;type:timestamp;comment:押注已结算时间（幂等标记）"`
	ClosedAt         *time.Time `gorm:"column:closed_at;type:timestamp;comment:关闭时间"`
	Status           Status     `gorm:"column:status;type:varchar(8);not null;default:ALIVE;comment:软删除标记"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

func (Schedule) TableName() string { return "schedules" }

// IsRewarded 准时奖励是否已发放
func (s *Schedule) IsRewarded() bool { return s.RewardedAt != nil }

// IsBettingSettled 押注是否已结算
func (s *Schedule) IsBettingSettled() bool { return s.BettingSettledAt != nil }

// ScheduleMember 对应 schedule_members 表，成员在一次约定中的押金与到达记录
// ArrivalTimeDiff 为分钟数：schedule_time − arrival_time，正数=提前/准时，负数=迟到
type ScheduleMember struct {
	ID                uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	ScheduleID        uint64     `gorm:"column:schedule_id;type:bigint;not null;index;comment:关联约定ID"`
	MemberID          uint64     `gorm:"column:member_id;type:bigint;not null;index;comment:成员ID"`
	IsOwner           bool       `gorm:"column:is_owner;type:boolean;default:false;comment:是否组织者"`
	IsPaid            bool       `gorm:"column:is_paid;type:boolean;default:false;comment:是否缴纳押金"`
	PointAmount       int        `gorm:"column:point_amount;type:int;not null;default:0;comment:押金数额"`
	RewardPointAmount int        `gorm:"column:reward_point_amount;type:int;not null;default:0;comment:结算奖励数额"`
	ArrivalTime       *time.Time `gorm:"column:arrival_time;type:timestamp;comment:到达时间"`
	ArrivalTimeDiff   int        `gorm:"column:arrival_time_diff;type:int;default:0;comment:到达时差（分钟，正=准时）"`
	Status            Status     `gorm:"column:status;type:varchar(8);not null;default:ALIVE;comment:软删除标记"`
	CreatedAt         time.Time  `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

func (ScheduleMember) TableName() string { return "schedule_members" }

// HasArrived 是否已记录到达
func (m *ScheduleMember) HasArrived() bool { return m.ArrivalTime != nil }

// IsLate 是否迟到（到达时差为负）
func (m *ScheduleMember) IsLate() bool { return m.ArrivalTimeDiff < 0 }

// Arrive 记录到达时间并计算到达时差
func (m *ScheduleMember) Arrive(scheduleTime, arrivalTime time.Time) {
	m.ArrivalTime = &arrivalTime
	m.ArrivalTimeDiff = int(scheduleTime.Sub(arrivalTime).Minutes())
}

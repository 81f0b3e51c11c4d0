package model

import (
	"time"
)

// Racing 对应 racings 表，约定进行中的 1:1 积分对决
// 生命周期：WAIT →(accept)→ RUN →(settle)→ TERM；WAIT →(deny|timeout)→ 软删除
// 约定关闭时仍为 RUN 且无胜者的按平局结算（TERM，双方退款）
// ExpireAt = 发起时间 + 接受等待时长，进程重启后据此恢复超时检查
type Racing struct {
	ID                      uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	ScheduleID              uint64     `gorm:"column:schedule_id;type:bigint;not null;index;comment:关联约定ID"`
	FirstRacerScheduleMemberID  uint64 `gorm:"column:first_racer_schedule_member_id;type:bigint;not null;comment:发起方（约定成员ID）"`
	SecondRacerScheduleMemberID uint64 `gorm:"column:second_racer_schedule_member_id;type:bigint;not null;comment:应战方（约定成员ID）"`
	WinnerScheduleMemberID  *uint64    `gorm:"column:winner_schedule_member_id;type:bigint;comment:胜者（约定成员ID，可空）"`
	PointAmount             int        `gorm:"column:point_amount;type:int;not null;comment:双方各自押注数额"`
	RaceStatus              ExecStatus `gorm:"column:race_status;type:varchar(8);not null;default:WAIT;index;comment:对决状态"`
	ExpireAt                time.Time  `gorm:"column:expire_at;type:timestamp;not null;comment:接受邀请截止时间"`
	Status                  Status     `gorm:"column:status;type:varchar(8);not null;default:ALIVE;comment:软删除标记（拒绝/超时/取消）"`
	CreatedAt               time.Time  `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

func (Racing) TableName() string { return "racings" }

// HasRacer 成员是否为对决一方
func (r *Racing) HasRacer(scheduleMemberID uint64) bool {
	return r.FirstRacerScheduleMemberID == scheduleMemberID || r.SecondRacerScheduleMemberID == scheduleMemberID
}

// OtherRacer 返回对决中另一方的约定成员ID
func (r *Racing) OtherRacer(scheduleMemberID uint64) uint64 {
	if r.FirstRacerScheduleMemberID == scheduleMemberID {
		return r.SecondRacerScheduleMemberID
	}
	return r.FirstRacerScheduleMemberID
}

package model

// Status 行级存活状态（软删除标记）
type Status string

const (
	StatusAlive  Status = "ALIVE"
	StatusDelete Status = "DELETE"
)

// ExecStatus 生命周期执行状态（约定与竞速共用）
type ExecStatus string

const (
	ExecWait  ExecStatus = "WAIT"  // 等待中
	ExecRun   ExecStatus = "RUN"   // 进行中
	ExecTerm  ExecStatus = "TERM"  // 已结束
	ExecError ExecStatus = "ERROR" // 异常终止
)

// Location 约定地点（嵌入 Schedule）
type Location struct {
	LocationName string  `gorm:"column:location_name;type:varchar(128)" json:"location_name"`
	Latitude     float64 `gorm:"column:latitude;type:numeric(10,6)" json:"latitude"`
	Longitude    float64 `gorm:"column:longitude;type:numeric(10,6)" json:"longitude"`
}

// PointChangeType 积分变动方向
type PointChangeType string

const (
	PointPlus  PointChangeType = "PLUS"
	PointMinus PointChangeType = "MINUS"
)

// PointChangeReason 积分变动原因（对应外部账本的记账科目）
type PointChangeReason string

const (
	ReasonSchedule       PointChangeReason = "SCHEDULE"        // 参加约定的押金
	ReasonScheduleExit   PointChangeReason = "SCHEDULE_EXIT"   // 退出约定退还押金
	ReasonScheduleReward PointChangeReason = "SCHEDULE_REWARD" // 准时奖励
	ReasonBetting        PointChangeReason = "BETTING"         // 押注扣款/派彩/平局退款
	ReasonBettingCancel  PointChangeReason = "BETTING_CANCEL"  // 押注取消退款
	ReasonRacing         PointChangeReason = "RACING"          // 竞速开始双方扣款
	ReasonRacingReward   PointChangeReason = "RACING_REWARD"   // 竞速胜者奖励
	ReasonRacingDraw     PointChangeReason = "RACING_DRAW"     // 竞速平局退款
)

package alarm

import (
	"time"
)

// MessageType 通知消息类型
type MessageType string

const (
	TypeAskRacing         MessageType = "ASK_RACING"          // 竞速邀请
	TypeRacingDenied      MessageType = "RACING_DENIED"       // 竞速被拒绝
	TypeRacingAutoDeleted MessageType = "RACING_AUTO_DELETED" // 竞速超时自动取消
	TypeRacingTerm        MessageType = "RACING_TERM"         // 竞速分出胜负/平局
	TypePointChanged      MessageType = "POINT_CHANGED"       // 积分变动
	TypeMemberArrival     MessageType = "MEMBER_ARRIVAL"      // 成员到达
	TypeScheduleClosed    MessageType = "SCHEDULE_CLOSED"     // 约定关闭
	TypeBettingCanceled   MessageType = "BETTING_CANCELED"    // 押注被强制取消
)

// Message 通知消息通用信封，RecipientIDs 由推送服务换取设备令牌
type Message struct {
	Type         MessageType `json:"type"`
	RecipientIDs []uint64    `json:"recipient_ids"`
	ScheduleID   uint64      `json:"schedule_id"`
	ScheduleName string      `json:"schedule_name,omitempty"`
	SentAt       time.Time   `json:"sent_at"`
}

// AskRacingMessage 竞速邀请（发给应战方）
type AskRacingMessage struct {
	Message
	RacingID    uint64 `json:"racing_id"`
	AskerID     uint64 `json:"asker_id"`
	PointAmount int    `json:"point_amount"`
}

// RacingResultMessage 竞速结束（超时/拒绝/胜负/平局共用）
type RacingResultMessage struct {
	Message
	RacingID       uint64  `json:"racing_id"`
	WinnerMemberID *uint64 `json:"winner_member_id,omitempty"`
	PointAmount    int     `json:"point_amount"`
}

// PointChangedMessage 积分变动
type PointChangedMessage struct {
	Message
	MemberID uint64 `json:"member_id"`
	Amount   int    `json:"amount"`
}

// MemberArrivalMessage 成员到达（广播给约定全员）
type MemberArrivalMessage struct {
	Message
	MemberID    uint64    `json:"member_id"`
	ArrivalTime time.Time `json:"arrival_time"`
}

// ScheduleClosedMessage 约定关闭（广播给约定全员）
type ScheduleClosedMessage struct {
	Message
	LocationName string    `json:"location_name"`
	ScheduleTime time.Time `json:"schedule_time"`
}

// BettingCanceledMessage 押注被强制取消（对方退出约定时通知下注人）
type BettingCanceledMessage struct {
	Message
	BettingID   uint64 `json:"betting_id"`
	PointAmount int    `json:"point_amount"`
}

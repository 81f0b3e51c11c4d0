package repository

import (
	"context"
	"errors"
	"time"

	"MeetSync/internal/model"

	"gorm.io/gorm"
)

// ScheduleRepository 约定与约定成员持久化
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule *model.Schedule) error
	GetSchedule(ctx context.Context, scheduleID uint64) (*model.Schedule, error)
	UpdateScheduleInfo(ctx context.Context, scheduleID uint64, name string, scheduleTime time.Time, location model.Location) error
	UpdateScheduleStatus(ctx context.Context, scheduleID uint64, status model.ExecStatus) error
	MarkClosed(ctx context.Context, scheduleID uint64, closeTime time.Time) error
	UpdateOwner(ctx context.Context, scheduleID, ownerMemberID uint64) error
	MarkRewarded(ctx context.Context, scheduleID uint64, at time.Time) error
	MarkBettingSettled(ctx context.Context, scheduleID uint64, at time.Time) error
	SoftDeleteSchedule(ctx context.Context, scheduleID uint64) error
	ListWaitSchedulesDue(ctx context.Context, now time.Time) ([]*model.Schedule, error)
	ListRunSchedulesDue(ctx context.Context, deadline time.Time) ([]*model.Schedule, error)

	CreateScheduleMember(ctx context.Context, member *model.ScheduleMember) error
	GetScheduleMemberByID(ctx context.Context, scheduleMemberID uint64) (*model.ScheduleMember, error)
	GetAliveScheduleMember(ctx context.Context, memberID, scheduleID uint64) (*model.ScheduleMember, error)
	ListAliveScheduleMembers(ctx context.Context, scheduleID uint64) ([]*model.ScheduleMember, error)
	ExistAliveScheduleMember(ctx context.Context, memberID, scheduleID uint64) (bool, error)
	SaveScheduleMember(ctx context.Context, member *model.ScheduleMember) error
	SoftDeleteScheduleMember(ctx context.Context, scheduleMemberID uint64) error
	SetOwner(ctx context.Context, scheduleMemberID uint64, isOwner bool) error
}

type scheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository 创建约定仓储
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) CreateSchedule(ctx context.Context, schedule *model.Schedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

func (r *scheduleRepository) GetSchedule(ctx context.Context, scheduleID uint64) (*model.Schedule, error) {
	var s model.Schedule
	if err := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", scheduleID, model.StatusAlive).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduleRepository) UpdateScheduleInfo(ctx context.Context, scheduleID uint64, name string, scheduleTime time.Time, location model.Location) error {
	return r.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]interface{}{
			"schedule_name": name,
			"schedule_time": scheduleTime,
			"location_name": location.LocationName,
			"latitude":      location.Latitude,
			"longitude":     location.Longitude,
			"updated_at":    time.Now(),
		}).Error
}

func (r *scheduleRepository) UpdateScheduleStatus(ctx context.Context, scheduleID uint64, status model.ExecStatus) error {
	return r.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]interface{}{"schedule_status": status, "updated_at": time.Now()}).Error
}

func (r *scheduleRepository) MarkClosed(ctx context.Context, scheduleID uint64, closeTime time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]interface{}{
			"schedule_status": model.ExecTerm,
			"closed_at":       closeTime,
			"updated_at":      time.Now(),
		}).Error
}

func (r *scheduleRepository) UpdateOwner(ctx context.Context, scheduleID, ownerMemberID uint64) error {
	return r.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]interface{}{"owner_member_id": ownerMemberID, "updated_at": time.Now()}).Error
}

func (r *scheduleRepository) MarkRewarded(ctx context.Context, scheduleID uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]interface{}{"rewarded_at": at, "updated_at": time.Now()}).Error
}

func (r *scheduleRepository) MarkBettingSettled(ctx context.Context, scheduleID uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]interface{}{"betting_settled_at": at, "updated_at": time.Now()}).Error
}

func (r *scheduleRepository) SoftDeleteSchedule(ctx context.Context, scheduleID uint64) error {
	return r.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]interface{}{"status": model.StatusDelete, "updated_at": time.Now()}).Error
}

func (r *scheduleRepository) ListWaitSchedulesDue(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	var list []*model.Schedule
	if err := r.db.WithContext(ctx).
		Where("schedule_status = ? AND status = ? AND schedule_time <= ?", model.ExecWait, model.StatusAlive, now).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *scheduleRepository) ListRunSchedulesDue(ctx context.Context, deadline time.Time) ([]*model.Schedule, error) {
	var list []*model.Schedule
	if err := r.db.WithContext(ctx).
		Where("schedule_status = ? AND status = ? AND schedule_time <= ?", model.ExecRun, model.StatusAlive, deadline).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *scheduleRepository) CreateScheduleMember(ctx context.Context, member *model.ScheduleMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *scheduleRepository) GetScheduleMemberByID(ctx context.Context, scheduleMemberID uint64) (*model.ScheduleMember, error) {
	var m model.ScheduleMember
	if err := r.db.WithContext(ctx).Where("id = ?", scheduleMemberID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *scheduleRepository) GetAliveScheduleMember(ctx context.Context, memberID, scheduleID uint64) (*model.ScheduleMember, error) {
	var m model.ScheduleMember
	if err := r.db.WithContext(ctx).
		Where("member_id = ? AND schedule_id = ? AND status = ?", memberID, scheduleID, model.StatusAlive).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListAliveScheduleMembers 按加入顺序（主键升序）返回存活成员，组织者移交依赖该顺序
func (r *scheduleRepository) ListAliveScheduleMembers(ctx context.Context, scheduleID uint64) ([]*model.ScheduleMember, error) {
	var list []*model.ScheduleMember
	if err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND status = ?", scheduleID, model.StatusAlive).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *scheduleRepository) ExistAliveScheduleMember(ctx context.Context, memberID, scheduleID uint64) (bool, error) {
	_, err := r.GetAliveScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *scheduleRepository) SaveScheduleMember(ctx context.Context, member *model.ScheduleMember) error {
	member.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(member).Error
}

func (r *scheduleRepository) SoftDeleteScheduleMember(ctx context.Context, scheduleMemberID uint64) error {
	return r.db.WithContext(ctx).Model(&model.ScheduleMember{}).
		Where("id = ?", scheduleMemberID).
		Updates(map[string]interface{}{"status": model.StatusDelete, "is_owner": false, "updated_at": time.Now()}).Error
}

func (r *scheduleRepository) SetOwner(ctx context.Context, scheduleMemberID uint64, isOwner bool) error {
	return r.db.WithContext(ctx).Model(&model.ScheduleMember{}).
		Where("id = ?", scheduleMemberID).
		Updates(map[string]interface{}{"is_owner": isOwner, "updated_at": time.Now()}).Error
}

package repository

import (
	"context"
	"time"

	"MeetSync/internal/model"

	"gorm.io/gorm"
)

// RacingRepository 竞速对决持久化
type RacingRepository interface {
	CreateRacing(ctx context.Context, racing *model.Racing) error
	GetRacing(ctx context.Context, racingID uint64) (*model.Racing, error)
	ExistAlivePair(ctx context.Context, firstScheduleMemberID, secondScheduleMemberID uint64) (bool, error)
	ListAliveRacingsInSchedule(ctx context.Context, scheduleID uint64, raceStatus model.ExecStatus) ([]*model.Racing, error)
	ListRunRacingsWithRacer(ctx context.Context, scheduleID, scheduleMemberID uint64) ([]*model.Racing, error)
	ListAliveRacingsOfRacer(ctx context.Context, scheduleMemberID uint64) ([]*model.Racing, error)
	ListExpiredWaitRacings(ctx context.Context, now time.Time) ([]*model.Racing, error)
	SaveRacing(ctx context.Context, racing *model.Racing) error
	SoftDeleteRacing(ctx context.Context, racingID uint64) error
}

type racingRepository struct {
	db *gorm.DB
}

// NewRacingRepository 创建竞速仓储
func NewRacingRepository(db *gorm.DB) RacingRepository {
	return &racingRepository{db: db}
}

func (r *racingRepository) CreateRacing(ctx context.Context, racing *model.Racing) error {
	return r.db.WithContext(ctx).Create(racing).Error
}

func (r *racingRepository) GetRacing(ctx context.Context, racingID uint64) (*model.Racing, error) {
	var racing model.Racing
	if err := r.db.WithContext(ctx).Where("id = ?", racingID).First(&racing).Error; err != nil {
		return nil, err
	}
	return &racing, nil
}

// ExistAlivePair 同一有序对（发起方→应战方）是否已有未结束的对决
func (r *racingRepository) ExistAlivePair(ctx context.Context, firstScheduleMemberID, secondScheduleMemberID uint64) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Racing{}).
		Where("first_racer_schedule_member_id = ? AND second_racer_schedule_member_id = ? AND status = ? AND race_status IN ?",
			firstScheduleMemberID, secondScheduleMemberID, model.StatusAlive,
			[]model.ExecStatus{model.ExecWait, model.ExecRun}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *racingRepository) ListAliveRacingsInSchedule(ctx context.Context, scheduleID uint64, raceStatus model.ExecStatus) ([]*model.Racing, error) {
	var list []*model.Racing
	if err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND race_status = ? AND status = ?", scheduleID, raceStatus, model.StatusAlive).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *racingRepository) ListRunRacingsWithRacer(ctx context.Context, scheduleID, scheduleMemberID uint64) ([]*model.Racing, error) {
	var list []*model.Racing
	if err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND race_status = ? AND status = ? AND (first_racer_schedule_member_id = ? OR second_racer_schedule_member_id = ?)",
			scheduleID, model.ExecRun, model.StatusAlive, scheduleMemberID, scheduleMemberID).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *racingRepository) ListAliveRacingsOfRacer(ctx context.Context, scheduleMemberID uint64) ([]*model.Racing, error) {
	var list []*model.Racing
	if err := r.db.WithContext(ctx).
		Where("status = ? AND race_status IN ? AND (first_racer_schedule_member_id = ? OR second_racer_schedule_member_id = ?)",
			model.StatusAlive, []model.ExecStatus{model.ExecWait, model.ExecRun},
			scheduleMemberID, scheduleMemberID).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListExpiredWaitRacings 超过接受截止时间仍在等待的对决（进程重启后的恢复入口）
func (r *racingRepository) ListExpiredWaitRacings(ctx context.Context, now time.Time) ([]*model.Racing, error) {
	var list []*model.Racing
	if err := r.db.WithContext(ctx).
		Where("race_status = ? AND status = ? AND expire_at <= ?", model.ExecWait, model.StatusAlive, now).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *racingRepository) SaveRacing(ctx context.Context, racing *model.Racing) error {
	racing.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(racing).Error
}

func (r *racingRepository) SoftDeleteRacing(ctx context.Context, racingID uint64) error {
	return r.db.WithContext(ctx).Model(&model.Racing{}).
		Where("id = ?", racingID).
		Updates(map[string]interface{}{"status": model.StatusDelete, "updated_at": time.Now()}).Error
}

package repository

import (
	"context"
	"errors"
	"time"

	"MeetSync/internal/model"

	"gorm.io/gorm"
)

// BettingRepository 押注持久化
type BettingRepository interface {
	CreateBetting(ctx context.Context, betting *model.Betting) error
	GetBetting(ctx context.Context, bettingID uint64) (*model.Betting, error)
	ListBettingsInSchedule(ctx context.Context, scheduleID uint64, status model.ExecStatus) ([]*model.Betting, error)
	FindAliveByBettor(ctx context.Context, bettorScheduleMemberID uint64) (*model.Betting, error)
	ListAliveByBetee(ctx context.Context, beteeScheduleMemberID uint64) ([]*model.Betting, error)
	ExistAliveBettorInSchedule(ctx context.Context, bettorScheduleMemberID, scheduleID uint64) (bool, error)
	SaveBetting(ctx context.Context, betting *model.Betting) error
	SoftDeleteBetting(ctx context.Context, bettingID uint64) error
}

type bettingRepository struct {
	db *gorm.DB
}

// NewBettingRepository 创建押注仓储
func NewBettingRepository(db *gorm.DB) BettingRepository {
	return &bettingRepository{db: db}
}

func (r *bettingRepository) CreateBetting(ctx context.Context, betting *model.Betting) error {
	return r.db.WithContext(ctx).Create(betting).Error
}

func (r *bettingRepository) GetBetting(ctx context.Context, bettingID uint64) (*model.Betting, error) {
	var b model.Betting
	if err := r.db.WithContext(ctx).Where("id = ?", bettingID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bettingRepository) ListBettingsInSchedule(ctx context.Context, scheduleID uint64, status model.ExecStatus) ([]*model.Betting, error) {
	var list []*model.Betting
	if err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND betting_status = ? AND status = ?", scheduleID, status, model.StatusAlive).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bettingRepository) FindAliveByBettor(ctx context.Context, bettorScheduleMemberID uint64) (*model.Betting, error) {
	var b model.Betting
	err := r.db.WithContext(ctx).
		Where("bettor_schedule_member_id = ? AND status = ?", bettorScheduleMemberID, model.StatusAlive).
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *bettingRepository) ListAliveByBetee(ctx context.Context, beteeScheduleMemberID uint64) ([]*model.Betting, error) {
	var list []*model.Betting
	if err := r.db.WithContext(ctx).
		Where("betee_schedule_member_id = ? AND status = ?", beteeScheduleMemberID, model.StatusAlive).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bettingRepository) ExistAliveBettorInSchedule(ctx context.Context, bettorScheduleMemberID, scheduleID uint64) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Betting{}).
		Where("bettor_schedule_member_id = ? AND schedule_id = ? AND status = ?",
			bettorScheduleMemberID, scheduleID, model.StatusAlive).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *bettingRepository) SaveBetting(ctx context.Context, betting *model.Betting) error {
	betting.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(betting).Error
}

func (r *bettingRepository) SoftDeleteBetting(ctx context.Context, bettingID uint64) error {
	return r.db.WithContext(ctx).Model(&model.Betting{}).
		Where("id = ?", bettingID).
		Updates(map[string]interface{}{"status": model.StatusDelete, "updated_at": time.Now()}).Error
}

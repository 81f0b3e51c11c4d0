package repository

import (
	"context"
	"errors"
	"time"

	"MeetSync/internal/model"

	"gorm.io/gorm"
)

// PointIntentRepository 积分变动指令（outbox）持久化
type PointIntentRepository interface {
	CreateIntent(ctx context.Context, intent *model.PointChangeIntent) error
	ListPendingIntents(ctx context.Context, limit int) ([]*model.PointChangeIntent, error)
	MarkApplied(ctx context.Context, intentID uint64, at time.Time) error
	SumPendingMinusByMember(ctx context.Context, memberID uint64) (int, error)
}

// ResultRepository 约定结果快照持久化
type ResultRepository interface {
	GetResult(ctx context.Context, scheduleID uint64) (*model.ScheduleResult, error)
	SaveResult(ctx context.Context, result *model.ScheduleResult) error
}

type pointIntentRepository struct {
	db *gorm.DB
}

// NewPointIntentRepository 创建积分指令仓储
func NewPointIntentRepository(db *gorm.DB) PointIntentRepository {
	return &pointIntentRepository{db: db}
}

func (r *pointIntentRepository) CreateIntent(ctx context.Context, intent *model.PointChangeIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *pointIntentRepository) ListPendingIntents(ctx context.Context, limit int) ([]*model.PointChangeIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []*model.PointChangeIntent
	if err := r.db.WithContext(ctx).
		Where("applied = ?", false).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *pointIntentRepository) MarkApplied(ctx context.Context, intentID uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.PointChangeIntent{}).
		Where("id = ?", intentID).
		Updates(map[string]interface{}{"applied": true, "applied_at": at}).Error
}

// SumPendingMinusByMember 尚未投递的扣款总额，余额预检时从账本余额中扣除
func (r *pointIntentRepository) SumPendingMinusByMember(ctx context.Context, memberID uint64) (int, error) {
	var total *int
	if err := r.db.WithContext(ctx).Model(&model.PointChangeIntent{}).
		Select("SUM(amount)").
		Where("member_id = ? AND change_type = ? AND applied = ?", memberID, model.PointMinus, false).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository 创建结果快照仓储
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) GetResult(ctx context.Context, scheduleID uint64) (*model.ScheduleResult, error) {
	var res model.ScheduleResult
	err := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).First(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

func (r *resultRepository) SaveResult(ctx context.Context, result *model.ScheduleResult) error {
	result.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(result).Error
}

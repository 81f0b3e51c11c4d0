package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repos 各聚合仓储的集合，服务层按需取用
type Repos struct {
	Schedule ScheduleRepository
	Betting  BettingRepository
	Racing   RacingRepository
	Point    PointIntentRepository
	Result   ResultRepository
}

// NewRepos 基于同一个 *gorm.DB（或事务句柄）创建全部仓储
func NewRepos(db *gorm.DB) *Repos {
	return &Repos{
		Schedule: NewScheduleRepository(db),
		Betting:  NewBettingRepository(db),
		Racing:   NewRacingRepository(db),
		Point:    NewPointIntentRepository(db),
		Result:   NewResultRepository(db),
	}
}

// UnitOfWork 将一组仓储操作放进同一个数据库事务
// 状态迁移与它产生的积分变动指令要么一起落库要么一起回滚
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(repos *Repos) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork 创建基于 gorm 事务的 UnitOfWork
func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) InTx(ctx context.Context, fn func(repos *Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepos(tx))
	})
}

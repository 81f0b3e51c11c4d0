package service

import (
	"context"
	"errors"
	"time"

	"MeetSync/internal/alarm"
	"MeetSync/internal/interfaces"
	"MeetSync/internal/lock"
	"MeetSync/internal/model"
	"MeetSync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScheduleService 约定生命周期：创建/加入/退出、开始、到达、关闭
// 关闭时在一个事务里依次完成：缺席补记到达、准时奖励、押注结算、
// 残余对决清理、结果快照；各步骤自带幂等标记，关闭可安全重入
type ScheduleService struct {
	uow         repository.UnitOfWork
	repos       *repository.Repos
	pointLedger interfaces.PointLedger
	alarms      interfaces.AlarmPublisher
	locks       *lock.KeyedMutex
	logger      *logrus.Logger
	clock       func() time.Time
	minLead     time.Duration

	reward  *RewardService
	betting *BettingService
	racing  *RacingService
}

// NewScheduleService 创建约定服务
func NewScheduleService(db *gorm.DB, logger *logrus.Logger, pointLedger interfaces.PointLedger, alarms interfaces.AlarmPublisher, locks *lock.KeyedMutex, minLead time.Duration, reward *RewardService, betting *BettingService, racing *RacingService) *ScheduleService {
	return NewScheduleServiceWithDeps(repository.NewUnitOfWork(db), repository.NewRepos(db), logger, pointLedger, alarms, locks, minLead, reward, betting, racing)
}

// NewScheduleServiceWithDeps 创建约定服务（注入依赖，便于测试）
func NewScheduleServiceWithDeps(uow repository.UnitOfWork, repos *repository.Repos, logger *logrus.Logger, pointLedger interfaces.PointLedger, alarms interfaces.AlarmPublisher, locks *lock.KeyedMutex, minLead time.Duration, reward *RewardService, betting *BettingService, racing *RacingService) *ScheduleService {
	return &ScheduleService{
		uow:         uow,
		repos:       repos,
		pointLedger: pointLedger,
		alarms:      alarms,
		locks:       locks,
		logger:      logger,
		clock:       time.Now,
		minLead:     minLead,
		reward:      reward,
		betting:     betting,
		racing:      racing,
	}
}

// OpenSchedule 创建约定，创建者即组织者且是首名成员
// 押金为 0 视为免押金成员（不参与押注和对决）
func (s *ScheduleService) OpenSchedule(ctx context.Context, memberID uint64, name string, scheduleTime time.Time, location model.Location, pointAmount int) (uint64, error) {
	now := s.clock()
	if scheduleTime.Before(now.Add(s.minLead)) {
		return 0, ErrInvalidScheduleTime
	}
	if err := checkEnoughPoints(ctx, s.pointLedger, s.repos.Point, memberID, pointAmount); err != nil {
		return 0, err
	}

	schedule := &model.Schedule{
		ScheduleName:   name,
		ScheduleTime:   scheduleTime,
		Location:       location,
		ScheduleStatus: model.ExecWait,
		OwnerMemberID:  memberID,
		Status:         model.StatusAlive,
	}
	err := s.uow.InTx(ctx, func(repos *repository.Repos) error {
		if err := repos.Schedule.CreateSchedule(ctx, schedule); err != nil {
			return err
		}
		member := &model.ScheduleMember{
			ScheduleID:  schedule.ID,
			MemberID:    memberID,
			IsOwner:     true,
			IsPaid:      pointAmount > 0,
			PointAmount: pointAmount,
			Status:      model.StatusAlive,
		}
		if err := repos.Schedule.CreateScheduleMember(ctx, member); err != nil {
			return err
		}
		if pointAmount > 0 {
			return repos.Point.CreateIntent(ctx,
				newPointIntent(memberID, model.PointMinus, pointAmount, model.ReasonSchedule, schedule.ID))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"owner":       memberID,
		"time":        scheduleTime,
		"point":       pointAmount,
	}).Info("约定已创建")
	return schedule.ID, nil
}

// JoinSchedule 加入等待中的约定
func (s *ScheduleService) JoinSchedule(ctx context.Context, memberID, scheduleID uint64, pointAmount int) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule.ScheduleStatus != model.ExecWait {
		return ErrNotWaiting
	}
	joined, err := s.repos.Schedule.ExistAliveScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		return err
	}
	if joined {
		return ErrAlreadyJoined
	}
	if err := checkEnoughPoints(ctx, s.pointLedger, s.repos.Point, memberID, pointAmount); err != nil {
		return err
	}

	return s.uow.InTx(ctx, func(repos *repository.Repos) error {
		member := &model.ScheduleMember{
			ScheduleID:  scheduleID,
			MemberID:    memberID,
			IsPaid:      pointAmount > 0,
			PointAmount: pointAmount,
			Status:      model.StatusAlive,
		}
		if err := repos.Schedule.CreateScheduleMember(ctx, member); err != nil {
			return err
		}
		if pointAmount > 0 {
			return repos.Point.CreateIntent(ctx,
				newPointIntent(memberID, model.PointMinus, pointAmount, model.ReasonSchedule, scheduleID))
		}
		return nil
	})
}

// ExitSchedule 退出等待中的约定：退还押金，级联取消相关押注
// 组织者退出时移交给最早加入的剩余成员；最后一人退出则整个约定软删除
func (s *ScheduleService) ExitSchedule(ctx context.Context, memberID, scheduleID uint64) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule.ScheduleStatus != model.ExecWait {
		return ErrNotWaiting
	}
	sm, err := s.findScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		return err
	}

	now := s.clock()
	var bettingNotices []alarm.BettingCanceledMessage
	var racingNotices []alarm.RacingResultMessage
	err = s.uow.InTx(ctx, func(repos *repository.Repos) error {
		bettingNotices, err = s.betting.CancelForExitInTx(ctx, repos, sm, schedule)
		if err != nil {
			return err
		}
		racingNotices, err = s.racing.CancelForExitInTx(ctx, repos, sm, schedule, now)
		if err != nil {
			return err
		}
		if sm.PointAmount > 0 {
			if err := repos.Point.CreateIntent(ctx,
				newPointIntent(memberID, model.PointPlus, sm.PointAmount, model.ReasonScheduleExit, scheduleID)); err != nil {
				return err
			}
		}
		if err := repos.Schedule.SoftDeleteScheduleMember(ctx, sm.ID); err != nil {
			return err
		}

		remaining, err := repos.Schedule.ListAliveScheduleMembers(ctx, scheduleID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return repos.Schedule.SoftDeleteSchedule(ctx, scheduleID)
		}
		if sm.IsOwner {
			// 移交给最早加入的剩余成员
			next := remaining[0]
			if err := repos.Schedule.SetOwner(ctx, next.ID, true); err != nil {
				return err
			}
			return repos.Schedule.UpdateOwner(ctx, scheduleID, next.MemberID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, n := range bettingNotices {
		s.publish(ctx, n)
	}
	s.racing.PublishResults(ctx, racingNotices)
	s.logger.WithFields(logrus.Fields{"schedule_id": scheduleID, "member": memberID}).Info("成员已退出约定")
	return nil
}

// UpdateSchedule 组织者在约定开始前修改名称/时间/地点
func (s *ScheduleService) UpdateSchedule(ctx context.Context, memberID, scheduleID uint64, name string, scheduleTime time.Time, location model.Location) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule.ScheduleStatus != model.ExecWait {
		return ErrNotWaiting
	}
	if schedule.OwnerMemberID != memberID {
		return ErrNotOwner
	}
	if scheduleTime.Before(s.clock().Add(s.minLead)) {
		return ErrInvalidScheduleTime
	}
	return s.repos.Schedule.UpdateScheduleInfo(ctx, scheduleID, name, scheduleTime, location)
}

// RunSchedule 约定到点开始（worker 扫描触发），重复调用安全
func (s *ScheduleService) RunSchedule(ctx context.Context, scheduleID uint64) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, ErrNoSuchSchedule) {
			return nil
		}
		return err
	}
	if schedule.ScheduleStatus != model.ExecWait {
		return nil
	}
	if err := s.repos.Schedule.UpdateScheduleStatus(ctx, scheduleID, model.ExecRun); err != nil {
		return err
	}
	s.logger.WithField("schedule_id", scheduleID).Info("约定已开始")
	return nil
}

// MakeMemberArrive 记录成员到达，同时结算其进行中的对决（先到者胜）
// 重复上报到达不生效；全员到达后立即关闭约定
func (s *ScheduleService) MakeMemberArrive(ctx context.Context, memberID, scheduleID uint64) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule.ScheduleStatus != model.ExecRun {
		return ErrNotRunning
	}
	sm, err := s.findScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		return err
	}
	if sm.HasArrived() {
		return nil
	}

	now := s.clock()
	sm.Arrive(schedule.ScheduleTime, now)

	var racingNotices []alarm.RacingResultMessage
	err = s.uow.InTx(ctx, func(repos *repository.Repos) error {
		if err := repos.Schedule.SaveScheduleMember(ctx, sm); err != nil {
			return err
		}
		racingNotices, err = s.racing.DeclareWinnerInTx(ctx, repos, schedule, sm, now)
		return err
	})
	if err != nil {
		return err
	}

	members, err := s.repos.Schedule.ListAliveScheduleMembers(ctx, scheduleID)
	if err != nil {
		return err
	}
	s.publish(ctx, alarm.MemberArrivalMessage{
		Message: alarm.Message{
			Type:         alarm.TypeMemberArrival,
			RecipientIDs: memberIDsOf(members),
			ScheduleID:   scheduleID,
			ScheduleName: schedule.ScheduleName,
			SentAt:       now,
		},
		MemberID:    memberID,
		ArrivalTime: now,
	})
	s.racing.PublishResults(ctx, racingNotices)
	s.logger.WithFields(logrus.Fields{
		"schedule_id": scheduleID,
		"member":      memberID,
		"diff_min":    sm.ArrivalTimeDiff,
	}).Info("成员已到达")

	for _, m := range members {
		if !m.HasArrived() {
			return nil
		}
	}
	// 全员到位，立即关闭
	return s.closeLocked(ctx, scheduleID)
}

// CloseSchedule 关闭约定并完成全部结算（全员到达或超时自动触发）
func (s *ScheduleService) CloseSchedule(ctx context.Context, scheduleID uint64) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()
	return s.closeLocked(ctx, scheduleID)
}

func (s *ScheduleService) closeLocked(ctx context.Context, scheduleID uint64) error {
	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule.ScheduleStatus == model.ExecTerm {
		return nil
	}
	// WAIT 也允许关闭（运营强制终止），ERROR 不再结算
	if schedule.ScheduleStatus != model.ExecRun && schedule.ScheduleStatus != model.ExecWait {
		return ErrNotRunning
	}

	now := s.clock()
	members, err := s.repos.Schedule.ListAliveScheduleMembers(ctx, scheduleID)
	if err != nil {
		return err
	}
	// 没到的人按关闭时刻记迟到
	for _, m := range members {
		if !m.HasArrived() {
			m.Arrive(schedule.ScheduleTime, now)
			if m.ArrivalTimeDiff >= 0 {
				m.ArrivalTimeDiff = -1
			}
		}
	}

	var racingNotices []alarm.RacingResultMessage
	err = s.uow.InTx(ctx, func(repos *repository.Repos) error {
		if err := repos.Schedule.MarkClosed(ctx, scheduleID, now); err != nil {
			return err
		}
		if err := s.reward.DistributeInTx(ctx, repos, schedule, members, now); err != nil {
			return err
		}
		if err := s.betting.SettleInTx(ctx, repos, schedule, members, now); err != nil {
			return err
		}
		racingNotices, err = s.racing.ForceTermInTx(ctx, repos, schedule, now)
		if err != nil {
			return err
		}
		return writeScheduleResultInTx(ctx, repos, schedule, members)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, alarm.ScheduleClosedMessage{
		Message: alarm.Message{
			Type:         alarm.TypeScheduleClosed,
			RecipientIDs: memberIDsOf(members),
			ScheduleID:   scheduleID,
			ScheduleName: schedule.ScheduleName,
			SentAt:       now,
		},
		LocationName: schedule.Location.LocationName,
		ScheduleTime: schedule.ScheduleTime,
	})
	s.racing.PublishResults(ctx, racingNotices)
	s.logger.WithFields(logrus.Fields{"schedule_id": scheduleID, "members": len(members)}).Info("约定已关闭")
	return nil
}

// ErrorSchedule 异常终止一个尚未开始的约定（仅组织者）
// 全员退还押金，存活押注全部取消退款，状态置 ERROR，不做任何结算
func (s *ScheduleService) ErrorSchedule(ctx context.Context, memberID, scheduleID uint64) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule.ScheduleStatus != model.ExecWait {
		return ErrNotWaiting
	}
	if schedule.OwnerMemberID != memberID {
		return ErrNotOwner
	}

	members, err := s.repos.Schedule.ListAliveScheduleMembers(ctx, scheduleID)
	if err != nil {
		return err
	}
	err = s.uow.InTx(ctx, func(repos *repository.Repos) error {
		for _, m := range members {
			if m.PointAmount > 0 {
				if err := repos.Point.CreateIntent(ctx,
					newPointIntent(m.MemberID, model.PointPlus, m.PointAmount, model.ReasonScheduleExit, scheduleID)); err != nil {
					return err
				}
			}
		}
		bettings, err := repos.Betting.ListBettingsInSchedule(ctx, scheduleID, model.ExecWait)
		if err != nil {
			return err
		}
		for _, b := range bettings {
			bettor, err := repos.Schedule.GetScheduleMemberByID(ctx, b.BettorScheduleMemberID)
			if err != nil {
				return err
			}
			if err := repos.Betting.SoftDeleteBetting(ctx, b.ID); err != nil {
				return err
			}
			if err := repos.Point.CreateIntent(ctx,
				newPointIntent(bettor.MemberID, model.PointPlus, b.PointAmount, model.ReasonBettingCancel, b.ID)); err != nil {
				return err
			}
		}
		return repos.Schedule.UpdateScheduleStatus(ctx, scheduleID, model.ExecError)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, alarm.ScheduleClosedMessage{
		Message: alarm.Message{
			Type:         alarm.TypeScheduleClosed,
			RecipientIDs: memberIDsOf(members),
			ScheduleID:   scheduleID,
			ScheduleName: schedule.ScheduleName,
			SentAt:       s.clock(),
		},
		LocationName: schedule.Location.LocationName,
		ScheduleTime: schedule.ScheduleTime,
	})
	s.logger.WithFields(logrus.Fields{"schedule_id": scheduleID, "members": len(members)}).Warn("约定已异常终止")
	return nil
}

// GetScheduleDetail 查询约定及其存活成员
func (s *ScheduleService) GetScheduleDetail(ctx context.Context, scheduleID uint64) (*model.Schedule, []*model.ScheduleMember, error) {
	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.repos.Schedule.ListAliveScheduleMembers(ctx, scheduleID)
	if err != nil {
		return nil, nil, err
	}
	return schedule, members, nil
}

// GetScheduleResult 查询关闭后的结果快照
func (s *ScheduleService) GetScheduleResult(ctx context.Context, scheduleID uint64) (*model.ScheduleResult, error) {
	result, err := s.repos.Result.GetResult(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNoSuchSchedule
	}
	return result, nil
}

func (s *ScheduleService) getSchedule(ctx context.Context, scheduleID uint64) (*model.Schedule, error) {
	schedule, err := s.repos.Schedule.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSuchSchedule
		}
		return nil, err
	}
	return schedule, nil
}

func (s *ScheduleService) findScheduleMember(ctx context.Context, memberID, scheduleID uint64) (*model.ScheduleMember, error) {
	m, err := s.repos.Schedule.GetAliveScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotInSchedule
		}
		return nil, err
	}
	return m, nil
}

func (s *ScheduleService) publish(ctx context.Context, message interface{}) {
	if err := s.alarms.Publish(ctx, message); err != nil {
		s.logger.WithError(err).Warn("通知发送失败")
	}
}

func memberIDsOf(members []*model.ScheduleMember) []uint64 {
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.MemberID)
	}
	return ids
}

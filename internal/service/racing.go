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

// RacingService 约定进行中两名成员的到达竞速对决
// 发起只登记邀请不动积分；接受时双方各扣一份押注；先到者赢走两份
// 邀请在 accept_timeout 内未被接受则自动取消（内存定时器 + 定时扫描兜底）
type RacingService struct {
	uow           repository.UnitOfWork
	repos         *repository.Repos
	pointLedger   interfaces.PointLedger
	alarms        interfaces.AlarmPublisher
	locks         *lock.KeyedMutex
	logger        *logrus.Logger
	clock         func() time.Time
	acceptTimeout time.Duration
	timerFn       func(d time.Duration, f func()) // 测试中可替换为空操作
}

// NewRacingService 创建竞速服务
func NewRacingService(db *gorm.DB, logger *logrus.Logger, pointLedger interfaces.PointLedger, alarms interfaces.AlarmPublisher, locks *lock.KeyedMutex, acceptTimeout time.Duration) *RacingService {
	return NewRacingServiceWithDeps(repository.NewUnitOfWork(db), repository.NewRepos(db), logger, pointLedger, alarms, locks, acceptTimeout)
}

// NewRacingServiceWithDeps 创建竞速服务（注入依赖，便于测试）
func NewRacingServiceWithDeps(uow repository.UnitOfWork, repos *repository.Repos, logger *logrus.Logger, pointLedger interfaces.PointLedger, alarms interfaces.AlarmPublisher, locks *lock.KeyedMutex, acceptTimeout time.Duration) *RacingService {
	return &RacingService{
		uow:           uow,
		repos:         repos,
		pointLedger:   pointLedger,
		alarms:        alarms,
		locks:         locks,
		logger:        logger,
		clock:         time.Now,
		acceptTimeout: acceptTimeout,
		timerFn: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// MakeRacing 发起对决邀请，此时不产生任何积分变动
// 仅限约定 RUN 期间；双方都须是缴纳押金的成员；同一对发起方→应战方不可重复邀请
func (s *RacingService) MakeRacing(ctx context.Context, memberID, scheduleID, secondMemberID uint64, pointAmount int) (uint64, error) {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.repos.Schedule.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNoSuchSchedule
		}
		return 0, err
	}
	if schedule.ScheduleStatus != model.ExecRun {
		return 0, ErrNotRunning
	}

	first, err := s.findScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		return 0, err
	}
	second, err := s.findScheduleMember(ctx, secondMemberID, scheduleID)
	if err != nil {
		return 0, err
	}
	if !first.IsPaid || !second.IsPaid {
		return 0, ErrNotPaidMember
	}

	// 正反两个方向都算重复
	for _, pair := range [][2]uint64{{first.ID, second.ID}, {second.ID, first.ID}} {
		exists, err := s.repos.Racing.ExistAlivePair(ctx, pair[0], pair[1])
		if err != nil {
			return 0, err
		}
		if exists {
			return 0, ErrDuplicateRacing
		}
	}

	// 双方余额都要够，避免接受时才发现发起方付不起
	if err := checkEnoughPoints(ctx, s.pointLedger, s.repos.Point, memberID, pointAmount); err != nil {
		return 0, err
	}
	if err := checkEnoughPoints(ctx, s.pointLedger, s.repos.Point, secondMemberID, pointAmount); err != nil {
		return 0, err
	}

	now := s.clock()
	racing := &model.Racing{
		ScheduleID:                  scheduleID,
		FirstRacerScheduleMemberID:  first.ID,
		SecondRacerScheduleMemberID: second.ID,
		PointAmount:                 pointAmount,
		RaceStatus:                  model.ExecWait,
		ExpireAt:                    now.Add(s.acceptTimeout),
		Status:                      model.StatusAlive,
	}
	if err := s.repos.Racing.CreateRacing(ctx, racing); err != nil {
		return 0, err
	}

	s.publish(ctx, alarm.AskRacingMessage{
		Message: alarm.Message{
			Type:         alarm.TypeAskRacing,
			RecipientIDs: []uint64{secondMemberID},
			ScheduleID:   scheduleID,
			ScheduleName: schedule.ScheduleName,
			SentAt:       now,
		},
		RacingID:    racing.ID,
		AskerID:     memberID,
		PointAmount: pointAmount,
	})

	// 内存定时器负责常规超时，重启丢失由 worker 扫描 expire_at 兜底
	racingID := racing.ID
	s.timerFn(s.acceptTimeout, func() {
		if err := s.AutoDeleteExpired(context.Background(), racingID); err != nil {
			s.logger.WithError(err).WithField("racing_id", racingID).Warn("对决超时取消失败")
		}
	})

	s.logger.WithFields(logrus.Fields{
		"racing_id":   racing.ID,
		"schedule_id": scheduleID,
		"first":       memberID,
		"second":      secondMemberID,
		"point":       pointAmount,
	}).Info("对决邀请已发出")
	return racing.ID, nil
}

// AcceptRacing 应战方接受邀请，对决进入 RUN，双方各扣一份押注
func (s *RacingService) AcceptRacing(ctx context.Context, memberID, scheduleID, racingID uint64) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.repos.Schedule.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoSuchSchedule
		}
		return err
	}
	if schedule.ScheduleStatus != model.ExecRun {
		return ErrNotRunning
	}

	sm, err := s.findScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		return err
	}
	racing, err := s.getRacing(ctx, scheduleID, racingID)
	if err != nil {
		return err
	}
	if racing.SecondRacerScheduleMemberID != sm.ID {
		return ErrNotSecondRacer
	}
	// 拿到锁后再看状态：超时取消或重复接受都在这里挡下
	if racing.RaceStatus != model.ExecWait {
		return ErrInvalidRacingState
	}

	firstRacer, err := s.repos.Schedule.GetScheduleMemberByID(ctx, racing.FirstRacerScheduleMemberID)
	if err != nil {
		return err
	}
	// 邀请挂起期间余额可能已变，接受时重新预检双方
	if err := checkEnoughPoints(ctx, s.pointLedger, s.repos.Point, firstRacer.MemberID, racing.PointAmount); err != nil {
		return err
	}
	if err := checkEnoughPoints(ctx, s.pointLedger, s.repos.Point, memberID, racing.PointAmount); err != nil {
		return err
	}

	err = s.uow.InTx(ctx, func(repos *repository.Repos) error {
		racing.RaceStatus = model.ExecRun
		if err := repos.Racing.SaveRacing(ctx, racing); err != nil {
			return err
		}
		if err := repos.Point.CreateIntent(ctx,
			newPointIntent(firstRacer.MemberID, model.PointMinus, racing.PointAmount, model.ReasonRacing, racing.ID)); err != nil {
			return err
		}
		return repos.Point.CreateIntent(ctx,
			newPointIntent(memberID, model.PointMinus, racing.PointAmount, model.ReasonRacing, racing.ID))
	})
	if err != nil {
		return err
	}

	now := s.clock()
	for _, mid := range []uint64{firstRacer.MemberID, memberID} {
		s.publish(ctx, alarm.PointChangedMessage{
			Message: alarm.Message{
				Type:         alarm.TypePointChanged,
				RecipientIDs: []uint64{mid},
				ScheduleID:   scheduleID,
				ScheduleName: schedule.ScheduleName,
				SentAt:       now,
			},
			MemberID: mid,
			Amount:   -racing.PointAmount,
		})
	}
	s.logger.WithFields(logrus.Fields{"racing_id": racingID, "schedule_id": scheduleID}).Info("对决已接受")
	return nil
}

// DenyRacing 应战方拒绝邀请，对决直接取消，不产生积分变动
func (s *RacingService) DenyRacing(ctx context.Context, memberID, scheduleID, racingID uint64) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	sm, err := s.findScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		return err
	}
	racing, err := s.getRacing(ctx, scheduleID, racingID)
	if err != nil {
		return err
	}
	if racing.SecondRacerScheduleMemberID != sm.ID {
		return ErrNotSecondRacer
	}
	if racing.RaceStatus != model.ExecWait {
		return ErrInvalidRacingState
	}
	if err := s.repos.Racing.SoftDeleteRacing(ctx, racingID); err != nil {
		return err
	}

	firstRacer, err := s.repos.Schedule.GetScheduleMemberByID(ctx, racing.FirstRacerScheduleMemberID)
	if err != nil {
		return err
	}
	s.publish(ctx, alarm.RacingResultMessage{
		Message: alarm.Message{
			Type:         alarm.TypeRacingDenied,
			RecipientIDs: []uint64{firstRacer.MemberID},
			ScheduleID:   scheduleID,
			SentAt:       s.clock(),
		},
		RacingID:    racingID,
		PointAmount: racing.PointAmount,
	})
	s.logger.WithFields(logrus.Fields{"racing_id": racingID, "schedule_id": scheduleID}).Info("对决已拒绝")
	return nil
}

// AutoDeleteExpired 超时未接受的邀请自动取消（定时器回调与 worker 扫描共用）
// 拿到约定锁后重新读取状态，已接受或已取消的不再处理
func (s *RacingService) AutoDeleteExpired(ctx context.Context, racingID uint64) error {
	racing, err := s.repos.Racing.GetRacing(ctx, racingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	unlock := s.locks.Lock(racing.ScheduleID)
	defer unlock()

	racing, err = s.repos.Racing.GetRacing(ctx, racingID)
	if err != nil {
		return err
	}
	if racing.Status != model.StatusAlive || racing.RaceStatus != model.ExecWait {
		return nil
	}
	if s.clock().Before(racing.ExpireAt) {
		return nil
	}
	if err := s.repos.Racing.SoftDeleteRacing(ctx, racingID); err != nil {
		return err
	}

	recipients, err := s.racerMemberIDs(ctx, s.repos, racing)
	if err != nil {
		return err
	}
	s.publish(ctx, alarm.RacingResultMessage{
		Message: alarm.Message{
			Type:         alarm.TypeRacingAutoDeleted,
			RecipientIDs: recipients,
			ScheduleID:   racing.ScheduleID,
			SentAt:       s.clock(),
		},
		RacingID:    racingID,
		PointAmount: racing.PointAmount,
	})
	s.logger.WithFields(logrus.Fields{"racing_id": racingID, "schedule_id": racing.ScheduleID}).Info("对决邀请超时，已自动取消")
	return nil
}

// DeclareWinnerInTx 成员到达时结算其所有 RUN 对决：先到者即胜者，赢走两份押注
// 在到达事务内调用，通知消息由调用方在提交后发送
func (s *RacingService) DeclareWinnerInTx(ctx context.Context, repos *repository.Repos, schedule *model.Schedule, arriver *model.ScheduleMember, now time.Time) ([]alarm.RacingResultMessage, error) {
	racings, err := repos.Racing.ListRunRacingsWithRacer(ctx, schedule.ID, arriver.ID)
	if err != nil {
		return nil, err
	}

	var notices []alarm.RacingResultMessage
	for _, r := range racings {
		if r.WinnerScheduleMemberID != nil {
			continue
		}
		winnerID := arriver.ID
		r.WinnerScheduleMemberID = &winnerID
		r.RaceStatus = model.ExecTerm
		if err := repos.Racing.SaveRacing(ctx, r); err != nil {
			return nil, err
		}
		if err := repos.Point.CreateIntent(ctx,
			newPointIntent(arriver.MemberID, model.PointPlus, 2*r.PointAmount, model.ReasonRacingReward, r.ID)); err != nil {
			return nil, err
		}

		recipients, err := s.racerMemberIDs(ctx, repos, r)
		if err != nil {
			return nil, err
		}
		winnerMemberID := arriver.MemberID
		notices = append(notices, alarm.RacingResultMessage{
			Message: alarm.Message{
				Type:         alarm.TypeRacingTerm,
				RecipientIDs: recipients,
				ScheduleID:   schedule.ID,
				ScheduleName: schedule.ScheduleName,
				SentAt:       now,
			},
			RacingID:       r.ID,
			WinnerMemberID: &winnerMemberID,
			PointAmount:    r.PointAmount,
		})
	}
	return notices, nil
}

// ForceTermInTx 约定关闭时清理残余对决（关闭事务内调用）
// 仍在 WAIT 的邀请直接取消；仍在 RUN 的按平局结算，双方退回押注
func (s *RacingService) ForceTermInTx(ctx context.Context, repos *repository.Repos, schedule *model.Schedule, now time.Time) ([]alarm.RacingResultMessage, error) {
	var notices []alarm.RacingResultMessage

	waiting, err := repos.Racing.ListAliveRacingsInSchedule(ctx, schedule.ID, model.ExecWait)
	if err != nil {
		return nil, err
	}
	for _, r := range waiting {
		if err := repos.Racing.SoftDeleteRacing(ctx, r.ID); err != nil {
			return nil, err
		}
		recipients, err := s.racerMemberIDs(ctx, repos, r)
		if err != nil {
			return nil, err
		}
		notices = append(notices, alarm.RacingResultMessage{
			Message: alarm.Message{
				Type:         alarm.TypeRacingAutoDeleted,
				RecipientIDs: recipients,
				ScheduleID:   schedule.ID,
				ScheduleName: schedule.ScheduleName,
				SentAt:       now,
			},
			RacingID:    r.ID,
			PointAmount: r.PointAmount,
		})
	}

	running, err := repos.Racing.ListAliveRacingsInSchedule(ctx, schedule.ID, model.ExecRun)
	if err != nil {
		return nil, err
	}
	for _, r := range running {
		if r.WinnerScheduleMemberID != nil {
			continue
		}
		r.RaceStatus = model.ExecTerm
		if err := repos.Racing.SaveRacing(ctx, r); err != nil {
			return nil, err
		}
		for _, smID := range []uint64{r.FirstRacerScheduleMemberID, r.SecondRacerScheduleMemberID} {
			racer, err := repos.Schedule.GetScheduleMemberByID(ctx, smID)
			if err != nil {
				return nil, err
			}
			if err := repos.Point.CreateIntent(ctx,
				newPointIntent(racer.MemberID, model.PointPlus, r.PointAmount, model.ReasonRacingDraw, r.ID)); err != nil {
				return nil, err
			}
		}
		recipients, err := s.racerMemberIDs(ctx, repos, r)
		if err != nil {
			return nil, err
		}
		notices = append(notices, alarm.RacingResultMessage{
			Message: alarm.Message{
				Type:         alarm.TypeRacingTerm,
				RecipientIDs: recipients,
				ScheduleID:   schedule.ID,
				ScheduleName: schedule.ScheduleName,
				SentAt:       now,
			},
			RacingID:    r.ID,
			PointAmount: r.PointAmount,
		})
	}
	return notices, nil
}

// CancelForExitInTx 成员退出约定时清理其对决（退出事务内调用）
// WAIT 邀请取消不退积分（尚未扣），RUN 对决按平局退还双方
func (s *RacingService) CancelForExitInTx(ctx context.Context, repos *repository.Repos, leaver *model.ScheduleMember, schedule *model.Schedule, now time.Time) ([]alarm.RacingResultMessage, error) {
	racings, err := repos.Racing.ListAliveRacingsOfRacer(ctx, leaver.ID)
	if err != nil {
		return nil, err
	}

	var notices []alarm.RacingResultMessage
	for _, r := range racings {
		if r.ScheduleID != schedule.ID {
			continue
		}
		recipients, err := s.racerMemberIDs(ctx, repos, r)
		if err != nil {
			return nil, err
		}
		switch r.RaceStatus {
		case model.ExecWait:
			if err := repos.Racing.SoftDeleteRacing(ctx, r.ID); err != nil {
				return nil, err
			}
			notices = append(notices, alarm.RacingResultMessage{
				Message: alarm.Message{
					Type:         alarm.TypeRacingAutoDeleted,
					RecipientIDs: recipients,
					ScheduleID:   schedule.ID,
					ScheduleName: schedule.ScheduleName,
					SentAt:       now,
				},
				RacingID:    r.ID,
				PointAmount: r.PointAmount,
			})
		case model.ExecRun:
			r.RaceStatus = model.ExecTerm
			if err := repos.Racing.SaveRacing(ctx, r); err != nil {
				return nil, err
			}
			for _, smID := range []uint64{r.FirstRacerScheduleMemberID, r.SecondRacerScheduleMemberID} {
				racer, err := repos.Schedule.GetScheduleMemberByID(ctx, smID)
				if err != nil {
					return nil, err
				}
				if err := repos.Point.CreateIntent(ctx,
					newPointIntent(racer.MemberID, model.PointPlus, r.PointAmount, model.ReasonRacingDraw, r.ID)); err != nil {
					return nil, err
				}
			}
			notices = append(notices, alarm.RacingResultMessage{
				Message: alarm.Message{
					Type:         alarm.TypeRacingTerm,
					RecipientIDs: recipients,
					ScheduleID:   schedule.ID,
					ScheduleName: schedule.ScheduleName,
					SentAt:       now,
				},
				RacingID:    r.ID,
				PointAmount: r.PointAmount,
			})
		}
	}
	return notices, nil
}

// ListRacings 查询约定内未结束的对决（邀请中 + 进行中），成员本人可见
func (s *RacingService) ListRacings(ctx context.Context, memberID, scheduleID uint64) ([]*model.Racing, error) {
	if _, err := s.findScheduleMember(ctx, memberID, scheduleID); err != nil {
		return nil, err
	}
	waiting, err := s.repos.Racing.ListAliveRacingsInSchedule(ctx, scheduleID, model.ExecWait)
	if err != nil {
		return nil, err
	}
	running, err := s.repos.Racing.ListAliveRacingsInSchedule(ctx, scheduleID, model.ExecRun)
	if err != nil {
		return nil, err
	}
	return append(waiting, running...), nil
}

// PublishResults 提交后统一发送事务内攒下的对决通知
func (s *RacingService) PublishResults(ctx context.Context, notices []alarm.RacingResultMessage) {
	for _, n := range notices {
		s.publish(ctx, n)
	}
}

func (s *RacingService) racerMemberIDs(ctx context.Context, repos *repository.Repos, racing *model.Racing) ([]uint64, error) {
	ids := make([]uint64, 0, 2)
	for _, smID := range []uint64{racing.FirstRacerScheduleMemberID, racing.SecondRacerScheduleMemberID} {
		m, err := repos.Schedule.GetScheduleMemberByID(ctx, smID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, m.MemberID)
	}
	return ids, nil
}

func (s *RacingService) getRacing(ctx context.Context, scheduleID, racingID uint64) (*model.Racing, error) {
	racing, err := s.repos.Racing.GetRacing(ctx, racingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSuchRacing
		}
		return nil, err
	}
	if racing.ScheduleID != scheduleID || racing.Status != model.StatusAlive {
		return nil, ErrNoSuchRacing
	}
	return racing, nil
}

func (s *RacingService) findScheduleMember(ctx context.Context, memberID, scheduleID uint64) (*model.ScheduleMember, error) {
	m, err := s.repos.Schedule.GetAliveScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotInSchedule
		}
		return nil, err
	}
	return m, nil
}

// publish 通知失败只记日志，业务操作本身不回滚
func (s *RacingService) publish(ctx context.Context, message interface{}) {
	if err := s.alarms.Publish(ctx, message); err != nil {
		s.logger.WithError(err).Warn("通知发送失败")
	}
}

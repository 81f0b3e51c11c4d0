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

// BettingService 押注"谁最后到"的创建、取消与结算
type BettingService struct {
	uow         repository.UnitOfWork
	repos       *repository.Repos
	pointLedger interfaces.PointLedger
	alarms      interfaces.AlarmPublisher
	locks       *lock.KeyedMutex
	logger      *logrus.Logger
	clock       func() time.Time
}

// NewBettingService 创建押注服务
func NewBettingService(db *gorm.DB, logger *logrus.Logger, pointLedger interfaces.PointLedger, alarms interfaces.AlarmPublisher, locks *lock.KeyedMutex) *BettingService {
	return NewBettingServiceWithDeps(repository.NewUnitOfWork(db), repository.NewRepos(db), logger, pointLedger, alarms, locks)
}

// NewBettingServiceWithDeps 创建押注服务（注入依赖，便于测试）
func NewBettingServiceWithDeps(uow repository.UnitOfWork, repos *repository.Repos, logger *logrus.Logger, pointLedger interfaces.PointLedger, alarms interfaces.AlarmPublisher, locks *lock.KeyedMutex) *BettingService {
	return &BettingService{
		uow:         uow,
		repos:       repos,
		pointLedger: pointLedger,
		alarms:      alarms,
		locks:       locks,
		logger:      logger,
		clock:       time.Now,
	}
}

// AddBetting 下注：押 betee 是本次约定最后到达的人
// 仅限约定 WAIT 期间；下注人与被押对象都须是缴纳押金的成员；一人一注
func (s *BettingService) AddBetting(ctx context.Context, memberID, scheduleID, beteeMemberID uint64, pointAmount int) (uint64, error) {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.repos.Schedule.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNoSuchSchedule
		}
		return 0, err
	}
	if schedule.ScheduleStatus != model.ExecWait {
		return 0, ErrNotWaiting
	}

	bettor, err := s.findScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		return 0, err
	}
	betee, err := s.findScheduleMember(ctx, beteeMemberID, scheduleID)
	if err != nil {
		return 0, err
	}
	if !bettor.IsPaid || !betee.IsPaid {
		return 0, ErrNotPaidMember
	}

	exists, err := s.repos.Betting.ExistAliveBettorInSchedule(ctx, bettor.ID, scheduleID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrAlreadyBetting
	}
	if err := checkEnoughPoints(ctx, s.pointLedger, s.repos.Point, memberID, pointAmount); err != nil {
		return 0, err
	}

	betting := &model.Betting{
		ScheduleID:             scheduleID,
		BettorScheduleMemberID: bettor.ID,
		BeteeScheduleMemberID:  betee.ID,
		PointAmount:            pointAmount,
		BettingStatus:          model.ExecWait,
		Status:                 model.StatusAlive,
	}
	err = s.uow.InTx(ctx, func(repos *repository.Repos) error {
		if err := repos.Betting.CreateBetting(ctx, betting); err != nil {
			return err
		}
		return repos.Point.CreateIntent(ctx,
			newPointIntent(memberID, model.PointMinus, pointAmount, model.ReasonBetting, betting.ID))
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"betting_id":  betting.ID,
		"schedule_id": scheduleID,
		"bettor":      memberID,
		"betee":       beteeMemberID,
		"point":       pointAmount,
	}).Info("押注已创建")
	return betting.ID, nil
}

// CancelBetting 下注人在结算前主动取消，全额退款
func (s *BettingService) CancelBetting(ctx context.Context, memberID, scheduleID, bettingID uint64) error {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	bettor, err := s.findScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		return err
	}
	betting, err := s.repos.Betting.GetBetting(ctx, bettingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoSuchBetting
		}
		return err
	}
	if betting.BettorScheduleMemberID != bettor.ID {
		return ErrNotBettor
	}
	if betting.Status != model.StatusAlive || betting.BettingStatus != model.ExecWait {
		return ErrAlreadyCancelled
	}

	return s.uow.InTx(ctx, func(repos *repository.Repos) error {
		if err := repos.Betting.SoftDeleteBetting(ctx, bettingID); err != nil {
			return err
		}
		return repos.Point.CreateIntent(ctx,
			newPointIntent(memberID, model.PointPlus, betting.PointAmount, model.ReasonBettingCancel, bettingID))
	})
}

// CancelForExitInTx 成员退出约定时的级联取消（退出事务内调用）
// 该成员作为下注人或被押对象的存活押注一律取消，两种情况都退还下注人
// 返回需要通知下注人的消息（被押对象退出属于强制取消）
func (s *BettingService) CancelForExitInTx(ctx context.Context, repos *repository.Repos, leaver *model.ScheduleMember, schedule *model.Schedule) ([]alarm.BettingCanceledMessage, error) {
	var notices []alarm.BettingCanceledMessage

	asBettor, err := repos.Betting.FindAliveByBettor(ctx, leaver.ID)
	if err != nil {
		return nil, err
	}
	if asBettor != nil && asBettor.BettingStatus == model.ExecWait {
		if err := repos.Betting.SoftDeleteBetting(ctx, asBettor.ID); err != nil {
			return nil, err
		}
		if err := repos.Point.CreateIntent(ctx,
			newPointIntent(leaver.MemberID, model.PointPlus, asBettor.PointAmount, model.ReasonBettingCancel, asBettor.ID)); err != nil {
			return nil, err
		}
	}

	asBetee, err := repos.Betting.ListAliveByBetee(ctx, leaver.ID)
	if err != nil {
		return nil, err
	}
	for _, b := range asBetee {
		if b.BettingStatus != model.ExecWait {
			continue
		}
		bettor, err := repos.Schedule.GetScheduleMemberByID(ctx, b.BettorScheduleMemberID)
		if err != nil {
			return nil, err
		}
		if err := repos.Betting.SoftDeleteBetting(ctx, b.ID); err != nil {
			return nil, err
		}
		if err := repos.Point.CreateIntent(ctx,
			newPointIntent(bettor.MemberID, model.PointPlus, b.PointAmount, model.ReasonBettingCancel, b.ID)); err != nil {
			return nil, err
		}
		notices = append(notices, alarm.BettingCanceledMessage{
			Message: alarm.Message{
				Type:         alarm.TypeBettingCanceled,
				RecipientIDs: []uint64{bettor.MemberID},
				ScheduleID:   schedule.ID,
				ScheduleName: schedule.ScheduleName,
				SentAt:       s.clock(),
			},
			BettingID:   b.ID,
			PointAmount: b.PointAmount,
		})
	}
	return notices, nil
}

// latestTimeOfLateMember 迟到成员中最晚的到达时间；无人迟到返回 nil
func latestTimeOfLateMember(members []*model.ScheduleMember) *time.Time {
	var latest *time.Time
	for _, m := range members {
		if !m.IsLate() || m.ArrivalTime == nil {
			continue
		}
		if latest == nil || m.ArrivalTime.After(*latest) {
			latest = m.ArrivalTime
		}
	}
	return latest
}

// bettingRewardPoint 彩池按注分配：押注额/胜注总额×全部注额，截断取整
// 先乘后除，避免 100/300×600 这类本应整除的份额被浮点误差截掉
func bettingRewardPoint(pointAmount, winnerPointAmount, totalPointAmount int) int {
	return int(float64(pointAmount) * float64(totalPointAmount) / float64(winnerPointAmount))
}

// SettleInTx 在关闭事务内结算全部 WAIT 押注，betting_settled_at 标记保证只结算一次
// 无人迟到时全部按平局处理（全额退款，不判胜）
func (s *BettingService) SettleInTx(ctx context.Context, repos *repository.Repos, schedule *model.Schedule, members []*model.ScheduleMember, now time.Time) error {
	if schedule.IsBettingSettled() {
		return nil
	}

	bettings, err := repos.Betting.ListBettingsInSchedule(ctx, schedule.ID, model.ExecWait)
	if err != nil {
		return err
	}
	if len(bettings) == 0 {
		return repos.Schedule.MarkBettingSettled(ctx, schedule.ID, now)
	}

	memberByID := make(map[uint64]*model.ScheduleMember, len(members))
	for _, m := range members {
		memberByID[m.ID] = m
	}
	latestTime := latestTimeOfLateMember(members)

	isWin := func(b *model.Betting) bool {
		if latestTime == nil {
			return false
		}
		betee, ok := memberByID[b.BeteeScheduleMemberID]
		if !ok || betee.ArrivalTime == nil {
			return false
		}
		return betee.ArrivalTime.Equal(*latestTime)
	}

	winnerPointAmount := 0
	totalPointAmount := 0
	for _, b := range bettings {
		totalPointAmount += b.PointAmount
		if isWin(b) {
			winnerPointAmount += b.PointAmount
		}
	}

	for _, b := range bettings {
		b.BettingStatus = model.ExecTerm
		switch {
		case winnerPointAmount == 0:
			// 平局：押注额原样退还
			b.IsWinner = false
			b.RewardPointAmount = b.PointAmount
		case isWin(b):
			b.IsWinner = true
			b.RewardPointAmount = bettingRewardPoint(b.PointAmount, winnerPointAmount, totalPointAmount)
		default:
			b.IsWinner = false
			b.RewardPointAmount = 0
		}
		if err := repos.Betting.SaveBetting(ctx, b); err != nil {
			return err
		}
		if b.RewardPointAmount > 0 {
			bettor, ok := memberByID[b.BettorScheduleMemberID]
			if !ok {
				// 下注人已退出的押注在退出时就被取消，这里不应出现
				continue
			}
			if err := repos.Point.CreateIntent(ctx,
				newPointIntent(bettor.MemberID, model.PointPlus, b.RewardPointAmount, model.ReasonBetting, b.ID)); err != nil {
				return err
			}
		}
	}

	if err := repos.Schedule.MarkBettingSettled(ctx, schedule.ID, now); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"bettings":    len(bettings),
		"win_pool":    winnerPointAmount,
		"total_pool":  totalPointAmount,
	}).Info("押注结算完成")
	return nil
}

func (s *BettingService) findScheduleMember(ctx context.Context, memberID, scheduleID uint64) (*model.ScheduleMember, error) {
	m, err := s.repos.Schedule.GetAliveScheduleMember(ctx, memberID, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotInSchedule
		}
		return nil, err
	}
	return m, nil
}

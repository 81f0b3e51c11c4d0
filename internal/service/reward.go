package service

import (
	"context"
	"time"

	"MeetSync/internal/model"
	"MeetSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// RewardService 约定关闭时按到达结果发放准时奖励
// 规则（原样保留，不做池分摊）：
//   - 存在准时成员（diff ≥ 0）：准时者奖励 = 押金 + 迟到人数 × 押金/2，迟到者押金没收
//   - 全员迟到：人人全额退还押金
type RewardService struct {
	logger *logrus.Logger
}

// NewRewardService 创建奖励发放服务
func NewRewardService(logger *logrus.Logger) *RewardService {
	return &RewardService{logger: logger}
}

// computeArrivalRewards 计算每名成员的奖励数额，键为约定成员ID
// 奖励为关闭时应入账的全额（押金在加入时已扣）
func computeArrivalRewards(members []*model.ScheduleMember) map[uint64]int {
	lateCount := 0
	for _, m := range members {
		if m.IsLate() {
			lateCount++
		}
	}

	rewards := make(map[uint64]int, len(members))
	if lateCount == len(members) && len(members) > 0 {
		// 全员迟到：全额退还，不没收任何人
		for _, m := range members {
			rewards[m.ID] = m.PointAmount
		}
		return rewards
	}

	for _, m := range members {
		if m.IsLate() {
			rewards[m.ID] = 0
			continue
		}
		// 每名迟到者为每名准时者贡献半份押金（按人头，不分摊）
		rewards[m.ID] = m.PointAmount + lateCount*m.PointAmount/2
	}
	return rewards
}

// DistributeInTx 在关闭事务内发放奖励，rewarded_at 标记保证只发放一次
func (s *RewardService) DistributeInTx(ctx context.Context, repos *repository.Repos, schedule *model.Schedule, members []*model.ScheduleMember, now time.Time) error {
	if schedule.IsRewarded() {
		return nil
	}

	rewards := computeArrivalRewards(members)
	for _, m := range members {
		reward := rewards[m.ID]
		m.RewardPointAmount = reward
		if err := repos.Schedule.SaveScheduleMember(ctx, m); err != nil {
			return err
		}
		if reward <= 0 {
			continue
		}
		intent := newPointIntent(m.MemberID, model.PointPlus, reward, model.ReasonScheduleReward, schedule.ID)
		if err := repos.Point.CreateIntent(ctx, intent); err != nil {
			return err
		}
	}

	if err := repos.Schedule.MarkRewarded(ctx, schedule.ID, now); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"members":     len(members),
	}).Info("准时奖励发放完成")
	return nil
}

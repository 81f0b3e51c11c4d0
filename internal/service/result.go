package service

import (
	"context"
	"encoding/json"

	"MeetSync/internal/model"
	"MeetSync/internal/repository"
)

// writeScheduleResultInTx 约定关闭时写入结果快照（关闭事务内调用）
// schedule_id 唯一索引保证每个约定只有一份快照，重复关闭时覆盖写同一行
func writeScheduleResultInTx(ctx context.Context, repos *repository.Repos, schedule *model.Schedule, members []*model.ScheduleMember) error {
	memberByID := make(map[uint64]*model.ScheduleMember, len(members))
	arrivals := make([]model.ArrivalResultEntry, 0, len(members))
	for _, m := range members {
		memberByID[m.ID] = m
		arrivals = append(arrivals, model.ArrivalResultEntry{
			MemberID:        m.MemberID,
			ArrivalTime:     m.ArrivalTime,
			ArrivalTimeDiff: m.ArrivalTimeDiff,
			PointAmount:     m.PointAmount,
			RewardPoint:     m.RewardPointAmount,
		})
	}
	memberIDOf := func(scheduleMemberID uint64) (uint64, error) {
		if m, ok := memberByID[scheduleMemberID]; ok {
			return m.MemberID, nil
		}
		// 已退出成员不在存活列表里，需要单独查
		m, err := repos.Schedule.GetScheduleMemberByID(ctx, scheduleMemberID)
		if err != nil {
			return 0, err
		}
		return m.MemberID, nil
	}

	bettings, err := repos.Betting.ListBettingsInSchedule(ctx, schedule.ID, model.ExecTerm)
	if err != nil {
		return err
	}
	bettingEntries := make([]model.BettingResultEntry, 0, len(bettings))
	for _, b := range bettings {
		bettorID, err := memberIDOf(b.BettorScheduleMemberID)
		if err != nil {
			return err
		}
		beteeID, err := memberIDOf(b.BeteeScheduleMemberID)
		if err != nil {
			return err
		}
		bettingEntries = append(bettingEntries, model.BettingResultEntry{
			BettorMemberID: bettorID,
			BeteeMemberID:  beteeID,
			PointAmount:    b.PointAmount,
			IsWinner:       b.IsWinner,
			RewardPoint:    b.RewardPointAmount,
		})
	}

	racings, err := repos.Racing.ListAliveRacingsInSchedule(ctx, schedule.ID, model.ExecTerm)
	if err != nil {
		return err
	}
	racingEntries := make([]model.RacingResultEntry, 0, len(racings))
	for _, r := range racings {
		firstID, err := memberIDOf(r.FirstRacerScheduleMemberID)
		if err != nil {
			return err
		}
		secondID, err := memberIDOf(r.SecondRacerScheduleMemberID)
		if err != nil {
			return err
		}
		var winnerID *uint64
		if r.WinnerScheduleMemberID != nil {
			id, err := memberIDOf(*r.WinnerScheduleMemberID)
			if err != nil {
				return err
			}
			winnerID = &id
		}
		racingEntries = append(racingEntries, model.RacingResultEntry{
			FirstMemberID:  firstID,
			SecondMemberID: secondID,
			WinnerMemberID: winnerID,
			PointAmount:    r.PointAmount,
		})
	}

	arrivalJSON, err := json.Marshal(arrivals)
	if err != nil {
		return err
	}
	bettingJSON, err := json.Marshal(bettingEntries)
	if err != nil {
		return err
	}
	racingJSON, err := json.Marshal(racingEntries)
	if err != nil {
		return err
	}

	result, err := repos.Result.GetResult(ctx, schedule.ID)
	if err != nil {
		return err
	}
	if result == nil {
		result = &model.ScheduleResult{ScheduleID: schedule.ID}
	}
	result.ArrivalResult = arrivalJSON
	result.BettingResult = bettingJSON
	result.RacingResult = racingJSON
	return repos.Result.SaveResult(ctx, result)
}

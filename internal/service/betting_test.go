package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"MeetSync/internal/model"
)

func (e *testEnv) arrive(m *model.ScheduleMember, scheduleTime time.Time, diffMinutes int) {
	at := scheduleTime.Add(-time.Duration(diffMinutes) * time.Minute)
	m.Arrive(scheduleTime, at)
}

func TestAddBettingCreatesIntent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sc := env.addSchedule(model.ExecWait, env.now.Add(time.Hour), 1)
	env.addMember(sc.ID, 1, 100)
	env.addMember(sc.ID, 2, 100)
	env.ledger.balances[1] = 500

	id, err := env.betting.AddBetting(ctx, 1, sc.ID, 2, 80)
	if err != nil {
		t.Fatalf("AddBetting: %v", err)
	}
	minus := env.store.intentsFor(1, model.ReasonBetting)
	if len(minus) != 1 || minus[0].Amount != 80 || minus[0].ChangeType != model.PointMinus || minus[0].ReasonID != id {
		t.Fatalf("下注应产生一条80的扣款指令: %+v", minus)
	}
}

func TestAddBettingValidations(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sc := env.addSchedule(model.ExecWait, env.now.Add(time.Hour), 1)
	env.addMember(sc.ID, 1, 100)
	env.addMember(sc.ID, 2, 100)
	env.addMember(sc.ID, 3, 0) // 免押金
	env.ledger.balances[1] = 100
	env.ledger.balances[3] = 1000

	if _, err := env.betting.AddBetting(ctx, 1, sc.ID, 3, 50); !errors.Is(err, ErrNotPaidMember) {
		t.Fatalf("押免押金成员应拒绝: %v", err)
	}
	if _, err := env.betting.AddBetting(ctx, 3, sc.ID, 2, 50); !errors.Is(err, ErrNotPaidMember) {
		t.Fatalf("免押金成员下注应拒绝: %v", err)
	}
	if _, err := env.betting.AddBetting(ctx, 1, sc.ID, 2, 999); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("余额不足应拒绝: %v", err)
	}
	if _, err := env.betting.AddBetting(ctx, 9, sc.ID, 2, 50); !errors.Is(err, ErrNotInSchedule) {
		t.Fatalf("非成员下注应拒绝: %v", err)
	}

	if _, err := env.betting.AddBetting(ctx, 1, sc.ID, 2, 50); err != nil {
		t.Fatalf("首注应成功: %v", err)
	}
	if _, err := env.betting.AddBetting(ctx, 1, sc.ID, 2, 10); !errors.Is(err, ErrAlreadyBetting) {
		t.Fatalf("一人一注: %v", err)
	}

	sc.ScheduleStatus = model.ExecRun
	if _, err := env.betting.AddBetting(ctx, 2, sc.ID, 1, 50); !errors.Is(err, ErrNotWaiting) {
		t.Fatalf("约定开始后不可下注: %v", err)
	}
}

func TestCancelBettingRefunds(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sc := env.addSchedule(model.ExecWait, env.now.Add(time.Hour), 1)
	env.addMember(sc.ID, 1, 100)
	env.addMember(sc.ID, 2, 100)
	env.ledger.balances[1] = 500

	id, err := env.betting.AddBetting(ctx, 1, sc.ID, 2, 80)
	if err != nil {
		t.Fatalf("AddBetting: %v", err)
	}

	if err := env.betting.CancelBetting(ctx, 2, sc.ID, id); !errors.Is(err, ErrNotBettor) {
		t.Fatalf("他人不可代取消: %v", err)
	}
	if err := env.betting.CancelBetting(ctx, 1, sc.ID, id); err != nil {
		t.Fatalf("CancelBetting: %v", err)
	}
	refund := env.store.intentsFor(1, model.ReasonBettingCancel)
	if len(refund) != 1 || refund[0].Amount != 80 || refund[0].ChangeType != model.PointPlus {
		t.Fatalf("取消应全额退款: %+v", refund)
	}
	if err := env.betting.CancelBetting(ctx, 1, sc.ID, id); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("重复取消: %v", err)
	}
}

func TestSettleInTxPariMutuel(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	scheduleTime := env.now.Add(-time.Hour)
	sc := env.addSchedule(model.ExecRun, scheduleTime, 1)
	a := env.addMember(sc.ID, 1, 100)
	b := env.addMember(sc.ID, 2, 100)
	c := env.addMember(sc.ID, 3, 100)
	x := env.addMember(sc.ID, 4, 100)
	y := env.addMember(sc.ID, 5, 100)
	env.arrive(a, scheduleTime, 5)
	env.arrive(b, scheduleTime, 3)
	env.arrive(c, scheduleTime, 1)
	env.arrive(y, scheduleTime, -10)
	env.arrive(x, scheduleTime, -30) // 最后到达者

	bet := func(bettor, betee *model.ScheduleMember, amount int) *model.Betting {
		bt := &model.Betting{
			ScheduleID:             sc.ID,
			BettorScheduleMemberID: bettor.ID,
			BeteeScheduleMemberID:  betee.ID,
			PointAmount:            amount,
			BettingStatus:          model.ExecWait,
			Status:                 model.StatusAlive,
		}
		_ = env.store.CreateBetting(ctx, bt)
		return bt
	}
	betA := bet(a, x, 100)
	betB := bet(b, x, 200)
	betC := bet(c, y, 300)

	members := []*model.ScheduleMember{a, b, c, x, y}
	if err := env.betting.SettleInTx(ctx, env.repos, sc, members, env.now); err != nil {
		t.Fatalf("SettleInTx: %v", err)
	}

	// 彩池600，胜注300：A=100/300×600=200，B=200/300×600=400，C=0
	if !betA.IsWinner || betA.RewardPointAmount != 200 {
		t.Fatalf("A 应赢得200: winner=%v reward=%d", betA.IsWinner, betA.RewardPointAmount)
	}
	if !betB.IsWinner || betB.RewardPointAmount != 400 {
		t.Fatalf("B 应赢得400: winner=%v reward=%d", betB.IsWinner, betB.RewardPointAmount)
	}
	if betC.IsWinner || betC.RewardPointAmount != 0 {
		t.Fatalf("C 应输光: winner=%v reward=%d", betC.IsWinner, betC.RewardPointAmount)
	}
	for _, bt := range []*model.Betting{betA, betB, betC} {
		if bt.BettingStatus != model.ExecTerm {
			t.Fatalf("结算后应为TERM: %v", bt.BettingStatus)
		}
	}
	// 派彩总额不超过彩池
	if betA.RewardPointAmount+betB.RewardPointAmount+betC.RewardPointAmount > 600 {
		t.Fatal("派彩总额超过彩池")
	}

	if got := env.store.intentsFor(a.MemberID, model.ReasonBetting); len(got) != 1 || got[0].Amount != 200 || got[0].ChangeType != model.PointPlus {
		t.Fatalf("A 应有一条200入账: %+v", got)
	}
	if got := env.store.intentsFor(c.MemberID, model.ReasonBetting); len(got) != 0 {
		t.Fatalf("C 不应有入账: %+v", got)
	}

	// 标记后重复结算不追加指令
	if err := env.betting.SettleInTx(ctx, env.repos, sc, members, env.now); err != nil {
		t.Fatalf("重复 SettleInTx: %v", err)
	}
	if got := env.store.intentsFor(b.MemberID, model.ReasonBetting); len(got) != 1 {
		t.Fatalf("重复结算不应追加指令: %d条", len(got))
	}
}

func TestSettleInTxDrawRefundsAll(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	scheduleTime := env.now.Add(-time.Hour)
	sc := env.addSchedule(model.ExecRun, scheduleTime, 1)
	a := env.addMember(sc.ID, 1, 100)
	b := env.addMember(sc.ID, 2, 100)
	env.arrive(a, scheduleTime, 5)
	env.arrive(b, scheduleTime, 0) // 无人迟到

	bt := &model.Betting{
		ScheduleID:             sc.ID,
		BettorScheduleMemberID: a.ID,
		BeteeScheduleMemberID:  b.ID,
		PointAmount:            150,
		BettingStatus:          model.ExecWait,
		Status:                 model.StatusAlive,
	}
	_ = env.store.CreateBetting(ctx, bt)

	if err := env.betting.SettleInTx(ctx, env.repos, sc, []*model.ScheduleMember{a, b}, env.now); err != nil {
		t.Fatalf("SettleInTx: %v", err)
	}
	if bt.IsWinner {
		t.Fatal("平局不判胜")
	}
	if bt.RewardPointAmount != 150 || bt.BettingStatus != model.ExecTerm {
		t.Fatalf("平局应全额退款并TERM: reward=%d status=%v", bt.RewardPointAmount, bt.BettingStatus)
	}
	refund := env.store.intentsFor(a.MemberID, model.ReasonBetting)
	if len(refund) != 1 || refund[0].Amount != 150 || refund[0].ChangeType != model.PointPlus {
		t.Fatalf("平局退款指令错误: %+v", refund)
	}
}

func TestLatestTimeOfLateMember(t *testing.T) {
	scheduleTime := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	m1 := &model.ScheduleMember{ID: 1}
	m2 := &model.ScheduleMember{ID: 2}
	m3 := &model.ScheduleMember{ID: 3}
	m1.Arrive(scheduleTime, scheduleTime.Add(-5*time.Minute))
	m2.Arrive(scheduleTime, scheduleTime.Add(10*time.Minute))
	m3.Arrive(scheduleTime, scheduleTime.Add(25*time.Minute))

	latest := latestTimeOfLateMember([]*model.ScheduleMember{m1, m2, m3})
	if latest == nil || !latest.Equal(*m3.ArrivalTime) {
		t.Fatalf("最晚迟到时间应为m3: %v", latest)
	}
	if got := latestTimeOfLateMember([]*model.ScheduleMember{m1}); got != nil {
		t.Fatalf("无人迟到应返回nil: %v", got)
	}
}

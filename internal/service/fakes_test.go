package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"MeetSync/internal/lock"
	"MeetSync/internal/model"
	"MeetSync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// memStore 内存仓储，同时实现全部仓储接口，测试中代替 PostgreSQL
type memStore struct {
	mu        sync.Mutex
	schedules map[uint64]*model.Schedule
	members   map[uint64]*model.ScheduleMember
	bettings  map[uint64]*model.Betting
	racings   map[uint64]*model.Racing
	intents   []*model.PointChangeIntent
	results   map[uint64]*model.ScheduleResult
	nextID    uint64
}

func newMemStore() *memStore {
	return &memStore{
		schedules: make(map[uint64]*model.Schedule),
		members:   make(map[uint64]*model.ScheduleMember),
		bettings:  make(map[uint64]*model.Betting),
		racings:   make(map[uint64]*model.Racing),
		results:   make(map[uint64]*model.ScheduleResult),
	}
}

func (s *memStore) id() uint64 {
	s.nextID++
	return s.nextID
}

// --- ScheduleRepository ---

func (s *memStore) CreateSchedule(_ context.Context, schedule *model.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule.ID = s.id()
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *memStore) GetSchedule(_ context.Context, scheduleID uint64) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[scheduleID]
	if !ok || sc.Status != model.StatusAlive {
		return nil, gorm.ErrRecordNotFound
	}
	return sc, nil
}

func (s *memStore) UpdateScheduleInfo(_ context.Context, scheduleID uint64, name string, scheduleTime time.Time, location model.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schedules[scheduleID]; ok {
		sc.ScheduleName = name
		sc.ScheduleTime = scheduleTime
		sc.Location = location
	}
	return nil
}

func (s *memStore) UpdateScheduleStatus(_ context.Context, scheduleID uint64, status model.ExecStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schedules[scheduleID]; ok {
		sc.ScheduleStatus = status
	}
	return nil
}

func (s *memStore) MarkClosed(_ context.Context, scheduleID uint64, closeTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schedules[scheduleID]; ok {
		sc.ScheduleStatus = model.ExecTerm
		sc.ClosedAt = &closeTime
	}
	return nil
}

func (s *memStore) UpdateOwner(_ context.Context, scheduleID, ownerMemberID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schedules[scheduleID]; ok {
		sc.OwnerMemberID = ownerMemberID
	}
	return nil
}

func (s *memStore) MarkRewarded(_ context.Context, scheduleID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schedules[scheduleID]; ok {
		sc.RewardedAt = &at
	}
	return nil
}

func (s *memStore) MarkBettingSettled(_ context.Context, scheduleID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schedules[scheduleID]; ok {
		sc.BettingSettledAt = &at
	}
	return nil
}

func (s *memStore) SoftDeleteSchedule(_ context.Context, scheduleID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schedules[scheduleID]; ok {
		sc.Status = model.StatusDelete
	}
	return nil
}

func (s *memStore) ListWaitSchedulesDue(_ context.Context, now time.Time) ([]*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Schedule
	for _, sc := range s.schedules {
		if sc.Status == model.StatusAlive && sc.ScheduleStatus == model.ExecWait && !sc.ScheduleTime.After(now) {
			list = append(list, sc)
		}
	}
	return list, nil
}

func (s *memStore) ListRunSchedulesDue(_ context.Context, deadline time.Time) ([]*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Schedule
	for _, sc := range s.schedules {
		if sc.Status == model.StatusAlive && sc.ScheduleStatus == model.ExecRun && !sc.ScheduleTime.After(deadline) {
			list = append(list, sc)
		}
	}
	return list, nil
}

func (s *memStore) CreateScheduleMember(_ context.Context, member *model.ScheduleMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	member.ID = s.id()
	s.members[member.ID] = member
	return nil
}

func (s *memStore) GetScheduleMemberByID(_ context.Context, scheduleMemberID uint64) (*model.ScheduleMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[scheduleMemberID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

func (s *memStore) GetAliveScheduleMember(_ context.Context, memberID, scheduleID uint64) (*model.ScheduleMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.MemberID == memberID && m.ScheduleID == scheduleID && m.Status == model.StatusAlive {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memStore) ListAliveScheduleMembers(_ context.Context, scheduleID uint64) ([]*model.ScheduleMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.ScheduleMember
	for _, m := range s.members {
		if m.ScheduleID == scheduleID && m.Status == model.StatusAlive {
			list = append(list, m)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *memStore) ExistAliveScheduleMember(ctx context.Context, memberID, scheduleID uint64) (bool, error) {
	_, err := s.GetAliveScheduleMember(ctx, memberID, scheduleID)
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *memStore) SaveScheduleMember(_ context.Context, member *model.ScheduleMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[member.ID] = member
	return nil
}

func (s *memStore) SoftDeleteScheduleMember(_ context.Context, scheduleMemberID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[scheduleMemberID]; ok {
		// 模拟真实仓储：只更新“库里”的行，不改动调用方手里的结构体
		deleted := *m
		deleted.Status = model.StatusDelete
		deleted.IsOwner = false
		s.members[scheduleMemberID] = &deleted
	}
	return nil
}

func (s *memStore) SetOwner(_ context.Context, scheduleMemberID uint64, isOwner bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[scheduleMemberID]; ok {
		m.IsOwner = isOwner
	}
	return nil
}

// --- BettingRepository ---

func (s *memStore) CreateBetting(_ context.Context, betting *model.Betting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	betting.ID = s.id()
	s.bettings[betting.ID] = betting
	return nil
}

func (s *memStore) GetBetting(_ context.Context, bettingID uint64) (*model.Betting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bettings[bettingID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return b, nil
}

func (s *memStore) ListBettingsInSchedule(_ context.Context, scheduleID uint64, status model.ExecStatus) ([]*model.Betting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Betting
	for _, b := range s.bettings {
		if b.ScheduleID == scheduleID && b.BettingStatus == status && b.Status == model.StatusAlive {
			list = append(list, b)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *memStore) FindAliveByBettor(_ context.Context, bettorScheduleMemberID uint64) (*model.Betting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bettings {
		if b.BettorScheduleMemberID == bettorScheduleMemberID && b.Status == model.StatusAlive {
			return b, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListAliveByBetee(_ context.Context, beteeScheduleMemberID uint64) ([]*model.Betting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Betting
	for _, b := range s.bettings {
		if b.BeteeScheduleMemberID == beteeScheduleMemberID && b.Status == model.StatusAlive {
			list = append(list, b)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *memStore) ExistAliveBettorInSchedule(_ context.Context, bettorScheduleMemberID, scheduleID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bettings {
		if b.BettorScheduleMemberID == bettorScheduleMemberID && b.ScheduleID == scheduleID && b.Status == model.StatusAlive {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) SaveBetting(_ context.Context, betting *model.Betting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bettings[betting.ID] = betting
	return nil
}

func (s *memStore) SoftDeleteBetting(_ context.Context, bettingID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bettings[bettingID]; ok {
		b.Status = model.StatusDelete
	}
	return nil
}

// --- RacingRepository ---

func (s *memStore) CreateRacing(_ context.Context, racing *model.Racing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	racing.ID = s.id()
	s.racings[racing.ID] = racing
	return nil
}

func (s *memStore) GetRacing(_ context.Context, racingID uint64) (*model.Racing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.racings[racingID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r, nil
}

func (s *memStore) ExistAlivePair(_ context.Context, firstScheduleMemberID, secondScheduleMemberID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.racings {
		if r.FirstRacerScheduleMemberID == firstScheduleMemberID &&
			r.SecondRacerScheduleMemberID == secondScheduleMemberID &&
			r.Status == model.StatusAlive &&
			(r.RaceStatus == model.ExecWait || r.RaceStatus == model.ExecRun) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListAliveRacingsInSchedule(_ context.Context, scheduleID uint64, raceStatus model.ExecStatus) ([]*model.Racing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Racing
	for _, r := range s.racings {
		if r.ScheduleID == scheduleID && r.RaceStatus == raceStatus && r.Status == model.StatusAlive {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *memStore) ListRunRacingsWithRacer(_ context.Context, scheduleID, scheduleMemberID uint64) ([]*model.Racing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Racing
	for _, r := range s.racings {
		if r.ScheduleID == scheduleID && r.RaceStatus == model.ExecRun && r.Status == model.StatusAlive && r.HasRacer(scheduleMemberID) {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *memStore) ListAliveRacingsOfRacer(_ context.Context, scheduleMemberID uint64) ([]*model.Racing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Racing
	for _, r := range s.racings {
		if r.Status == model.StatusAlive && r.HasRacer(scheduleMemberID) &&
			(r.RaceStatus == model.ExecWait || r.RaceStatus == model.ExecRun) {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *memStore) ListExpiredWaitRacings(_ context.Context, now time.Time) ([]*model.Racing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Racing
	for _, r := range s.racings {
		if r.Status == model.StatusAlive && r.RaceStatus == model.ExecWait && !r.ExpireAt.After(now) {
			list = append(list, r)
		}
	}
	return list, nil
}

func (s *memStore) SaveRacing(_ context.Context, racing *model.Racing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.racings[racing.ID] = racing
	return nil
}

func (s *memStore) SoftDeleteRacing(_ context.Context, racingID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.racings[racingID]; ok {
		r.Status = model.StatusDelete
	}
	return nil
}

// --- PointIntentRepository ---

func (s *memStore) CreateIntent(_ context.Context, intent *model.PointChangeIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent.ID = s.id()
	s.intents = append(s.intents, intent)
	return nil
}

func (s *memStore) ListPendingIntents(_ context.Context, limit int) ([]*model.PointChangeIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.PointChangeIntent
	for _, i := range s.intents {
		if !i.Applied {
			list = append(list, i)
			if limit > 0 && len(list) >= limit {
				break
			}
		}
	}
	return list, nil
}

func (s *memStore) MarkApplied(_ context.Context, intentID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.intents {
		if i.ID == intentID {
			i.Applied = true
			i.AppliedAt = &at
		}
	}
	return nil
}

func (s *memStore) SumPendingMinusByMember(_ context.Context, memberID uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, i := range s.intents {
		if i.MemberID == memberID && i.ChangeType == model.PointMinus && !i.Applied {
			total += i.Amount
		}
	}
	return total, nil
}

// intentsFor 测试断言用：某成员某原因的全部指令
func (s *memStore) intentsFor(memberID uint64, reason model.PointChangeReason) []*model.PointChangeIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.PointChangeIntent
	for _, i := range s.intents {
		if i.MemberID == memberID && i.Reason == reason {
			list = append(list, i)
		}
	}
	return list
}

// --- ResultRepository ---

func (s *memStore) GetResult(_ context.Context, scheduleID uint64) (*model.ScheduleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[scheduleID], nil
}

func (s *memStore) SaveResult(_ context.Context, result *model.ScheduleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result.ID == 0 {
		result.ID = s.id()
	}
	s.results[result.ScheduleID] = result
	return nil
}

// memUnitOfWork 测试事务：直接在同一内存仓储上执行，不回滚
type memUnitOfWork struct {
	repos *repository.Repos
}

func (u *memUnitOfWork) InTx(_ context.Context, fn func(repos *repository.Repos) error) error {
	return fn(u.repos)
}

// fakeLedger 固定余额账本，记录投递过的指令
type fakeLedger struct {
	mu       sync.Mutex
	balances map[uint64]int
	applied  []*model.PointChangeIntent
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[uint64]int)}
}

func (f *fakeLedger) CheckBalance(_ context.Context, memberID uint64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[memberID], nil
}

func (f *fakeLedger) Apply(_ context.Context, intent *model.PointChangeIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, intent)
	return nil
}

// fakeAlarms 收集发出的通知
type fakeAlarms struct {
	mu       sync.Mutex
	messages []interface{}
}

func (f *fakeAlarms) Publish(_ context.Context, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeAlarms) Close() error { return nil }

// testEnv 全套服务 + 内存依赖
type testEnv struct {
	store    *memStore
	repos    *repository.Repos
	ledger   *fakeLedger
	alarms   *fakeAlarms
	now      time.Time
	reward   *RewardService
	betting  *BettingService
	racing   *RacingService
	schedule *ScheduleService
}

func newTestEnv() *testEnv {
	store := newMemStore()
	repos := &repository.Repos{
		Schedule: store,
		Betting:  store,
		Racing:   store,
		Point:    store,
		Result:   store,
	}
	uow := &memUnitOfWork{repos: repos}
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	lf := newFakeLedger()
	al := &fakeAlarms{}
	locks := lock.NewKeyedMutex()

	env := &testEnv{
		store:  store,
		repos:  repos,
		ledger: lf,
		alarms: al,
		now:    time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }

	env.reward = NewRewardService(lg)
	env.betting = NewBettingServiceWithDeps(uow, repos, lg, lf, al, locks)
	env.betting.clock = clock
	env.racing = NewRacingServiceWithDeps(uow, repos, lg, lf, al, locks, 30*time.Second)
	env.racing.clock = clock
	env.racing.timerFn = func(time.Duration, func()) {} // 测试中不跑真实定时器
	env.schedule = NewScheduleServiceWithDeps(uow, repos, lg, lf, al, locks, 40*time.Minute,
		env.reward, env.betting, env.racing)
	env.schedule.clock = clock
	return env
}

// addSchedule 直接造一个指定状态的约定
func (e *testEnv) addSchedule(status model.ExecStatus, scheduleTime time.Time, ownerMemberID uint64) *model.Schedule {
	sc := &model.Schedule{
		ScheduleName:   "周五聚会",
		ScheduleTime:   scheduleTime,
		ScheduleStatus: status,
		OwnerMemberID:  ownerMemberID,
		Status:         model.StatusAlive,
	}
	_ = e.store.CreateSchedule(context.Background(), sc)
	return sc
}

// addMember 直接造一名约定成员
func (e *testEnv) addMember(scheduleID, memberID uint64, pointAmount int) *model.ScheduleMember {
	m := &model.ScheduleMember{
		ScheduleID:  scheduleID,
		MemberID:    memberID,
		IsPaid:      pointAmount > 0,
		PointAmount: pointAmount,
		Status:      model.StatusAlive,
	}
	_ = e.store.CreateScheduleMember(context.Background(), m)
	return m
}

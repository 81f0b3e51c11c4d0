package worker

import (
	"context"
	"time"

	"MeetSync/internal/config"
	"MeetSync/internal/interfaces"
	"MeetSync/internal/repository"
	"MeetSync/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Worker 后台定时任务：
//   - 积分变动指令投递（outbox → 外部账本，至少一次，靠幂等键去重）
//   - 过期竞速邀请清理（内存定时器丢失后的兜底）
//   - 到点约定自动开始
//   - 超时约定自动关闭
type Worker struct {
	cron     *cron.Cron
	cfg      *config.Config
	repos    *repository.Repos
	ledger   interfaces.PointLedger
	schedule *service.ScheduleService
	racing   *service.RacingService
	logger   *logrus.Logger
	clock    func() time.Time
}

// NewWorker 创建后台任务调度器
func NewWorker(cfg *config.Config, repos *repository.Repos, ledger interfaces.PointLedger, schedule *service.ScheduleService, racing *service.RacingService, logger *logrus.Logger) *Worker {
	return &Worker{
		cron:     cron.New(),
		cfg:      cfg,
		repos:    repos,
		ledger:   ledger,
		schedule: schedule,
		racing:   racing,
		logger:   logger,
		clock:    time.Now,
	}
}

// Start 注册全部任务并启动调度
func (w *Worker) Start() error {
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"intent_apply", cronSpec(w.cfg.Worker.IntentApplyCron, "@every 5s"), w.applyIntents},
		{"racing_sweep", cronSpec(w.cfg.Worker.RacingSweepCron, "@every 5s"), w.sweepExpiredRacings},
		{"schedule_run", cronSpec(w.cfg.Worker.ScheduleRunCron, "@every 30s"), w.runDueSchedules},
		{"auto_close", cronSpec(w.cfg.Worker.AutoCloseCron, "@every 1m"), w.closeOverdueSchedules},
	}
	for _, j := range jobs {
		if _, err := w.cron.AddFunc(j.spec, j.fn); err != nil {
			return err
		}
		w.logger.WithFields(logrus.Fields{"job": j.name, "spec": j.spec}).Info("后台任务已注册")
	}
	w.cron.Start()
	return nil
}

// Stop 停止调度，等待进行中的任务结束
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

func cronSpec(spec, fallback string) string {
	if spec == "" {
		return fallback
	}
	return spec
}

// applyIntents 把尚未投递的积分变动指令逐条推给外部账本
// 投递失败留待下一轮重试；账本按 intent_uuid 去重，重复投递无副作用
func (w *Worker) applyIntents() {
	ctx := context.Background()
	intents, err := w.repos.Point.ListPendingIntents(ctx, 100)
	if err != nil {
		w.logger.WithError(err).Error("读取待投递积分指令失败")
		return
	}
	for _, intent := range intents {
		if err := w.ledger.Apply(ctx, intent); err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"intent_id": intent.ID,
				"member":    intent.MemberID,
				"reason":    intent.Reason,
			}).Warn("积分指令投递失败，等待重试")
			continue
		}
		if err := w.repos.Point.MarkApplied(ctx, intent.ID, w.clock()); err != nil {
			w.logger.WithError(err).WithField("intent_id", intent.ID).Error("标记积分指令已投递失败")
		}
	}
}

// sweepExpiredRacings 清理超过接受截止时间仍在等待的对决邀请
func (w *Worker) sweepExpiredRacings() {
	ctx := context.Background()
	racings, err := w.repos.Racing.ListExpiredWaitRacings(ctx, w.clock())
	if err != nil {
		w.logger.WithError(err).Error("扫描过期对决失败")
		return
	}
	for _, r := range racings {
		if err := w.racing.AutoDeleteExpired(ctx, r.ID); err != nil {
			w.logger.WithError(err).WithField("racing_id", r.ID).Warn("过期对决清理失败")
		}
	}
}

// runDueSchedules 约定时间已到的 WAIT 约定自动进入 RUN
func (w *Worker) runDueSchedules() {
	ctx := context.Background()
	schedules, err := w.repos.Schedule.ListWaitSchedulesDue(ctx, w.clock())
	if err != nil {
		w.logger.WithError(err).Error("扫描到点约定失败")
		return
	}
	for _, s := range schedules {
		if err := w.schedule.RunSchedule(ctx, s.ID); err != nil {
			w.logger.WithError(err).WithField("schedule_id", s.ID).Warn("约定自动开始失败")
		}
	}
}

// closeOverdueSchedules 约定时间过后超过宽限期仍未关闭的 RUN 约定强制关闭
func (w *Worker) closeOverdueSchedules() {
	ctx := context.Background()
	deadline := w.clock().Add(-w.cfg.Schedule.AutoCloseDelay())
	schedules, err := w.repos.Schedule.ListRunSchedulesDue(ctx, deadline)
	if err != nil {
		w.logger.WithError(err).Error("扫描超时约定失败")
		return
	}
	for _, s := range schedules {
		if err := w.schedule.CloseSchedule(ctx, s.ID); err != nil {
			w.logger.WithError(err).WithField("schedule_id", s.ID).Warn("约定自动关闭失败")
		}
	}
}

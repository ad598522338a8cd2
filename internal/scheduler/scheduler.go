// Package scheduler runs both ranking pipelines on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/elonfeng/rankradar/internal/logger"
	"github.com/elonfeng/rankradar/internal/pipeline"
	"github.com/elonfeng/rankradar/pkg/alert"
	"github.com/elonfeng/rankradar/pkg/rank"
)

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	RunModels(ctx context.Context, periods []rank.Period) []pipeline.Report
	RunApps(ctx context.Context, periods []rank.Period) []pipeline.Report
}

// Options configures a Scheduler.
type Options struct {
	Schedule     cron.Schedule
	ModelPeriods []rank.Period
	AppPeriods   []rank.Period
	RunOnStart   bool
}

// Scheduler triggers a full scrape of models then apps on every tick.
type Scheduler struct {
	runner   Runner
	alertMgr *alert.Manager
	opts     Options
	log      logger.Logger
}

// New creates a new scheduler.
func New(r Runner, alertMgr *alert.Manager, opts Options, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		runner:   r,
		alertMgr: alertMgr,
		opts:     opts,
		log:      log.With(logger.String("component", "scheduler")),
	}
}

// RunOnce scrapes models then apps and alerts on every failed report.
// A failure in one kind never skips the other.
func (s *Scheduler) RunOnce(ctx context.Context) []pipeline.Report {
	start := time.Now()
	var reports []pipeline.Report
	if len(s.opts.ModelPeriods) > 0 {
		reports = append(reports, s.runner.RunModels(ctx, s.opts.ModelPeriods)...)
	}
	if len(s.opts.AppPeriods) > 0 {
		reports = append(reports, s.runner.RunApps(ctx, s.opts.AppPeriods)...)
	}

	failed := 0
	for _, r := range reports {
		if !r.OK() {
			failed++
		}
	}
	s.log.Info("scrape finished",
		logger.Int("runs", len(reports)),
		logger.Int("failed", failed),
		logger.Duration("elapsed", time.Since(start)),
	)

	if err := pipeline.NotifyFailures(ctx, s.alertMgr, reports); err != nil {
		s.log.Error("alert delivery failed", logger.Error(err))
	}
	return reports
}

// Run starts the cron loop. Blocks until ctx is cancelled, then waits for
// a running scrape to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.Schedule == nil {
		return fmt.Errorf("scheduler: no schedule")
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.opts.Schedule, cron.FuncJob(func() { s.RunOnce(ctx) }))

	if s.opts.RunOnStart {
		s.log.Info("initial scrape")
		s.RunOnce(ctx)
	}

	c.Start()
	s.log.Info("scheduler running", logger.Bool("run_on_start", s.opts.RunOnStart))

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}

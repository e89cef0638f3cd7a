// Package scheduler runs the pipeline modes on cron schedules,
// replacing external crontab wrappers.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/dividendscout/pipeline/internal/pipeline"
)

// Schedules holds the cron expressions for each pipeline mode
type Schedules struct {
	Update    string // daily after market close
	Discover  string // weekly
	Dividends string // daily
	ETF       string // weekly
	Cleanup   string // daily
}

// DefaultSchedules returns the standard production schedule (server
// local time, expected to be US/Eastern)
func DefaultSchedules() Schedules {
	return Schedules{
		Update:    "30 17 * * 1-5",
		Discover:  "0 6 * * 6",
		Dividends: "0 7 * * *",
		ETF:       "0 8 * * 6",
		Cleanup:   "0 3 * * *",
	}
}

// Runner executes one pipeline mode end to end
type Runner interface {
	Run(ctx context.Context, mode string, opts pipeline.Options) error
}

// Builder constructs the runner for a single scheduled invocation.
// Run permits and run metrics are per-invocation state, so overlapping
// jobs must not share them; building fresh keeps each run isolated.
type Builder func(mode string) Runner

// Scheduler manages the cron entries
type Scheduler struct {
	cron   *cron.Cron
	build  Builder
	opts   pipeline.Options
	logger *logrus.Logger
	jobTTL time.Duration
}

// New creates a new Scheduler
func New(build Builder, opts pipeline.Options, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		cron:   cron.New(),
		build:  build,
		opts:   opts,
		logger: logger,
		jobTTL: 90 * time.Minute,
	}
}

// RegisterAll registers every pipeline mode on its schedule
func (s *Scheduler) RegisterAll(schedules Schedules) error {
	entries := []struct {
		spec string
		mode string
	}{
		{schedules.Update, pipeline.ModeUpdate},
		{schedules.Discover, pipeline.ModeDiscover},
		{schedules.Dividends, pipeline.ModeDividends},
		{schedules.ETF, pipeline.ModeETF},
		{schedules.Cleanup, pipeline.ModeCleanup},
	}
	for _, e := range entries {
		mode := e.mode
		if _, err := s.cron.AddFunc(e.spec, func() { s.runMode(mode) }); err != nil {
			return fmt.Errorf("register %s job: %w", mode, err)
		}
	}
	return nil
}

func (s *Scheduler) runMode(mode string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTTL)
	defer cancel()

	s.logger.WithField("mode", mode).Info("scheduled run starting")
	if err := s.build(mode).Run(ctx, mode, s.opts); err != nil {
		s.logger.WithField("mode", mode).WithError(err).Error("scheduled run failed")
	}
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

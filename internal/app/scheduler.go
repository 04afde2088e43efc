/**
 * @description
 * Cron scheduler setup for the fundlink worker.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/fundlink/fundlink-service/internal/config"
	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	s.schedule("post reminder", s.config.PostReminderSchedule, s.jobs.ProcessPostReminders)
	s.schedule("payment intent expiry", s.config.IntentExpirySchedule, s.jobs.ExpirePaymentIntents)
	s.schedule("ledger reconcile", s.config.LedgerReconcileSchedule, s.jobs.ReconcileLedger)
	s.schedule("campaign deadline", s.config.CampaignDeadlineSchedule, s.jobs.CloseExpiredCampaigns)

	s.cron.Start()
}

func (s *Scheduler) schedule(name, spec string, job func()) {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		s.logger.Error("failed to schedule "+name+" job", "schedule", spec, "error", err)
		return
	}
	s.logger.Info("scheduled "+name+" job", "schedule", spec)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

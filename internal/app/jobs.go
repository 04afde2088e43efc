/**
 * @description
 * Scheduled job implementations for the fundlink worker.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/fundlink/fundlink-service/internal/config"
	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/metrics"
	"github.com/google/uuid"
)

// JobsRepository defines database operations needed by the jobs.
type JobsRepository interface {
	ExpirePendingContributions(ctx context.Context, createdBefore time.Time) ([]store.ExpiredContribution, error)
	FindLedgerDrift(ctx context.Context) ([]domain.LedgerDrift, error)
	RepairCampaignLedger(ctx context.Context, campaignID uuid.UUID) (*domain.LedgerDrift, error)
	CompleteCampaignsPastDeadline(ctx context.Context, now time.Time) (int64, error)
}

// PostReminderProcessor sends due post reminders.
type PostReminderProcessor interface {
	ProcessPostReminders(ctx context.Context) (reminded int, completed int, err error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo    JobsRepository
	posts   PostReminderProcessor
	metrics *metrics.Metrics
	logger  *slog.Logger
	config  config.Config
	now     func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo JobsRepository, posts PostReminderProcessor, m *metrics.Metrics, logger *slog.Logger, cfg config.Config) *Jobs {
	if m == nil {
		m = metrics.New()
	}
	return &Jobs{
		repo:    repo,
		posts:   posts,
		metrics: m,
		logger:  logger,
		config:  cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ProcessPostReminders notifies vendors about posts that are about to be due.
func (j *Jobs) ProcessPostReminders() {
	j.logger.Info("starting post reminder job")
	ctx := context.Background()

	reminded, completed, err := j.posts.ProcessPostReminders(ctx)
	if err != nil {
		j.logger.Error("failed to process post reminders", "error", err)
		return
	}

	j.logger.Info("post reminder job finished", "reminded", reminded, "completed", completed)
}

// ExpirePaymentIntents rejects contributions that were never confirmed within
// the payment window.
func (j *Jobs) ExpirePaymentIntents() {
	j.logger.Info("starting payment intent expiry job")
	ctx := context.Background()

	ttl := time.Duration(j.config.PaymentIntentTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	expired, err := j.repo.ExpirePendingContributions(ctx, j.now().Add(-ttl))
	if err != nil {
		j.logger.Error("failed to expire payment intents", "error", err)
		return
	}

	for _, contribution := range expired {
		j.logger.Info("expired payment intent", "contribution_id", contribution.ID, "campaign_id", contribution.CampaignID, "payment_reference", contribution.PaymentReference)
	}
	j.metrics.ContributionsRejected.Add(float64(len(expired)))

	j.logger.Info("payment intent expiry job finished", "expired", len(expired))
}

// ReconcileLedger recomputes counters for campaigns whose raised amount or
// backer count disagree with their verified contributions.
func (j *Jobs) ReconcileLedger() {
	j.logger.Info("starting ledger reconcile job")
	ctx := context.Background()

	drifts, err := j.repo.FindLedgerDrift(ctx)
	if err != nil {
		j.logger.Error("failed to find ledger drift", "error", err)
		return
	}

	if len(drifts) == 0 {
		j.logger.Info("no ledger drift found")
		return
	}

	j.logger.Warn("found campaigns with ledger drift", "count", len(drifts))

	repaired := 0
	for _, drift := range drifts {
		fixed, err := j.repo.RepairCampaignLedger(ctx, drift.CampaignID)
		if err != nil {
			j.logger.Error("failed to repair campaign ledger", "campaign_id", drift.CampaignID, "error", err)
			continue
		}
		if fixed == nil {
			// Already consistent by the time the row was locked.
			continue
		}
		repaired++
		j.metrics.LedgerRepairs.Inc()
		j.logger.Warn("repaired campaign ledger",
			"campaign_id", fixed.CampaignID,
			"recorded_raised", fixed.RecordedRaised,
			"verified_sum", fixed.VerifiedSum,
			"recorded_backers", fixed.RecordedBackers,
			"verified_count", fixed.VerifiedCount,
		)
	}

	j.logger.Info("ledger reconcile job finished", "repaired", repaired)
}

// CloseExpiredCampaigns completes active campaigns whose deadline has passed.
func (j *Jobs) CloseExpiredCampaigns() {
	j.logger.Info("starting campaign deadline job")
	ctx := context.Background()

	closed, err := j.repo.CompleteCampaignsPastDeadline(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to complete campaigns past deadline", "error", err)
		return
	}

	j.logger.Info("campaign deadline job finished", "completed", closed)
}

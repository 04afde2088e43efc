package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fundlink/fundlink-service/internal/config"
	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/kvstore"
	"github.com/fundlink/fundlink-service/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type jobsRepoStub struct {
	expired       []store.ExpiredContribution
	expiredBefore time.Time
	drifts        []domain.LedgerDrift
	driftErr      error
	repaired      []uuid.UUID
	repairNil     map[uuid.UUID]bool
	completed     int64
}

func (s *jobsRepoStub) ExpirePendingContributions(ctx context.Context, createdBefore time.Time) ([]store.ExpiredContribution, error) {
	s.expiredBefore = createdBefore
	return s.expired, nil
}

func (s *jobsRepoStub) FindLedgerDrift(ctx context.Context) ([]domain.LedgerDrift, error) {
	if s.driftErr != nil {
		return nil, s.driftErr
	}
	return s.drifts, nil
}

func (s *jobsRepoStub) RepairCampaignLedger(ctx context.Context, campaignID uuid.UUID) (*domain.LedgerDrift, error) {
	s.repaired = append(s.repaired, campaignID)
	if s.repairNil[campaignID] {
		return nil, nil
	}
	return &domain.LedgerDrift{CampaignID: campaignID}, nil
}

func (s *jobsRepoStub) CompleteCampaignsPastDeadline(ctx context.Context, now time.Time) (int64, error) {
	return s.completed, nil
}

type postsStub struct {
	called bool
}

func (p *postsStub) ProcessPostReminders(ctx context.Context) (int, int, error) {
	p.called = true
	return 1, 0, nil
}

func newTestJobs(repo JobsRepository, posts PostReminderProcessor, cfg config.Config) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := NewJobs(repo, posts, metrics.New(), logger, cfg)
	jobs.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return jobs
}

func TestExpirePaymentIntents_UsesConfiguredWindow(t *testing.T) {
	repo := &jobsRepoStub{expired: []store.ExpiredContribution{{ID: uuid.New()}, {ID: uuid.New()}}}
	jobs := newTestJobs(repo, &postsStub{}, config.Config{PaymentIntentTTLMinutes: 30})

	jobs.ExpirePaymentIntents()

	want := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	if !repo.expiredBefore.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, repo.expiredBefore)
	}
	if got := testutil.ToFloat64(jobs.metrics.ContributionsRejected); got != 2 {
		t.Fatalf("expected 2 rejected contributions counted, got %v", got)
	}
}

func TestReconcileLedger_RepairsEachDriftedCampaign(t *testing.T) {
	consistent := uuid.New()
	drifted := uuid.New()
	repo := &jobsRepoStub{
		drifts:    []domain.LedgerDrift{{CampaignID: drifted}, {CampaignID: consistent}},
		repairNil: map[uuid.UUID]bool{consistent: true},
	}
	jobs := newTestJobs(repo, &postsStub{}, config.Config{})

	jobs.ReconcileLedger()

	if len(repo.repaired) != 2 {
		t.Fatalf("expected both campaigns to be checked, got %d", len(repo.repaired))
	}
	if got := testutil.ToFloat64(jobs.metrics.LedgerRepairs); got != 1 {
		t.Fatalf("expected one repair counted, got %v", got)
	}
}

func TestReconcileLedger_SkipsOnLookupError(t *testing.T) {
	repo := &jobsRepoStub{driftErr: errors.New("db down")}
	jobs := newTestJobs(repo, &postsStub{}, config.Config{})

	jobs.ReconcileLedger()

	if len(repo.repaired) != 0 {
		t.Fatal("expected no repairs when drift lookup fails")
	}
}

func TestProcessPostReminders_DelegatesToService(t *testing.T) {
	posts := &postsStub{}
	jobs := newTestJobs(&jobsRepoStub{}, posts, config.Config{})

	jobs.ProcessPostReminders()
	jobs.CloseExpiredCampaigns()

	if !posts.called {
		t.Fatal("expected post reminders to run")
	}
}

func TestSchedulerRegistersJobs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		PostReminderSchedule:     "@every 1m",
		IntentExpirySchedule:     "@every 5m",
		LedgerReconcileSchedule:  "@every 15m",
		CampaignDeadlineSchedule: "not a schedule",
	}
	scheduler := NewScheduler(newTestJobs(&jobsRepoStub{}, &postsStub{}, cfg), logger, cfg)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	if got := len(scheduler.cron.Entries()); got != 3 {
		t.Fatalf("expected 3 scheduled jobs, got %d", got)
	}
}

func TestPostRemindersReachAPIThroughSharedStore(t *testing.T) {
	ctx := context.Background()
	shared := kvstore.NewMemoryStore()
	api := newTestEnv(func(d *Dependencies) { d.KV = shared })
	worker := newTestEnv(func(d *Dependencies) {
		d.KV = shared
		d.Repo = api.repo
	})
	vendor := api.repo.addUser("Asha", domain.RoleVendor)

	post, err := api.svc.SchedulePost(ctx, vendor, domain.CreatePostRequest{Content: "Harvest sale today", ScheduledAt: api.svc.now().Add(3 * time.Minute)})
	if err != nil {
		t.Fatalf("SchedulePost returned error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := NewJobs(&jobsRepoStub{}, worker.svc, metrics.New(), logger, config.Config{})
	jobs.ProcessPostReminders()

	notifications, err := api.svc.ListNotifications(ctx, vendor)
	if err != nil {
		t.Fatalf("ListNotifications returned error: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Kind != domain.NotificationPostReminder {
		t.Fatalf("expected one post reminder visible to the API, got %+v", notifications)
	}
	posts, err := api.svc.ListPosts(ctx, vendor)
	if err != nil {
		t.Fatalf("ListPosts returned error: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != post.ID || !posts[0].Notified {
		t.Fatalf("expected the API to see the post marked notified, got %+v", posts)
	}

	// A worker on its own process-local store sees nothing to remind.
	isolated := newTestEnv(func(d *Dependencies) { d.Repo = api.repo })
	reminded, _, err := isolated.svc.ProcessPostReminders(ctx)
	if err != nil {
		t.Fatalf("ProcessPostReminders returned error: %v", err)
	}
	if reminded != 0 {
		t.Fatalf("expected no reminders from an isolated store, got %d", reminded)
	}
}

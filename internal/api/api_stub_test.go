package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fundlink/fundlink-service/internal/app"
	"github.com/fundlink/fundlink-service/internal/config"
	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/metrics"
	"github.com/google/uuid"
)

// directoryRepo implements the user and campaign lookups the router tests hit.
type directoryRepo struct {
	store.Repository

	mu        sync.Mutex
	users     map[uuid.UUID]*domain.User
	campaigns map[uuid.UUID]*domain.Campaign
}

func newDirectoryRepo() *directoryRepo {
	return &directoryRepo{
		users:     make(map[uuid.UUID]*domain.User),
		campaigns: make(map[uuid.UUID]*domain.Campaign),
	}
}

func (r *directoryRepo) Ping(ctx context.Context) error { return nil }

func (r *directoryRepo) CreateUser(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return store.ErrEmailTaken
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *directoryRepo) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *directoryRepo) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (r *directoryRepo) TouchLastActive(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return nil
}

func (r *directoryRepo) FindCampaignByID(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[campaignID]
	if !ok {
		return nil, store.ErrCampaignNotFound
	}
	copied := *campaign
	return &copied, nil
}

func (r *directoryRepo) GetPaymentSettings(ctx context.Context) (*domain.PaymentSettings, error) {
	return nil, store.ErrSettingsNotFound
}

func (r *directoryRepo) addCampaign(goal, raised int64) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign := &domain.Campaign{
		ID:           uuid.New(),
		VendorID:     uuid.New(),
		Title:        "Solar dryers for the co-op",
		Category:     "agriculture",
		GoalAmount:   goal,
		RaisedAmount: raised,
		BackerCount:  1,
		Status:       domain.CampaignStatusActive,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	r.campaigns[campaign.ID] = campaign
	return campaign.ID
}

func (r *directoryRepo) setRaised(campaignID uuid.UUID, raised int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[campaignID].RaisedAmount = raised
}

type testServer struct {
	handler http.Handler
	repo    *directoryRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newDirectoryRepo()
	svc := app.NewService(app.Dependencies{
		Repo:   repo,
		Logger: logger,
		Config: config.Config{JWTSecret: "router-secret", JWTTTLMinutes: 60, EventExchange: "fundlink.events"},
	})
	handlers := NewHandlers(svc, logger)
	webhook := NewWebhookHandler(svc, "whsec", logger)
	return &testServer{
		handler: Routes(handlers, webhook, metrics.New(), []string{"http://localhost:3000"}),
		repo:    repo,
	}
}

func (s *testServer) do(method, path, token, body string, header ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

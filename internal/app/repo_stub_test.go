package app

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fundlink/fundlink-service/internal/config"
	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/kvstore"
	"github.com/google/uuid"
)

// memoryRepo keeps users, campaigns, contributions and messages in maps and
// applies the ledger rules the Postgres repository enforces.
type memoryRepo struct {
	store.Repository

	mu            sync.Mutex
	users         map[uuid.UUID]*domain.User
	campaigns     map[uuid.UUID]*domain.Campaign
	contributions map[string]*domain.Contribution
	messages      map[string][]domain.Message
	settings      *domain.PaymentSettings
	events        []string
	now           func() time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:         make(map[uuid.UUID]*domain.User),
		campaigns:     make(map[uuid.UUID]*domain.Campaign),
		contributions: make(map[string]*domain.Contribution),
		messages:      make(map[string][]domain.Message),
		now:           func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func (r *memoryRepo) Ping(ctx context.Context) error { return nil }

func (r *memoryRepo) addUser(name string, role domain.Role) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	user := &domain.User{
		ID:        uuid.New(),
		Name:      name,
		Email:     strings.ToLower(name) + "@example.com",
		Role:      role,
		CreatedAt: r.now(),
	}
	r.users[user.ID] = user
	copied := *user
	return &copied
}

func (r *memoryRepo) CreateUser(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return store.ErrEmailTaken
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = r.now()
	copied := *user
	r.users[user.ID] = &copied
	r.events = append(r.events, domain.EventUserRegistered)
	return nil
}

func (r *memoryRepo) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *memoryRepo) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == strings.ToLower(strings.TrimSpace(email)) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (r *memoryRepo) AssignRole(ctx context.Context, userID uuid.UUID, role domain.Role, onlyIfUnset bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	if onlyIfUnset && user.Role != "" {
		return store.ErrRoleAlreadyAssigned
	}
	user.Role = role
	return nil
}

func (r *memoryRepo) TouchLastActive(ctx context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		user.LastActiveAt = &at
	}
	return nil
}

func (r *memoryRepo) ListUsersByRole(ctx context.Context, role domain.Role, limit int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := []domain.User{}
	for _, user := range r.users {
		if user.Role == role {
			users = append(users, *user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (r *memoryRepo) CountUsersByRole(ctx context.Context) (map[domain.Role]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.Role]int)
	for _, user := range r.users {
		counts[user.Role]++
	}
	return counts, nil
}

func (r *memoryRepo) CreateCampaign(ctx context.Context, campaign *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign.ID = uuid.New()
	campaign.CreatedAt = r.now()
	campaign.UpdatedAt = campaign.CreatedAt
	copied := *campaign
	r.campaigns[campaign.ID] = &copied
	return nil
}

func (r *memoryRepo) FindCampaignByID(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[campaignID]
	if !ok {
		return nil, store.ErrCampaignNotFound
	}
	copied := *campaign
	return &copied, nil
}

func (r *memoryRepo) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return store.ErrUserNotFound
	}
	delete(r.users, userID)
	for id, campaign := range r.campaigns {
		if campaign.VendorID == userID {
			delete(r.campaigns, id)
		}
	}
	return nil
}

func (r *memoryRepo) CountCampaigns(ctx context.Context) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := 0
	for _, campaign := range r.campaigns {
		if campaign.Status == domain.CampaignStatusActive {
			active++
		}
	}
	return len(r.campaigns), active, nil
}

func (r *memoryRepo) GetPaymentSettings(ctx context.Context) (*domain.PaymentSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings == nil {
		return nil, store.ErrSettingsNotFound
	}
	copied := *r.settings
	return &copied, nil
}

func (r *memoryRepo) UpsertPaymentSettings(ctx context.Context, settings *domain.PaymentSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *settings
	r.settings = &copied
	return nil
}

func (r *memoryRepo) CreateContributionIntent(ctx context.Context, contribution *domain.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contributions[contribution.PaymentReference]; ok {
		return store.ErrDuplicateReference
	}
	if _, ok := r.campaigns[contribution.CampaignID]; !ok {
		return store.ErrCampaignNotFound
	}
	contribution.ID = uuid.New()
	contribution.Status = domain.ContributionAwaitingConfirmation
	contribution.CreatedAt = r.now()
	copied := *contribution
	r.contributions[contribution.PaymentReference] = &copied
	return nil
}

func (r *memoryRepo) MarkContributionVerifying(ctx context.Context, reference string, contributorID uuid.UUID) (*domain.Contribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contribution, ok := r.contributions[reference]
	if !ok {
		return nil, store.ErrContributionNotFound
	}
	if contribution.ContributorID != contributorID {
		return nil, store.ErrNotContributionOwner
	}
	if contribution.Status != domain.ContributionVerifying {
		if !contribution.Status.CanTransition(domain.ContributionVerifying) {
			return nil, store.ErrInvalidTransition
		}
		contribution.Status = domain.ContributionVerifying
	}
	copied := *contribution
	return &copied, nil
}

func (r *memoryRepo) RecordVerifiedContribution(ctx context.Context, params store.VerifyContributionParams) (*store.VerifyContributionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contribution, ok := r.contributions[params.PaymentReference]
	if !ok {
		return nil, store.ErrContributionNotFound
	}
	campaign := r.campaigns[contribution.CampaignID]
	if contribution.Status == domain.ContributionVerified {
		c, cp := *contribution, *campaign
		return &store.VerifyContributionResult{Contribution: &c, Campaign: &cp, Applied: false}, nil
	}
	if !contribution.Status.CanTransition(domain.ContributionVerified) {
		return nil, store.ErrInvalidTransition
	}
	if params.Amount != 0 && params.Amount != contribution.Amount {
		return nil, store.ErrAmountMismatch
	}
	now := r.now()
	contribution.Status = domain.ContributionVerified
	contribution.VerifiedAt = &now
	campaign.RaisedAmount += contribution.Amount
	campaign.BackerCount++
	r.events = append(r.events, domain.EventContributionVerified)
	c, cp := *contribution, *campaign
	return &store.VerifyContributionResult{Contribution: &c, Campaign: &cp, Applied: true}, nil
}

func (r *memoryRepo) RejectContribution(ctx context.Context, reference string, reason string) (*domain.Contribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contribution, ok := r.contributions[reference]
	if !ok {
		return nil, store.ErrContributionNotFound
	}
	if contribution.Status != domain.ContributionRejected {
		if !contribution.Status.CanTransition(domain.ContributionRejected) {
			return nil, store.ErrInvalidTransition
		}
		contribution.Status = domain.ContributionRejected
		contribution.RejectionReason = &reason
		r.events = append(r.events, domain.EventContributionRejected)
	}
	copied := *contribution
	return &copied, nil
}

func (r *memoryRepo) ListContributionsByContributor(ctx context.Context, contributorID uuid.UUID) ([]domain.Contribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contributions := []domain.Contribution{}
	for _, contribution := range r.contributions {
		if contribution.ContributorID == contributorID {
			contributions = append(contributions, *contribution)
		}
	}
	sort.Slice(contributions, func(i, j int) bool { return contributions[i].PaymentReference < contributions[j].PaymentReference })
	return contributions, nil
}

func (r *memoryRepo) ContributionTotals(ctx context.Context) (int, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count, sum := 0, int64(0)
	for _, contribution := range r.contributions {
		if contribution.Verified() {
			count++
			sum += contribution.Amount
		}
	}
	return count, sum, nil
}

func (r *memoryRepo) AppendMessage(ctx context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[message.ReceiverID]; !ok {
		return store.ErrUserNotFound
	}
	message.ConversationKey = domain.ConversationKey(message.SenderID, message.ReceiverID)
	message.ID = uuid.New()
	message.Seq = int64(len(r.messages[message.ConversationKey]) + 1)
	message.CreatedAt = r.now()
	r.messages[message.ConversationKey] = append(r.messages[message.ConversationKey], *message)
	r.events = append(r.events, domain.EventMessageSent)
	return nil
}

func (r *memoryRepo) ListMessages(ctx context.Context, conversationKey string, afterSeq int64, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := []domain.Message{}
	for _, message := range r.messages[conversationKey] {
		if message.Seq > afterSeq && len(messages) < limit {
			messages = append(messages, message)
		}
	}
	return messages, nil
}

func (r *memoryRepo) MarkMessagesRead(ctx context.Context, conversationKey string, receiverID uuid.UUID, upToSeq int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var marked int64
	messages := r.messages[conversationKey]
	for i := range messages {
		if messages[i].ReceiverID == receiverID && !messages[i].Read && (upToSeq <= 0 || messages[i].Seq <= upToSeq) {
			messages[i].Read = true
			marked++
		}
	}
	return marked, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

type testEnv struct {
	svc       *Service
	repo      *memoryRepo
	publisher *recordingPublisher
	kv        *kvstore.MemoryStore
}

func newTestEnv(mutate ...func(*Dependencies)) *testEnv {
	repo := newMemoryRepo()
	publisher := &recordingPublisher{}
	kv := kvstore.NewMemoryStore()
	deps := Dependencies{
		Repo:      repo,
		KV:        kv,
		Publisher: publisher,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: config.Config{
			JWTSecret:               "test-secret",
			JWTTTLMinutes:           60,
			MinContribution:         10,
			PaymentIntentTTLMinutes: 60,
			MessageWaitMaxSeconds:   5,
			EventExchange:           "fundlink.events",
		},
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	svc := NewService(deps)
	svc.now = repo.now
	svc.jitter = func(int) int { return 0 }
	return &testEnv{svc: svc, repo: repo, publisher: publisher, kv: kv}
}

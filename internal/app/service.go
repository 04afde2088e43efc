/**
 * @description
 * This file contains the core business logic for fundlink-service. The `Service`
 * struct coordinates the database repository, the key-value store that holds
 * per-user records, the event publisher, the long-poll notifier and the
 * external generative-text and media services.
 *
 * Key features:
 * - Records contributions through the atomic ledger path of the repository.
 * - Routes identities to a view from their stored role, with no implicit default.
 * - Relays messages between two identities in per-conversation sequence order.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/kvstore, pkg/rabbitmq, pkg/metrics: For per-user records, events and metrics.
 */

package app

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/fundlink/fundlink-service/internal/config"
	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/kvstore"
	"github.com/fundlink/fundlink-service/pkg/metrics"
	"github.com/fundlink/fundlink-service/pkg/rabbitmq"
)

// TextGenerator produces a completion for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MediaStore stores uploaded images and returns their public URL.
type MediaStore interface {
	UploadImage(ctx context.Context, file io.Reader, filename string) (string, error)
	DeleteImage(ctx context.Context, imageURL string) error
}

// Dependencies groups the collaborators of Service. Publisher, Notifier,
// Metrics and Logger get defaults when nil; Generator, Media and Limiter are optional.
type Dependencies struct {
	Repo      store.Repository
	KV        kvstore.Store
	Publisher rabbitmq.Publisher
	Notifier  Notifier
	Generator TextGenerator
	Media     MediaStore
	Limiter   RateLimiter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Config    config.Config
}

// Service provides the core business logic.
type Service struct {
	repo      store.Repository
	publisher rabbitmq.Publisher
	notifier  Notifier
	generator TextGenerator
	media     MediaStore
	limiter   RateLimiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	config    config.Config

	connections   *kvstore.Collection[domain.ConnectionRequest]
	posts         *kvstore.Collection[domain.ScheduledPost]
	notifications *kvstore.Collection[domain.Notification]
	revoked       *kvstore.Collection[revokedToken]

	now    func() time.Time
	jitter func(n int) int
}

// NewService creates a new service instance.
func NewService(deps Dependencies) *Service {
	if deps.Publisher == nil {
		deps.Publisher = &rabbitmq.EventProducerFallback{}
	}
	if deps.Notifier == nil {
		deps.Notifier = NewMemoryNotifier()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.KV == nil {
		deps.KV = kvstore.NewMemoryStore()
	}

	return &Service{
		repo:          deps.Repo,
		publisher:     deps.Publisher,
		notifier:      deps.Notifier,
		generator:     deps.Generator,
		media:         deps.Media,
		limiter:       deps.Limiter,
		metrics:       deps.Metrics,
		logger:        deps.Logger.With("component", "service"),
		config:        deps.Config,
		connections:   kvstore.NewCollection[domain.ConnectionRequest](deps.KV, "connections"),
		posts:         kvstore.NewCollection[domain.ScheduledPost](deps.KV, "posts"),
		notifications: kvstore.NewCollection[domain.Notification](deps.KV, "notifications"),
		revoked:       kvstore.NewCollection[revokedToken](deps.KV, "revoked_tokens"),
		now:           func() time.Time { return time.Now().UTC() },
		jitter:        rand.Intn,
	}
}

// Ping reports database readiness.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// publish sends an event straight to the broker. Used for events that have no
// database write to ride along with; failures are logged and dropped.
func (s *Service) publish(ctx context.Context, routingKey string, payload interface{}) {
	if err := s.publisher.Publish(ctx, s.config.EventExchange, routingKey, payload); err != nil {
		s.logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}

func (s *Service) consumeRateLimit(ctx context.Context, scope, subject string, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	decision, err := s.limiter.Attempt(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		// Fail open: a limiter outage must not lock users out.
		s.logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
		return nil
	}
	if !decision.Allowed {
		s.logger.Info("rate limit reached", "scope", scope, "attempts", decision.Attempts)
		return &RateLimitError{Scope: scope, RetryAfterSeconds: int(decision.RetryAfter / time.Second)}
	}
	return nil
}

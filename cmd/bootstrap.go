package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fundlink/fundlink-service/internal/app"
	"github.com/fundlink/fundlink-service/internal/config"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/genaiclient"
	"github.com/fundlink/fundlink-service/pkg/kvstore"
	"github.com/fundlink/fundlink-service/pkg/mediastore"
	"github.com/fundlink/fundlink-service/pkg/metrics"
	"github.com/fundlink/fundlink-service/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// runtimeDeps holds everything opened at startup so commands can close it.
type runtimeDeps struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *pgxpool.Pool
	repo     *store.PostgresRepository
	redis    *redis.Client
	kv       kvstore.Store
	producer rabbitmq.Publisher
	metrics  *metrics.Metrics
	service  *app.Service
}

func (d *runtimeDeps) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if d.producer != nil {
		d.producer.Close()
	}
	if d.kv != nil {
		if err := d.kv.Close(ctx); err != nil {
			d.logger.Warn("failed to close kv store", "error", err)
		}
	}
	if d.redis != nil {
		d.redis.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
}

func openDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

// openRedis connects when REDIS_URL is set. A missing or unreachable Redis
// leaves the client nil and the callers fall back to in-process state.
func openRedis(ctx context.Context, redisURL string, logger *slog.Logger) *redis.Client {
	if strings.TrimSpace(redisURL) == "" {
		logger.Warn("redis url missing; rate limiting and cross-instance wake-ups disabled", "env", "REDIS_URL")
		return nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("redis url parse failed; continuing without redis", "error", err)
		return nil
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; continuing without redis", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

func openKVStore(ctx context.Context, cfg config.Config, redisClient *redis.Client, logger *slog.Logger) (kvstore.Store, error) {
	switch cfg.KVBackend {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("KV_BACKEND=redis requires a reachable REDIS_URL")
		}
		return kvstore.NewRedisStore(redisClient, cfg.KVKeyPrefix()), nil
	case "mongo":
		store, err := kvstore.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo kv store: %w", err)
		}
		logger.Info("mongo kv store connected", "database", cfg.MongoDatabase)
		return store, nil
	default:
		logger.Warn("using in-memory kv store; records are lost on restart", "kv_backend", cfg.KVBackend)
		return kvstore.NewMemoryStore(), nil
	}
}

// bootstrap opens every backing service and builds the application service.
func bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtimeDeps, error) {
	deps := &runtimeDeps{cfg: cfg, logger: logger, metrics: metrics.New()}

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	deps.db = db
	deps.repo = store.NewPostgresRepository(db, cfg.EventExchange)
	logger.Info("database connection established")

	deps.redis = openRedis(ctx, cfg.RedisURL, logger)

	kv, err := openKVStore(ctx, cfg, deps.redis, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.kv = kv

	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		deps.producer = &rabbitmq.EventProducerFallback{}
	} else {
		deps.producer = producer
		logger.Info("rabbitmq producer connected")
	}

	serviceDeps := app.Dependencies{
		Repo:      deps.repo,
		KV:        deps.kv,
		Publisher: deps.producer,
		Metrics:   deps.metrics,
		Logger:    logger,
		Config:    cfg,
	}
	if deps.redis != nil {
		serviceDeps.Notifier = app.NewRedisNotifier(deps.redis, cfg.RedisKeyPrefix)
		serviceDeps.Limiter = app.NewRedisRateLimiter(deps.redis, cfg.RedisKeyPrefix)
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		generator, err := genaiclient.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("generative text client unavailable; assistant uses fallbacks", "error", err)
		} else {
			serviceDeps.Generator = generator
		}
	} else {
		logger.Warn("GEMINI_API_KEY not set; assistant uses fallbacks")
	}

	if strings.TrimSpace(cfg.CloudinaryURL) != "" {
		media, err := mediastore.NewCloudinaryStore(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			logger.Warn("media store unavailable; QR uploads disabled", "error", err)
		} else {
			serviceDeps.Media = media
		}
	} else {
		logger.Warn("CLOUDINARY_URL not set; QR uploads disabled")
	}

	deps.service = app.NewService(serviceDeps)
	return deps, nil
}

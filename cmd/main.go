/**
 * @description
 * This is the main entry point for fundlink-service. It is responsible for
 * initializing all components of the service, including configuration, the
 * database connection, the key-value store, message brokers, external clients,
 * the core application service and the HTTP server.
 *
 * Commands:
 * - serve: HTTP API, outbox dispatcher and notification consumer. With the
 *   memory KV backend (or --with-scheduler) it also runs the scheduled jobs.
 * - worker: Scheduled jobs (post reminders, payment expiry, ledger reconciliation).
 *   Requires a shared KV backend (redis or mongo).
 * - migrate: Applies the database schema.
 * - grant-role: Grants a role (including admin) to an existing account.
 *
 * @dependencies
 * - github.com/spf13/cobra: For the command line.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - golang.org/x/sync/errgroup: For running the server components together.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fundlink/fundlink-service/internal/api"
	"github.com/fundlink/fundlink-service/internal/app"
	"github.com/fundlink/fundlink-service/internal/config"
	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/rabbitmq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on environment variables")
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "fundlink",
		Short:         "Crowdfunding and messaging service for vendors and investors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", ".", "Directory containing app.env")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	setup := func() (config.Config, *slog.Logger, error) {
		logger := newLogger(logLevel)
		slog.SetDefault(logger)
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return cfg, logger, nil
	}

	var withScheduler bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, outbox dispatcher and event consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger, withScheduler)
		},
	}
	serveCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Also run the scheduled jobs in this process (always on for KV_BACKEND=memory)")

	cmd.AddCommand(
		serveCmd,
		&cobra.Command{
			Use:   "worker",
			Short: "Run the scheduled jobs",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return runWorker(ctx, cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				db, err := openDatabase(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := store.Migrate(ctx, db); err != nil {
					return err
				}
				logger.Info("migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "grant-role <email> <vendor|investor|admin>",
			Short: "Grant a role to an existing account",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				deps, err := bootstrap(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer deps.Close()
				user, err := deps.service.GrantRole(cmd.Context(), args[0], domain.Role(strings.ToLower(args[1])))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, user.Role)
				return nil
			},
		},
	)
	return cmd
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, withScheduler bool) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be configured")
	}
	if cfg.PaymentWebhookSecret == "" {
		logger.Warn("PAYMENT_WEBHOOK_SECRET not set; payment webhooks will be rejected")
	}

	deps, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	handlers := api.NewHandlers(deps.service, logger)
	webhook := api.NewWebhookHandler(deps.service, cfg.PaymentWebhookSecret, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           api.Routes(handlers, webhook, deps.metrics, cfg.AllowedOrigins()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	})

	dispatcher := app.NewOutboxDispatcher(deps.repo, cfg.RabbitMQURL, deps.metrics, logger)
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq consumer unavailable; notifications from events disabled", "error", err)
	} else {
		defer consumer.Close()
		eventHandler := app.NewEventHandler(deps.service, logger)
		g.Go(func() error {
			if err := consumer.ConsumeWithBindings(gctx, cfg.EventExchange, cfg.EventQueue, eventHandler.Bindings()); err != nil {
				logger.Error("event consumer stopped", "error", err)
			}
			return nil
		})
	}

	if withScheduler || !cfg.SharedKV() {
		if !withScheduler {
			logger.Info("kv backend is process-local; running scheduled jobs in the API process", "kv_backend", cfg.KVBackend)
		}
		scheduler := app.NewScheduler(app.NewJobs(deps.repo, deps.service, deps.metrics, logger, cfg), logger, cfg)
		scheduler.Start()
		g.Go(func() error {
			<-gctx.Done()
			<-scheduler.Stop().Done()
			logger.Info("in-process scheduler stopped")
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown started")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func runWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if !cfg.SharedKV() {
		// A separate process would read an empty post store and write
		// notifications the API never sees.
		return fmt.Errorf("worker needs a shared KV backend (KV_BACKEND=redis or mongo), got %q; use `serve` which runs the jobs in-process", cfg.KVBackend)
	}
	deps, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	jobs := app.NewJobs(deps.repo, deps.service, deps.metrics, logger, cfg)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	logger.Info("scheduler service started")

	<-ctx.Done()
	logger.Info("shutting down scheduler service")
	<-scheduler.Stop().Done()
	logger.Info("scheduler service stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/genforge/backend/internal/activity"
	"github.com/genforge/backend/internal/auth"
	"github.com/genforge/backend/internal/cache"
	"github.com/genforge/backend/internal/config"
	"github.com/genforge/backend/internal/dashboard"
	"github.com/genforge/backend/internal/database"
	"github.com/genforge/backend/internal/events"
	"github.com/genforge/backend/internal/execution"
	"github.com/genforge/backend/internal/handlers"
	"github.com/genforge/backend/internal/ledger"
	"github.com/genforge/backend/internal/middleware"
	"github.com/genforge/backend/internal/providers"
	"github.com/genforge/backend/internal/repository"
	"github.com/genforge/backend/internal/router"
	"github.com/genforge/backend/internal/services"
	"github.com/genforge/backend/internal/sweeper"
	"github.com/genforge/backend/schemas"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Cannot load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories and ledger
	usageRepo := repository.NewUsageRepo(pool)
	creditRepo := repository.NewCreditLogRepo(pool)
	bindingRepo := repository.NewBindingRepo(pool)
	activityRepo := repository.NewActivityRepo(pool)

	ledgerSvc := ledger.NewService(pool, usageRepo, creditRepo, bindingRepo, logger)
	activityLogger := activity.NewLogger(activityRepo, logger)

	// Providers
	kie := providers.NewClient(cfg.KieBaseURL, cfg.KieAPIKey, cfg.KieTimeout)
	kie.CallbackURL = cfg.KieCallbackURL
	registry := providers.NewKieRegistry(kie)

	schemaValidator, err := services.NewValidator(schemas.FS)
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}

	genSvc := services.NewGenerationService(registry, schemaValidator, ledgerSvc, bindingRepo, activityLogger, logger)

	// Optional status cache
	if cfg.RedisAddr != "" {
		statusCache, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, TTL: cfg.StatusCacheTTL})
		if err != nil {
			slog.Warn("Redis unavailable, status cache disabled", "error", err)
		} else {
			defer statusCache.Close()
			genSvc.Cache = statusCache
		}
	}

	// Optional settlement events
	var publisher events.Publisher = events.NoopPublisher{Logger: logger}
	if cfg.AMQPURL != "" {
		producer, err := events.NewProducer(cfg.AMQPURL, cfg.EventsExchange, logger)
		if err != nil {
			slog.Warn("RabbitMQ unavailable, settlement events disabled", "error", err)
		} else {
			publisher = producer
		}
	}
	defer publisher.Close()
	genSvc.Events = publisher

	// Settlement worker
	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewSettleTaskWorker(genSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 20},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	var sweep *sweeper.Scheduler
	if cfg.SettleWorkerEnabled {
		enqueuer := execution.NewEnqueuer(func(ctx context.Context, args execution.SettleTaskArgs, opts *river.InsertOpts) error {
			_, err := riverClient.Insert(ctx, args, opts)
			return err
		}, cfg.SweepMaxAge)
		genSvc.Scheduler = enqueuer

		if err := riverClient.Start(ctx); err != nil {
			slog.Error("River client failed to start", "error", err)
			os.Exit(1)
		}
		sweep = sweeper.NewScheduler(bindingRepo, enqueuer, logger, sweeper.Config{
			Schedule: cfg.SweepSchedule,
			MinAge:   cfg.SweepMinAge,
			MaxAge:   cfg.SweepMaxAge,
		})
		if err := sweep.Start(); err != nil {
			slog.Error("Settlement sweep disabled", "error", err)
			sweep = nil
		}
	}

	// HTTP
	verifier := auth.NewVerifier(cfg.JWTSecret)
	userAuth := middleware.UserAuth(verifier)

	dashHandler := dashboard.NewHandler(ledgerSvc, creditRepo, activityRepo, logger)
	genHandler := handlers.NewGenerationHandler(genSvc, registry, validator.New(validator.WithRequiredStructEnabled()), logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", router.New(dashHandler, userAuth))
	RegisterV1Routes(mux, genHandler, userAuth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}
	if sweep != nil {
		<-sweep.Stop().Done()
	}
	if cfg.SettleWorkerEnabled {
		if err := riverClient.Stop(shutdownCtx); err != nil {
			slog.Error("River client stop", "error", err)
		}
	}
}

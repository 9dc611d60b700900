package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repairlink_backend/internal/adapters"
	"repairlink_backend/internal/chat"
	"repairlink_backend/internal/directory"
	"repairlink_backend/internal/email"
	apphttp "repairlink_backend/internal/http"
	"repairlink_backend/internal/http/router"
	"repairlink_backend/internal/notification"
	"repairlink_backend/internal/payments"
	"repairlink_backend/internal/requests"
	requestssvc "repairlink_backend/internal/requests/service"
	"repairlink_backend/internal/scheduler"
	"repairlink_backend/internal/sms"
	"repairlink_backend/internal/storage"
	"repairlink_backend/platform/config"
	"repairlink_backend/platform/db"
	"repairlink_backend/platform/events"
	"repairlink_backend/platform/logger"
	"repairlink_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Outbound channels. Each falls back to a no-op when unconfigured so
	// the lifecycle keeps working in local setups without the side services.
	var smsSender sms.Sender = sms.NoopSender{}
	if cfg.IsSMSEnabled() {
		smsSender = sms.NewClient(cfg, log)
		log.Info("sms sender initialized", "url", cfg.GetSMSServiceURL())
	}

	var emailSender email.Sender = email.NoopSender{}
	if cfg.IsEmailEnabled() {
		emailSender = email.NewSMTPSender(cfg)
		log.Info("email sender initialized", "host", cfg.GetSMTPHost())
	}

	var chatOpener chat.Opener = chat.NoopOpener{}
	if cfg.IsChatEnabled() {
		chatOpener = chat.NewClient(cfg, log)
		log.Info("chat opener initialized", "url", cfg.GetChatServiceURL())
	}

	var contacts directory.Resolver = directory.NoopResolver{}
	if cfg.IsDirectoryEnabled() {
		contacts = directory.NewClient(cfg, log)
		log.Info("directory resolver initialized", "url", cfg.GetDirectoryServiceURL())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule, err := notification.NewModule(pool, smsSender, emailSender, chatOpener, contacts, log)
	if err != nil {
		log.Error("failed to initialize notification module", "error", err)
		panic("failed to initialize notification module: " + err.Error())
	}
	notificationModule.Subscribe(eventBus)

	requestsModule := requests.NewModule(pool, eventBus, val, cfg, log)
	paymentsModule := payments.NewModule(pool, eventBus, val, cfg, log)

	// Adapters break the import cycle between the lifecycle and the
	// settlement engine.
	requestsModule.Service().SetSettlementCreator(adapters.NewSettlementAdapter(paymentsModule.Service()))
	paymentsModule.Service().SetLifecycleAdvancer(adapters.NewLifecycleAdapter(requestsModule.Service()))

	// Completion-code attempt counting survives restarts when Redis is
	// configured; the in-process guard still bounds guessing without it.
	if cfg.GetRedisURL() != "" {
		opt, err := redis.ParseURL(cfg.GetRedisURL())
		if err != nil {
			log.Error("failed to parse redis url", "error", err)
			panic("failed to parse redis url: " + err.Error())
		}
		redisClient := redis.NewClient(opt)
		defer func() { _ = redisClient.Close() }()
		requestsModule.Service().SetAttemptGuard(requestssvc.NewRedisAttemptGuard(redisClient, cfg.GetCompletionCodeTTL()))
		log.Info("redis attempt guard initialized")
	} else {
		requestsModule.Service().SetAttemptGuard(requestssvc.NewMemoryAttemptGuard())
		log.Warn("REDIS_URL not configured; using in-process completion attempt guard")
	}

	// Completion evidence storage (MinIO)
	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure completion-evidence bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucket(ctx)
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err)
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		requestsModule.SetEvidenceStorage(storageSvc)
		log.Info("storage service initialized", "evidenceBucket", cfg.GetMinioBucketCompletionEvidence())
	} else {
		log.Warn("MINIO_ENDPOINT not configured; completion evidence uploads disabled")
	}

	// Outbox dispatcher feeds the asynq queue consumed by cmd/scheduler.
	if cfg.GetRedisURL() != "" {
		dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, pool, log)
		if err != nil {
			log.Error("failed to initialize outbox dispatcher", "error", err)
			panic("failed to initialize outbox dispatcher: " + err.Error())
		}
		defer func() { _ = dispatcher.Close() }()
		go dispatcher.Run(ctx)
	} else {
		log.Warn("REDIS_URL not configured; notification outbox dispatch disabled")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			requestsModule,
			paymentsModule,
		},
	}

	engine := router.New(app)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

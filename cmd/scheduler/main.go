package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repairlink_backend/internal/adapters"
	"repairlink_backend/internal/chat"
	"repairlink_backend/internal/directory"
	"repairlink_backend/internal/email"
	"repairlink_backend/internal/notification"
	"repairlink_backend/internal/payments"
	"repairlink_backend/internal/requests"
	"repairlink_backend/internal/scheduler"
	"repairlink_backend/internal/sms"
	"repairlink_backend/platform/config"
	"repairlink_backend/platform/db"
	"repairlink_backend/platform/events"
	"repairlink_backend/platform/logger"
	"repairlink_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	var smsSender sms.Sender = sms.NoopSender{}
	if cfg.IsSMSEnabled() {
		smsSender = sms.NewClient(cfg, log)
	}

	var emailSender email.Sender = email.NoopSender{}
	if cfg.IsEmailEnabled() {
		emailSender = email.NewSMTPSender(cfg)
	}

	var chatOpener chat.Opener = chat.NoopOpener{}
	if cfg.IsChatEnabled() {
		chatOpener = chat.NewClient(cfg, log)
	}

	var contacts directory.Resolver = directory.NoopResolver{}
	if cfg.IsDirectoryEnabled() {
		contacts = directory.NewClient(cfg, log)
	}

	notificationModule, err := notification.NewModule(pool, smsSender, emailSender, chatOpener, contacts, log)
	if err != nil {
		log.Error("failed to initialize notification module", "error", err)
		panic("failed to initialize notification module: " + err.Error())
	}
	notificationModule.Subscribe(eventBus)

	// Worker-side lifecycle wiring: expiring a payment and settling a retried
	// one both route through the same services the API uses.
	requestsModule := requests.NewModule(pool, eventBus, val, cfg, log)
	paymentsModule := payments.NewModule(pool, eventBus, val, cfg, log)
	requestsModule.Service().SetSettlementCreator(adapters.NewSettlementAdapter(paymentsModule.Service()))
	paymentsModule.Service().SetLifecycleAdvancer(adapters.NewLifecycleAdapter(requestsModule.Service()))

	expirer := scheduler.NewStalePaymentExpirer(paymentsModule.Service(), cfg.GetPaymentPendingTTL(), log)

	worker, err := scheduler.NewWorker(cfg, notificationModule, paymentsModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		expirer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	_ = g.Wait()
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

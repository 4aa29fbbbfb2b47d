package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/issue-tracker/internal/api/http"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/notify"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/persistence"
	"github.com/spec-kit/issue-tracker/internal/service"
	"github.com/spec-kit/issue-tracker/internal/worker"
	"github.com/spec-kit/issue-tracker/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := persistence.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	defer stores.Close(context.Background())

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(dispatcher, logger, metrics)

	tokens := auth.NewTokenManager(auth.TokenOptions{
		Secret:      cfg.Auth.JWTSecret,
		TTL:         cfg.Auth.AccessTokenTTL(),
		ResetSecret: cfg.Auth.ResetTokenSecret,
		ResetTTL:    cfg.Auth.PasswordResetTTL(),
	})

	engine := workflow.NewEngine(cfg.Workflow.Table())
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: stores.Tickets,
		Workflow:   engine,
		Dispatcher: dispatcher,
		Logger:     logger.Named("tickets"),
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:          stores.Users,
		PasswordResetRepo: stores.Resets,
		Tokens:            tokens,
		Notifier:          notify.New(cfg.Notification, logger),
		Logger:            logger.Named("auth"),
	})

	app := httptransport.NewServer(httptransport.ServerDeps{
		Name:           cfg.App.Name,
		Version:        cfg.App.Version,
		Store:          stores.Driver,
		RequestTimeout: cfg.App.RequestTimeout(),
		Logger:         logger,
		Metrics:        metrics,
		Tickets:        ticketService,
		Auth:           authService,
		Identity:       auth.NewIdentity(tokens),
		Health:         stores.Health(),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

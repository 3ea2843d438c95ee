package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"panelhub/internal/access"
	"panelhub/internal/audit"
	"panelhub/internal/bootstrap"
	"panelhub/internal/bot"
	"panelhub/internal/config"
	cronpkg "panelhub/internal/cron"
	"panelhub/internal/handler/api"
	"panelhub/internal/middleware"
	"panelhub/internal/panel"
	"panelhub/internal/provision"
	"panelhub/internal/repository"
	"panelhub/internal/router"
	"panelhub/internal/wallet"
)

// notifyActions are forwarded to the admin chat when a bot is configured.
var notifyActions = []string{
	"user.create_failed",
	"outbox.failed",
	"operator.create",
	"wallet.adjust",
	"panel.delete",
}

func main() {
	// --- Logger ---
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db, bootstrap.Options{BootstrapAdminEmail: cfg.Access.BootstrapAdminEmail}); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	repos := api.NewRepos(db)

	// --- Audit trail (+ optional Telegram notifications) ---
	recorder := audit.New(repos.Audit, logger, cfg.Audit.Buffer)
	if cfg.Bot.Token != "" && cfg.Bot.AdminID != 0 {
		notifier, err := bot.New(cfg.Bot.Token, cfg.Bot.AdminID, logger)
		if err != nil {
			logger.Warn("Telegram notifier disabled", zap.Error(err))
		} else {
			recorder.WithNotifier(notifier, notifyActions...)
		}
	}
	recorder.Start()

	// --- Domain services ---
	client := panel.NewClient(panel.Options{
		Timeout:     cfg.Panel.Timeout,
		VerifyToken: cfg.Panel.VerifyToken,
		Logger:      logger,
	})
	ledger := wallet.NewLedger(repository.NewWalletRepository(db), repos.PlanTemplate, logger)
	engine := provision.NewEngine(provision.Deps{
		Panels:     repos.Panel,
		Plans:      repos.Plan,
		Selections: repos.Selection,
		Templates:  repos.Template,
		Mirrors:    repos.CreatedUser,
		Resolver:   access.NewResolver(repos.Credential),
		Client:     client,
		Ledger:     ledger,
		Audit:      recorder,
		Logger:     logger,
	})
	operators := provision.NewOperators(db, cfg.Outbox.MaxAttempts, recorder, logger)
	policy := access.NewRootAdminPolicy(cfg.Access.RootAdminEmails, repos.User)

	// --- Idempotency keys (Redis with in-memory fallback) ---
	keys, keyErr := middleware.NewKeyStore(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB, 24*time.Hour)
	if keyErr != nil {
		logger.Warn("Redis unavailable for idempotency keys, using in-memory fallback", zap.Error(keyErr))
	}

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, &api.Deps{
		Repos:        repos,
		Engine:       engine,
		Operators:    operators,
		Ledger:       ledger,
		Client:       client,
		Audit:        recorder,
		Logger:       logger,
		ExposeErrors: cfg.Server.ExposeErrors && !cfg.Server.Production(),
	}, router.Options{
		JWTSecret: cfg.JWT.Secret,
		Policy:    policy,
		Keys:      keys,
		Logger:    logger,
	})

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg, &cronpkg.CronRepos{
		Panel:  repos.Panel,
		Outbox: repos.Outbox,
		Audit:  repos.Audit,
	}, client, recorder, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting panelhub server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop HTTP server first so no new audit events arrive.
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop cron
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("Cron jobs still running at shutdown")
	}

	recorder.Stop(shutdownCtx)

	logger.Info("Server exited")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg)
	if err != nil {
		return err
	}
	opts := bootstrap.Options{
		BootstrapAdminEmail: strings.ToLower(strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
	}
	if err := bootstrap.MigrateAndSeed(db, opts); err != nil {
		return err
	}
	logger.Info("Schema migration and default seed completed")
	return nil
}
